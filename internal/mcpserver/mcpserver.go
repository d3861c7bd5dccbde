// Package mcpserver exposes the pipeline's live aircraft table and
// rate-limiter statistics as Model Context Protocol tools, so an LLM
// client can query the receiver the same way a human would hit the
// snapshot HTTP endpoint.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cwsl/adsb-pipeline/internal/ratelimit"
	"github.com/cwsl/adsb-pipeline/internal/tracker"
)

// Server wraps an mcp-go server exposing "stats" and "aircraft" tools.
type Server struct {
	tracker     *tracker.Tracker
	rateLimiter *ratelimit.RateLimiter

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// New builds a Server backed by the given Tracker and RateLimiter.
func New(t *tracker.Tracker, rl *ratelimit.RateLimiter) *Server {
	s := &Server{tracker: t, rateLimiter: rl}

	s.mcpServer = server.NewMCPServer(
		"adsb-pipeline",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	return s
}

// HTTPServer returns the underlying streamable-HTTP MCP transport, for
// mounting on a ServeMux.
func (s *Server) HTTPServer() *server.StreamableHTTPServer { return s.httpServer }

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("stats",
			mcp.WithDescription("Get rate-limiter throughput statistics: total updates received, how many were emitted immediately versus coalesced, and how many aircraft currently have live limiter state."),
		),
		s.handleStats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("aircraft",
			mcp.WithDescription("Get the currently tracked aircraft: ICAO address, callsign, last known position/altitude, velocity, and how recently each was last seen."),
			mcp.WithString("icao",
				mcp.Description("Filter to a single ICAO24 address in hex (e.g. '4840D6'); omit for all tracked aircraft"),
			),
		),
		s.handleAircraft,
	)
}

func (s *Server) handleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.rateLimiter == nil {
		return mcp.NewToolResultError("rate limiter not configured"), nil
	}
	body, err := json.MarshalIndent(s.rateLimiter.Stats(), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// aircraftView is the JSON shape returned by the aircraft tool; it mirrors
// tracker.AircraftState but drops internal CPR bookkeeping fields.
type aircraftView struct {
	ICAO             string    `json:"icao"`
	Callsign         string    `json:"callsign,omitempty"`
	Lat              *float64  `json:"lat,omitempty"`
	Lon              *float64  `json:"lon,omitempty"`
	AltFeet          *int32    `json:"alt_feet,omitempty"`
	GroundSpeedKt    *float64  `json:"ground_speed_kt,omitempty"`
	TrackDeg         *float64  `json:"track_deg,omitempty"`
	LastSeen         time.Time `json:"last_seen"`
	MessagesReceived uint64    `json:"messages_received"`
}

func toView(st tracker.AircraftState) aircraftView {
	v := aircraftView{
		ICAO:             st.ICAO.String(),
		Callsign:         st.Callsign,
		LastSeen:         st.LastSeen,
		MessagesReceived: st.MessagesReceived,
	}
	if st.Position != nil {
		lat, lon := st.Position.Lat, st.Position.Lon
		v.Lat, v.Lon = &lat, &lon
		if st.Position.HasAlt {
			alt := st.Position.AltFeet
			v.AltFeet = &alt
		}
	}
	if st.Velocity != nil {
		gs, trk := st.Velocity.GroundSpeedKt, st.Velocity.TrackDeg
		v.GroundSpeedKt, v.TrackDeg = &gs, &trk
	}
	return v
}

func (s *Server) handleAircraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.tracker == nil {
		return mcp.NewToolResultError("tracker not configured"), nil
	}
	icaoFilter := strings.ToUpper(strings.TrimSpace(req.GetString("icao", "")))

	snap := s.tracker.Snapshot(time.Now())
	views := make([]aircraftView, 0, len(snap))
	for _, st := range snap {
		if icaoFilter != "" && st.ICAO.String() != icaoFilter {
			continue
		}
		views = append(views, toView(st))
	}

	body, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal aircraft: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
