// Package snapshot serves the pipeline's live state over HTTP and a
// line-oriented control port: a JSON snapshot of tracked aircraft, a
// Prometheus /metrics endpoint, and "stats"/"aircraft" text commands.
package snapshot

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/cwsl/adsb-pipeline/internal/ratelimit"
	"github.com/cwsl/adsb-pipeline/internal/tracker"
)

// Server serves the JSON snapshot/metrics HTTP endpoints and a text control
// port, per spec.md 4.8.
type Server struct {
	tracker     *tracker.Tracker
	rateLimiter *ratelimit.RateLimiter
	log         *logrus.Entry

	httpServer *http.Server
	ctrlListen net.Listener
	router     *mux.Router

	startedAt time.Time
	proc      *process.Process
}

// New builds a Server. Call ListenHTTP and/or ListenControl to start it.
func New(t *tracker.Tracker, rl *ratelimit.RateLimiter, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		tracker:     t,
		rateLimiter: rl,
		log:         log.WithField("component", "snapshot"),
		startedAt:   time.Now(),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	return s
}

// processStats enriches the "stats" payload with process CPU/RSS/uptime,
// matching the teacher's own gopsutil-backed health reporting.
type processStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	UptimeSecs float64 `json:"uptime_seconds"`
}

func (s *Server) collectProcessStats() processStats {
	ps := processStats{UptimeSecs: time.Since(s.startedAt).Seconds()}
	if s.proc == nil {
		return ps
	}
	if pct, err := s.proc.CPUPercent(); err == nil {
		ps.CPUPercent = pct
	}
	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		ps.RSSBytes = mem.RSS
	}
	return ps
}

// statsPayload is the "stats" control-port/HTTP response shape: the
// rate-limiter snapshot plus process-level enrichment.
type statsPayload struct {
	ratelimit.Stats
	Process processStats `json:"process"`
}

func (s *Server) statsSnapshot() statsPayload {
	var rl ratelimit.Stats
	if s.rateLimiter != nil {
		rl = s.rateLimiter.Stats()
	}
	return statsPayload{Stats: rl, Process: s.collectProcessStats()}
}

// aircraftView is the wire shape of one tracked aircraft.
type aircraftView struct {
	ICAO             string    `json:"icao"`
	Callsign         string    `json:"callsign,omitempty"`
	Category         uint8     `json:"category,omitempty"`
	Lat              *float64  `json:"lat,omitempty"`
	Lon              *float64  `json:"lon,omitempty"`
	AltFeet          *int32    `json:"alt_feet,omitempty"`
	OnGround         bool      `json:"on_ground,omitempty"`
	GroundSpeedKt    *float64  `json:"ground_speed_kt,omitempty"`
	TrackDeg         *float64  `json:"track_deg,omitempty"`
	VerticalRateFpm  *int32    `json:"vertical_rate_fpm,omitempty"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	MessagesReceived uint64    `json:"messages_received"`
}

func toView(st tracker.AircraftState) aircraftView {
	v := aircraftView{
		ICAO:             st.ICAO.String(),
		Callsign:         st.Callsign,
		Category:         st.Category,
		FirstSeen:        st.FirstSeen,
		LastSeen:         st.LastSeen,
		MessagesReceived: st.MessagesReceived,
	}
	if st.Position != nil {
		lat, lon := st.Position.Lat, st.Position.Lon
		v.Lat, v.Lon = &lat, &lon
		v.OnGround = st.Position.OnGround
		if st.Position.HasAlt {
			alt := st.Position.AltFeet
			v.AltFeet = &alt
		}
	}
	if st.Velocity != nil {
		gs, trk := st.Velocity.GroundSpeedKt, st.Velocity.TrackDeg
		v.GroundSpeedKt, v.TrackDeg = &gs, &trk
		if st.Velocity.HasVertRate {
			vr := st.Velocity.VerticalRateFpm
			v.VerticalRateFpm = &vr
		}
	}
	return v
}

// aircraftSnapshot reads a coherent set of currently-live aircraft from the
// Tracker (a single Snapshot() call under its own lock) and renders it to
// the wire shape.
func (s *Server) aircraftSnapshot() []aircraftView {
	snap := s.tracker.Snapshot(time.Now())
	out := make([]aircraftView, 0, len(snap))
	for _, st := range snap {
		out = append(out, toView(st))
	}
	return out
}

func gzipAcceptable(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if !gzipAcceptable(r) {
		json.NewEncoder(w).Encode(v)
		return
	}
	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	json.NewEncoder(gz).Encode(v)
}

func (s *Server) handleAircraft(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, s.aircraftSnapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, s.statsSnapshot())
}

// Mux builds (or returns the already-built) gorilla/mux router backing the
// HTTP snapshot surface, mounting /aircraft, /stats and /metrics. Callers
// that also need to mount other handlers (the WebSocket sink's /ws) must
// call Mux before ListenHTTP so both share the same router.
func (s *Server) Mux() *mux.Router {
	if s.router == nil {
		r := mux.NewRouter()
		r.HandleFunc("/aircraft", s.handleAircraft).Methods("GET")
		r.HandleFunc("/stats", s.handleStats).Methods("GET")
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
		s.router = r
	}
	return s.router
}

// ListenHTTP starts the JSON/metrics HTTP server on addr.
func (s *Server) ListenHTTP(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Mux()}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Warn("snapshot http server stopped")
		}
	}()
	s.log.WithField("addr", addr).Info("snapshot server listening")
	return nil
}

// ListenControl starts the line-oriented control port: a connected client
// sends "stats" or "aircraft" and receives one JSON document in reply.
func (s *Server) ListenControl(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ctrlListen = ln
	go s.controlAcceptLoop(ln)
	s.log.WithField("addr", addr).Info("control port listening")
	return nil
}

func (s *Server) controlAcceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			s.log.WithError(err).Warn("control accept failed, retrying")
			time.Sleep(100 * time.Millisecond)
			continue
		}
		go s.serveControl(conn)
	}
}

func (s *Server) serveControl(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		var payload interface{}
		switch cmd {
		case "", "aircraft":
			// An empty line is the bare snapshot request, matching the
			// original control port's no-argument aircraft register.
			payload = s.aircraftSnapshot()
		case "stats":
			payload = s.statsSnapshot()
		default:
			conn.Write([]byte(`{"error":"unknown command"}` + "\n"))
			continue
		}
		body, err := json.Marshal(payload)
		if err != nil {
			conn.Write([]byte(`{"error":"encode failed"}` + "\n"))
			continue
		}
		conn.Write(append(body, '\n'))
	}
}

// Close shuts down both listeners.
func (s *Server) Close() error {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.ctrlListen != nil {
		s.ctrlListen.Close()
	}
	return nil
}
