package snapshot

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
	"github.com/cwsl/adsb-pipeline/internal/ratelimit"
	"github.com/cwsl/adsb-pipeline/internal/tracker"
)

func newTestServer() (*Server, *tracker.Tracker, *ratelimit.RateLimiter) {
	tr := tracker.New(tracker.DefaultConfig())
	rl := ratelimit.New(ratelimit.DefaultConfig())
	return New(tr, rl, nil), tr, rl
}

func TestHandleAircraftReturnsTrackedState(t *testing.T) {
	s, tr, _ := newTestServer()
	tr.Handle(adsb.Packet{
		DF: adsb.DF17, ICAO: 0x4840D6, Kind: adsb.KindIdentification, Received: time.Now(),
		Ident: &adsb.Identification{Callsign: "KLM1023", Category: 3},
	})

	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/aircraft")
	require.NoError(t, err)
	defer resp.Body.Close()

	var views []aircraftView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "4840D6", views[0].ICAO)
	assert.Equal(t, "KLM1023", views[0].Callsign)
}

func TestHandleStatsReturnsRateLimiterSnapshot(t *testing.T) {
	s, _, rl := newTestServer()
	rl.Process(adsb.StateUpdate{ICAO: 1, Class: adsb.ClassIdentification, Timestamp: time.Now()})

	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats ratelimit.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, uint64(1), stats.TotalReceived)
}

func TestHandleStatsIncludesProcessEnrichment(t *testing.T) {
	s, _, _ := newTestServer()
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	proc, ok := raw["process"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, proc, "uptime_seconds")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s, _, _ := newTestServer()
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestControlPortAircraftCommand(t *testing.T) {
	s, tr, _ := newTestServer()
	tr.Handle(adsb.Packet{
		DF: adsb.DF17, ICAO: 0x1, Kind: adsb.KindIdentification, Received: time.Now(),
		Ident: &adsb.Identification{Callsign: "AAA111"},
	})

	require.NoError(t, s.ListenControl("127.0.0.1:0"))
	defer s.Close()

	conn, err := net.Dial("tcp", s.ctrlListen.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.Write([]byte("aircraft\n"))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	var views []aircraftView
	require.NoError(t, json.Unmarshal([]byte(line), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "AAA111", views[0].Callsign)
}

func TestControlPortEmptyCommandReturnsAircraftSnapshot(t *testing.T) {
	s, tr, _ := newTestServer()
	tr.Handle(adsb.Packet{
		DF: adsb.DF17, ICAO: 0x2, Kind: adsb.KindIdentification, Received: time.Now(),
		Ident: &adsb.Identification{Callsign: "BBB222"},
	})

	require.NoError(t, s.ListenControl("127.0.0.1:0"))
	defer s.Close()

	conn, err := net.Dial("tcp", s.ctrlListen.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.Write([]byte("\n"))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	var views []aircraftView
	require.NoError(t, json.Unmarshal([]byte(line), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "BBB222", views[0].Callsign)
}

func TestControlPortUnknownCommand(t *testing.T) {
	s, _, _ := newTestServer()
	require.NoError(t, s.ListenControl("127.0.0.1:0"))
	defer s.Close()

	conn, err := net.Dial("tcp", s.ctrlListen.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.Write([]byte("bogus\n"))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "error")
}
