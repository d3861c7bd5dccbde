package sinks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

func TestHubDisabledSinksAreNilSafe(t *testing.T) {
	h := NewHub(Config{}, nil)
	require.NoError(t, h.Start(nil))
	h.PublishRawFrame(adsb.RawFrame{Bits: make([]byte, 56)})
	h.PublishStateUpdate(adsb.StateUpdate{ICAO: 1, Class: adsb.ClassIdentification})

	stats := h.Stats()
	assert.Equal(t, 0, stats.Beast.Clients)
	assert.Equal(t, 0, stats.WSClients)
}

func TestHubRawFrameBypassesStateSinks(t *testing.T) {
	cfg := Config{BeastAddr: "127.0.0.1:0", RawAddr: "127.0.0.1:0", AVRAddr: "127.0.0.1:0", QueueDepth: 8}
	h := NewHub(cfg, nil)
	require.NoError(t, h.Start(nil))
	defer h.Close()

	h.PublishRawFrame(adsb.RawFrame{Bits: make([]byte, 112)})

	stats := h.Stats()
	assert.Equal(t, uint64(1), stats.Beast.TotalSent)
	assert.Equal(t, uint64(1), stats.Raw.TotalSent)
	assert.Equal(t, uint64(1), stats.AVR.TotalSent)
	assert.Equal(t, uint64(0), stats.SBS1.TotalSent, "state sinks must not see raw frames")
}
