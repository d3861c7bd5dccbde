package ratelimit

import (
	"testing"
	"time"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func posUpdate(icao adsb.ICAO24, t time.Time, lat float64) adsb.StateUpdate {
	l := lat
	return adsb.StateUpdate{ICAO: icao, Class: adsb.ClassPosition, Timestamp: t, Lat: &l}
}

func TestIdentificationIsAlwaysImmediate(t *testing.T) {
	rl := New(DefaultConfig())
	u1, ok1 := rl.Process(adsb.StateUpdate{ICAO: 1, Class: adsb.ClassIdentification, Timestamp: base})
	require.True(t, ok1)
	u2, ok2 := rl.Process(adsb.StateUpdate{ICAO: 1, Class: adsb.ClassIdentification, Timestamp: base.Add(time.Millisecond)})
	require.True(t, ok2)
	assert.Equal(t, base, u1.Timestamp)
	assert.Equal(t, base.Add(time.Millisecond), u2.Timestamp)
}

func TestCoalescesBurstAndEmitsOnceAfterInterval(t *testing.T) {
	rl := New(DefaultConfig())
	icao := adsb.ICAO24(0x4840D6)

	first, ok := rl.Process(posUpdate(icao, base, 1.0))
	require.True(t, ok)
	assert.Equal(t, 1.0, *first.Lat)

	for i := 1; i < 10; i++ {
		at := base.Add(time.Duration(i*10) * time.Millisecond)
		_, allowed := rl.Process(posUpdate(icao, at, float64(i)+1))
		assert.False(t, allowed)
	}

	stats := rl.Stats()
	assert.Equal(t, uint64(10), stats.TotalReceived)
	assert.Equal(t, uint64(1), stats.AllowedImmediately)
	assert.Equal(t, uint64(9), stats.RateLimited)
	assert.Equal(t, uint64(1), stats.PendingNow)

	ready := rl.DrainReady(base.Add(500 * time.Millisecond))
	require.Len(t, ready, 1)
	assert.Equal(t, 10.0, *ready[0].Lat, "the last coalesced update wins")

	assert.Equal(t, uint64(0), rl.Stats().PendingNow)
}

func TestDrainReadyIsNoOpBeforeInterval(t *testing.T) {
	rl := New(DefaultConfig())
	icao := adsb.ICAO24(1)
	rl.Process(posUpdate(icao, base, 1.0))
	rl.Process(posUpdate(icao, base.Add(50*time.Millisecond), 2.0))

	assert.Empty(t, rl.DrainReady(base.Add(100*time.Millisecond)))
	assert.Len(t, rl.DrainReady(base.Add(600*time.Millisecond)), 1)
}

func TestEvictRemovesInactiveAircraft(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvictionTimeout = time.Second
	rl := New(cfg)
	rl.Process(posUpdate(1, base, 1.0))

	rl.Evict(base.Add(500 * time.Millisecond))
	assert.Equal(t, uint64(1), rl.Stats().ActiveAircraft)

	rl.Evict(base.Add(2 * time.Second))
	assert.Equal(t, uint64(0), rl.Stats().ActiveAircraft)
}
