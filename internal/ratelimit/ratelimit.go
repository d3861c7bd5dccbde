// Package ratelimit schedules per-aircraft, per-field-class StateUpdate
// emission, coalescing updates that arrive faster than their class's
// configured interval into a single pending update per class.
package ratelimit

import (
	"sync"
	"time"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

// Config holds the per-field-class minimum emission interval, plus the
// inactivity timeout after which an aircraft's limiter state is dropped.
type Config struct {
	PositionInterval       time.Duration
	VelocityInterval       time.Duration
	IdentificationInterval time.Duration
	MetadataInterval       time.Duration
	EvictionTimeout        time.Duration
}

// DefaultConfig returns the spec.md 4.6 default intervals.
func DefaultConfig() Config {
	return Config{
		PositionInterval:       500 * time.Millisecond,
		VelocityInterval:       1000 * time.Millisecond,
		IdentificationInterval: 0,
		MetadataInterval:       5000 * time.Millisecond,
		EvictionTimeout:        300 * time.Second,
	}
}

func (c Config) interval(class adsb.FieldClass) time.Duration {
	switch class {
	case adsb.ClassPosition:
		return c.PositionInterval
	case adsb.ClassVelocity:
		return c.VelocityInterval
	case adsb.ClassIdentification:
		return c.IdentificationInterval
	case adsb.ClassMetadata:
		return c.MetadataInterval
	default:
		return 0
	}
}

type pendingUpdate struct {
	data        adsb.StateUpdate
	nextAllowed time.Time
}

type itemLimiter struct {
	lastUpdate map[adsb.FieldClass]time.Time
	pending    map[adsb.FieldClass]pendingUpdate
	lastSeen   time.Time
}

func newItemLimiter() *itemLimiter {
	return &itemLimiter{
		lastUpdate: make(map[adsb.FieldClass]time.Time),
		pending:    make(map[adsb.FieldClass]pendingUpdate),
	}
}

// Stats is a snapshot of rate-limiter counters for the Prometheus surface.
type Stats struct {
	TotalReceived      uint64
	AllowedImmediately uint64
	RateLimited        uint64
	ActiveAircraft     uint64
	PendingNow         uint64
}

// RateLimiter is the per-(icao, FieldClass) scheduler described by
// spec.md 4.6. Safe for concurrent use.
type RateLimiter struct {
	cfg Config

	mu    sync.Mutex
	items map[adsb.ICAO24]*itemLimiter
	stats Stats
}

// New builds a RateLimiter.
func New(cfg Config) *RateLimiter {
	return &RateLimiter{cfg: cfg, items: make(map[adsb.ICAO24]*itemLimiter)}
}

// Process decides whether update should be emitted immediately. If the
// class's interval has not yet elapsed since the last emission, update is
// coalesced into (replacing) that class's pending slot and (false) is
// returned; the caller should not forward it yet.
func (r *RateLimiter) Process(update adsb.StateUpdate) (adsb.StateUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.TotalReceived++

	it, ok := r.items[update.ICAO]
	if !ok {
		it = newItemLimiter()
		r.items[update.ICAO] = it
	}
	it.lastSeen = update.Timestamp

	interval := r.cfg.interval(update.Class)
	last, seen := it.lastUpdate[update.Class]

	if interval <= 0 || !seen || !update.Timestamp.Before(last.Add(interval)) {
		it.lastUpdate[update.Class] = update.Timestamp
		delete(it.pending, update.Class)
		r.stats.AllowedImmediately++
		return update, true
	}

	it.pending[update.Class] = pendingUpdate{data: update, nextAllowed: last.Add(interval)}
	r.stats.RateLimited++
	return adsb.StateUpdate{}, false
}

// DrainReady returns every pending update whose interval has elapsed as of
// now, recording them as emitted so the class's clock resets from now.
func (r *RateLimiter) DrainReady(now time.Time) []adsb.StateUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []adsb.StateUpdate
	for _, it := range r.items {
		for class, p := range it.pending {
			if !now.Before(p.nextAllowed) {
				it.lastUpdate[class] = now
				out = append(out, p.data)
				delete(it.pending, class)
			}
		}
	}
	return out
}

// Evict drops limiter state for aircraft that have not been seen within
// the configured eviction timeout, keeping the limiter in step with the
// Tracker's own cleanup sweep.
func (r *RateLimiter) Evict(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for icao, it := range r.items {
		if now.Sub(it.lastSeen) > r.cfg.EvictionTimeout {
			delete(r.items, icao)
		}
	}
}

// Stats returns a snapshot of the rate limiter's counters.
func (r *RateLimiter) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.ActiveAircraft = uint64(len(r.items))
	var pending uint64
	for _, it := range r.items {
		pending += uint64(len(it.pending))
	}
	s.PendingNow = pending
	return s
}
