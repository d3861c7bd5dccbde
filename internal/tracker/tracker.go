// Package tracker accumulates per-aircraft state from decoded ADS-B packets:
// CPR position reconstruction, callsign/category, velocity, and the bounded
// aircraft map with lifetime-based eviction.
package tracker

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

// cprHalf is one parity's most recently received CPR-encoded position.
type cprHalf struct {
	RawLat, RawLon uint32
	Timestamp      time.Time
}

// PositionState is the last resolved (lat, lon, altitude) for an aircraft.
type PositionState struct {
	Lat, Lon  float64
	AltFeet   int32
	HasAlt    bool
	OnGround  bool
	Timestamp time.Time
}

// VelocityState is the last received ground-speed vector.
type VelocityState struct {
	GroundSpeedKt   float64
	TrackDeg        float64
	VerticalRateFpm int32
	HasVertRate     bool
	Timestamp       time.Time
}

// AircraftState is the accumulated picture of one ICAO address, per
// spec.md 4.3's AircraftState record.
type AircraftState struct {
	ICAO adsb.ICAO24

	Callsign     string
	Category     uint8
	HasIdent     bool
	IdentUpdated time.Time

	lastEvenCPR *cprHalf
	lastOddCPR  *cprHalf

	Position *PositionState
	Velocity *VelocityState

	FirstSeen, LastSeen time.Time
	MessagesReceived    uint64
}

// Config carries the tunables the pipeline wires in from config.Config.
type Config struct {
	Lifetime      time.Duration
	GraceInterval time.Duration
	Cap           int
	AirborneStale time.Duration
	SurfaceStale  time.Duration
	PositionRange time.Duration // how long a prior position stays usable for local CPR decode
}

// DefaultConfig returns the spec.md 4.3/4.5 defaults.
func DefaultConfig() Config {
	return Config{
		Lifetime:      60 * time.Second,
		GraceInterval: 300 * time.Second,
		Cap:           8192,
		AirborneStale: 10 * time.Second,
		SurfaceStale:  25 * time.Second,
		PositionRange: 60 * time.Second,
	}
}

// Tracker is the single-writer aircraft map described by spec.md 4.5. All
// exported methods are safe to call from one pipeline goroutine; Snapshot
// may additionally be called concurrently from the HTTP/control surfaces.
type Tracker struct {
	cfg Config

	mu     sync.Mutex
	states map[adsb.ICAO24]*AircraftState
	lru    *lru.Cache
}

// New builds a Tracker.
func New(cfg Config) *Tracker {
	t := &Tracker{cfg: cfg, states: make(map[adsb.ICAO24]*AircraftState)}
	c, err := lru.NewWithEvict(cfg.Cap, t.onEvict)
	if err != nil {
		// Cap is always a positive int from config validation; NewWithEvict
		// only errors on size <= 0.
		c, _ = lru.NewWithEvict(1, t.onEvict)
	}
	t.lru = c
	return t
}

// onEvict runs synchronously inside t.lru.Add, already under t.mu.
func (t *Tracker) onEvict(key interface{}, _ interface{}) {
	delete(t.states, key.(adsb.ICAO24))
}

// Handle applies a decoded Packet's effect on the aircraft map, per
// spec.md 4.5's numbered contract, and returns the resulting StateUpdate if
// the packet produced an observable change.
func (t *Tracker) Handle(pkt adsb.Packet) (adsb.StateUpdate, bool) {
	if pkt.DF != adsb.DF17 && pkt.DF != adsb.DF18 {
		return adsb.StateUpdate{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := pkt.Received
	st, exists := t.states[pkt.ICAO]
	if !exists {
		st = &AircraftState{ICAO: pkt.ICAO, FirstSeen: now}
		t.states[pkt.ICAO] = st
	}
	st.LastSeen = now
	st.MessagesReceived++
	t.lru.Add(pkt.ICAO, struct{}{})

	switch pkt.Kind {
	case adsb.KindIdentification:
		return t.handleIdentification(st, pkt, now)
	case adsb.KindSurfacePosition, adsb.KindAirbornePosition:
		return t.handlePosition(st, pkt, now)
	case adsb.KindAirborneVelocity:
		return t.handleVelocity(st, pkt, now)
	default:
		return adsb.StateUpdate{}, false
	}
}

func (t *Tracker) handleIdentification(st *AircraftState, pkt adsb.Packet, now time.Time) (adsb.StateUpdate, bool) {
	if pkt.Ident == nil {
		return adsb.StateUpdate{}, false
	}
	st.Callsign = pkt.Ident.Callsign
	st.Category = pkt.Ident.Category
	st.HasIdent = true
	st.IdentUpdated = now

	cs := st.Callsign
	cat := st.Category
	return adsb.StateUpdate{
		ICAO:      pkt.ICAO,
		Class:     adsb.ClassIdentification,
		Timestamp: now,
		Callsign:  &cs,
		Category:  &cat,
	}, true
}

func (t *Tracker) handlePosition(st *AircraftState, pkt adsb.Packet, now time.Time) (adsb.StateUpdate, bool) {
	cpr := pkt.CPR
	if cpr == nil {
		return adsb.StateUpdate{}, false
	}

	half := &cprHalf{RawLat: cpr.RawLat, RawLon: cpr.RawLon, Timestamp: now}
	if cpr.Odd {
		st.lastOddCPR = half
	} else {
		st.lastEvenCPR = half
	}

	staleAfter := t.cfg.AirborneStale
	if cpr.Surface {
		staleAfter = t.cfg.SurfaceStale
	}

	var (
		res globalResult
		ok  bool
	)
	if st.lastEvenCPR != nil && st.lastOddCPR != nil {
		span := st.lastEvenCPR.Timestamp.Sub(st.lastOddCPR.Timestamp)
		if span < 0 {
			span = -span
		}
		if span <= staleAfter {
			res, ok = globalDecode(st.lastEvenCPR.RawLat, st.lastEvenCPR.RawLon, st.lastOddCPR.RawLat, st.lastOddCPR.RawLon)
		}
	}
	if !ok && st.Position != nil && now.Sub(st.Position.Timestamp) <= t.cfg.PositionRange {
		res, ok = localDecode(st.Position.Lat, st.Position.Lon, cpr.RawLat, cpr.RawLon, cpr.Odd)
	}
	if !ok {
		return adsb.StateUpdate{}, false
	}

	ps := &PositionState{
		Lat: res.LatDeg, Lon: res.LonDeg,
		AltFeet: cpr.AltFeet, HasAlt: cpr.HasAlt,
		OnGround:  cpr.Surface,
		Timestamp: now,
	}
	st.Position = ps

	lat, lon := ps.Lat, ps.Lon
	update := adsb.StateUpdate{
		ICAO:      pkt.ICAO,
		Class:     adsb.ClassPosition,
		Timestamp: now,
		Lat:       &lat,
		Lon:       &lon,
		OnGround:  ps.OnGround,
	}
	if ps.HasAlt {
		alt := ps.AltFeet
		update.AltFeet = &alt
	}
	return update, true
}

func (t *Tracker) handleVelocity(st *AircraftState, pkt adsb.Packet, now time.Time) (adsb.StateUpdate, bool) {
	if pkt.Vel == nil {
		return adsb.StateUpdate{}, false
	}
	vs := &VelocityState{
		GroundSpeedKt: pkt.Vel.GroundSpeedKt,
		TrackDeg:      pkt.Vel.TrackDeg,
		HasVertRate:   pkt.Vel.HasVertRate,
		Timestamp:     now,
	}
	if pkt.Vel.HasVertRate {
		vs.VerticalRateFpm = pkt.Vel.VerticalRateFpm
	}
	st.Velocity = vs

	gs := vs.GroundSpeedKt
	track := vs.TrackDeg
	update := adsb.StateUpdate{
		ICAO:          pkt.ICAO,
		Class:         adsb.ClassVelocity,
		Timestamp:     now,
		GroundSpeedKt: &gs,
		TrackDeg:      &track,
	}
	if vs.HasVertRate {
		vr := vs.VerticalRateFpm
		update.VerticalRateFpm = &vr
	}
	return update, true
}

// Snapshot returns a copy of every aircraft whose last_seen is within the
// configured lifetime, per spec.md 4.3 invariant 3.
func (t *Tracker) Snapshot(now time.Time) []AircraftState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]AircraftState, 0, len(t.states))
	for _, st := range t.states {
		if now.Sub(st.LastSeen) > t.cfg.Lifetime {
			continue
		}
		out = append(out, *st)
	}
	return out
}

// Sweep evicts aircraft whose last_seen exceeds lifetime+grace, returning
// the evicted ICAOs. Intended to run on a periodic (e.g. 1 Hz) ticker.
func (t *Tracker) Sweep(now time.Time) []adsb.ICAO24 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []adsb.ICAO24
	cutoff := t.cfg.Lifetime + t.cfg.GraceInterval
	for icao, st := range t.states {
		if now.Sub(st.LastSeen) > cutoff {
			delete(t.states, icao)
			t.lru.Remove(icao)
			evicted = append(evicted, icao)
		}
	}
	return evicted
}

// Len reports the number of aircraft currently tracked, live or in grace.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}
