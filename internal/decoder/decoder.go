// Package decoder turns demodulated Mode S frames into validated ADS-B
// packets: CRC-24 check, downlink-format dispatch, and ME field extraction.
package decoder

import (
	"time"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

// Stats accumulates decode outcomes for the Prometheus surface.
type Stats struct {
	FramesSeen    uint64
	CRCValid      uint64
	CRCInvalid    uint64
	PacketsByKind map[adsb.MessageKind]uint64
}

// Decoder holds only counters. Decode updates them without locking, so an
// instance is not safe for concurrent use; each goroutine needs its own.
type Decoder struct {
	stats Stats
}

// New builds a Decoder.
func New() *Decoder {
	return &Decoder{stats: Stats{PacketsByKind: make(map[adsb.MessageKind]uint64)}}
}

// Decode validates a RawFrame's CRC and, if valid, classifies and parses it
// into a Packet. ok is false for CRC-invalid or unrecognized-length frames;
// the caller (the pipeline stage) is responsible for still routing the raw
// frame to raw-frame sinks per spec.md 4.4.
func (d *Decoder) Decode(frame adsb.RawFrame) (pkt adsb.Packet, ok bool) {
	d.stats.FramesSeen++

	bits := frame.Bits
	if len(bits) != 56 && len(bits) != 112 {
		return adsb.Packet{}, false
	}

	dfVal := 0
	for i := 0; i < 5; i++ {
		dfVal = (dfVal << 1) | int(bits[i])
	}
	df := adsb.DF(dfVal)

	if !checkCRC(bits, uint8(dfVal)) {
		d.stats.CRCInvalid++
		return adsb.Packet{}, false
	}
	d.stats.CRCValid++

	pkt = adsb.Packet{
		DF:       df,
		Received: time.Now(),
		Raw:      frame,
	}

	if df != adsb.DF17 && df != adsb.DF18 {
		// Other downlink formats (DF11 acquisition squitter, DF4/5/20/21
		// altitude/identity replies) carry no ME payload the Tracker
		// consumes; report the bare, CRC-valid packet.
		if len(bits) == 56 {
			pkt.ICAO = adsb.ICAO24(bitsToUint(bits, 8, 32))
		}
		return pkt, true
	}

	pkt.ICAO = adsb.ICAO24(icaoFromBits(bits))
	me := bits[32:88]
	tc := typeCode(me)
	pkt.Kind = classify(tc)

	switch pkt.Kind {
	case adsb.KindIdentification:
		pkt.Ident = decodeIdentification(me)
	case adsb.KindSurfacePosition, adsb.KindAirbornePosition:
		pkt.CPR = decodePosition(me)
	case adsb.KindAirborneVelocity:
		pkt.Vel = decodeVelocity(me)
		if pkt.Vel == nil {
			pkt.Kind = adsb.KindOther
		}
	}

	d.stats.PacketsByKind[pkt.Kind]++
	return pkt, true
}

// Stats returns a snapshot of decode counters.
func (d *Decoder) Stats() Stats {
	cp := Stats{FramesSeen: d.stats.FramesSeen, CRCValid: d.stats.CRCValid, CRCInvalid: d.stats.CRCInvalid}
	cp.PacketsByKind = make(map[adsb.MessageKind]uint64, len(d.stats.PacketsByKind))
	for k, v := range d.stats.PacketsByKind {
		cp.PacketsByKind[k] = v
	}
	return cp
}
