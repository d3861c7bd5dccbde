package decoder

import (
	"math"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

// identChars is the 6-bit ADS-B/Mode-S callsign charset (ICAO Annex 10,
// Vol IV). Index by the raw 6-bit code to get the ASCII character.
const identChars = "#ABCDEFGHIJKLMNOPQRSTUVWXYZ##### ###############0123456789######"

// bitsToUint packs bits[lo:hi) (MSB first) into an unsigned integer.
func bitsToUint(bits []byte, lo, hi int) uint32 {
	var v uint32
	for i := lo; i < hi; i++ {
		v = (v << 1) | uint32(bits[i])
	}
	return v
}

// typeCode reads the 5-bit ME type code, the first field of every DF17/18
// ME payload.
func typeCode(me []byte) uint8 {
	return uint8(bitsToUint(me, 0, 5))
}

// decodeIdentification parses TC 1-4 (aircraft identification and category).
func decodeIdentification(me []byte) *adsb.Identification {
	category := uint8(bitsToUint(me, 5, 8))
	runes := make([]byte, 0, 8)
	for i := 0; i < 8; i++ {
		code := bitsToUint(me, 8+i*6, 8+i*6+6)
		if int(code) >= len(identChars) {
			continue
		}
		c := identChars[code]
		runes = append(runes, c)
	}
	callsign := trimTrailingFiller(string(runes))
	return &adsb.Identification{
		Callsign:    callsign,
		Category:    category,
		EmitterType: typeCode(me),
	}
}

func trimTrailingFiller(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == '#' || s[end-1] == ' ') {
		end--
	}
	return s[:end]
}

// decodeAC12 decodes a 12-bit Mode-S altitude field. Only the Q-bit-set
// (25ft linear) encoding is supported; Gillham-coded fields (Q=0) are
// reported as not-ok, matching ka9q-radio-class decoders that defer Gillham
// decode to a lookup table this module does not carry.
func decodeAC12(ac uint32) (feet int32, ok bool) {
	if ac == 0 {
		return 0, false
	}
	q := (ac >> 4) & 1
	if q == 0 {
		return 0, false
	}
	n := ((ac & 0x0FE0) >> 1) | (ac & 0x000F)
	return int32(n)*25 - 1000, true
}

// decodePosition parses TC 5-8 (surface) and TC 9-18/20-22 (airborne)
// position messages, sharing the CPR-field layout common to both.
func decodePosition(me []byte) *adsb.CPRPosition {
	tc := typeCode(me)
	surface := tc >= 5 && tc <= 8

	pos := &adsb.CPRPosition{
		Odd:     me[21] == 1,
		RawLat:  bitsToUint(me, 22, 39),
		RawLon:  bitsToUint(me, 39, 56),
		Surface: surface,
	}

	if !surface {
		ac := bitsToUint(me, 8, 20)
		if feet, ok := decodeAC12(ac); ok {
			pos.AltFeet = feet
			pos.HasAlt = true
		}
	}
	return pos
}

// decodeVelocity parses TC 19 subtypes 1/2 (ground speed vector). Subtypes
// 3/4 (airspeed + heading) are reported as unsupported (nil) since spec.md
// scopes velocity fields to ground-speed/track/vertical-rate only.
func decodeVelocity(me []byte) *adsb.Velocity {
	subtype := bitsToUint(me, 5, 8)
	if subtype != 1 && subtype != 2 {
		return nil
	}

	ewSign := me[13]
	ewVel := bitsToUint(me, 14, 24)
	nsSign := me[24]
	nsVel := bitsToUint(me, 25, 35)

	if ewVel == 0 || nsVel == 0 {
		return nil
	}

	vEW := float64(ewVel) - 1
	if ewSign == 1 {
		vEW = -vEW
	}
	vNS := float64(nsVel) - 1
	if nsSign == 1 {
		vNS = -vNS
	}
	if subtype == 2 {
		// Supersonic encoding: 4x the raw unit.
		vEW *= 4
		vNS *= 4
	}

	speed := math.Hypot(vEW, vNS)
	track := math.Atan2(vEW, vNS) * 180 / math.Pi
	if track < 0 {
		track += 360
	}

	v := &adsb.Velocity{
		GroundSpeedKt: speed,
		TrackDeg:      track,
	}

	vrSign := me[36]
	vrRaw := bitsToUint(me, 37, 46)
	if vrRaw != 0 {
		rate := (int32(vrRaw) - 1) * 64
		if vrSign == 1 {
			rate = -rate
		}
		v.VerticalRateFpm = rate
		v.HasVertRate = true
	}
	return v
}

// classify maps a DF17/18 ME type code to the coarse MessageKind the
// Tracker dispatches on.
func classify(tc uint8) adsb.MessageKind {
	switch {
	case tc >= 1 && tc <= 4:
		return adsb.KindIdentification
	case tc >= 5 && tc <= 8:
		return adsb.KindSurfacePosition
	case tc == 19:
		return adsb.KindAirborneVelocity
	case (tc >= 9 && tc <= 18) || (tc >= 20 && tc <= 22):
		return adsb.KindAirbornePosition
	default:
		return adsb.KindOther
	}
}
