package dsp

import (
	"math"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

// SamplesPerChip is the number of 4 Msps samples per 1 Mbit/s PPM chip.
const SamplesPerChip = 4

// SoftBitEpsilon is the minimum fractional separation between a bit's two
// half-chip magnitudes before the bit is considered confidently decoded;
// below it, the bit is flagged soft per spec.md 4.3.
const SoftBitEpsilon = 0.10

// Demodulator reads PPM-encoded bits following a detected preamble.
type Demodulator struct{}

// NewDemodulator builds a Demodulator. It carries no state: demodulation is
// a pure function of the sample windows handed to Demodulate.
func NewDemodulator() *Demodulator { return &Demodulator{} }

// Demodulate decodes the frame following a PreambleHit.
//
// preambleMags must hold exactly TemplateLen magnitude samples, the
// detected preamble window itself (used only for the signal-level
// estimate). payloadMags must hold the magnitude samples immediately
// following the preamble; if fewer than 5 bits' worth, or fewer than the
// full frame length implied by the DF field, are available the frame is
// discarded silently (spec.md 4.3's "insufficient buffered
// samples" failure condition) by returning ok=false.
func (d *Demodulator) Demodulate(hit PreambleHit, preambleMags, payloadMags []float32) (frame adsb.RawFrame, ok bool) {
	if len(preambleMags) < TemplateLen {
		return adsb.RawFrame{}, false
	}

	const dfBits = 5
	if len(payloadMags) < dfBits*SamplesPerChip {
		return adsb.RawFrame{}, false
	}

	dfVal := 0
	for b := 0; b < dfBits; b++ {
		bit, _ := decodeBit(payloadMags, b)
		dfVal = (dfVal << 1) | int(bit)
	}
	frameBits := adsb.DF(dfVal).FrameBits()

	if len(payloadMags) < frameBits*SamplesPerChip {
		return adsb.RawFrame{}, false
	}

	bits := make([]byte, frameBits)
	soft := make([]bool, frameBits)
	for b := 0; b < frameBits; b++ {
		bitVal, isSoft := decodeBit(payloadMags, b)
		bits[b] = bitVal
		soft[b] = isSoft
	}

	frame = adsb.RawFrame{
		TimestampTicks: uint64(hit.SampleIndex) * 3, // 4 MHz samples -> 12 MHz ticks
		SignalLevel:    signalLevel(preambleMags),
		Bits:           bits,
		SoftBits:       soft,
	}
	return frame, true
}

// decodeBit reads PPM bit index b from payload samples: first half-chip
// high, second half-chip low means '1'; the inverse means '0'.
func decodeBit(mags []float32, b int) (bit byte, soft bool) {
	base := b * SamplesPerChip
	half := SamplesPerChip / 2
	var first, second float64
	for k := 0; k < half; k++ {
		first += float64(mags[base+k])
	}
	for k := half; k < SamplesPerChip; k++ {
		second += float64(mags[base+k])
	}
	first /= float64(half)
	second /= float64(SamplesPerChip - half)

	if first >= second {
		bit = 1
	} else {
		bit = 0
	}
	denom := math.Max(first, second)
	if denom <= 0 {
		return bit, true
	}
	if math.Abs(first-second)/denom < SoftBitEpsilon {
		soft = true
	}
	return bit, soft
}

// signalLevel log-scales the mean magnitude over the preamble's pulse
// positions into a byte, per spec.md 4.3.
func signalLevel(preambleMags []float32) uint8 {
	var sum float64
	for _, o := range highOffsets {
		sum += float64(preambleMags[o])
	}
	mean := sum / float64(len(highOffsets))
	power := mean * mean
	db := 10 * math.Log10(power+1e-12)
	// Map a generous [-50dB, +10dB] dynamic range onto [0, 255].
	norm := (db + 50) / 60 * 255
	if norm < 0 {
		norm = 0
	}
	if norm > 255 {
		norm = 255
	}
	return uint8(norm)
}
