package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePPM renders bits into a PPM magnitude waveform: first half-chip
// high for '1', second half-chip high for '0'.
func encodePPM(bits []byte) []float32 {
	out := make([]float32, len(bits)*SamplesPerChip)
	half := SamplesPerChip / 2
	for b, v := range bits {
		base := b * SamplesPerChip
		if v == 1 {
			for k := 0; k < half; k++ {
				out[base+k] = 5.0
			}
			for k := half; k < SamplesPerChip; k++ {
				out[base+k] = 1.0
			}
		} else {
			for k := 0; k < half; k++ {
				out[base+k] = 1.0
			}
			for k := half; k < SamplesPerChip; k++ {
				out[base+k] = 5.0
			}
		}
	}
	return out
}

func preambleWindow() []float32 {
	mags := make([]float32, TemplateLen)
	for i := range mags {
		mags[i] = 1.0
	}
	for _, o := range highOffsets {
		mags[o] = 5.0
	}
	return mags
}

func TestDemodulateDF17Frame(t *testing.T) {
	bits := make([]byte, 112)
	// DF = 17 = 0b10001
	copy(bits, []byte{1, 0, 0, 0, 1})
	payload := encodePPM(bits)

	dm := NewDemodulator()
	hit := PreambleHit{SampleIndex: 100}
	frame, ok := dm.Demodulate(hit, preambleWindow(), payload)
	require.True(t, ok)
	assert.Equal(t, 112, frame.Len())
	assert.Equal(t, uint64(300), frame.TimestampTicks)
	assert.Equal(t, []byte{1, 0, 0, 0, 1}, frame.Bits[:5])
	assert.Equal(t, uint8(255), frame.SignalLevel)
}

func TestDemodulateDF11ShortFrame(t *testing.T) {
	bits := make([]byte, 56)
	// DF = 11 = 0b01011
	copy(bits, []byte{0, 1, 0, 1, 1})
	payload := encodePPM(bits)

	dm := NewDemodulator()
	frame, ok := dm.Demodulate(PreambleHit{SampleIndex: 0}, preambleWindow(), payload)
	require.True(t, ok)
	assert.Equal(t, 56, frame.Len())
}

func TestDemodulateInsufficientSamplesDiscardedSilently(t *testing.T) {
	bits := make([]byte, 112)
	copy(bits, []byte{1, 0, 0, 0, 1})
	payload := encodePPM(bits)[:len(encodePPM(bits))-8] // truncate below 112 bits' worth

	dm := NewDemodulator()
	_, ok := dm.Demodulate(PreambleHit{SampleIndex: 0}, preambleWindow(), payload)
	assert.False(t, ok)
}

func TestDecodeBitFlagsSoftNearTie(t *testing.T) {
	mags := []float32{3.0, 3.0, 3.05, 3.05}
	bit, soft := decodeBit(mags, 0)
	assert.Equal(t, byte(0), bit)
	assert.True(t, soft)
}
