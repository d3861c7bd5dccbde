package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// withValidCRC appends the bits' CRC residue into the trailing 24-bit
// parity field, overwriting whatever placeholder was there.
func withValidCRC(bits []byte) []byte {
	out := make([]byte, len(bits))
	copy(out, bits)
	n := len(out)
	for i := n - 24; i < n; i++ {
		out[i] = 0
	}
	residue := crc24(out[:n-24])
	for i := 0; i < 24; i++ {
		out[n-24+i] = byte((residue >> uint(23-i)) & 1)
	}
	return out
}

func TestCRC24ZeroForSelfComputedFrame(t *testing.T) {
	bits := make([]byte, 112)
	copy(bits, []byte{1, 0, 0, 0, 1}) // DF17

	signed := withValidCRC(bits)
	assert.True(t, checkCRC(signed, 17))
	assert.Equal(t, uint32(0), crc24(signed))
}

func TestCRC24DetectsSingleBitFlip(t *testing.T) {
	bits := make([]byte, 112)
	copy(bits, []byte{1, 0, 0, 0, 1})
	signed := withValidCRC(bits)
	signed[40] ^= 1

	assert.False(t, checkCRC(signed, 17))
}

func TestICAOExtraction(t *testing.T) {
	bits := make([]byte, 112)
	// ICAO 0x4840D6 into bits 8..31
	icao := uint32(0x4840D6)
	for i := 0; i < 24; i++ {
		bits[8+i] = byte((icao >> uint(23-i)) & 1)
	}
	assert.Equal(t, icao, icaoFromBits(bits))
}
