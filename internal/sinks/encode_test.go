package sinks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

func frame112() adsb.RawFrame {
	bits := make([]byte, 112)
	// DF=17 (10001), then a 0x1a byte inside the payload to exercise escaping.
	bits[0], bits[4] = 1, 1
	for i := 8; i < 16; i++ {
		bits[i] = byte((0x1a >> uint(15-i)) & 1)
	}
	return adsb.RawFrame{TimestampTicks: 0x0102030405, SignalLevel: 0xAB, Bits: bits}
}

func TestEncodeBEASTFraming(t *testing.T) {
	f := frame112()
	out := EncodeBEAST(f)

	require.True(t, len(out) > 0)
	assert.Equal(t, byte(0x1a), out[0])
	assert.Equal(t, byte(0x33), out[1], "112-bit frames use type byte 0x33")

	// The payload's escaped 0x1a byte (from the embedded ICAO octet) must
	// appear doubled somewhere after the header.
	doubled := false
	for i := 1; i < len(out)-1; i++ {
		if out[i] == 0x1a && out[i+1] == 0x1a {
			doubled = true
		}
	}
	assert.True(t, doubled, "0x1a bytes inside the body must be doubled")
}

func TestEncodeBEASTShortFrameTypeByte(t *testing.T) {
	bits := make([]byte, 56)
	out := EncodeBEAST(adsb.RawFrame{Bits: bits})
	assert.Equal(t, byte(0x32), out[1])
}

func TestEncodeRawFormat(t *testing.T) {
	bits := make([]byte, 16)
	bits[0], bits[4] = 1, 1 // 0x88 in the first byte
	out := EncodeRaw(adsb.RawFrame{Bits: bits})
	assert.Equal(t, "*8800;\n", string(out))
}

func TestEncodeAVRFormat(t *testing.T) {
	bits := make([]byte, 16)
	bits[0], bits[4] = 1, 1
	out := EncodeAVR(adsb.RawFrame{TimestampTicks: 0xABCDEF, Bits: bits})
	assert.Equal(t, "@000000ABCDEF\n*8800;\n", string(out))
}

func TestBEASTRoundTrip112BitWithEscaping(t *testing.T) {
	f := frame112()
	out := EncodeBEAST(f)

	got, consumed, ok := DecodeBEAST(out)
	require.True(t, ok)
	assert.Equal(t, len(out), consumed)
	assert.Equal(t, f.TimestampTicks, got.TimestampTicks)
	assert.Equal(t, f.SignalLevel, got.SignalLevel)
	assert.Equal(t, f.Bits, got.Bits)
}

func TestBEASTRoundTrip56Bit(t *testing.T) {
	bits := make([]byte, 56)
	bits[0], bits[4] = 1, 1
	f := adsb.RawFrame{TimestampTicks: 0xFFFFFFFFFFFF, SignalLevel: 0x1a, Bits: bits}
	out := EncodeBEAST(f)

	got, consumed, ok := DecodeBEAST(out)
	require.True(t, ok)
	assert.Equal(t, len(out), consumed)
	assert.Equal(t, f.TimestampTicks, got.TimestampTicks)
	assert.Equal(t, f.SignalLevel, got.SignalLevel)
	assert.Equal(t, f.Bits, got.Bits)
}

func TestBEASTDecodeRejectsTruncatedInput(t *testing.T) {
	f := frame112()
	out := EncodeBEAST(f)
	_, _, ok := DecodeBEAST(out[:len(out)-3])
	assert.False(t, ok)
}

func TestBEASTDecodeConsumesExactlyOneFrameFromStream(t *testing.T) {
	f1 := frame112()
	f2 := adsb.RawFrame{TimestampTicks: 7, SignalLevel: 9, Bits: make([]byte, 56)}

	stream := append(EncodeBEAST(f1), EncodeBEAST(f2)...)

	got1, n1, ok := DecodeBEAST(stream)
	require.True(t, ok)
	assert.Equal(t, f1.Bits, got1.Bits)

	got2, _, ok := DecodeBEAST(stream[n1:])
	require.True(t, ok)
	assert.Equal(t, f2.TimestampTicks, got2.TimestampTicks)
	assert.Equal(t, f2.SignalLevel, got2.SignalLevel)
}
