package decoder

import (
	"testing"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDF17Identification(t *testing.T) []byte {
	t.Helper()
	bits := make([]byte, 112)
	putBits(bits, 0, 5, 17) // DF17
	putBits(bits, 5, 8, 5)  // CA
	icao := uint32(0x4840D6)
	putBits(bits, 8, 32, icao)

	me := bits[32:88]
	putBits(me, 0, 5, 4) // TC 4
	putBits(me, 5, 8, 0)
	codes := []uint32{11, 12, 49, 50, 51, 32, 32, 32}
	for i, c := range codes {
		putBits(me, 8+i*6, 8+i*6+6, c)
	}
	return withValidCRC(bits)
}

func TestDecoderAcceptsValidDF17Identification(t *testing.T) {
	bits := buildDF17Identification(t)
	d := New()
	pkt, ok := d.Decode(adsb.RawFrame{Bits: bits})
	require.True(t, ok)
	assert.Equal(t, adsb.DF17, pkt.DF)
	assert.Equal(t, adsb.ICAO24(0x4840D6), pkt.ICAO)
	assert.Equal(t, adsb.KindIdentification, pkt.Kind)
	require.NotNil(t, pkt.Ident)
	assert.Equal(t, "KL123", pkt.Ident.Callsign)
}

func TestDecoderRejectsInvalidCRC(t *testing.T) {
	bits := buildDF17Identification(t)
	bits[50] ^= 1

	d := New()
	_, ok := d.Decode(adsb.RawFrame{Bits: bits})
	assert.False(t, ok)
	assert.Equal(t, uint64(1), d.Stats().CRCInvalid)
}

func TestDecoderRejectsWrongFrameLength(t *testing.T) {
	d := New()
	_, ok := d.Decode(adsb.RawFrame{Bits: make([]byte, 40)})
	assert.False(t, ok)
}

func TestDecoderTracksStatsAcrossFrames(t *testing.T) {
	bits := buildDF17Identification(t)
	d := New()
	_, _ = d.Decode(adsb.RawFrame{Bits: bits})
	_, _ = d.Decode(adsb.RawFrame{Bits: bits})

	stats := d.Stats()
	assert.Equal(t, uint64(2), stats.FramesSeen)
	assert.Equal(t, uint64(2), stats.CRCValid)
	assert.Equal(t, uint64(2), stats.PacketsByKind[adsb.KindIdentification])
}
