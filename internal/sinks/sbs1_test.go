package sinks

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

func TestEncodeSBS1Identification(t *testing.T) {
	cs := "KLM1023"
	u := adsb.StateUpdate{
		ICAO:      0x4840D6,
		Class:     adsb.ClassIdentification,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Callsign:  &cs,
	}
	line := string(EncodeSBS1(u))
	require.True(t, strings.HasPrefix(line, "MSG,1,1,1,4840D6,1,2026/03/01,12:00:00.000,2026/03/01,12:00:00.000,KLM1023,"))
	assert.True(t, strings.HasSuffix(line, ",,,,0\n"))
}

func TestEncodeSBS1AirbornePosition(t *testing.T) {
	lat, lon := 52.25720, 3.91937
	alt := int32(38000)
	u := adsb.StateUpdate{
		ICAO: 1, Class: adsb.ClassPosition, Lat: &lat, Lon: &lon, AltFeet: &alt,
	}
	line := string(EncodeSBS1(u))
	fields := strings.Split(line, ",")
	assert.Equal(t, "3", fields[1])
	assert.Contains(t, line, "38000")
	assert.Contains(t, line, "52.257200")
	assert.Contains(t, line, "3.919370")
}

func TestEncodeSBS1SurfacePositionUsesType2(t *testing.T) {
	lat, lon := 1.0, 2.0
	u := adsb.StateUpdate{ICAO: 1, Class: adsb.ClassPosition, Lat: &lat, Lon: &lon, OnGround: true}
	fields := strings.Split(string(EncodeSBS1(u)), ",")
	assert.Equal(t, "2", fields[1])
}

func TestEncodeSBS1IsOnGroundField(t *testing.T) {
	lat, lon := 1.0, 2.0

	airborne := adsb.StateUpdate{ICAO: 1, Class: adsb.ClassPosition, Lat: &lat, Lon: &lon, OnGround: false}
	fields := strings.Split(strings.TrimRight(string(EncodeSBS1(airborne)), "\n"), ",")
	assert.Equal(t, "0", fields[len(fields)-1])

	onGround := adsb.StateUpdate{ICAO: 1, Class: adsb.ClassPosition, Lat: &lat, Lon: &lon, OnGround: true}
	fields = strings.Split(strings.TrimRight(string(EncodeSBS1(onGround)), "\n"), ",")
	assert.Equal(t, "1", fields[len(fields)-1])
}

func TestEncodeSBS1Velocity(t *testing.T) {
	gs, trk := 450.0, 90.0
	vr := int32(64)
	u := adsb.StateUpdate{ICAO: 1, Class: adsb.ClassVelocity, GroundSpeedKt: &gs, TrackDeg: &trk, VerticalRateFpm: &vr}
	line := string(EncodeSBS1(u))
	fields := strings.Split(line, ",")
	assert.Equal(t, "4", fields[1])
	assert.Contains(t, line, "450.0")
	assert.Contains(t, line, "90.0")
	assert.Contains(t, line, "64")
}

func TestEncodeSBS1OmitsAbsentFields(t *testing.T) {
	u := adsb.StateUpdate{ICAO: 1, Class: adsb.ClassMetadata}
	line := string(EncodeSBS1(u))
	fields := strings.Split(strings.TrimRight(line, "\n"), ",")
	require.Len(t, fields, 22)
	assert.Equal(t, "8", fields[1])
	// callsign..vertical_rate are fields[10..16]; all absent here.
	for i := 10; i <= 16; i++ {
		assert.Equal(t, "", fields[i])
	}
	// squawk/alert/emergency/spi stay blank; is_on_ground renders "0"/"1".
	for i := 17; i <= 20; i++ {
		assert.Equal(t, "", fields[i])
	}
	assert.Equal(t, "0", fields[21])
}
