package dsp

import (
	"testing"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
	"github.com/stretchr/testify/assert"
)

func TestMagnitude(t *testing.T) {
	assert.InDelta(t, 5.0, float64(Magnitude(adsb.Sample{I: 3, Q: 4})), 1e-6)
	assert.InDelta(t, 0.0, float64(Magnitude(adsb.Sample{I: 0, Q: 0})), 1e-6)
}

func TestMagnitudeBatch(t *testing.T) {
	samples := []adsb.Sample{{I: 3, Q: 4}, {I: 0, Q: 1}, {I: 1, Q: 0}}
	out := MagnitudeBatch(samples, nil)
	assert.Len(t, out, 3)
	assert.InDelta(t, 5.0, float64(out[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(out[1]), 1e-6)
	assert.InDelta(t, 1.0, float64(out[2]), 1e-6)
}
