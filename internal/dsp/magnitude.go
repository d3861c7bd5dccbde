// Package dsp implements the front half of the pipeline: magnitude
// derivation, noise-floor estimation and preamble correlation, per spec.md
// sections 4.1-4.3.
package dsp

import (
	"math"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

// Magnitude returns the complex modulus |z| of one baseband sample.
func Magnitude(s adsb.Sample) float32 {
	return float32(math.Hypot(float64(s.I), float64(s.Q)))
}

// MagnitudeBatch derives magnitude samples 1:1 from a slice of complex
// samples, reusing dst when it has enough capacity.
func MagnitudeBatch(samples []adsb.Sample, dst []float32) []float32 {
	if cap(dst) < len(samples) {
		dst = make([]float32, len(samples))
	}
	dst = dst[:len(samples)]
	for i, s := range samples {
		dst[i] = Magnitude(s)
	}
	return dst
}
