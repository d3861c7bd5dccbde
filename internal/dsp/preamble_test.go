package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPreambleAt writes the four preamble pulses (amplitude 5.0 over a
// baseline of 1.0) starting at sampleStart into a mags buffer of length n.
func buildPreambleAt(n int, sampleStart int) ([]float32, []float64) {
	mags := make([]float32, n)
	noise := make([]float64, n)
	for i := range mags {
		mags[i] = 1.0
		noise[i] = 1.0
	}
	for _, o := range highOffsets {
		mags[sampleStart+o] = 5.0
	}
	return mags, noise
}

func TestDetectorFindsCleanPreamble(t *testing.T) {
	mags, noise := buildPreambleAt(80, 20)
	d := NewDetector(DefaultConfig())

	hits := d.Detect(mags, noise, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(20), hits[0].SampleIndex)
	assert.InDelta(t, 16.0, hits[0].CorrelationScore, 1e-9)
	assert.InDelta(t, 1.0, hits[0].NoiseAtHit, 1e-9)
}

func TestDetectorSuppressesWithinGuardInterval(t *testing.T) {
	mags, noise := buildPreambleAt(700, 20)
	// A second preamble 100 samples later, well within the 480-sample
	// suppression window, must not produce a second hit.
	for _, o := range highOffsets {
		mags[20+100+o] = 5.0
	}

	d := NewDetector(DefaultConfig())
	hits := d.Detect(mags, noise, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(20), hits[0].SampleIndex)
}

func TestDetectorReenablesAfterSuppressionWindow(t *testing.T) {
	mags, noise := buildPreambleAt(1200, 20)
	for _, o := range highOffsets {
		mags[20+600+o] = 5.0
	}

	d := NewDetector(DefaultConfig())
	hits := d.Detect(mags, noise, 0)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(20), hits[0].SampleIndex)
	assert.Equal(t, int64(620), hits[1].SampleIndex)
}

func TestDetectorIgnoresPureNoise(t *testing.T) {
	mags := make([]float32, 200)
	noise := make([]float64, 200)
	for i := range mags {
		mags[i] = 1.0
		noise[i] = 1.0
	}
	d := NewDetector(DefaultConfig())
	hits := d.Detect(mags, noise, 0)
	assert.Empty(t, hits)
}
