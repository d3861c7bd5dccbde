package dsp

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// NoiseFloor tracks a slowly-varying floor of recent magnitude samples using
// a sliding window percentile (spec.md 4.1: "any monotone, burst-insensitive
// estimator"). The window is sized so a single 120us ADS-B burst (480
// samples at 4 MHz) cannot materially move a low percentile of it.
//
// Recomputing the percentile on every sample would mean a full sort per
// sample; instead the estimate is refreshed every stride samples and held
// constant in between, the same amortized-cost trade the teacher's
// FFTBuffer averaging makes for its own rolling windows.
type NoiseFloor struct {
	mu sync.Mutex

	window     []float64
	scratch    []float64
	pos        int
	filled     bool
	percentile float64
	stride     int
	since      int
	estimate   float64
}

// DefaultWindowSamples is ~4000 samples at 4 MHz, per spec.md 4.1.
const DefaultWindowSamples = 4000

// DefaultPercentile is the 25th percentile named as an example in spec.md 4.1.
const DefaultPercentile = 0.25

// DefaultStride amortizes the sort over 64 samples between recomputes.
const DefaultStride = 64

// NewNoiseFloor builds an estimator over a window of windowSamples magnitude
// samples, reporting the given percentile, refreshed every stride samples.
func NewNoiseFloor(windowSamples int, percentile float64, stride int) *NoiseFloor {
	if windowSamples <= 0 {
		windowSamples = DefaultWindowSamples
	}
	if stride <= 0 {
		stride = DefaultStride
	}
	return &NoiseFloor{
		window:     make([]float64, windowSamples),
		scratch:    make([]float64, windowSamples),
		percentile: percentile,
		stride:     stride,
	}
}

// Update folds one magnitude sample into the window.
func (n *NoiseFloor) Update(mag float32) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.window[n.pos] = float64(mag)
	n.pos++
	if n.pos == len(n.window) {
		n.pos = 0
		n.filled = true
	}
	n.since++
	if n.since >= n.stride {
		n.recompute()
		n.since = 0
	}
}

// UpdateBatch folds a batch of magnitude samples in sequence.
func (n *NoiseFloor) UpdateBatch(mags []float32) {
	for _, m := range mags {
		n.Update(m)
	}
}

func (n *NoiseFloor) recompute() {
	count := len(n.window)
	if !n.filled {
		count = n.pos
	}
	if count == 0 {
		return
	}
	copy(n.scratch[:count], n.window[:count])
	sorted := n.scratch[:count]
	sort.Float64s(sorted)
	n.estimate = stat.Quantile(n.percentile, stat.Empirical, sorted, nil)
}

// Estimate returns the current noise-floor estimate. Safe to call
// concurrently with Update.
func (n *NoiseFloor) Estimate() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.estimate
}
