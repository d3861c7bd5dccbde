package dsp

import "math"

// TemplateLen is the ADS-B preamble template length at 4 Msps: 8us * 4 = 32
// samples, per spec.md 4.2.
const TemplateLen = 32

// GuardHalf is the half-width, in samples, of the local-maximum guard
// window around a correlation peak.
const GuardHalf = 16

// SuppressSamples is the minimum spacing enforced between two hits: one
// maximum frame, 120us * 4 MHz = 480 samples.
const SuppressSamples = 480

// highOffsets are the sample offsets, within the 32-sample template, that
// fall inside one of the preamble's four 0.5us pulses at relative offsets
// {0.0, 1.0, 3.5, 4.5} us (i.e. sample offsets {0, 4, 14, 18}, each 2
// samples wide at 4 Msps).
var highOffsets = [8]int{0, 1, 4, 5, 14, 15, 18, 19}

var isHighOffset [TemplateLen]bool

func init() {
	for _, o := range highOffsets {
		isHighOffset[o] = true
	}
}

// PreambleHit is a detected preamble candidate, per spec.md 3.
type PreambleHit struct {
	SampleIndex      int64
	CorrelationScore float64
	NoiseAtHit       float64
}

// Config holds the detector's tunables, per spec.md 4.2 and 6.
type Config struct {
	TAbs float64 // absolute correlation threshold (--preamble-threshold), default 10.0
	KRel float64 // relative-to-noise multiplier, default 2.0
}

// DefaultConfig matches the CLI defaults of spec.md section 6.
func DefaultConfig() Config {
	return Config{TAbs: 10.0, KRel: 2.0}
}

// Detector finds preamble hits in a magnitude stream, carrying the
// suppression deadline across successive Detect calls so that a hit near
// the end of one chunk correctly suppresses a spurious re-hit at the start
// of the next.
type Detector struct {
	cfg         Config
	nextAllowed int64
}

// NewDetector builds a Detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

func correlationAt(mags []float32, i int) float64 {
	var high, low float64
	for k := 0; k < TemplateLen; k++ {
		v := float64(mags[i+k])
		if isHighOffset[k] {
			high += v
		} else {
			low += v
		}
	}
	return high - low
}

// Detect scans mags (magnitude samples whose absolute index of mags[0] is
// baseIndex) against noise (a same-length slice of noise-floor estimates
// aligned 1:1 with mags), returning every PreambleHit found. Detect may be
// called repeatedly on successive, abutting chunks of a stream; the
// detector carries its suppression state between calls.
//
// Callers should retain the last TemplateLen+2*GuardHalf-1 samples of mags
// (and noise) and prepend them to the next chunk so that hits spanning a
// chunk boundary are not missed; Detect itself performs no buffering.
func (d *Detector) Detect(mags []float32, noise []float64, baseIndex int64) []PreambleHit {
	n := len(mags)
	if n < TemplateLen || len(noise) < n {
		return nil
	}
	numCorr := n - TemplateLen + 1
	corr := make([]float64, numCorr)
	for i := 0; i < numCorr; i++ {
		corr[i] = correlationAt(mags, i)
	}

	var hits []PreambleHit
	for i := GuardHalf; i < numCorr-GuardHalf; i++ {
		abs := baseIndex + int64(i)
		if abs < d.nextAllowed {
			continue
		}
		noiseVal := noise[i]
		threshold := math.Max(d.cfg.TAbs, d.cfg.KRel*noiseVal)
		if corr[i] <= threshold {
			continue
		}
		if !isLocalMax(corr, i) {
			continue
		}
		hits = append(hits, PreambleHit{
			SampleIndex:      abs,
			CorrelationScore: corr[i],
			NoiseAtHit:       noiseVal,
		})
		d.nextAllowed = abs + SuppressSamples
	}
	return hits
}

// isLocalMax reports whether corr[i] is the maximum over the guard window
// corr[i-GuardHalf : i+GuardHalf+1], with ties broken in favor of the
// earliest index (per spec.md 4.2).
func isLocalMax(corr []float64, i int) bool {
	for w := i - GuardHalf; w <= i+GuardHalf; w++ {
		if w == i {
			continue
		}
		if corr[w] > corr[i] {
			return false
		}
		if corr[w] == corr[i] && w < i {
			return false
		}
	}
	return true
}
