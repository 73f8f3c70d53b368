package analysis

import "math/rand/v2"

const (
	// maxSnapshots caps how many spectrum snapshots a session may hold.
	// Once full, further captures are silently dropped — the first 50
	// accepted snapshots win (no eviction; this is a capped sample, not
	// true reservoir sampling).
	maxSnapshots = 50

	// captureProbability is the chance that any single offered snapshot is
	// accepted.
	captureProbability = 0.1
)

// SpectrumSampler collects a bounded, randomly-sampled set of spectrum
// snapshots over a session and averages them at session end. The random
// source is injectable so tests can force capture or rejection
// deterministically.
type SpectrumSampler struct {
	randFloat func() float64
	snapshots [][]float64
}

// SamplerOption configures a SpectrumSampler.
type SamplerOption func(*SpectrumSampler)

// WithRandSource overrides the sampler's uniform [0,1) random source.
func WithRandSource(f func() float64) SamplerOption {
	return func(s *SpectrumSampler) { s.randFloat = f }
}

// NewSpectrumSampler creates a sampler using the shared math/rand source
// unless overridden.
func NewSpectrumSampler(opts ...SamplerOption) *SpectrumSampler {
	s := &SpectrumSampler{randFloat: rand.Float64}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaybeCapture stores a copy of snapshot with probability 0.1, but only
// while fewer than 50 snapshots are held. Callers offer one snapshot per
// completed frame.
func (s *SpectrumSampler) MaybeCapture(snapshot []float64) {
	if len(s.snapshots) >= maxSnapshots {
		return
	}
	if s.randFloat() >= captureProbability {
		return
	}
	cp := make([]float64, len(snapshot))
	copy(cp, snapshot)
	s.snapshots = append(s.snapshots, cp)
}

// Captured returns the number of snapshots currently held.
func (s *SpectrumSampler) Captured() int {
	return len(s.snapshots)
}

// Finalize element-wise averages all captured snapshots and returns the
// first SpectrumBins bins of the result. Returns an empty slice when nothing
// was captured. Bins past the signal's true Nyquist cutoff are averaged
// as-is; treating them as display extrapolation is the consumer's concern.
func (s *SpectrumSampler) Finalize() []float64 {
	if len(s.snapshots) == 0 {
		return []float64{}
	}

	bins := len(s.snapshots[0])
	if bins > SpectrumBins {
		bins = SpectrumBins
	}
	avg := make([]float64, bins)
	for _, snap := range s.snapshots {
		for i := 0; i < bins && i < len(snap); i++ {
			avg[i] += snap[i]
		}
	}
	for i := range avg {
		avg[i] /= float64(len(s.snapshots))
	}
	return avg
}

// Reset discards all captured snapshots. Idempotent.
func (s *SpectrumSampler) Reset() {
	s.snapshots = s.snapshots[:0]
}
