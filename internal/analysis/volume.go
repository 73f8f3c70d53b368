package analysis

import (
	"math"
	"slices"
)

// silenceThreshold is the RMS level below which a frame counts as silent.
// The boundary is strict: a frame at exactly 0.01 is not silent.
const silenceThreshold = 0.01

// SessionStats summarises the loudness of a whole listening session. It is
// derived once, at session end, from the per-frame RMS history.
type SessionStats struct {
	// Average is the mean RMS across all frames.
	Average float64 `json:"average"`

	// Peak is the loudest frame's RMS.
	Peak float64 `json:"peak"`

	// Minimum is the quietest frame's RMS.
	Minimum float64 `json:"minimum"`

	// Range is Peak − Minimum.
	Range float64 `json:"range"`

	// SilencePct is the percentage of frames with RMS strictly below 0.01.
	SilencePct float64 `json:"silencePercentage"`

	// NoiseFloor is the mean of the quietest ⌈10%⌉ of frames, approximating
	// the ambient background level.
	NoiseFloor float64 `json:"noiseFloor"`

	// Frames is the number of frames observed.
	Frames int `json:"frames"`
}

// VolumeMetricsCollector folds per-frame loudness into session-wide
// aggregates. Observe returns each frame's RMS immediately for live UI
// feedback; Finalize derives the stats at session end.
type VolumeMetricsCollector struct {
	samples []float64
}

// NewVolumeMetricsCollector creates an empty collector.
func NewVolumeMetricsCollector() *VolumeMetricsCollector {
	return &VolumeMetricsCollector{}
}

// Observe computes the frame's RMS (sqrt of the mean squared sample),
// appends it to the session history, and returns it.
func (c *VolumeMetricsCollector) Observe(frame []float32) float64 {
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	rms := 0.0
	if len(frame) > 0 {
		rms = math.Sqrt(sum / float64(len(frame)))
	}
	c.samples = append(c.samples, rms)
	return rms
}

// Last returns the most recently observed RMS value, or 0 when nothing has
// been observed yet.
func (c *VolumeMetricsCollector) Last() float64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[len(c.samples)-1]
}

// Count returns the number of frames observed so far.
func (c *VolumeMetricsCollector) Count() int {
	return len(c.samples)
}

// Finalize derives SessionStats from the accumulated history. Returns nil
// when no frames were observed (an empty session is not an error; callers
// render a fallback instead).
func (c *VolumeMetricsCollector) Finalize() *SessionStats {
	n := len(c.samples)
	if n == 0 {
		return nil
	}

	stats := &SessionStats{
		Peak:    c.samples[0],
		Minimum: c.samples[0],
		Frames:  n,
	}

	var sum float64
	silent := 0
	for _, v := range c.samples {
		sum += v
		stats.Peak = math.Max(stats.Peak, v)
		stats.Minimum = math.Min(stats.Minimum, v)
		if v < silenceThreshold {
			silent++
		}
	}
	stats.Average = sum / float64(n)
	stats.Range = stats.Peak - stats.Minimum
	stats.SilencePct = float64(silent) / float64(n) * 100

	// Noise floor: mean of the quietest ⌈10%⌉ frames, at least one.
	sorted := slices.Clone(c.samples)
	slices.Sort(sorted)
	floor := (n + 9) / 10
	var floorSum float64
	for _, v := range sorted[:floor] {
		floorSum += v
	}
	stats.NoiseFloor = floorSum / float64(floor)

	return stats
}

// Reset clears the session history. Idempotent.
func (c *VolumeMetricsCollector) Reset() {
	c.samples = c.samples[:0]
}
