package analysis

import (
	"math"
	"testing"
)

// constFrame returns a frame where every sample has amplitude a, so its RMS
// equals |a| (up to float32 rounding).
func constFrame(a float64) []float32 {
	frame := make([]float32, FrameSize)
	for i := range frame {
		frame[i] = float32(a)
	}
	return frame
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestVolumeMetricsCollector_Observe(t *testing.T) {
	t.Parallel()

	c := NewVolumeMetricsCollector()

	if rms := c.Observe(constFrame(0)); rms != 0 {
		t.Errorf("RMS of all-zero frame = %v, want 0", rms)
	}
	if rms := c.Observe(constFrame(0.5)); !almostEqual(rms, 0.5, 1e-6) {
		t.Errorf("RMS of constant 0.5 frame = %v, want 0.5", rms)
	}
	if rms := c.Observe(constFrame(-0.25)); !almostEqual(rms, 0.25, 1e-6) {
		t.Errorf("RMS of constant -0.25 frame = %v, want 0.25", rms)
	}
	if c.Count() != 3 {
		t.Errorf("count = %d, want 3", c.Count())
	}
	if last := c.Last(); !almostEqual(last, 0.25, 1e-6) {
		t.Errorf("last = %v, want 0.25", last)
	}
}

func TestVolumeMetricsCollector_ObserveEmptyFrame(t *testing.T) {
	t.Parallel()

	c := NewVolumeMetricsCollector()
	if rms := c.Observe(nil); rms != 0 {
		t.Errorf("RMS of empty frame = %v, want 0", rms)
	}
}

func TestVolumeMetricsCollector_FinalizeEmpty(t *testing.T) {
	t.Parallel()

	c := NewVolumeMetricsCollector()
	if stats := c.Finalize(); stats != nil {
		t.Errorf("finalize of empty collector = %+v, want nil", stats)
	}
	if last := c.Last(); last != 0 {
		t.Errorf("last on empty collector = %v, want 0", last)
	}
}

func TestVolumeMetricsCollector_SilenceAndNoiseFloor(t *testing.T) {
	t.Parallel()

	// Constant frames at 0.01 land just under the silence threshold after
	// float32 rounding, so two of five frames count as silent.
	c := NewVolumeMetricsCollector()
	for _, a := range []float64{0.01, 0.02, 0.2, 0.03, 0.01} {
		c.Observe(constFrame(a))
	}

	stats := c.Finalize()
	if stats == nil {
		t.Fatal("finalize returned nil for non-empty session")
	}
	if stats.Frames != 5 {
		t.Errorf("frames = %d, want 5", stats.Frames)
	}
	if stats.SilencePct != 40 {
		t.Errorf("silence = %v%%, want 40%%", stats.SilencePct)
	}
	// ceil(5 * 0.1) = 1 frame: the floor is the single quietest frame.
	if !almostEqual(stats.NoiseFloor, 0.01, 1e-6) {
		t.Errorf("noise floor = %v, want ~0.01", stats.NoiseFloor)
	}
	if !almostEqual(stats.Peak, 0.2, 1e-6) {
		t.Errorf("peak = %v, want 0.2", stats.Peak)
	}
	if !almostEqual(stats.Minimum, 0.01, 1e-6) {
		t.Errorf("minimum = %v, want 0.01", stats.Minimum)
	}
	if !almostEqual(stats.Range, 0.19, 1e-6) {
		t.Errorf("range = %v, want 0.19", stats.Range)
	}
	if !almostEqual(stats.Average, 0.054, 1e-6) {
		t.Errorf("average = %v, want 0.054", stats.Average)
	}
}

func TestVolumeMetricsCollector_StatsOrdering(t *testing.T) {
	t.Parallel()

	c := NewVolumeMetricsCollector()
	for _, a := range []float64{0.05, 0.3, 0.12, 0.07, 0.6, 0.02, 0.15, 0.09, 0.4, 0.11, 0.08, 0.22} {
		c.Observe(constFrame(a))
	}

	stats := c.Finalize()
	if stats == nil {
		t.Fatal("finalize returned nil")
	}
	if stats.NoiseFloor > stats.Average {
		t.Errorf("noise floor %v exceeds average %v", stats.NoiseFloor, stats.Average)
	}
	if stats.Average > stats.Peak {
		t.Errorf("average %v exceeds peak %v", stats.Average, stats.Peak)
	}
	if stats.Minimum > stats.NoiseFloor {
		t.Errorf("minimum %v exceeds noise floor %v", stats.Minimum, stats.NoiseFloor)
	}
	// ceil(12 * 0.1) = 2: floor averages the two quietest frames.
	if !almostEqual(stats.NoiseFloor, (0.02+0.05)/2, 1e-6) {
		t.Errorf("noise floor = %v, want %v", stats.NoiseFloor, (0.02+0.05)/2)
	}
}

func TestVolumeMetricsCollector_Reset(t *testing.T) {
	t.Parallel()

	c := NewVolumeMetricsCollector()
	c.Observe(constFrame(0.1))
	c.Reset()
	if c.Count() != 0 {
		t.Errorf("count = %d after reset, want 0", c.Count())
	}
	if stats := c.Finalize(); stats != nil {
		t.Errorf("finalize after reset = %+v, want nil", stats)
	}
	c.Reset()
	if c.Count() != 0 {
		t.Errorf("count = %d after second reset, want 0", c.Count())
	}
}
