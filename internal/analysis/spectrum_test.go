package analysis

import (
	"math"
	"testing"
)

func alwaysCapture() float64 { return 0 }
func neverCapture() float64  { return 0.99 }

func TestSpectrumSampler_CapAtFifty(t *testing.T) {
	t.Parallel()

	s := NewSpectrumSampler(WithRandSource(alwaysCapture))
	snap := make([]float64, SnapshotBins)
	for i := 0; i < 500; i++ {
		s.MaybeCapture(snap)
	}
	if s.Captured() != maxSnapshots {
		t.Errorf("captured = %d, want %d", s.Captured(), maxSnapshots)
	}
}

func TestSpectrumSampler_RejectionStoresNothing(t *testing.T) {
	t.Parallel()

	s := NewSpectrumSampler(WithRandSource(neverCapture))
	snap := make([]float64, SnapshotBins)
	for i := 0; i < 100; i++ {
		s.MaybeCapture(snap)
	}
	if s.Captured() != 0 {
		t.Errorf("captured = %d, want 0", s.Captured())
	}
}

func TestSpectrumSampler_FinalizeEmpty(t *testing.T) {
	t.Parallel()

	s := NewSpectrumSampler()
	avg := s.Finalize()
	if avg == nil {
		t.Fatal("finalize returned nil, want empty slice")
	}
	if len(avg) != 0 {
		t.Errorf("finalize of empty sampler has %d bins, want 0", len(avg))
	}
}

func TestSpectrumSampler_FinalizeAveragesAndTruncates(t *testing.T) {
	t.Parallel()

	s := NewSpectrumSampler(WithRandSource(alwaysCapture))

	// Two full-width snapshots whose element-wise mean is easy to predict.
	a := make([]float64, SnapshotBins)
	b := make([]float64, SnapshotBins)
	for i := range a {
		a[i] = float64(i)
		b[i] = float64(i) + 2
	}
	s.MaybeCapture(a)
	s.MaybeCapture(b)

	avg := s.Finalize()
	if len(avg) != SpectrumBins {
		t.Fatalf("finalized spectrum has %d bins, want %d", len(avg), SpectrumBins)
	}
	for i, v := range avg {
		want := float64(i) + 1
		if math.Abs(v-want) > 1e-12 {
			t.Fatalf("bin %d = %v, want %v", i, v, want)
		}
	}
}

func TestSpectrumSampler_CapturesAreCopies(t *testing.T) {
	t.Parallel()

	s := NewSpectrumSampler(WithRandSource(alwaysCapture))
	snap := make([]float64, SnapshotBins)
	snap[0] = 1
	s.MaybeCapture(snap)
	snap[0] = 100 // caller mutation must not leak into the sampler

	avg := s.Finalize()
	if avg[0] != 1 {
		t.Errorf("bin 0 = %v, want 1 (snapshot not copied on capture)", avg[0])
	}
}

func TestSpectrumSampler_Reset(t *testing.T) {
	t.Parallel()

	s := NewSpectrumSampler(WithRandSource(alwaysCapture))
	s.MaybeCapture(make([]float64, SnapshotBins))
	s.Reset()
	if s.Captured() != 0 {
		t.Errorf("captured = %d after reset, want 0", s.Captured())
	}
	if got := s.Finalize(); len(got) != 0 {
		t.Errorf("finalize after reset has %d bins, want 0", len(got))
	}
}
