package analysis

import "testing"

// burst returns n samples with values encoding their global position so
// tests can verify ordering across frame boundaries.
func burst(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestFrameAccumulator_ExactFrameCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		bursts     []int
		wantFrames int
		wantRest   int
	}{
		{"below one frame", []int{4096, 4096}, 0, 8192},
		{"exactly one frame", []int{FrameSize}, 1, 0},
		{"spec scenario 3x6000", []int{6000, 6000, 6000}, 1, 2400},
		{"two frames plus rest", []int{FrameSize, FrameSize, 100}, 2, 100},
		{"many small bursts", []int{1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000}, 1, 400},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			acc := NewFrameAccumulator()
			total := 0
			var frames [][]float32
			for _, n := range tc.bursts {
				acc.Append(burst(total, n))
				total += n
				frames = append(frames, acc.DrainReadyFrames()...)
			}

			if len(frames) != tc.wantFrames {
				t.Fatalf("got %d frames, want %d", len(frames), tc.wantFrames)
			}
			for i, f := range frames {
				if len(f) != FrameSize {
					t.Errorf("frame %d has %d samples, want %d", i, len(f), FrameSize)
				}
			}
			if acc.Buffered() != tc.wantRest {
				t.Errorf("buffered = %d, want %d", acc.Buffered(), tc.wantRest)
			}
		})
	}
}

func TestFrameAccumulator_PreservesSampleOrder(t *testing.T) {
	t.Parallel()

	acc := NewFrameAccumulator()
	acc.Append(burst(0, FrameSize+500))
	acc.Append(burst(FrameSize+500, FrameSize))

	frames := acc.DrainReadyFrames()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}

	// Every sample value must equal its global position.
	for fi, f := range frames {
		for i, v := range f {
			want := float32(fi*FrameSize + i)
			if v != want {
				t.Fatalf("frame %d sample %d = %v, want %v", fi, i, v, want)
			}
		}
	}

	// The remainder must continue where the frames left off.
	if acc.Buffered() != 500 {
		t.Fatalf("buffered = %d, want 500", acc.Buffered())
	}
	acc.Append(burst(2*FrameSize+500, FrameSize-500))
	rest := acc.DrainReadyFrames()
	if len(rest) != 1 {
		t.Fatalf("got %d frames after refill, want 1", len(rest))
	}
	if rest[0][0] != float32(2*FrameSize) {
		t.Errorf("remainder head = %v, want %v", rest[0][0], float32(2*FrameSize))
	}
}

func TestFrameAccumulator_EmptyBurstNoOp(t *testing.T) {
	t.Parallel()

	acc := NewFrameAccumulator()
	acc.Append(nil)
	acc.Append([]float32{})
	if acc.Buffered() != 0 {
		t.Errorf("buffered = %d after empty bursts, want 0", acc.Buffered())
	}
	if frames := acc.DrainReadyFrames(); frames != nil {
		t.Errorf("got %d frames from empty accumulator", len(frames))
	}
}

func TestFrameAccumulator_Reset(t *testing.T) {
	t.Parallel()

	acc := NewFrameAccumulator()
	acc.Append(burst(0, 10000))
	acc.Reset()
	if acc.Buffered() != 0 {
		t.Errorf("buffered = %d after reset, want 0", acc.Buffered())
	}
	acc.Reset() // idempotent
	if acc.Buffered() != 0 {
		t.Errorf("buffered = %d after second reset, want 0", acc.Buffered())
	}
}
