package analysis

// FrameAccumulator buffers incoming sample bursts and slices them into
// exact FrameSize frames. Bursts arrive at whatever cadence and size the
// audio source produces (commonly ~4096 samples); the accumulator never
// emits a partial frame and retains any remainder for the next drain.
//
// Growth between drains is unbounded in principle, but callers drain after
// every append so the buffer stays below one frame plus one burst in
// practice.
type FrameAccumulator struct {
	buf []float32
}

// NewFrameAccumulator creates an accumulator with room for one frame plus a
// typical burst, avoiding reallocation in the steady state.
func NewFrameAccumulator() *FrameAccumulator {
	return &FrameAccumulator{buf: make([]float32, 0, FrameSize+4096)}
}

// Append concatenates a burst to the internal buffer. An empty burst is a
// no-op.
func (a *FrameAccumulator) Append(burst []float32) {
	if len(burst) == 0 {
		return
	}
	a.buf = append(a.buf, burst...)
}

// DrainReadyFrames removes and returns every complete frame currently
// buffered, in arrival order. Each returned frame is an owned copy of
// exactly FrameSize samples; fewer than FrameSize samples remain buffered
// afterwards.
func (a *FrameAccumulator) DrainReadyFrames() [][]float32 {
	if len(a.buf) < FrameSize {
		return nil
	}

	n := len(a.buf) / FrameSize
	frames := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		frame := make([]float32, FrameSize)
		copy(frame, a.buf[i*FrameSize:(i+1)*FrameSize])
		frames = append(frames, frame)
	}

	// Shift the remainder to the front and reuse the backing array.
	rest := len(a.buf) - n*FrameSize
	copy(a.buf, a.buf[n*FrameSize:])
	a.buf = a.buf[:rest]

	return frames
}

// Buffered returns the number of samples currently held.
func (a *FrameAccumulator) Buffered() int {
	return len(a.buf)
}

// Reset discards all buffered samples. Idempotent.
func (a *FrameAccumulator) Reset() {
	a.buf = a.buf[:0]
}
