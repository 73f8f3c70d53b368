package pcm

import (
	"bytes"
	"fmt"

	soxr "github.com/zaf/resample"
)

// Resampler converts a publisher's PCM16 stream to the pipeline's 16 kHz
// rate. It wraps a streaming soxr resampler, so output for a given write may
// lag by a few samples of codec latency; the remainder is flushed on Close.
// Create one per publisher stream; not safe for concurrent use.
type Resampler struct {
	res *soxr.Resampler
	buf *bytes.Buffer
}

// NewResampler creates a resampler from inRate Hz mono PCM16 to 16 kHz.
// inRate must be positive and different from the pipeline rate (callers
// should bypass resampling entirely when the rates already match).
func NewResampler(inRate int) (*Resampler, error) {
	if inRate <= 0 {
		return nil, fmt.Errorf("pcm: invalid input sample rate %d", inRate)
	}
	buf := &bytes.Buffer{}
	res, err := soxr.New(buf, float64(inRate), float64(SampleRate), 1, soxr.I16, soxr.HighQ)
	if err != nil {
		return nil, fmt.Errorf("pcm: create resampler: %w", err)
	}
	return &Resampler{res: res, buf: buf}, nil
}

// Process pushes PCM16 bytes through the resampler and returns whatever
// converted audio is available so far. The returned slice is owned by the
// caller.
func (r *Resampler) Process(pcm []byte) ([]byte, error) {
	if _, err := r.res.Write(pcm); err != nil {
		return nil, fmt.Errorf("pcm: resample write: %w", err)
	}
	out := make([]byte, r.buf.Len())
	copy(out, r.buf.Bytes())
	r.buf.Reset()
	return out, nil
}

// Close flushes the resampler's internal latency buffer and releases it.
func (r *Resampler) Close() error {
	if err := r.res.Close(); err != nil {
		return fmt.Errorf("pcm: close resampler: %w", err)
	}
	return nil
}
