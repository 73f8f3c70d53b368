// Package analysis contains the numeric core of the Earshot pipeline: frame
// accumulation, session loudness statistics, bounded spectrum sampling, and
// the detection history.
//
// All components in this package are owned by a single session-processing
// goroutine (the audio delivery timeline) and are therefore unsynchronised;
// the session controller is responsible for confining calls to that timeline.
package analysis

// Pipeline-wide audio geometry. The classifier consumes 0.975 s windows of
// 16 kHz mono audio.
const (
	// SampleRate is the pipeline sample rate in Hz.
	SampleRate = 16000

	// FrameSize is the exact number of samples in one analysis frame
	// (0.975 s at 16 kHz).
	FrameSize = 15600
)
