// Package classify defines the sound-classifier provider contract and the
// filtering applied to raw classifier output before it enters the session's
// detection history.
//
// A classifier consumes one fixed-length 16 kHz mono waveform (an analysis
// frame) and returns a score for every label in its fixed vocabulary. The
// pipeline treats the classifier as an external collaborator: a failed
// classification is non-fatal and the frame's result is simply omitted.
package classify

import (
	"context"
	"errors"
	"time"
)

// Filtering applied to raw classifier output before ingestion.
const (
	// ScoreThreshold is the minimum score a label must reach to become a
	// detection.
	ScoreThreshold = 0.2

	// MaxPerFrame caps how many detections a single frame may contribute.
	MaxPerFrame = 5
)

// ErrNotReady is returned by Ready when the classifier's model or label set
// has not finished loading. A session start request is refused while the
// classifier reports this.
var ErrNotReady = errors.New("classify: model not ready")

// Score is one (label, confidence) pair from the classifier's raw output
// vector. Scores are in (0, 1].
type Score struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Detection is a filtered, timestamped classifier result attributed to a
// single frame.
type Detection struct {
	Label string    `json:"label"`
	Score float64   `json:"score"`
	At    time.Time `json:"timestamp"`
}

// Provider is a sound-event classifier. Implementations may block in
// Classify (network round-trip, model inference) and must honour context
// cancellation.
type Provider interface {
	// Ready reports whether the model and label vocabulary are loaded.
	// Returns ErrNotReady (possibly wrapped) when they are not.
	Ready(ctx context.Context) error

	// Labels returns the classifier's fixed, ordered label vocabulary.
	Labels() []string

	// Classify scores one analysis frame. The returned slice covers the whole
	// vocabulary in an implementation-defined order; callers apply Filter
	// before using the result.
	Classify(ctx context.Context, frame []float32) ([]Score, error)
}

// Filter reduces a raw score vector to the detections the pipeline ingests:
// entries with Score > ScoreThreshold, the top MaxPerFrame by descending
// score, each stamped with now. The input slice is not modified.
func Filter(scores []Score, now time.Time) []Detection {
	// Insertion sort into a fixed-size top-K buffer; vocabulary sizes are a
	// few hundred at most, so this beats a full sort allocation.
	top := make([]Score, 0, MaxPerFrame)
	for _, s := range scores {
		if s.Score <= ScoreThreshold {
			continue
		}
		pos := len(top)
		for pos > 0 && top[pos-1].Score < s.Score {
			pos--
		}
		if pos >= MaxPerFrame {
			continue
		}
		if len(top) < MaxPerFrame {
			top = append(top, Score{})
		}
		copy(top[pos+1:], top[pos:len(top)-1])
		top[pos] = s
	}

	out := make([]Detection, len(top))
	for i, s := range top {
		out[i] = Detection{Label: s.Label, Score: s.Score, At: now}
	}
	return out
}
