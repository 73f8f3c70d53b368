package analysis

import (
	"slices"

	"github.com/earshot-io/earshot/pkg/classify"
)

// historyCap bounds the detection history for the whole session; the oldest
// entries are evicted first when a new batch overflows it.
const historyCap = 20

// LabelTotal is the session-wide tally for one label, used by the exporter
// to report the most frequent sounds without re-deriving them from the
// bounded history.
type LabelTotal struct {
	Label        string  `json:"label"`
	Count        int     `json:"count"`
	AverageScore float64 `json:"averageScore"`
}

// DetectionAggregator maintains a bounded most-recent-first view of
// classifier detections plus unbounded per-label tallies. Batches arrive
// already filtered and ranked (score > 0.2, at most 5, descending score) —
// that contract belongs to the classifier adapter, not to this type.
type DetectionAggregator struct {
	history []classify.Detection
	counts  map[string]int
	scores  map[string]float64
}

// NewDetectionAggregator creates an empty aggregator.
func NewDetectionAggregator() *DetectionAggregator {
	return &DetectionAggregator{
		counts: make(map[string]int),
		scores: make(map[string]float64),
	}
}

// Ingest prepends a frame's detection batch to the history and truncates to
// the 20 most recent entries. Order is preserved within the batch and
// between batches: the newest batch entirely precedes all older entries.
// An empty batch is a no-op.
func (a *DetectionAggregator) Ingest(batch []classify.Detection) {
	if len(batch) == 0 {
		return
	}

	for _, d := range batch {
		a.counts[d.Label]++
		a.scores[d.Label] += d.Score
	}

	merged := make([]classify.Detection, 0, len(batch)+len(a.history))
	merged = append(merged, batch...)
	merged = append(merged, a.history...)
	if len(merged) > historyCap {
		merged = merged[:historyCap]
	}
	a.history = merged
}

// Current returns a copy of the detection history, most recent first.
func (a *DetectionAggregator) Current() []classify.Detection {
	return slices.Clone(a.history)
}

// Totals returns the per-label session tallies ordered by descending count,
// ties broken by label for stable output.
func (a *DetectionAggregator) Totals() []LabelTotal {
	out := make([]LabelTotal, 0, len(a.counts))
	for label, n := range a.counts {
		out = append(out, LabelTotal{
			Label:        label,
			Count:        n,
			AverageScore: a.scores[label] / float64(n),
		})
	}
	slices.SortFunc(out, func(x, y LabelTotal) int {
		if x.Count != y.Count {
			return y.Count - x.Count
		}
		if x.Label < y.Label {
			return -1
		}
		if x.Label > y.Label {
			return 1
		}
		return 0
	})
	return out
}

// Reset clears the history and tallies. Idempotent.
func (a *DetectionAggregator) Reset() {
	a.history = nil
	a.counts = make(map[string]int)
	a.scores = make(map[string]float64)
}
