// Package narrate renders a finished session's statistics into the
// human-readable summary shown to the user and embedded in the export file.
package narrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/earshot-io/earshot/internal/analysis"
	"github.com/earshot-io/earshot/internal/session"
)

// Compile-time assertion that Narrator implements session.Narrator.
var _ session.Narrator = (*Narrator)(nil)

// emptySummary is rendered when a session ends before a single frame
// completed.
const emptySummary = "No sounds detected during this session."

// Narrator builds summaries by pure string formatting over the pipeline's
// derived statistics.
type Narrator struct{}

// New creates a Narrator.
func New() *Narrator {
	return &Narrator{}
}

// Environment buckets the session's noise floor into a coarse acoustic
// environment label. Returns "unknown" for an empty session.
func Environment(stats *analysis.SessionStats) string {
	if stats == nil {
		return "unknown"
	}
	switch {
	case stats.NoiseFloor < 0.01:
		return "very quiet"
	case stats.NoiseFloor < 0.03:
		return "quiet"
	case stats.NoiseFloor < 0.08:
		return "moderate"
	case stats.NoiseFloor < 0.2:
		return "noisy"
	default:
		return "loud"
	}
}

// Narrate renders the session summary. An empty session gets the fallback
// line instead of statistics.
func (n *Narrator) Narrate(res session.Result) string {
	if res.Stats == nil {
		return emptySummary
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Listened for %s across %d frames. ",
		res.EndedAt.Sub(res.StartedAt).Round(time.Second), res.Stats.Frames)
	fmt.Fprintf(&b, "The environment was %s (average level %.3f, noise floor %.3f, %.0f%% silence, peak %.3f). ",
		Environment(res.Stats), res.Stats.Average, res.Stats.NoiseFloor, res.Stats.SilencePct, res.Stats.Peak)

	if len(res.Totals) == 0 {
		b.WriteString("No recognizable sounds were classified.")
	} else {
		b.WriteString("Most frequent sounds: ")
		for i, total := range res.Totals {
			if i == 3 {
				break
			}
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%d)", total.Label, total.Count)
		}
		b.WriteString(".")
	}

	if res.DroppedFrames > 0 {
		fmt.Fprintf(&b, " %d frames were skipped while the classifier was busy.", res.DroppedFrames)
	}
	return b.String()
}
