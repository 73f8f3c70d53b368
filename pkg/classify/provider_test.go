package classify

import (
	"testing"
	"time"
)

func TestFilter_ThresholdAndTopK(t *testing.T) {
	t.Parallel()

	now := time.Now()
	scores := []Score{
		{Label: "Silence", Score: 0.05},
		{Label: "Speech", Score: 0.9},
		{Label: "Music", Score: 0.45},
		{Label: "Dog", Score: 0.2}, // exactly at threshold: excluded
		{Label: "Wind", Score: 0.3},
		{Label: "Machine", Score: 0.5},
		{Label: "Rain", Score: 0.25},
		{Label: "Traffic", Score: 0.21},
	}

	got := Filter(scores, now)

	if len(got) != MaxPerFrame {
		t.Fatalf("got %d detections, want %d", len(got), MaxPerFrame)
	}
	wantOrder := []string{"Speech", "Machine", "Music", "Wind", "Rain"}
	for i, w := range wantOrder {
		if got[i].Label != w {
			t.Errorf("detection %d = %q, want %q", i, got[i].Label, w)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("detections not in descending score order at %d", i)
		}
	}
	for _, d := range got {
		if !d.At.Equal(now) {
			t.Errorf("detection %q missing timestamp", d.Label)
		}
	}
}

func TestFilter_AllBelowThreshold(t *testing.T) {
	t.Parallel()

	got := Filter([]Score{{Label: "a", Score: 0.1}, {Label: "b", Score: 0.2}}, time.Now())
	if len(got) != 0 {
		t.Fatalf("got %d detections, want 0", len(got))
	}
}

func TestFilter_FewerThanK(t *testing.T) {
	t.Parallel()

	got := Filter([]Score{
		{Label: "Music", Score: 0.5},
		{Label: "Speech", Score: 0.8},
	}, time.Now())
	if len(got) != 2 {
		t.Fatalf("got %d detections, want 2", len(got))
	}
	if got[0].Label != "Speech" || got[1].Label != "Music" {
		t.Errorf("order = [%s %s], want [Speech Music]", got[0].Label, got[1].Label)
	}
}

func TestFilter_EmptyInput(t *testing.T) {
	t.Parallel()

	if got := Filter(nil, time.Now()); len(got) != 0 {
		t.Fatalf("got %d detections from nil input", len(got))
	}
}
