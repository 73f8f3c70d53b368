// Package export writes the end-of-session JSON report. The document layout
// and file naming are a stable external contract shared with existing
// tooling; do not reshape them.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/earshot-io/earshot/internal/analysis"
	"github.com/earshot-io/earshot/internal/narrate"
	"github.com/earshot-io/earshot/internal/session"
	"github.com/earshot-io/earshot/pkg/classify"
)

// Compile-time assertion that Writer implements session.Exporter.
var _ session.Exporter = (*Writer)(nil)

// Document is the exported report. Field names and nesting are fixed.
type Document struct {
	Metadata            Metadata              `json:"metadata"`
	AcousticEnvironment Environment           `json:"acousticEnvironment"`
	FrequentSounds      []analysis.LabelTotal `json:"frequentSounds"`
	AllDetections       []classify.Detection  `json:"allDetections"`
	Summary             string                `json:"summary"`
	FrequencySpectrum   []float64             `json:"frequencySpectrum"`
}

// Metadata identifies the session the document describes.
type Metadata struct {
	SessionID       string    `json:"sessionId"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	DurationSeconds float64   `json:"durationSeconds"`
	Frames          int       `json:"frames"`
	DroppedFrames   int64     `json:"droppedFrames"`
	SampleRate      int       `json:"sampleRate"`
}

// Environment is the session's loudness profile plus its coarse label.
type Environment struct {
	Classification string                 `json:"classification"`
	Stats          *analysis.SessionStats `json:"stats"`
}

// Writer persists session reports as JSON files in a directory.
type Writer struct {
	dir string
}

// NewWriter creates a Writer targeting dir; empty means the working
// directory.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "."
	}
	return &Writer{dir: dir}
}

// Filename derives the report file name from the session end time:
// acoustic-session-<ISO 8601 with colons and periods replaced by
// hyphens>.json.
func Filename(endedAt time.Time) string {
	stamp := endedAt.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	stamp = strings.ReplaceAll(stamp, ".", "-")
	return "acoustic-session-" + stamp + ".json"
}

// Export writes the report file and returns its path.
func (w *Writer) Export(_ context.Context, res session.Result) (string, error) {
	doc := Build(res)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal report: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create report dir: %w", err)
	}
	path := filepath.Join(w.dir, Filename(res.EndedAt))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("export: write report: %w", err)
	}
	return path, nil
}

// Build assembles the document for res. Nil slices become empty ones so the
// JSON always carries arrays, never null.
func Build(res session.Result) Document {
	doc := Document{
		Metadata: Metadata{
			SessionID:       res.SessionID,
			StartedAt:       res.StartedAt,
			EndedAt:         res.EndedAt,
			DurationSeconds: res.EndedAt.Sub(res.StartedAt).Seconds(),
			Frames:          res.Frames,
			DroppedFrames:   res.DroppedFrames,
			SampleRate:      analysis.SampleRate,
		},
		AcousticEnvironment: Environment{
			Classification: narrate.Environment(res.Stats),
			Stats:          res.Stats,
		},
		FrequentSounds:    res.Totals,
		AllDetections:     res.Detections,
		Summary:           res.Summary,
		FrequencySpectrum: res.Spectrum,
	}
	if doc.FrequentSounds == nil {
		doc.FrequentSounds = []analysis.LabelTotal{}
	}
	if doc.AllDetections == nil {
		doc.AllDetections = []classify.Detection{}
	}
	if doc.FrequencySpectrum == nil {
		doc.FrequencySpectrum = []float64{}
	}
	return doc
}
