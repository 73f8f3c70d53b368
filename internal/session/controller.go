// Package session drives the listening lifecycle: a [Controller] moves
// between idle, loading, listening, and error states, feeds incoming audio
// through the analysis pipeline, and fans the finished session out to the
// narrator, exporter, and archive.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/earshot-io/earshot/internal/analysis"
	"github.com/earshot-io/earshot/internal/observe"
	"github.com/earshot-io/earshot/internal/resilience"
	"github.com/earshot-io/earshot/pkg/classify"
)

// State is the controller's lifecycle phase.
type State string

const (
	// Idle means no session is running.
	Idle State = "idle"

	// Loading means Start is verifying the classifier and acquiring audio.
	Loading State = "loading"

	// Listening means audio is flowing through the pipeline.
	Listening State = "listening"

	// Errored means the last Start attempt failed; Start may be retried.
	Errored State = "error"
)

// Sentinel errors distinguishing the ways a session can fail to start.
var (
	ErrModelNotReady     = errors.New("session: classifier model not ready")
	ErrAcquisitionFailed = errors.New("session: audio source acquisition failed")
	ErrAlreadyActive     = errors.New("session: a session is already active")
	ErrNotActive         = errors.New("session: no active session")
)

// AudioSource hands bursts of mono 16 kHz float32 samples to the controller.
// Acquire must return only once delivery is established (or failed); deliver
// callbacks continue until Release.
type AudioSource interface {
	Acquire(ctx context.Context, deliver func(burst []float32)) error
	Release() error
}

// Result is everything a finished session produced.
type Result struct {
	SessionID     string
	StartedAt     time.Time
	EndedAt       time.Time
	Frames        int
	DroppedFrames int64
	Stats         *analysis.SessionStats
	Spectrum      []float64
	Detections    []classify.Detection
	Totals        []analysis.LabelTotal
	Summary       string
}

// Narrator turns a finished session into a human-readable summary.
type Narrator interface {
	Narrate(res Result) string
}

// Exporter persists a finished session to a local report file and returns
// its path.
type Exporter interface {
	Export(ctx context.Context, res Result) (string, error)
}

// Archiver stores a finished session in long-term storage.
type Archiver interface {
	Save(ctx context.Context, res Result) error
}

// Status is a point-in-time snapshot of the controller, shaped for the
// status endpoint.
type Status struct {
	State          State                `json:"state"`
	SessionID      string               `json:"sessionId,omitempty"`
	StartedAt      time.Time            `json:"startedAt,omitzero"`
	ElapsedSeconds int64                `json:"elapsedSeconds"`
	LastRMS        float64              `json:"lastRms"`
	Frames         int                  `json:"frames"`
	Buffered       int                  `json:"bufferedSamples"`
	Snapshots      int                  `json:"spectrumSnapshots"`
	DroppedFrames  int64                `json:"droppedFrames"`
	Detections     []classify.Detection `json:"detections"`
	Error          string               `json:"error,omitempty"`
}

// ControllerConfig holds all dependencies for a [Controller]. Provider and
// Source are required; the fan-out collaborators and Metrics are optional.
type ControllerConfig struct {
	Provider classify.Provider
	Source   AudioSource
	Narrator Narrator
	Exporter Exporter
	Archiver Archiver
	Metrics  *observe.Metrics
	Logger   *slog.Logger

	// ReadyTimeout bounds the classifier readiness probe. Default: 15s.
	ReadyTimeout time.Duration

	// ClassifyTimeout bounds each classifier call. Default: 10s.
	ClassifyTimeout time.Duration

	// Breaker tunes the circuit breaker guarding classifier calls.
	Breaker resilience.BreakerConfig
}

// Controller owns one listening session at a time. All exported methods are
// safe for concurrent use.
type Controller struct {
	provider classify.Provider
	source   AudioSource
	narrator Narrator
	exporter Exporter
	archiver Archiver
	metrics  *observe.Metrics
	log      *slog.Logger

	readyTimeout time.Duration
	worker       *classifyWorker
	workerOnce   sync.Once

	mu         sync.Mutex
	state      State
	lastErr    error
	id         string
	startedAt  time.Time
	cancel     context.CancelFunc
	epoch      uint64
	elapsedSec atomic.Int64

	acc        *analysis.FrameAccumulator
	volume     *analysis.VolumeMetricsCollector
	spectral   *analysis.SpectralAnalyzer
	sampler    *analysis.SpectrumSampler
	detections *analysis.DetectionAggregator
}

// NewController creates an idle [Controller] from cfg.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("session: classifier provider is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("session: audio source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 10 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "classifier"
	}

	c := &Controller{
		provider:     cfg.Provider,
		source:       cfg.Source,
		narrator:     cfg.Narrator,
		exporter:     cfg.Exporter,
		archiver:     cfg.Archiver,
		metrics:      cfg.Metrics,
		log:          cfg.Logger,
		readyTimeout: cfg.ReadyTimeout,
		state:        Idle,
		acc:          analysis.NewFrameAccumulator(),
		volume:       analysis.NewVolumeMetricsCollector(),
		spectral:     analysis.NewSpectralAnalyzer(),
		sampler:      analysis.NewSpectrumSampler(),
		detections:   analysis.NewDetectionAggregator(),
	}
	c.worker = newClassifyWorker(
		cfg.Provider,
		resilience.NewBreaker(cfg.Breaker),
		cfg.ClassifyTimeout,
		cfg.Metrics,
		cfg.Logger,
		c.onDetections,
	)
	return c, nil
}

// Start begins a new listening session: it probes classifier readiness,
// resets the analysis pipeline, and acquires the audio source. A classifier
// that is not ready refuses the request and leaves the controller idle;
// an acquisition failure lands it in the error state. Both may be retried.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Listening, Loading:
		id := c.id
		c.mu.Unlock()
		return fmt.Errorf("%w (id=%s)", ErrAlreadyActive, id)
	}
	c.state = Loading
	c.id = uuid.NewString()
	id := c.id
	c.mu.Unlock()

	c.log.Info("session loading", "session_id", id)

	// Probe readiness without holding the lock so Status stays responsive
	// during a slow model load. Only this method leaves the Loading state,
	// so the controller cannot change underneath the probe.
	readyCtx, cancel := context.WithTimeout(ctx, c.readyTimeout)
	err := c.provider.Ready(readyCtx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		// A refusal, not a session failure: back to idle with no side
		// effects beyond the recorded reason.
		c.state = Idle
		c.id = ""
		c.lastErr = fmt.Errorf("%w: %w", ErrModelNotReady, err)
		c.log.Warn("session start refused", "session_id", id, "err", c.lastErr)
		return c.lastErr
	}

	// Fresh pipeline for the new session; bump the epoch so any completion
	// still in flight from an earlier session is discarded.
	c.epoch++
	c.resetPipeline()
	c.workerOnce.Do(c.worker.Start)

	sessionCtx, cancelSession := context.WithCancel(context.Background())
	if err := c.source.Acquire(sessionCtx, c.ingest); err != nil {
		cancelSession()
		c.state = Errored
		c.lastErr = fmt.Errorf("%w: %w", ErrAcquisitionFailed, err)
		c.log.Error("session start failed", "session_id", c.id, "err", c.lastErr)
		return c.lastErr
	}

	c.cancel = cancelSession
	c.startedAt = time.Now().UTC()
	c.elapsedSec.Store(0)
	c.state = Listening
	c.lastErr = nil
	c.metrics.ActiveSessions.Add(ctx, 1)
	go c.tickElapsed(sessionCtx, c.startedAt)

	c.log.Info("session listening", "session_id", c.id)
	return nil
}

// Stop ends the active session, releases the audio source, finalizes the
// analysis pipeline, and fans the result out to the narrator, exporter, and
// archive. Export and archive failures are logged, not fatal; the controller
// always returns to idle.
func (c *Controller) Stop(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Listening {
		return Result{}, ErrNotActive
	}

	if err := c.source.Release(); err != nil {
		c.log.Warn("audio source release error", "session_id", c.id, "err", err)
	}
	c.cancel()
	c.cancel = nil

	res := Result{
		SessionID:     c.id,
		StartedAt:     c.startedAt,
		EndedAt:       time.Now().UTC(),
		Frames:        c.volume.Count(),
		DroppedFrames: c.worker.TakeDropped(),
		Stats:         c.volume.Finalize(),
		Spectrum:      c.sampler.Finalize(),
		Detections:    c.detections.Current(),
		Totals:        c.detections.Totals(),
	}

	// Anything the classifier is still chewing on belongs to a dead epoch.
	c.epoch++
	c.resetPipeline()
	c.state = Idle
	c.id = ""
	c.startedAt = time.Time{}
	c.metrics.ActiveSessions.Add(ctx, -1)

	if c.narrator != nil {
		res.Summary = c.narrator.Narrate(res)
	}
	if c.exporter != nil {
		path, err := c.exporter.Export(ctx, res)
		if err != nil {
			c.log.Warn("session export failed", "session_id", res.SessionID, "err", err)
		} else {
			c.log.Info("session exported", "session_id", res.SessionID, "path", path)
		}
	}
	if c.archiver != nil {
		if err := c.archiver.Save(ctx, res); err != nil {
			c.log.Warn("session archive failed", "session_id", res.SessionID, "err", err)
		}
	}

	c.log.Info("session stopped",
		"session_id", res.SessionID,
		"duration", res.EndedAt.Sub(res.StartedAt),
		"frames", res.Frames,
		"dropped_frames", res.DroppedFrames,
	)
	return res, nil
}

// Acknowledge clears the error state back to idle. No-op in other states.
func (c *Controller) Acknowledge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Errored {
		c.state = Idle
		c.lastErr = nil
	}
}

// Status returns a snapshot of the controller for the status endpoint.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:         c.state,
		SessionID:     c.id,
		StartedAt:     c.startedAt,
		LastRMS:       c.volume.Last(),
		Frames:        c.volume.Count(),
		Buffered:      c.acc.Buffered(),
		Snapshots:     c.sampler.Captured(),
		DroppedFrames: c.worker.Dropped(),
		Detections:    c.detections.Current(),
	}
	if c.state == Listening {
		st.ElapsedSeconds = c.elapsedSec.Load()
	}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	return st
}

// Close shuts the classify worker down. The controller must be idle.
func (c *Controller) Close() {
	c.worker.Close()
}

// ingest is the AudioSource deliver callback. It runs on the source's
// goroutine and pushes completed frames through the pipeline.
func (c *Controller) ingest(burst []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Listening {
		return
	}

	c.acc.Append(burst)
	for _, frame := range c.acc.DrainReadyFrames() {
		c.processFrame(frame)
	}
}

// processFrame runs one completed frame through volume, spectrum, and
// classification. Caller holds c.mu.
func (c *Controller) processFrame(frame []float32) {
	c.metrics.AnalysisFrames.Add(context.Background(), 1)
	rms := c.volume.Observe(frame)

	snap := c.spectral.Snapshot(frame)
	before := c.sampler.Captured()
	c.sampler.MaybeCapture(snap)
	if c.sampler.Captured() > before {
		c.metrics.SpectrumSnapshots.Add(context.Background(), 1)
	}

	if c.worker.Submit(classifyJob{epoch: c.epoch, frame: frame, at: time.Now()}) {
		c.log.Debug("frame queued for classification", "session_id", c.id, "rms", rms)
	}
}

// onDetections receives filtered detections from the classify worker.
func (c *Controller) onDetections(epoch uint64, dets []classify.Detection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch || c.state != Listening {
		c.metrics.StaleResults.Add(context.Background(), 1)
		return
	}
	if len(dets) == 0 {
		return
	}
	c.detections.Ingest(dets)
	for _, d := range dets {
		c.metrics.RecordDetections(context.Background(), d.Label, 1)
	}
}

// tickElapsed updates the elapsed counter once per second while listening.
func (c *Controller) tickElapsed(ctx context.Context, startedAt time.Time) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.elapsedSec.Store(int64(now.Sub(startedAt).Seconds()))
		}
	}
}

// resetPipeline clears all per-session analysis state. Caller holds c.mu.
func (c *Controller) resetPipeline() {
	c.acc.Reset()
	c.volume.Reset()
	c.sampler.Reset()
	c.detections.Reset()
}
