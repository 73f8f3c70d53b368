package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/earshot-io/earshot/internal/observe"
	"github.com/earshot-io/earshot/internal/resilience"
	"github.com/earshot-io/earshot/pkg/classify"
)

// classifyJob is one analysis frame queued for classification, tagged with
// the session epoch it belongs to.
type classifyJob struct {
	epoch uint64
	frame []float32
	at    time.Time
}

// classifyWorker serialises classifier calls on a single goroutine so a slow
// model can never stack requests. At most one job waits in the slot; while it
// is occupied further frames are dropped and counted. Results are delivered
// through onResult together with the job's epoch so the controller can
// discard completions that outlive their session.
type classifyWorker struct {
	provider classify.Provider
	breaker  *resilience.Breaker
	timeout  time.Duration
	metrics  *observe.Metrics
	log      *slog.Logger
	onResult func(epoch uint64, dets []classify.Detection)

	slot    chan classifyJob
	dropped atomic.Int64

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

func newClassifyWorker(provider classify.Provider, breaker *resilience.Breaker, timeout time.Duration, metrics *observe.Metrics, log *slog.Logger, onResult func(uint64, []classify.Detection)) *classifyWorker {
	return &classifyWorker{
		provider: provider,
		breaker:  breaker,
		timeout:  timeout,
		metrics:  metrics,
		log:      log,
		onResult: onResult,
		slot:     make(chan classifyJob, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *classifyWorker) Start() {
	w.started.Store(true)
	go w.run()
}

// Submit offers a frame without blocking. Returns false when the slot is
// occupied; the frame is dropped and counted.
func (w *classifyWorker) Submit(job classifyJob) bool {
	select {
	case w.slot <- job:
		return true
	default:
		w.dropped.Add(1)
		w.metrics.DroppedFrames.Add(context.Background(), 1)
		return false
	}
}

// Dropped returns how many frames were dropped since the last TakeDropped.
func (w *classifyWorker) Dropped() int64 {
	return w.dropped.Load()
}

// TakeDropped returns the drop count and resets it for the next session.
func (w *classifyWorker) TakeDropped() int64 {
	return w.dropped.Swap(0)
}

// Close stops the worker after any in-flight call finishes. Safe to call on
// a worker that was never started.
func (w *classifyWorker) Close() {
	close(w.stop)
	if w.started.Load() {
		<-w.done
	}
}

func (w *classifyWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case job := <-w.slot:
			w.process(job)
		}
	}
}

func (w *classifyWorker) process(job classifyJob) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	start := time.Now()
	var scores []classify.Score
	err := w.breaker.Execute(func() error {
		var inner error
		scores, inner = w.provider.Classify(ctx, job.frame)
		return inner
	})
	elapsed := time.Since(start)

	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, resilience.ErrOpen):
			reason = "shed"
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		}
		w.metrics.RecordClassify(ctx, elapsed, reason)
		w.metrics.RecordClassifierError(ctx, reason)
		w.log.Warn("classifier call failed", "reason", reason, "elapsed", elapsed, "err", err)
		return
	}

	w.metrics.RecordClassify(ctx, elapsed, "ok")
	w.onResult(job.epoch, classify.Filter(scores, job.at))
}
