// Package mock provides an in-memory classify.Provider for tests and for
// running the server without an inference backend.
package mock

import (
	"context"
	"sync"

	"github.com/earshot-io/earshot/pkg/classify"
)

// Compile-time assertion that Provider implements classify.Provider.
var _ classify.Provider = (*Provider)(nil)

// Provider is a configurable fake classifier. The zero value is ready with
// an empty vocabulary; use New for a sensible default label set. Safe for
// concurrent use.
type Provider struct {
	mu sync.Mutex

	// ReadyErr, when non-nil, is returned by Ready.
	ReadyErr error

	// ClassifyErr, when non-nil, is returned by every Classify call.
	ClassifyErr error

	// Responses are returned by successive Classify calls. When exhausted (or
	// empty), Classify returns a uniform zero score for every label.
	Responses [][]classify.Score

	// ClassifyDelay, when set via Block, holds Classify until released.
	block chan struct{}

	labels []string
	calls  int

	// Frames records the length of every frame passed to Classify.
	Frames []int
}

// New creates a mock with a small fixed vocabulary.
func New() *Provider {
	return &Provider{
		labels: []string{"Speech", "Music", "Dog", "Wind", "Machine"},
	}
}

// Ready returns ReadyErr.
func (p *Provider) Ready(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ReadyErr
}

// Labels returns the configured vocabulary.
func (p *Provider) Labels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.labels
}

// Block makes subsequent Classify calls wait until Release is called.
// Used to simulate a slow classifier.
func (p *Provider) Block() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = make(chan struct{})
}

// Release unblocks any Classify calls waiting in Block.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.block != nil {
		close(p.block)
		p.block = nil
	}
}

// Classify records the call and returns the next configured response.
func (p *Provider) Classify(ctx context.Context, frame []float32) ([]classify.Score, error) {
	p.mu.Lock()
	block := p.block
	p.Frames = append(p.Frames, len(frame))
	call := p.calls
	p.calls++
	err := p.ClassifyErr
	var resp []classify.Score
	if err == nil && call < len(p.Responses) {
		resp = p.Responses[call]
	}
	labels := p.labels
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if resp != nil {
		return resp, nil
	}

	out := make([]classify.Score, len(labels))
	for i, l := range labels {
		out[i] = classify.Score{Label: l, Score: 0}
	}
	return out, nil
}

// Calls returns how many Classify invocations have been made.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
