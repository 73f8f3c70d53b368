package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error    { return errBoom }
func succeeding() error { return nil }

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 3})
	for i := 0; i < 2; i++ {
		if err := b.Execute(failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 3, Cooldown: time.Hour})
	for i := 0; i < 3; i++ {
		_ = b.Execute(failing)
	}
	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want open", got)
	}
	if err := b.Execute(succeeding); !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 3})
	_ = b.Execute(failing)
	_ = b.Execute(failing)
	_ = b.Execute(succeeding)
	_ = b.Execute(failing)
	_ = b.Execute(failing)
	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreaker_HalfOpenClosesAfterProbes(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: time.Millisecond, Probes: 2})
	_ = b.Execute(failing)
	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(5 * time.Millisecond)
	if got := b.State(); got != HalfOpen {
		t.Fatalf("state after cooldown = %v, want half-open", got)
	}

	for i := 0; i < 2; i++ {
		if err := b.Execute(succeeding); err != nil {
			t.Fatalf("probe %d failed: %v", i, err)
		}
	}
	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want closed after successful probes", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: time.Millisecond, Probes: 2})
	_ = b.Execute(failing)
	time.Sleep(5 * time.Millisecond)

	if err := b.Execute(failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v, want errBoom", err)
	}
	if got := b.State(); got != Open {
		t.Errorf("state = %v, want open after failed probe", got)
	}
	if err := b.Execute(succeeding); !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen right after re-open", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: time.Hour})
	_ = b.Execute(failing)
	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want open", got)
	}
	b.Reset()
	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want closed after reset", got)
	}
	if err := b.Execute(succeeding); err != nil {
		t.Errorf("err = %v after reset, want nil", err)
	}
}
