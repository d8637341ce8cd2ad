package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auricle-audio/auricle/pkg/provider/llm"
	llmmock "github.com/auricle-audio/auricle/pkg/provider/llm/mock"
)

var errBoom = errors.New("boom")

func failN(n int) func() error {
	calls := 0
	return func() error {
		calls++
		if calls <= n {
			return errBoom
		}
		return nil
	}
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 3})
	fn := failN(2)
	b.Do(fn)
	b.Do(fn)
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed after 2 of 3 failures", b.State())
	}
	// A success resets the streak.
	if err := b.Do(fn); err != nil {
		t.Fatalf("Do: %v", err)
	}
	b.Do(func() error { return errBoom })
	b.Do(func() error { return errBoom })
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed (streak was reset)", b.State())
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 3, Cooldown: time.Hour})
	for i := 0; i < 3; i++ {
		b.Do(func() error { return errBoom })
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Do(func() error { t.Error("fn called while open"); return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("Do while open = %v, want ErrOpen", err)
	}
}

func TestBreaker_HalfOpenProbeClosesAfterSuccesses(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: time.Nanosecond, Probes: 2})
	b.Do(func() error { return errBoom })
	time.Sleep(time.Millisecond)

	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Errorf("state = %v, want half-open after one of two probes", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed after probe quota", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: time.Nanosecond})
	b.Do(func() error { return errBoom })
	time.Sleep(time.Millisecond)

	b.Do(func() error { return errBoom })
	// Freshly re-opened: cooldown restarts, so the state is open again.
	if got := b.State(); got == BreakerClosed {
		t.Errorf("state = %v after failed probe, want open or half-open", got)
	}
	if err := b.Do(func() error { return nil }); err == nil {
		// Cooldown of 1ns may already have elapsed; either outcome is legal,
		// but a success here must not leave the breaker closed yet.
		if b.State() == BreakerClosed {
			t.Error("breaker closed after a single probe with default quota")
		}
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: time.Hour})
	b.Do(func() error { return errBoom })
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	b.Reset()
	if b.State() != BreakerClosed {
		t.Errorf("state = %v after reset, want closed", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("Do after reset: %v", err)
	}
}

func TestRetry_SucceedsSecondAttempt(t *testing.T) {
	fn := failN(1)
	if err := Retry(context.Background(), 2, 0, fn); err != nil {
		t.Errorf("Retry: %v", err)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, 0, func() error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("Retry = %v, want errBoom", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, 3, time.Hour, func() error {
		calls++
		return errBoom
	})
	if err == nil {
		t.Error("expected error from cancelled retry")
	}
	if calls > 1 {
		t.Errorf("calls = %d, want at most 1", calls)
	}
}

func TestGuardLLM_ForwardsAndTrips(t *testing.T) {
	inner := &llmmock.Provider{CompleteErr: errBoom}
	guarded := GuardLLM(inner, NewBreaker(BreakerConfig{Name: "llm", Threshold: 2, Cooldown: time.Hour}))

	ctx := context.Background()
	req := llm.CompletionRequest{Prompt: "x"}
	guarded.Complete(ctx, req)
	guarded.Complete(ctx, req)

	if _, err := guarded.Complete(ctx, req); !errors.Is(err, ErrOpen) {
		t.Errorf("third call = %v, want ErrOpen", err)
	}
	if len(inner.CompleteCalls) != 2 {
		t.Errorf("inner calls = %d, want 2 (breaker open)", len(inner.CompleteCalls))
	}
}

func TestGuardLLM_PreservesCapabilities(t *testing.T) {
	full := GuardLLM(&llmmock.Provider{ModelList: []string{"qwen3:4b"}}, nil)
	if _, ok := full.(llm.SchemaCompleter); !ok {
		t.Error("schema capability lost through guard")
	}
	ml, ok := full.(llm.ModelLister)
	if !ok {
		t.Fatal("model-listing capability lost through guard")
	}
	models, err := ml.Models(context.Background())
	if err != nil || len(models) != 1 {
		t.Errorf("Models = %v, %v", models, err)
	}

	plain := GuardLLM(&bareLLM{}, nil)
	if _, ok := plain.(llm.SchemaCompleter); ok {
		t.Error("guard invented schema capability for a bare provider")
	}
	if _, ok := plain.(llm.ModelLister); ok {
		t.Error("guard invented model listing for a bare provider")
	}
}

type bareLLM struct{}

func (b *bareLLM) Name() string { return "bare" }

func (b *bareLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "ok"}, nil
}
