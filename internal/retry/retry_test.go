package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestPolicy_Delay(t *testing.T) {
	t.Parallel()

	p := Policy{BaseDelay: time.Second}
	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 4: 8 * time.Second} {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestDo_SucceedsAfterTwoFailures(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("failure %d", calls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Second || rec.delays[1] != 2*time.Second {
		t.Errorf("delays = %v, want [1s 2s]", rec.delays)
	}
}

func TestDo_ReturnsLastErrorAfterExhaustion(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	p := Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Sleep: rec.sleep}

	calls := 0
	var last error
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		last = fmt.Errorf("failure %d", calls)
		return last
	})
	if err != last {
		t.Errorf("err = %v, want last error %v", err, last)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(rec.delays) != 2 {
		t.Errorf("no sleep expected after the final attempt, got %v", rec.delays)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("bad request")
	rec := &recordingSleep{}
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	if err != sentinel {
		t.Errorf("err = %v, want unwrapped sentinel", err)
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Errorf("calls = %d, delays = %v", calls, rec.delays)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Hour,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return SleepContext(ctx, d)
		},
	}

	opErr := errors.New("unavailable")
	err := p.Do(ctx, func(context.Context) error { return opErr })
	if !errors.Is(err, context.Canceled) || !errors.Is(err, opErr) {
		t.Errorf("err = %v, want both the op error and context.Canceled", err)
	}
}

func TestDo_OnRetryHook(t *testing.T) {
	t.Parallel()

	var attempts []int
	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       (&recordingSleep{}).sleep,
		OnRetry:     func(attempt int, _ time.Duration, _ error) { attempts = append(attempts, attempt) },
	}
	_ = p.Do(context.Background(), func(context.Context) error { return errors.New("x") })
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestDo_ZeroPolicySingleAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	_ = Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("x")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
