package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConstant(t *testing.T) {
	t.Parallel()

	s := NewConstant(2 * time.Second)
	for _, attempt := range []int{1, 2, 10} {
		if d := s.Delay(attempt); d != 2*time.Second {
			t.Fatalf("Delay(%d) = %v, want 2s", attempt, d)
		}
	}
}

func TestExponential(t *testing.T) {
	t.Parallel()

	s := NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		if d := s.Delay(tt.attempt); d != tt.want {
			t.Fatalf("Delay(%d) = %v, want %v", tt.attempt, d, tt.want)
		}
	}
}

func TestExponentialWithJitterBounds(t *testing.T) {
	t.Parallel()

	s := NewExponentialWithJitter(time.Second, 8*time.Second)

	for attempt := 1; attempt <= 6; attempt++ {
		ceiling := time.Duration(float64(time.Second) * float64(int(1)<<uint(attempt-1)))
		if ceiling > 8*time.Second {
			ceiling = 8 * time.Second
		}
		for range 50 {
			d := s.Delay(attempt)
			if d < 0 || d > ceiling {
				t.Fatalf("Delay(%d) = %v outside [0, %v]", attempt, d, ceiling)
			}
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), 5, NewConstant(time.Millisecond), nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("still broken")
	calls := 0
	err := Retry(context.Background(), 3, NewConstant(time.Millisecond), nil, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Retry = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	fatal := errors.New("semantic failure")
	calls := 0
	err := Retry(context.Background(), 5, NewConstant(time.Millisecond), func(err error) bool {
		return !errors.Is(err, fatal)
	}, func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Retry = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, NewConstant(time.Hour), nil, func() error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry = %v, want context.Canceled", err)
	}
}
