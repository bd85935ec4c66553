package middleware

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

func testRequest() transition.Request {
	return transition.Request{
		JobID:  id.NewJobID(),
		Target: job.StatusEnRoute,
		Source: transition.SourceManual,
	}
}

func okHandler() Handler {
	return func(context.Context) (*transition.Result, error) {
		return &transition.Result{Job: &job.Job{Status: job.StatusEnRoute}}, nil
	}
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mk := func(name string) Middleware {
		return func(ctx context.Context, _ transition.Request, next Handler) (*transition.Result, error) {
			order = append(order, name+":before")
			res, err := next(ctx)
			order = append(order, name+":after")
			return res, err
		}
	}

	chained := Chain(mk("outer"), mk("inner"))
	if _, err := chained(context.Background(), testRequest(), okHandler()); err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := []string{"outer:before", "inner:before", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestChainEmpty(t *testing.T) {
	t.Parallel()

	res, err := Chain()(context.Background(), testRequest(), okHandler())
	if err != nil {
		t.Fatalf("empty chain: %v", err)
	}
	if res == nil || res.Job.Status != job.StatusEnRoute {
		t.Fatalf("empty chain lost result: %+v", res)
	}
}

func TestRecoverConvertsPanic(t *testing.T) {
	t.Parallel()

	mw := Recover(slog.Default())
	panicking := func(context.Context) (*transition.Result, error) {
		panic("boom")
	}

	res, err := mw(context.Background(), testRequest(), panicking)
	if err == nil {
		t.Fatal("Recover returned nil error after panic")
	}
	if res != nil {
		t.Fatalf("Recover returned result %+v after panic", res)
	}
}

func TestRecoverPassesThrough(t *testing.T) {
	t.Parallel()

	mw := Recover(slog.Default())
	wantErr := errors.New("plain failure")
	failing := func(context.Context) (*transition.Result, error) {
		return nil, wantErr
	}

	if _, err := mw(context.Background(), testRequest(), failing); !errors.Is(err, wantErr) {
		t.Fatalf("Recover rewrote error: %v", err)
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	t.Parallel()

	mw := Timeout(50 * time.Millisecond)
	var sawDeadline bool
	handler := func(ctx context.Context) (*transition.Result, error) {
		_, sawDeadline = ctx.Deadline()
		return &transition.Result{}, nil
	}

	if _, err := mw(context.Background(), testRequest(), handler); err != nil {
		t.Fatalf("Timeout: %v", err)
	}
	if !sawDeadline {
		t.Fatal("handler context has no deadline")
	}
}

func TestTimeoutZeroIsPassThrough(t *testing.T) {
	t.Parallel()

	mw := Timeout(0)
	handler := func(ctx context.Context) (*transition.Result, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Fatal("zero timeout set a deadline")
		}
		return &transition.Result{}, nil
	}

	if _, err := mw(context.Background(), testRequest(), handler); err != nil {
		t.Fatalf("Timeout: %v", err)
	}
}

func TestLoggingPreservesOutcome(t *testing.T) {
	t.Parallel()

	mw := Logging(slog.Default())

	res, err := mw(context.Background(), testRequest(), okHandler())
	if err != nil || res == nil {
		t.Fatalf("Logging altered success: res=%v err=%v", res, err)
	}

	wantErr := errors.New("denied")
	_, err = mw(context.Background(), testRequest(), func(context.Context) (*transition.Result, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Logging altered error: %v", err)
	}
}

func TestMetricsIsTransparent(t *testing.T) {
	t.Parallel()

	// With no MeterProvider configured the instruments are noops; the
	// middleware must still forward results and errors unchanged.
	mw := Metrics()

	res, err := mw(context.Background(), testRequest(), okHandler())
	if err != nil || res == nil {
		t.Fatalf("Metrics altered success: res=%v err=%v", res, err)
	}
}

func TestTracingIsTransparent(t *testing.T) {
	t.Parallel()

	mw := Tracing()

	res, err := mw(context.Background(), testRequest(), okHandler())
	if err != nil || res == nil {
		t.Fatalf("Tracing altered success: res=%v err=%v", res, err)
	}
}
