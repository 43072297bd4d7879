package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	berr "github.com/next-trace/scg-dispatch/contract/errors"
	"github.com/next-trace/scg-dispatch/dispatch"
)

type resizeCmd struct{ Path string }

// gatedHandler tracks in-flight invocations and optionally blocks on a gate
// so tests can hold slots open.
type gatedHandler struct {
	budget   int
	fail     bool
	gate     chan struct{} // when non-nil, Handle blocks until closed
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (h *gatedHandler) Concurrency() int { return h.budget }

func (h *gatedHandler) Handle(ctx context.Context, c resizeCmd) (string, error) {
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)

	for {
		seen := h.maxSeen.Load()
		if n <= seen || h.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	h.calls.Add(1)

	if h.gate != nil {
		select {
		case <-h.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if h.fail {
		return "", errors.New("resize failed")
	}

	return c.Path + ".thumb", nil
}

func Test_Subscribe_NilHandler(t *testing.T) {
	d := dispatch.New()

	err := dispatch.Subscribe[resizeCmd, string](d, nil)
	if !errors.Is(err, berr.ErrNilArgument) {
		t.Fatalf("want ErrNilArgument, got %v", err)
	}
}

func Test_Execute_UnregisteredCommand(t *testing.T) {
	d := dispatch.New()

	_, err := dispatch.Execute[resizeCmd, string](t.Context(), d, resizeCmd{Path: "a"})
	if !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("want ErrHandlerNotFound, got %v", err)
	}

	if !strings.Contains(err.Error(), "resizeCmd") {
		t.Fatalf("error should name the command type: %v", err)
	}
}

func Test_Execute_HandlerResultMismatch(t *testing.T) {
	d := dispatch.New()

	if err := dispatch.Subscribe[resizeCmd, string](d, &gatedHandler{budget: 1}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Same command type, wrong result pairing.
	_, err := dispatch.Execute[resizeCmd, int](t.Context(), d, resizeCmd{Path: "a"})
	if !errors.Is(err, berr.ErrHandlerTypeMismatch) {
		t.Fatalf("want ErrHandlerTypeMismatch, got %v", err)
	}
}

func Test_Execute_HappyPath(t *testing.T) {
	d := dispatch.New()

	if err := dispatch.Subscribe[resizeCmd, string](d, &gatedHandler{budget: 1}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	res, err := dispatch.Execute[resizeCmd, string](t.Context(), d, resizeCmd{Path: "a.png"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if res != "a.png.thumb" {
		t.Fatalf("res=%q", res)
	}
}

func Test_Execute_BudgetBoundsConcurrency(t *testing.T) {
	d := dispatch.New()

	h := &gatedHandler{budget: 2, gate: make(chan struct{})}
	if err := dispatch.Subscribe[resizeCmd, string](d, h); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_, _ = dispatch.Execute[resizeCmd, string](t.Context(), d, resizeCmd{Path: "x"})
		}()
	}

	// Exactly 2 must be in flight; the third caller blocks on the limiter.
	waitFor(t, func() bool { return h.inFlight.Load() == 2 })

	time.Sleep(20 * time.Millisecond)

	if got := h.inFlight.Load(); got != 2 {
		t.Fatalf("in flight=%d want 2", got)
	}

	close(h.gate)
	wg.Wait()

	if got := h.maxSeen.Load(); got != 2 {
		t.Fatalf("max concurrent=%d want 2", got)
	}

	// After all finish, the limiter's free count returns to the full budget.
	lim := d.LimiterOf(resizeCmd{})
	if lim == nil {
		t.Fatal("limiter not found")
	}

	if lim.Free() != 2 {
		t.Fatalf("free=%d want 2", lim.Free())
	}
}

func Test_Execute_FailingHandlerReleasesSlot(t *testing.T) {
	d := dispatch.New()

	h := &gatedHandler{budget: 1, fail: true}
	if err := dispatch.Subscribe[resizeCmd, string](d, h); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Two consecutive failing calls must not deadlock.
	for i := range 2 {
		_, err := dispatch.Execute[resizeCmd, string](t.Context(), d, resizeCmd{Path: "x"})
		if err == nil {
			t.Fatalf("call %d: expected handler failure", i)
		}
	}

	if lim := d.LimiterOf(resizeCmd{}); lim.Free() != 1 {
		t.Fatalf("free=%d want 1", lim.Free())
	}
}

func Test_Execute_CancelledWhileBlockedOnLimiter(t *testing.T) {
	d := dispatch.New()

	h := &gatedHandler{budget: 1, gate: make(chan struct{})}
	if err := dispatch.Subscribe[resizeCmd, string](d, h); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	started := make(chan struct{})
	firstDone := make(chan struct{})

	go func() {
		defer close(firstDone)

		close(started)
		_, _ = dispatch.Execute[resizeCmd, string](t.Context(), d, resizeCmd{Path: "held"})
	}()

	<-started
	waitFor(t, func() bool { return h.inFlight.Load() == 1 })

	ctx, cancel := context.WithCancel(t.Context())

	blocked := make(chan error, 1)
	go func() {
		_, err := dispatch.Execute[resizeCmd, string](ctx, d, resizeCmd{Path: "blocked"})
		blocked <- err
	}()

	cancel()

	select {
	case err := <-blocked:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked execute did not observe cancellation")
	}

	close(h.gate)
	<-firstDone

	// The aborted caller never acquired; only the first call's release applies.
	if lim := d.LimiterOf(resizeCmd{}); lim.Free() != 1 {
		t.Fatalf("free=%d want 1", lim.Free())
	}
}

func Test_Subscribe_OverwritesExistingBinding(t *testing.T) {
	d := dispatch.New()

	first := &gatedHandler{budget: 1}
	second := &gatedHandler{budget: 3}

	if err := dispatch.Subscribe[resizeCmd, string](d, first); err != nil {
		t.Fatalf("subscribe first: %v", err)
	}

	if err := dispatch.Subscribe[resizeCmd, string](d, second); err != nil {
		t.Fatalf("subscribe second: %v", err)
	}

	if _, err := dispatch.Execute[resizeCmd, string](t.Context(), d, resizeCmd{Path: "x"}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if first.calls.Load() != 0 || second.calls.Load() != 1 {
		t.Fatalf("calls: first=%d second=%d", first.calls.Load(), second.calls.Load())
	}

	// The overwrite installed a fresh limiter with the new budget.
	if lim := d.LimiterOf(resizeCmd{}); lim.Cap() != 3 {
		t.Fatalf("cap=%d want 3", lim.Cap())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(time.Millisecond)
	}

	t.Fatal("condition not reached in time")
}
