package dispatch_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	berr "github.com/next-trace/scg-dispatch/contract/errors"
	"github.com/next-trace/scg-dispatch/dispatch"
)

type exportCmd struct{ ID string }

// duckHandler satisfies the dynamic path's structural contract without
// implementing any shared interface.
type duckHandler struct {
	budget int
	fail   bool
	gate   chan struct{}
	calls  atomic.Int32
}

func (h *duckHandler) Concurrency() int { return h.budget }

func (h *duckHandler) Handle(ctx context.Context, c exportCmd) (string, error) {
	h.calls.Add(1)

	if h.gate != nil {
		select {
		case <-h.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if h.fail {
		return "", errors.New("export failed")
	}

	return "exported:" + c.ID, nil
}

// voidDuck exposes a Handle that returns only an error.
type voidDuck struct{ calls atomic.Int32 }

func (*voidDuck) Concurrency() int { return 1 }

func (h *voidDuck) Handle(ctx context.Context, c exportCmd) error {
	h.calls.Add(1)
	return nil
}

// noBudget is missing the Concurrency member.
type noBudget struct{}

func (noBudget) Handle(ctx context.Context, c exportCmd) error { return nil }

// noHandle is missing the Handle operation.
type noHandle struct{}

func (noHandle) Concurrency() int { return 1 }

// wrongShape has a Handle that does not accept (context, command).
type wrongShape struct{}

func (wrongShape) Concurrency() int         { return 1 }
func (wrongShape) Handle(c exportCmd) error { return nil }

func Test_ExecuteDynamic_NilArguments(t *testing.T) {
	d := dispatch.New()

	_, err := d.ExecuteDynamic(t.Context(), nil, exportCmd{}, &duckHandler{budget: 1})
	if !errors.Is(err, berr.ErrNilArgument) {
		t.Fatalf("nil type: want ErrNilArgument, got %v", err)
	}

	_, err = d.ExecuteDynamic(t.Context(), reflect.TypeOf(exportCmd{}), exportCmd{}, nil)
	if !errors.Is(err, berr.ErrNilArgument) {
		t.Fatalf("nil handler: want ErrNilArgument, got %v", err)
	}
}

func Test_ExecuteDynamic_HappyPath(t *testing.T) {
	d := dispatch.New()

	res, err := d.ExecuteDynamic(t.Context(), reflect.TypeOf(exportCmd{}), exportCmd{ID: "1"}, &duckHandler{budget: 2})
	if err != nil {
		t.Fatalf("execute dynamic: %v", err)
	}

	if res.(string) != "exported:1" {
		t.Fatalf("res=%v", res)
	}
}

func Test_ExecuteDynamic_VoidHandle(t *testing.T) {
	d := dispatch.New()

	h := &voidDuck{}

	res, err := d.ExecuteDynamic(t.Context(), reflect.TypeOf(exportCmd{}), exportCmd{ID: "1"}, h)
	if err != nil {
		t.Fatalf("execute dynamic: %v", err)
	}

	if res != nil {
		t.Fatalf("void handle should yield nil result, got %v", res)
	}

	if h.calls.Load() != 1 {
		t.Fatalf("calls=%d", h.calls.Load())
	}
}

func Test_ExecuteDynamic_MissingBudgetMember(t *testing.T) {
	d := dispatch.New()

	_, err := d.ExecuteDynamic(t.Context(), reflect.TypeOf(exportCmd{}), exportCmd{}, noBudget{})
	if !errors.Is(err, berr.ErrMissingMember) {
		t.Fatalf("want ErrMissingMember, got %v", err)
	}

	if !strings.Contains(err.Error(), "Concurrency") {
		t.Fatalf("error should name the budget member: %v", err)
	}
}

func Test_ExecuteDynamic_MissingHandleOperation(t *testing.T) {
	d := dispatch.New()

	_, err := d.ExecuteDynamic(t.Context(), reflect.TypeOf(exportCmd{}), exportCmd{}, noHandle{})
	if !errors.Is(err, berr.ErrMissingMember) {
		t.Fatalf("want ErrMissingMember, got %v", err)
	}

	if !strings.Contains(err.Error(), "Handle") {
		t.Fatalf("error should name the operation: %v", err)
	}
}

func Test_ExecuteDynamic_WrongHandleSignature(t *testing.T) {
	d := dispatch.New()

	_, err := d.ExecuteDynamic(t.Context(), reflect.TypeOf(exportCmd{}), exportCmd{}, wrongShape{})
	if !errors.Is(err, berr.ErrMissingMember) {
		t.Fatalf("want ErrMissingMember, got %v", err)
	}

	if !strings.Contains(err.Error(), "Handle") {
		t.Fatalf("error should name the operation: %v", err)
	}
}

// exportFailure is a concrete (non-pointer, non-interface) error type.
type exportFailure struct{ op string }

func (f exportFailure) Error() string { return f.op + " failed" }

// concreteErrDuck declares its Handle error result as a struct type rather
// than the error interface.
type concreteErrDuck struct{}

func (concreteErrDuck) Concurrency() int { return 1 }

func (concreteErrDuck) Handle(ctx context.Context, c exportCmd) (string, exportFailure) {
	return "", exportFailure{op: "export"}
}

func Test_ExecuteDynamic_ConcreteErrorResultType(t *testing.T) {
	d := dispatch.New()

	_, err := d.ExecuteDynamic(t.Context(), reflect.TypeOf(exportCmd{}), exportCmd{ID: "1"}, concreteErrDuck{})
	if err == nil {
		t.Fatal("expected the concrete error value to surface")
	}

	if !strings.Contains(err.Error(), "export failed") {
		t.Fatalf("err=%v", err)
	}
}

func Test_ExecuteDynamic_NonPositiveBudgetBehavesAsOne(t *testing.T) {
	d := dispatch.New()

	h := &duckHandler{budget: -3}

	for i := range 2 {
		if _, err := d.ExecuteDynamic(t.Context(), reflect.TypeOf(exportCmd{}), exportCmd{ID: "x"}, h); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	if h.calls.Load() != 2 {
		t.Fatalf("calls=%d", h.calls.Load())
	}
}

func Test_ExecuteDynamic_FailureReleasesSlot(t *testing.T) {
	d := dispatch.New()

	h := &duckHandler{budget: 1, fail: true}

	// Two consecutive failing calls must not deadlock on the shared limiter.
	for i := range 2 {
		_, err := d.ExecuteDynamic(t.Context(), reflect.TypeOf(exportCmd{}), exportCmd{ID: "x"}, h)
		if err == nil {
			t.Fatalf("call %d: expected handler failure", i)
		}
	}
}

func Test_ExecuteDynamic_FirstRegistrationWins(t *testing.T) {
	d := dispatch.New()

	ct := reflect.TypeOf(exportCmd{})

	// First instance of the type registers budget 1 and holds its slot.
	first := &duckHandler{budget: 1, gate: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.ExecuteDynamic(t.Context(), ct, exportCmd{ID: "held"}, first)
	}()

	waitFor(t, func() bool { return first.calls.Load() == 1 })

	// A second instance of the same type supplies a bigger budget, but the
	// existing limiter (capacity 1) is reused, so this call blocks.
	second := &duckHandler{budget: 5}

	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		_, _ = d.ExecuteDynamic(t.Context(), ct, exportCmd{ID: "waits"}, second)
	}()

	select {
	case <-blocked:
		t.Fatal("second call should block on the first registration's limiter")
	case <-time.After(50 * time.Millisecond):
	}

	close(first.gate)
	<-done
	<-blocked

	if second.calls.Load() != 1 {
		t.Fatalf("second calls=%d", second.calls.Load())
	}
}
