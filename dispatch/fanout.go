package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"

	cbus "github.com/next-trace/scg-dispatch/contract/bus"
	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

// Listen appends a handler to the manually built fan-out registry for the
// sample's runtime type. The registry is consulted only when no Locator is
// configured. Multiple handlers per type are allowed.
func (d *Dispatcher) Listen(sample, handler any) error {
	if isNil(sample) || isNil(handler) {
		return fmt.Errorf("listen: nil argument: %w", berr.ErrNilArgument)
	}

	t := reflect.TypeOf(sample)

	d.mu.Lock()
	d.listeners[t] = append(d.listeners[t], handler)
	d.mu.Unlock()

	return nil
}

// Resolve returns every handler instance for a message type, from the
// external locator when one is set, otherwise from the manual registry.
func (d *Dispatcher) Resolve(t reflect.Type) []any {
	if d.locator != nil {
		return d.locator.Handlers(t)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	return append([]any(nil), d.listeners[t]...)
}

// Race fans a result-bearing command out to every resolvable handler and
// returns whichever result settles first. The call does not return until
// every handler's goroutine has settled, so a slower handler's side effects
// are complete even though its result is discarded. If the winner failed,
// that failure propagates only after all handlers have settled.
func Race[C cbus.Command, R any](ctx context.Context, d *Dispatcher, cmd C) (R, error) {
	var zero R

	if isNil(cmd) {
		return zero, fmt.Errorf("race: nil command: %w", berr.ErrNilArgument)
	}

	t := reflect.TypeOf(cmd)

	instances := d.Resolve(t)
	if len(instances) == 0 {
		return zero, fmt.Errorf("race %s: %w", t.String(), berr.ErrHandlerNotFound)
	}

	handlers := make([]cbus.ResultHandler[C, R], 0, len(instances))

	for _, in := range instances {
		h, ok := in.(cbus.ResultHandler[C, R])
		if !ok {
			return zero, fmt.Errorf("race %s: handler %T: %w", t.String(), in, berr.ErrHandlerTypeMismatch)
		}

		handlers = append(handlers, h)
	}

	type outcome struct {
		res R
		err error
	}

	// Buffered so stragglers never block on send after the winner is taken.
	results := make(chan outcome, len(handlers))

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			r, err := h.Handle(ctx, cmd)
			results <- outcome{res: r, err: err}
		}()
	}

	first := <-results

	// Barrier: all siblings settle before the winning result is surfaced.
	wg.Wait()

	return first.res, first.err
}

// All fans a void command out to every resolvable handler and waits for all
// of them. The first encountered failure is returned after every handler has
// run; siblings are not cancelled on failure.
func All[C cbus.Command](ctx context.Context, d *Dispatcher, cmd C) error {
	if isNil(cmd) {
		return fmt.Errorf("dispatch all: nil command: %w", berr.ErrNilArgument)
	}

	t := reflect.TypeOf(cmd)

	instances := d.Resolve(t)
	if len(instances) == 0 {
		return fmt.Errorf("dispatch all %s: %w", t.String(), berr.ErrHandlerNotFound)
	}

	handlers := make([]cbus.CommandHandler[C], 0, len(instances))

	for _, in := range instances {
		h, ok := in.(cbus.CommandHandler[C])
		if !ok {
			return fmt.Errorf("dispatch all %s: handler %T: %w", t.String(), in, berr.ErrHandlerTypeMismatch)
		}

		handlers = append(handlers, h)
	}

	var g errgroup.Group
	for _, h := range handlers {
		g.Go(func() error { return h.Handle(ctx, cmd) })
	}

	return g.Wait()
}

// Publish fans a domain event out to every resolvable handler with the same
// all-must-finish semantics as All. Zero handlers is a no-op.
func Publish[E cbus.DomainEvent](ctx context.Context, d *Dispatcher, e E) error {
	if isNil(e) {
		return fmt.Errorf("publish: nil event: %w", berr.ErrNilArgument)
	}

	t := reflect.TypeOf(e)

	instances := d.Resolve(t)
	if len(instances) == 0 {
		return nil
	}

	handlers := make([]cbus.DomainEventHandler[E], 0, len(instances))

	for _, in := range instances {
		h, ok := in.(cbus.DomainEventHandler[E])
		if !ok {
			return fmt.Errorf("publish %s: handler %T: %w", t.String(), in, berr.ErrHandlerTypeMismatch)
		}

		handlers = append(handlers, h)
	}

	var g errgroup.Group
	for _, h := range handlers {
		g.Go(func() error { return h.Handle(ctx, e) })
	}

	return g.Wait()
}
