package servicebus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"

	cbus "github.com/next-trace/scg-dispatch/contract/bus"
	berr "github.com/next-trace/scg-dispatch/contract/errors"
	"github.com/next-trace/scg-dispatch/dispatch"
)

// Bus is a mediator facade over the dispatch core. It supports synchronous
// command/query handling and domain event publication, routes
// concurrency-limited handlers through the core's limiter machinery, and
// integrates with async adapters for command enqueueing and integration
// events.
//
// Bus is concurrency-safe and contains no global state.
type Bus struct {
	mu sync.RWMutex

	core *dispatch.Dispatcher

	cmd map[reflect.Type]func(ctx context.Context, cmd any) error
	qry map[reflect.Type]func(ctx context.Context, q any) (any, error)
	dom map[reflect.Type][]domainEntry

	// global command middleware executed in registration order
	cmdMW []CommandMiddleware

	enq    cbus.JobEnqueuer
	pub    cbus.EventPublisher
	logger *slog.Logger
}

type domainEntry struct {
	call func(ctx context.Context, e any) error
	raw  any // original handler, for QueueableListener detection
}

// BusOption configures a Bus instance.
type BusOption func(*Bus)

// CommandMiddleware wraps command handler execution. Middlewares are executed in registration order.
type CommandMiddleware func(next func(ctx context.Context, cmd any) error) func(ctx context.Context, cmd any) error

// New constructs a new Bus with optional enqueuer and publisher.
func New(jobs cbus.JobEnqueuer, pub cbus.EventPublisher, logger *slog.Logger) *Bus {
	return &Bus{
		core:   dispatch.New(dispatch.WithLogger(logger)),
		cmd:    make(map[reflect.Type]func(context.Context, any) error),
		qry:    make(map[reflect.Type]func(context.Context, any) (any, error)),
		dom:    make(map[reflect.Type][]domainEntry),
		enq:    jobs,
		pub:    pub,
		logger: logger,
	}
}

// NewWithDispatcher constructs a Bus over an externally owned dispatch core.
// Use this when the same core (and its locator) also serves fan-out dispatch.
func NewWithDispatcher(d *dispatch.Dispatcher, jobs cbus.JobEnqueuer, pub cbus.EventPublisher, logger *slog.Logger) *Bus {
	b := New(jobs, pub, logger)
	if d != nil {
		b.core = d
	}

	return b
}

// Core exposes the underlying dispatch core for limiter-gated and fan-out paths.
func (b *Bus) Core() *dispatch.Dispatcher { return b.core }

// WithCommandMiddleware registers global command middleware via an option.
func WithCommandMiddleware(mw ...CommandMiddleware) BusOption {
	return func(b *Bus) { b.cmdMW = append(b.cmdMW, mw...) }
}

// BindCommandOf registers a handler for a specific command type.
// Provide a zero value of the command type via sample.
func (b *Bus) BindCommandOf(sample any, handler func(ctx context.Context, cmd any) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := reflect.TypeOf(sample)
	if _, exists := b.cmd[t]; exists {
		return fmt.Errorf("bind command %s: %w", t.String(), berr.ErrHandlerExists)
	}

	b.cmd[t] = func(ctx context.Context, v any) error { return handler(ctx, v) }

	return nil
}

// BindQueryOf registers a handler for a specific query type returning any result.
func (b *Bus) BindQueryOf(sample any, handler func(ctx context.Context, q any) (any, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := reflect.TypeOf(sample)
	if _, exists := b.qry[t]; exists {
		return fmt.Errorf("bind query %s: %w", t.String(), berr.ErrHandlerExists)
	}

	b.qry[t] = func(ctx context.Context, v any) (any, error) { return handler(ctx, v) }

	return nil
}

// BindDomainEventOf registers a domain event handler for a specific event type.
// For queueable listeners, prefer BindDomainEventRaw with a raw handler that implements QueueableListener.
func (b *Bus) BindDomainEventOf(sample any, handler func(ctx context.Context, e any) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := reflect.TypeOf(sample)
	b.dom[t] = append(b.dom[t], domainEntry{call: handler, raw: handler})

	return nil
}

// BindDomainEventRaw registers a domain event handler providing a raw handler object and a callable.
// The raw object is used for QueueableListener detection and name resolution when enqueuing.
func (b *Bus) BindDomainEventRaw(sample, raw any, call func(ctx context.Context, e any) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := reflect.TypeOf(sample)
	b.dom[t] = append(b.dom[t], domainEntry{call: call, raw: raw})

	return nil
}

// BindCommand registers a handler for command type C. Duplicate bindings are rejected.
func BindCommand[C cbus.Command](b *Bus, h cbus.CommandHandler[C]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero C

	t := reflect.TypeOf(zero)

	if _, exists := b.cmd[t]; exists {
		return fmt.Errorf("bind command %s: %w", t.String(), berr.ErrHandlerExists)
	}

	b.cmd[t] = func(ctx context.Context, v any) error {
		c, ok := v.(C)
		if !ok {
			return fmt.Errorf("dispatch %s: %w", reflect.TypeOf(v).String(), berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, c)
	}

	return nil
}

// BindConcurrent subscribes a concurrency-limited handler for command type C
// producing R on the dispatch core. Unlike BindCommand, the binding overwrites
// any previous subscription for the command type and every execution is gated
// by the handler's declared budget.
func BindConcurrent[C cbus.Command, R any](b *Bus, h cbus.ConcurrentHandler[C, R]) error {
	return dispatch.Subscribe(b.core, h)
}

// ExecuteConcurrent dispatches a command to its concurrency-limited handler
// and returns the typed result.
func ExecuteConcurrent[C cbus.Command, R any](ctx context.Context, b *Bus, cmd C) (R, error) {
	return dispatch.Execute[C, R](ctx, b.core, cmd)
}

// BindQuery registers a handler for query type Q producing R. Duplicate bindings are rejected.
func BindQuery[Q cbus.Query, R any](b *Bus, h cbus.QueryHandler[Q, R]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero Q
	t := reflect.TypeOf(zero)

	if _, exists := b.qry[t]; exists {
		return fmt.Errorf("bind query %s: %w", t.String(), berr.ErrHandlerExists)
	}

	b.qry[t] = func(ctx context.Context, v any) (any, error) {
		q, ok := v.(Q)
		if !ok {
			return nil, fmt.Errorf("ask %s: %w", reflect.TypeOf(v).String(), berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, q)
	}

	return nil
}

// BindDomainEvent registers a domain event handler. Multiple handlers are allowed.
func BindDomainEvent[E cbus.DomainEvent](b *Bus, h cbus.DomainEventHandler[E]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero E
	t := reflect.TypeOf(zero)
	entry := domainEntry{
		call: func(ctx context.Context, v any) error {
			e, ok := v.(E)
			if !ok {
				return fmt.Errorf("publish domain %s: %w", reflect.TypeOf(v).String(), berr.ErrHandlerTypeMismatch)
			}
			return h.Handle(ctx, e)
		},
		raw: h,
	}
	b.dom[t] = append(b.dom[t], entry)

	return nil
}

// Dispatch dispatches a command. If the command implements Queueable and a JobEnqueuer is configured,
// it will be enqueued with minimal QueueOptions; otherwise, it executes synchronously via DispatchSync.
func (b *Bus) Dispatch(ctx context.Context, cmd cbus.Command) error {
	if q, ok := cmd.(cbus.Queueable); ok && b.enq != nil {
		qo := cbus.QueueOptions{Queue: q.QueueName(), DelaySeconds: int(q.Delay().Seconds())}
		return b.enq.EnqueueCommand(ctx, cmd, qo)
	}

	return b.DispatchSync(ctx, cmd)
}

// DispatchSync executes the command handler synchronously (with middleware).
func (b *Bus) DispatchSync(ctx context.Context, cmd cbus.Command) error {
	return b.dispatchWithMiddleware(ctx, cmd)
}

// DispatchNow is a deprecation-friendly alias for DispatchSync.
func (b *Bus) DispatchNow(ctx context.Context, cmd cbus.Command) error {
	return b.DispatchSync(ctx, cmd)
}

// DispatchDetached schedules DispatchSync on a background goroutine. The
// caller observes nothing: failures are caught at the boundary and logged.
func (b *Bus) DispatchDetached(ctx context.Context, cmd cbus.Command) {
	b.core.Detach(fmt.Sprintf("%T", cmd), func() error {
		return b.DispatchSync(ctx, cmd)
	})
}

// DispatchWithMiddleware executes a command with additional per-call middleware.
func (b *Bus) DispatchWithMiddleware(ctx context.Context, cmd cbus.Command, mws ...CommandMiddleware) error {
	return b.dispatchWithMiddleware(ctx, cmd, mws...)
}

func (b *Bus) dispatchWithMiddleware(ctx context.Context, cmd cbus.Command, mws ...CommandMiddleware) error {
	if cmd == nil {
		return fmt.Errorf("dispatch: nil command: %w", berr.ErrNilArgument)
	}

	b.mu.RLock()
	f, ok := b.cmd[reflect.TypeOf(cmd)]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("dispatch %s: %w", reflect.TypeOf(cmd).String(), berr.ErrHandlerNotFound)
	}

	// Combine global and per-call middleware
	chain := make([]CommandMiddleware, 0, len(b.cmdMW)+len(mws))
	chain = append(chain, b.cmdMW...)
	chain = append(chain, mws...)

	// Build chain so the first registered middleware runs first
	final := f
	for i := len(chain) - 1; i >= 0; i-- {
		final = chain[i](final)
	}

	return final(ctx, cmd)
}

// Ask executes a query handler synchronously and returns an untyped result.
// When no binding exists, a single handler located via the core's resolver is
// invoked structurally; more than one located handler is an ambiguity error.
func (b *Bus) Ask(ctx context.Context, q any) (any, error) {
	if q == nil {
		return nil, fmt.Errorf("ask: nil query: %w", berr.ErrNilArgument)
	}

	t := reflect.TypeOf(q)

	b.mu.RLock()
	f, ok := b.qry[t]
	b.mu.RUnlock()

	if ok {
		return f(ctx, q)
	}

	located := b.core.Resolve(t)
	switch {
	case len(located) == 0:
		return nil, fmt.Errorf("ask %s: %w", t.String(), berr.ErrHandlerNotFound)
	case len(located) > 1:
		return nil, fmt.Errorf("ask %s: %d handlers located: %w", t.String(), len(located), berr.ErrAmbiguousHandler)
	}

	return b.core.InvokeStructural(ctx, t, q, located[0])
}

// Ask executes a query handler synchronously and returns the typed result.
func Ask[Q cbus.Query, R any](ctx context.Context, b *Bus, q Q) (R, error) {
	var zero R

	res, err := b.Ask(ctx, q)
	if err != nil {
		return zero, err
	}

	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("ask %s: %w", reflect.TypeOf(q).String(), berr.ErrHandlerTypeMismatch)
	}

	return r, nil
}

// PublishDomain publishes a domain event to all handlers concurrently.
// Handlers that implement QueueableListener are enqueued if a JobEnqueuer is
// configured; the rest are invoked in parallel and the call returns only
// after every handler has finished. The first encountered failure is
// returned; siblings are never cancelled on failure.
func (b *Bus) PublishDomain(ctx context.Context, e cbus.DomainEvent) error {
	b.mu.RLock()
	entries := append([]domainEntry(nil), b.dom[reflect.TypeOf(e)]...)
	b.mu.RUnlock()

	if len(entries) == 0 {
		return nil
	}

	var g errgroup.Group

	for _, ent := range entries {
		g.Go(func() error { return b.handleDomainEntry(ctx, e, ent) })
	}

	return g.Wait()
}

// PublishDomainDetached schedules PublishDomain on a background goroutine.
// Handler failures are caught and logged, never surfaced to the caller.
func (b *Bus) PublishDomainDetached(ctx context.Context, e cbus.DomainEvent) {
	b.core.Detach(fmt.Sprintf("%T", e), func() error {
		return b.PublishDomain(ctx, e)
	})
}

func (b *Bus) handleDomainEntry(
	ctx context.Context,
	event cbus.DomainEvent,
	entry domainEntry,
) error {
	// If no enqueuer, invoke synchronously.
	if b.enq == nil {
		return entry.call(ctx, event)
	}

	// Enqueue if handler is a QueueableListener and enqueuer configured.
	if ql, ok := entry.raw.(cbus.QueueableListener); ok {
		qo := cbus.QueueOptions{Queue: ql.QueueName(), DelaySeconds: int(ql.Delay().Seconds())}
		name := reflect.TypeOf(entry.raw).String()

		if err := b.enq.EnqueueListener(ctx, event, name, qo); err != nil {
			return err
		}

		return nil
	}

	// Fallback to sync invocation.
	return entry.call(ctx, event)
}

// PublishIntegration publishes an integration event via the configured EventPublisher.
func (b *Bus) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	if b.pub == nil {
		return fmt.Errorf("publish integration %T: %w", e, berr.ErrAsyncNotConfigured)
	}

	return b.pub.PublishIntegration(ctx, e, opts)
}

// Chain executes commands in order and stops on the first error.
func (b *Bus) Chain(ctx context.Context, cmds ...cbus.Command) error {
	for _, c := range cmds {
		if err := b.dispatchWithMiddleware(ctx, c); err != nil {
			return err
		}
	}

	return nil
}

// BatchOptions controls Batch execution behavior.
// OnProgress is called after each command completes (success or failure) with done and total.
// OnError is called when a command returns an error with its index, the command value, and the error.
type BatchOptions struct {
	OnProgress func(done, total int)
	OnError    func(index int, cmd cbus.Command, err error)
}

// BatchOpt configures BatchOptions.
type BatchOpt func(*BatchOptions)

// WithBatchProgress sets the progress callback.
func WithBatchProgress(fn func(done, total int)) BatchOpt {
	return func(o *BatchOptions) { o.OnProgress = fn }
}

// WithBatchOnError sets the error callback.
func WithBatchOnError(fn func(index int, cmd cbus.Command, err error)) BatchOpt {
	return func(o *BatchOptions) { o.OnError = fn }
}

// Batch executes the provided commands sequentially.
// It respects context cancellation, reports progress, and aggregates errors.
func (b *Bus) Batch(ctx context.Context, cmds []cbus.Command, opts ...BatchOpt) error {
	var o BatchOptions
	for _, f := range opts {
		f(&o)
	}

	total := len(cmds)

	var errs []error

	for i, c := range cmds {
		if err := ctx.Err(); err != nil { // canceled or deadline exceeded
			return errors.Join(append(errs, err)...)
		}

		err := b.dispatchWithMiddleware(ctx, c)
		if err != nil {
			if o.OnError != nil {
				o.OnError(i, c, err)
			}

			errs = append(errs, err)
		}

		if o.OnProgress != nil {
			o.OnProgress(i+1, total)
		}
	}

	return errors.Join(errs...)
}

// Close waits for detached dispatches to settle.
func (b *Bus) Close() error {
	return b.core.Close()
}
