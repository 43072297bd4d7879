package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	cbus "github.com/next-trace/scg-dispatch/contract/bus"
	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

// binding bundles a handler instance with its declared command type and the
// limiter sized to its concurrency budget. The handler is externally owned
// and shared; the limiter is privately owned by exactly one binding.
type binding struct {
	handler any
	command reflect.Type
	limiter *Limiter
}

// Dispatcher is the concurrency-controlled dispatch core. It keeps two
// registries with deliberately different write semantics: explicit Subscribe
// overwrites the binding for a command type, while the dynamic path's
// get-or-create keeps the first binding ever created for a handler type.
//
// Dispatcher is concurrency-safe and contains no global state.
type Dispatcher struct {
	mu sync.RWMutex

	// keyed by the command type's qualified name; written by Subscribe (overwrite).
	bindings map[string]*binding

	// keyed by the handler's own type; written by the dynamic path (first wins).
	dynamic map[reflect.Type]*binding

	// manually built fan-out registry, consulted when no Locator is set.
	listeners map[reflect.Type][]any

	// (handler type, command type) -> resolved method; strictly additive.
	methods sync.Map

	locator cbus.Locator
	logger  *slog.Logger

	bg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLocator installs an external handler locator driving the fan-out paths.
func WithLocator(l cbus.Locator) Option {
	return func(d *Dispatcher) { d.locator = l }
}

// WithLogger installs the logger used by detached (fire-and-forget) execution.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New constructs a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bindings:  make(map[string]*binding),
		dynamic:   make(map[reflect.Type]*binding),
		listeners: make(map[reflect.Type][]any),
	}
	for _, o := range opts {
		o(d)
	}

	return d
}

// Close waits for all detached executions to settle.
func (d *Dispatcher) Close() error {
	d.bg.Wait()
	return nil
}

func (d *Dispatcher) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}

	return slog.Default()
}

// Subscribe binds a handler for command type C producing R. The binding is
// keyed by the command type's qualified name and overwrites any existing
// binding for that key. The limiter is freshly created from the handler's
// declared concurrency budget, floored to 1.
func Subscribe[C cbus.Command, R any](d *Dispatcher, h cbus.ConcurrentHandler[C, R]) error {
	if isNil(h) {
		return fmt.Errorf("subscribe: nil handler: %w", berr.ErrNilArgument)
	}

	var zero C

	t := reflect.TypeOf(zero)
	key := qualifiedName(t)

	d.mu.Lock()
	d.bindings[key] = &binding{
		handler: h,
		command: t,
		limiter: NewLimiter(h.Concurrency()),
	}
	d.mu.Unlock()

	return nil
}

// Execute dispatches a command to the handler subscribed for its runtime
// type, gated by that handler's limiter. The limiter acquisition observes
// ctx; once acquired, release happens on every exit path, including handler
// failure and post-acquisition cancellation.
func Execute[C cbus.Command, R any](ctx context.Context, d *Dispatcher, cmd C) (R, error) {
	var zero R

	if isNil(cmd) {
		return zero, fmt.Errorf("execute: nil command: %w", berr.ErrNilArgument)
	}

	t := reflect.TypeOf(cmd)

	d.mu.RLock()
	b := d.bindings[qualifiedName(t)]
	d.mu.RUnlock()

	if b == nil {
		return zero, fmt.Errorf("execute %s: %w", t.String(), berr.ErrHandlerNotFound)
	}

	h, ok := b.handler.(cbus.ConcurrentHandler[C, R])
	if !ok {
		return zero, fmt.Errorf("execute %s: handler %T: %w", t.String(), b.handler, berr.ErrHandlerTypeMismatch)
	}

	if err := b.limiter.Acquire(ctx); err != nil {
		return zero, err
	}
	defer b.limiter.Release()

	return h.Handle(ctx, cmd)
}

// ExecuteDetached schedules Execute on a background goroutine. The caller is
// never blocked or faulted; terminal failures are caught and logged.
func ExecuteDetached[C cbus.Command, R any](ctx context.Context, d *Dispatcher, cmd C) {
	name := qualifiedName(reflect.TypeOf(cmd))
	d.detach(name, func() error {
		_, err := Execute[C, R](ctx, d, cmd)
		return err
	})
}

// LimiterOf returns the limiter bound for the command's runtime type, or nil
// when no binding exists. Useful for observing free capacity.
func (d *Dispatcher) LimiterOf(cmd any) *Limiter {
	if isNil(cmd) {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if b := d.bindings[qualifiedName(reflect.TypeOf(cmd))]; b != nil {
		return b.limiter
	}

	return nil
}

// qualifiedName returns the package-qualified name of a type, falling back to
// the reflect string form for unnamed types.
func qualifiedName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.PkgPath() != "" && t.Name() != "" {
		return t.PkgPath() + "." + t.Name()
	}

	return t.String()
}

// isNil reports whether v is nil, including typed nils carried in interfaces.
func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
