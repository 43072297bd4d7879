package dispatch

import (
	"context"
	"fmt"
	"reflect"

	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

// Structural members the dynamic path requires on a handler object.
const (
	memberConcurrency = "Concurrency"
	memberHandle      = "Handle"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

type methodKey struct {
	handler reflect.Type
	command reflect.Type
}

// ExecuteDynamic drives a handler whose concrete type is known only
// structurally: no shared compiled contract is required at the call site.
// The handler must expose a Concurrency() int member and a Handle method
// matching (context.Context, command). Both are located by inspection; the
// resolved Handle method is memoized per (handler type, command type).
//
// The binding is keyed by the handler's own runtime type and created
// get-or-create: the first registration wins and later calls reuse the
// existing limiter even if a different budget is supplied.
func (d *Dispatcher) ExecuteDynamic(
	ctx context.Context,
	commandType reflect.Type,
	command any,
	handler any,
) (any, error) {
	if commandType == nil {
		return nil, fmt.Errorf("dynamic execute: nil command type: %w", berr.ErrNilArgument)
	}

	if isNil(handler) {
		return nil, fmt.Errorf("dynamic execute %s: nil handler: %w", commandType.String(), berr.ErrNilArgument)
	}

	ht := reflect.TypeOf(handler)

	budget, err := concurrencyBudget(handler, ht)
	if err != nil {
		return nil, err
	}

	b := d.dynamicBinding(ht, commandType, handler, budget)

	fn, err := d.resolveHandle(ht, commandType)
	if err != nil {
		return nil, err
	}

	if err := b.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer b.limiter.Release()

	return call(fn, handler, ctx, command, commandType)
}

// InvokeStructural resolves and calls a handler's Handle operation by
// structural inspection without limiter gating. It shares the resolved-method
// cache with ExecuteDynamic and backs single-handler paths (queries) where no
// concurrency budget applies.
func (d *Dispatcher) InvokeStructural(
	ctx context.Context,
	messageType reflect.Type,
	message any,
	handler any,
) (any, error) {
	if messageType == nil {
		return nil, fmt.Errorf("invoke: nil message type: %w", berr.ErrNilArgument)
	}

	if isNil(handler) {
		return nil, fmt.Errorf("invoke %s: nil handler: %w", messageType.String(), berr.ErrNilArgument)
	}

	fn, err := d.resolveHandle(reflect.TypeOf(handler), messageType)
	if err != nil {
		return nil, err
	}

	return call(fn, handler, ctx, message, messageType)
}

// concurrencyBudget reads the named budget member off the handler.
// A non-positive value is coerced to 1 by NewLimiter downstream.
func concurrencyBudget(handler any, ht reflect.Type) (int, error) {
	m := reflect.ValueOf(handler).MethodByName(memberConcurrency)
	if !m.IsValid() {
		return 0, fmt.Errorf(
			"dynamic execute: handler %s is missing member %s: %w",
			ht.String(), memberConcurrency, berr.ErrMissingMember,
		)
	}

	mt := m.Type()
	if mt.NumIn() != 0 || mt.NumOut() != 1 || mt.Out(0).Kind() != reflect.Int {
		return 0, fmt.Errorf(
			"dynamic execute: handler %s member %s must be func() int: %w",
			ht.String(), memberConcurrency, berr.ErrMissingMember,
		)
	}

	return int(m.Call(nil)[0].Int()), nil
}

// dynamicBinding is get-or-create keyed by the handler's own type.
// First registration wins; later differing budgets are silently ignored.
func (d *Dispatcher) dynamicBinding(ht, ct reflect.Type, handler any, budget int) *binding {
	d.mu.RLock()
	b := d.dynamic[ht]
	d.mu.RUnlock()

	if b != nil {
		return b
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if b = d.dynamic[ht]; b != nil {
		return b
	}

	b = &binding{handler: handler, command: ct, limiter: NewLimiter(budget)}
	d.dynamic[ht] = b

	return b
}

// resolveHandle locates the handler's Handle method matching
// (context.Context, command) and returning error or (result, error).
// Resolutions are cached per (handler type, command type); the cache is
// strictly additive and never invalidated.
func (d *Dispatcher) resolveHandle(ht, ct reflect.Type) (reflect.Value, error) {
	key := methodKey{handler: ht, command: ct}
	if cached, ok := d.methods.Load(key); ok {
		return cached.(reflect.Value), nil
	}

	m, ok := ht.MethodByName(memberHandle)
	if !ok {
		return reflect.Value{}, fmt.Errorf(
			"resolve %s: handler %s is missing operation %s: %w",
			ct.String(), ht.String(), memberHandle, berr.ErrMissingMember,
		)
	}

	// m.Func takes the receiver as its first argument.
	ft := m.Func.Type()
	sigOK := ft.NumIn() == 3 &&
		ft.In(1) == ctxType &&
		ct.AssignableTo(ft.In(2)) &&
		(ft.NumOut() == 1 || ft.NumOut() == 2) &&
		ft.Out(ft.NumOut()-1).Implements(errType)

	if !sigOK {
		return reflect.Value{}, fmt.Errorf(
			"resolve %s: handler %s operation %s does not accept (context, %s): %w",
			ct.String(), ht.String(), memberHandle, ct.String(), berr.ErrMissingMember,
		)
	}

	d.methods.Store(key, m.Func)

	return m.Func, nil
}

// call invokes a resolved Handle method and unpacks its results.
func call(fn reflect.Value, handler any, ctx context.Context, command any, ct reflect.Type) (any, error) {
	cv := reflect.ValueOf(command)
	if command == nil {
		cv = reflect.Zero(ct)
	}

	out := fn.Call([]reflect.Value{reflect.ValueOf(handler), reflect.ValueOf(ctx), cv})

	errVal := out[len(out)-1]

	var err error
	switch errVal.Kind() {
	case reflect.Interface, reflect.Ptr:
		if !errVal.IsNil() {
			err = errVal.Interface().(error)
		}
	default:
		// Concrete non-nilable error type: the value itself is the error.
		err = errVal.Interface().(error)
	}

	if len(out) == 1 {
		return nil, err
	}

	return out[0].Interface(), err
}
