package dispatch

import (
	"context"
	"log/slog"
	"reflect"

	cbus "github.com/next-trace/scg-dispatch/contract/bus"
)

// detach runs fn on a background goroutine. Failures, including panics, are
// caught at this boundary and sent to the logger; they never reach the caller
// and never terminate the process. Close waits for detached work to settle.
func (d *Dispatcher) detach(name string, fn func() error) {
	d.bg.Add(1)

	go func() {
		defer d.bg.Done()

		defer func() {
			if r := recover(); r != nil {
				d.log().Error("detached dispatch panicked",
					slog.String("message", name),
					slog.Any("panic", r),
				)
			}
		}()

		if err := fn(); err != nil {
			d.log().Error("detached dispatch failed",
				slog.String("message", name),
				slog.Any("error", err),
			)
		}
	}()
}

// PublishDetached schedules Publish on a background goroutine. A handler
// failure is caught and logged instead of surfacing to the caller.
func PublishDetached[E cbus.DomainEvent](ctx context.Context, d *Dispatcher, e E) {
	name := qualifiedName(reflect.TypeOf(e))
	d.detach(name, func() error {
		return Publish(ctx, d, e)
	})
}

// Detach runs an arbitrary dispatch/publish call in the background with the
// same catch-and-log contract. The label identifies the call in logs.
func (d *Dispatcher) Detach(label string, fn func() error) {
	if fn == nil {
		d.log().Error("detached dispatch skipped",
			slog.String("message", label),
			slog.String("reason", "nil func"),
		)

		return
	}

	d.detach(label, fn)
}
