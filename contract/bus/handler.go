package bus

import "context"

// ConcurrencyLimited declares how many invocations of a handler instance may
// run simultaneously. Values <= 0 are treated as 1 by the dispatcher.
type ConcurrencyLimited interface {
	Concurrency() int
}

// CommandHandler handles commands of type C.
// Implementations must be safe for concurrent use by multiple goroutines.
type CommandHandler[C Command] interface {
	Handle(ctx context.Context, c C) error
}

// ConcurrentHandler handles commands of type C producing a result of type R,
// under the concurrency budget it declares. The dispatcher gates every
// invocation through a limiter sized to Concurrency().
type ConcurrentHandler[C Command, R any] interface {
	ConcurrencyLimited
	Handle(ctx context.Context, c C) (R, error)
}

// ResultHandler handles commands of type C producing a result of type R
// without declaring a concurrency budget. It backs the fan-out paths, where
// one command may reach many handlers.
type ResultHandler[C Command, R any] interface {
	Handle(ctx context.Context, c C) (R, error)
}

// QueryHandler handles queries of type Q and returns a result of type R.
// Implementations must be safe for concurrent use by multiple goroutines.
type QueryHandler[Q Query, R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}

// DomainEventHandler handles domain events of type E.
// Implementations may be invoked synchronously or enqueued based on QueueableListener.
type DomainEventHandler[E DomainEvent] interface {
	Handle(ctx context.Context, e E) error
}
