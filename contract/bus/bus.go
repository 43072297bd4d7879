package bus

import "context"

// Bus is the tech-agnostic view of the dispatch facade, deliberately
// non-generic so it can live behind an interface value. Consumers that want
// typed bindings or the limiter-gated and fan-out paths use the servicebus
// package's generic helpers and the dispatch core directly.
type Bus interface {
	// Untyped bindings keyed by the sample's runtime type.
	BindCommandOf(sample any, handler func(ctx context.Context, v any) error) error
	BindQueryOf(sample any, handler func(ctx context.Context, v any) (any, error)) error
	BindDomainEventOf(sample any, handler func(ctx context.Context, v any) error) error

	// Dispatch routes queueable commands to the enqueuer; DispatchSync always
	// runs the handler in process.
	Dispatch(ctx context.Context, cmd Command) error
	DispatchSync(ctx context.Context, cmd Command) error

	// Ask runs the single handler bound or located for the query's type.
	Ask(ctx context.Context, query any) (any, error)

	// Events: in-process fan-out and broker egress.
	PublishDomain(ctx context.Context, event DomainEvent) error
	PublishIntegration(ctx context.Context, event IntegrationEvent, opts PublishOptions) error

	// Close waits for detached dispatches to settle.
	Close() error
}
