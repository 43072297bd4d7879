package bus

import "context"

// JobEnqueuer hands queueable work to a broker instead of dispatching it in
// process: whole commands, or a single listener invocation for a domain
// event. The dispatch facade consults it whenever a command or listener
// declares itself Queueable.
type JobEnqueuer interface {
	EnqueueCommand(ctx context.Context, cmd Command, opts QueueOptions) error
	EnqueueListener(ctx context.Context, evt DomainEvent, handler string, opts QueueOptions) error
}
