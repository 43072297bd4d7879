package bus

import "time"

// Queueable indicates that a command prefers to be enqueued for async processing.
// Implement on command types that should be queued by default.
type Queueable interface {
	QueueName() string
	Delay() time.Duration
}

// QueueableListener indicates that a domain event listener may be enqueued.
// If a JobEnqueuer is configured, such listeners will be enqueued instead of invoked synchronously.
type QueueableListener interface {
	QueueName() string
	Delay() time.Duration
}
