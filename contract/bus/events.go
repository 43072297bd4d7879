package bus

// DomainEvent is dispatched in process: every handler bound for its runtime
// type runs, concurrently, with all-must-finish semantics. Individual
// listeners may still opt into enqueueing via QueueableListener.
type DomainEvent interface{}

// IntegrationEvent leaves the process through an EventPublisher. Topic names
// the broker destination; PublishOptions may override it per call.
type IntegrationEvent interface{ Topic() string }
