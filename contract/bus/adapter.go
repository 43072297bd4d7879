package bus

// Adapter bundles the two broker-facing capabilities the dispatch facade can
// use: enqueueing queueable work and publishing integration events. The
// in-memory, NATS, RabbitMQ, and Kafka adapters all satisfy it; the facade
// itself only ever depends on the two narrower interfaces.
type Adapter interface {
	JobEnqueuer
	EventPublisher
}
