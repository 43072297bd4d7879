package bus

// QueueOptions parameterizes a single enqueue. Queue overrides the
// destination derived from the payload's type name; DelaySeconds is an
// integer so adapters can map it onto transports without a duration concept.
type QueueOptions struct {
	Queue        string
	DelaySeconds int
	Headers      map[string]string
}

// PublishOptions parameterizes a single integration publish. TopicOverride
// wins over the event's own Topic; Key drives partitioning on brokers that
// support it.
type PublishOptions struct {
	TopicOverride string
	Key           string
	Headers       map[string]string
}
