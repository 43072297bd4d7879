package bus

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire shape adapters serialize when handing a command,
// listener invocation, or integration event to a broker. Payload carries the
// original value; Name carries its type name so consumers can route without
// deserializing the payload.
type Envelope struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    any               `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// NewEnvelope wraps a payload under a fresh message id.
func NewEnvelope(name string, payload any, headers map[string]string) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Name:       name,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
		Headers:    headers,
	}
}
