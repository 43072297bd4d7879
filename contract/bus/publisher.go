package bus

import "context"

// EventPublisher pushes integration events out of the process. The dispatch
// facade treats it as one-way egress; delivery, routing, and durability are
// the backing broker's concern.
type EventPublisher interface {
	PublishIntegration(ctx context.Context, evt IntegrationEvent, opts PublishOptions) error
}
