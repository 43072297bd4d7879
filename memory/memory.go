package memory

import (
	"github.com/next-trace/scg-dispatch/adapters/inmemory"
	cbus "github.com/next-trace/scg-dispatch/contract/bus"
	"github.com/next-trace/scg-dispatch/servicebus"
)

// New constructs a service bus backed by the in-memory adapter and returns it
// as a contract.Bus along with a cleanup function that closes the bus.
func New() (cbus.Bus, func()) {
	ad := inmemory.New()
	sb := servicebus.New(&ad.Enqueuer, &ad.Publisher, nil)
	cleanup := func() { _ = sb.Close() }
	return sb, cleanup
}
