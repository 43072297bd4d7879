package bus

import "reflect"

// Locator resolves handler instances for a message type. It backs the fan-out
// paths: given the runtime type of a command or event, it returns every
// handler instance that should receive it, in no particular order.
//
// Implementations are typically backed by a DI container or a manually built
// map. They must be safe for concurrent use. Returning an empty slice means
// no handler is registered for the type.
type Locator interface {
	Handlers(messageType reflect.Type) []any
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(messageType reflect.Type) []any

func (f LocatorFunc) Handlers(messageType reflect.Type) []any { return f(messageType) }
