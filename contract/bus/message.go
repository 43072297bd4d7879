package bus

// Command is a marker interface for commands (intent to change state).
// A command is dispatched to the handler(s) bound for its runtime type.
type Command interface{}

// Query is a marker interface for queries. Queries are handled synchronously,
// must not change state, and require exactly one bound handler.
type Query interface{}
