/*
Package dispatch implements the concurrency-controlled dispatch core.
It bounds how many invocations of a handler run simultaneously, fans commands
out to every resolvable handler, and can drive handler objects whose concrete
type is only discovered by structural inspection at call time.
*/
package dispatch
