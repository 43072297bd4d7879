/*
Package servicebus provides a thin, opinionated facade over command, query, and event handling.
It coordinates bindings and dispatch on top of the concurrency-controlled dispatch core while
remaining decoupled from concrete transports via interfaces.
*/
package servicebus
