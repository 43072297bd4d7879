/*
Package rabbitmq provides a cbus.Adapter backed by an AMQP 0-9-1 broker.
Outbound values are wrapped in envelopes and published through an injected
Publisher; a connection-backed publisher with auto-reconnect is included.
*/
package rabbitmq
