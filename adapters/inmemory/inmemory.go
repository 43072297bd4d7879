package inmemory

import (
	"context"
	"sync"

	cbus "github.com/next-trace/scg-dispatch/contract/bus"
)

// EnqueuedCommand records one EnqueueCommand call.
type EnqueuedCommand struct {
	Command cbus.Command
	Opts    cbus.QueueOptions
}

// EnqueuedListener records one EnqueueListener call.
type EnqueuedListener struct {
	Event   cbus.DomainEvent
	Handler string
	Opts    cbus.QueueOptions
}

// PublishedEvent records one PublishIntegration call.
type PublishedEvent struct {
	Event cbus.IntegrationEvent
	Opts  cbus.PublishOptions
}

// Enqueuer is a thread-safe in-memory implementation of cbus.JobEnqueuer.
// It records enqueued commands and listeners for tests and examples.
type Enqueuer struct {
	mu        sync.Mutex
	commands  []EnqueuedCommand
	listeners []EnqueuedListener
}

func (e *Enqueuer) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	e.mu.Lock()
	e.commands = append(e.commands, EnqueuedCommand{Command: cmd, Opts: opts})
	e.mu.Unlock()

	return nil
}

func (e *Enqueuer) EnqueueListener(
	ctx context.Context,
	ev cbus.DomainEvent,
	handler string,
	opts cbus.QueueOptions,
) error {
	e.mu.Lock()
	e.listeners = append(e.listeners, EnqueuedListener{Event: ev, Handler: handler, Opts: opts})
	e.mu.Unlock()

	return nil
}

// Commands returns a snapshot of the recorded command enqueues.
func (e *Enqueuer) Commands() []EnqueuedCommand {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]EnqueuedCommand(nil), e.commands...)
}

// Listeners returns a snapshot of the recorded listener enqueues.
func (e *Enqueuer) Listeners() []EnqueuedListener {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]EnqueuedListener(nil), e.listeners...)
}

// Publisher is a thread-safe in-memory implementation of cbus.EventPublisher.
type Publisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

func (p *Publisher) PublishIntegration(
	ctx context.Context,
	e cbus.IntegrationEvent,
	opts cbus.PublishOptions,
) error {
	p.mu.Lock()
	p.events = append(p.events, PublishedEvent{Event: e, Opts: opts})
	p.mu.Unlock()

	return nil
}

// Events returns a snapshot of the recorded publishes.
func (p *Publisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]PublishedEvent(nil), p.events...)
}

// Adapter combines Enqueuer and Publisher to satisfy both interfaces.
type Adapter struct {
	Enqueuer
	Publisher
}

// Ensure Adapter implements the combined contract.
var _ cbus.Adapter = (*Adapter)(nil)

// New creates a new in-memory adapter instance.
func New() *Adapter { return &Adapter{} }
