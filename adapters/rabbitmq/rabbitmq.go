package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"

	cbus "github.com/next-trace/scg-dispatch/contract/bus"
	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

const (
	cmdPrefix      = "cmd."
	listenerPrefix = "listener."
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// PubMsg is the unit handed to a Publisher.
type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

// Publisher abstracts the AMQP publish primitive so the adapter stays
// testable without a broker.
type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Adapter implements cbus.Adapter using an injected Publisher. Every outbound
// value is wrapped in a cbus.Envelope carrying a fresh message id and the
// payload's type name.
type Adapter struct {
	Publisher  Publisher
	Propagator cbus.HeaderPropagator // optional, for context propagation into headers
}

var _ cbus.Adapter = (*Adapter)(nil)

func New(p Publisher) *Adapter { return &Adapter{Publisher: p} }

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(p Publisher, hp cbus.HeaderPropagator) *Adapter {
	return &Adapter{Publisher: p, Propagator: hp}
}

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	if err := a.ready(ctx, berr.ErrEnqueueFailed, "enqueue"); err != nil {
		return err
	}

	return a.send(ctx, sendArgs{
		routingKey: routingForCommand(cmd, opts),
		payload:    cmd,
		headers:    queueHeaders(opts),
		wrap:       berr.ErrEnqueueFailed,
		label:      "enqueue",
	})
}

func (a *Adapter) EnqueueListener(
	ctx context.Context,
	e cbus.DomainEvent,
	handler string,
	opts cbus.QueueOptions,
) error {
	if err := a.ready(ctx, berr.ErrEnqueueFailed, "enqueue listener"); err != nil {
		return err
	}

	return a.send(ctx, sendArgs{
		routingKey: routingForListener(e, handler, opts),
		payload:    e,
		headers:    queueHeaders(opts),
		wrap:       berr.ErrEnqueueFailed,
		label:      "enqueue listener",
	})
}

func (a *Adapter) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	if err := a.ready(ctx, berr.ErrPublishFailed, "publish"); err != nil {
		return err
	}

	return a.send(ctx, sendArgs{
		exchange:   integrationExchange,
		routingKey: routingForEvent(e, opts),
		payload:    e,
		headers:    publishHeaders(opts),
		wrap:       berr.ErrPublishFailed,
		label:      "publish",
	})
}

type sendArgs struct {
	exchange   string
	routingKey string
	payload    any
	headers    map[string]string
	wrap       error
	label      string
}

func (a *Adapter) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq %s: %w", label, base)
	}

	return nil
}

func (a *Adapter) send(ctx context.Context, args sendArgs) error {
	// copy headers to avoid mutating caller-provided map
	hdrs := make(map[string]string, len(args.headers)+4)
	for k, v := range args.headers {
		hdrs[k] = v
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, hdrs)
	}

	env := cbus.NewEnvelope(typeName(args.payload), args.payload, hdrs)

	body, err := codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("rabbitmq %s serialize: %w", args.label, errors.Join(berr.ErrSerializationFailed, err))
	}

	msg := PubMsg{
		Exchange:   args.exchange,
		RoutingKey: args.routingKey,
		Body:       body,
		Headers:    hdrs,
	}
	if err := a.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq %s publish: %w", args.label, errors.Join(args.wrap, err))
	}

	return nil
}

// helpers

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" {
		name = t.String()
	}

	return name
}

func routingForCommand(cmd any, o cbus.QueueOptions) string {
	if o.Queue != "" {
		return cmdPrefix + o.Queue
	}

	return cmdPrefix + typeName(cmd)
}

func routingForListener(e any, handler string, o cbus.QueueOptions) string {
	if o.Queue != "" {
		return cmdPrefix + o.Queue
	}

	return listenerPrefix + typeName(e) + "." + handler
}

func routingForEvent(e cbus.IntegrationEvent, o cbus.PublishOptions) string {
	if o.TopicOverride != "" {
		return o.TopicOverride
	}

	return e.Topic()
}

func queueHeaders(o cbus.QueueOptions) map[string]string {
	h := make(map[string]string, len(o.Headers)+1)
	for k, v := range o.Headers {
		h[k] = v
	}

	if o.DelaySeconds > 0 {
		h["x-delay"] = fmt.Sprint(o.DelaySeconds)
	}

	return h
}

func publishHeaders(o cbus.PublishOptions) map[string]string {
	h := make(map[string]string, len(o.Headers)+1)
	for k, v := range o.Headers {
		h[k] = v
	}

	if o.Key != "" {
		h["key"] = o.Key
	}

	return h
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:     amqpTable(m.Headers),
			Body:        m.Body,
			ContentType: "application/json",
		},
	)
}

// NewWithAMQPChannel wraps an existing channel without reconnect handling.
func NewWithAMQPChannel(ch *amqp.Channel) *Adapter {
	return &Adapter{Publisher: amqpChannelPublisher{ch: ch}}
}
