package rabbitmq

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

const (
	integrationExchange   = "integration"
	integrationExchangeTy = "topic"

	defaultRedialBase = time.Second
	defaultRedialMax  = 30 * time.Second
)

// Config holds the dial settings for the connection-backed publisher.
// Zero redial bounds take the package defaults.
type Config struct {
	URL         string
	ConnTimeout time.Duration

	RedialBase time.Duration
	RedialMax  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RedialBase <= 0 {
		c.RedialBase = defaultRedialBase
	}

	if c.RedialMax < c.RedialBase {
		c.RedialMax = defaultRedialMax
	}

	return c
}

// redialBackoff produces the wait between failed dial attempts: exponential
// growth from base to max, with up to 25% jitter, never exceeding max.
type redialBackoff struct {
	base, max time.Duration
	cur       time.Duration
	rng       *rand.Rand
}

func newRedialBackoff(base, max time.Duration) *redialBackoff {
	// #nosec G404 -- jitter needs no cryptographic randomness
	return &redialBackoff{base: base, max: max, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (b *redialBackoff) next() time.Duration {
	switch {
	case b.cur == 0:
		b.cur = b.base
	case b.cur < b.max:
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}

	jitter := time.Duration(b.rng.Int63n(int64(b.cur)/4 + 1))

	d := b.cur + jitter
	if d > b.max {
		d = b.max
	}

	return d
}

func (b *redialBackoff) reset() { b.cur = 0 }

// channelManager owns the AMQP connection lifecycle: it dials, declares the
// integration exchange, hands the live channel to publishers, and redials
// with backoff whenever the broker drops the connection.
type channelManager struct {
	cfg Config

	mu    sync.RWMutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	ready chan struct{} // closed while a channel is live, reopened on loss

	done chan struct{}
	once sync.Once
}

func newChannelManager(cfg Config) *channelManager {
	m := &channelManager{
		cfg:   cfg.withDefaults(),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go m.maintain()

	return m
}

func (m *channelManager) Publish(ctx context.Context, msg PubMsg) error {
	ch, err := m.await(ctx)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		msg.Exchange,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Headers:      amqpTable(msg.Headers),
			Body:         msg.Body,
		},
	)
}

// await returns the live channel, blocking until one is up, the manager is
// closed, or ctx ends.
func (m *channelManager) await(ctx context.Context) (*amqp.Channel, error) {
	for {
		m.mu.RLock()
		ch, ready := m.ch, m.ready
		m.mu.RUnlock()

		if ch != nil {
			return ch, nil
		}

		select {
		case <-ready:
		case <-m.done:
			return nil, fmt.Errorf("%w: rabbitmq publisher closed", berr.ErrPublishFailed)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *channelManager) maintain() {
	bo := newRedialBackoff(m.cfg.RedialBase, m.cfg.RedialMax)

	for {
		select {
		case <-m.done:
			return
		default:
		}

		conn, ch, err := m.dial()
		if err != nil {
			t := time.NewTimer(bo.next())
			select {
			case <-m.done:
				t.Stop()
				return
			case <-t.C:
			}

			continue
		}

		bo.reset()
		m.install(conn, ch)

		lost := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-m.done:
			m.teardown()
			return
		case <-lost:
			m.teardown()
		}
	}
}

func (m *channelManager) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(m.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-dispatch"},
		Dial:       amqp.DefaultDial(m.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	err = ch.ExchangeDeclare(integrationExchange, integrationExchangeTy, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	return conn, ch, nil
}

func (m *channelManager) install(conn *amqp.Connection, ch *amqp.Channel) {
	m.mu.Lock()
	m.conn, m.ch = conn, ch
	close(m.ready)
	m.mu.Unlock()
}

func (m *channelManager) teardown() {
	m.mu.Lock()

	if m.ch != nil {
		_ = m.ch.Close()
		m.ch = nil
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.ready = make(chan struct{})
	m.mu.Unlock()
}

func (m *channelManager) close() {
	m.once.Do(func() { close(m.done) })
}

// amqpTable converts the adapter's flat header map to an amqp.Table. An empty
// map yields nil so the publishing carries no header table.
func amqpTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}

	t := amqp.Table{}
	for k, v := range headers {
		t[k] = v
	}

	return t
}

// NewWithAMQPConn dials RabbitMQ with automatic redial, declares the
// integration exchange, and returns an Adapter plus a cleanup that stops the
// connection manager.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrPublishFailed)
	}

	m := newChannelManager(cfg)

	return New(m), m.close, nil
}
