package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

// Config holds the settings for the connection-backed Client. Zero values
// fall back to the nats.go defaults.
type Config struct {
	URL           string
	Name          string // connection name shown in server monitoring
	ConnTimeout   time.Duration
	ReconnectWait time.Duration
	MaxReconnects int

	// FlushTimeout bounds the post-publish flush; 0 flushes without a deadline.
	FlushTimeout time.Duration
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: nats url required", berr.ErrPublishFailed)
	}

	return nil
}

func (c Config) options() []nats.Option {
	var opts []nats.Option

	if c.Name != "" {
		opts = append(opts, nats.Name(c.Name))
	}

	if c.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(c.ConnTimeout))
	}

	if c.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(c.ReconnectWait))
	}

	if c.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(c.MaxReconnects))
	}

	return opts
}

// connClient adapts a live *nats.Conn to the adapter's Client seam. Every
// publish is followed by a flush so broker errors surface to the dispatching
// caller instead of dying in the client's outbound buffer.
type connClient struct {
	nc    *nats.Conn
	flush time.Duration
}

func (c connClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: natsHeader(headers)}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	if c.flush > 0 {
		return c.nc.FlushTimeout(c.flush)
	}

	return c.nc.Flush()
}

// natsHeader converts the adapter's flat header map to a nats.Header. An
// empty map yields nil so the wire message carries no header block.
func natsHeader(headers map[string]string) nats.Header {
	if len(headers) == 0 {
		return nil
	}

	h := nats.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}

	return h
}

// NewWithNATS dials the server described by cfg and returns an Adapter backed
// by the live connection plus a cleanup that drains it.
func NewWithNATS(cfg Config) (*Adapter, func(), error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	nc, err := nats.Connect(cfg.URL, cfg.options()...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nats connect: %w", berr.ErrPublishFailed, err)
	}

	cleanup := func() {
		if !nc.IsClosed() {
			_ = nc.Drain() // best effort; Drain owns the final close
		}
	}

	return New(connClient{nc: nc, flush: cfg.FlushTimeout}), cleanup, nil
}
