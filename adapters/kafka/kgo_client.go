//go:build franz

package kafka

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

// SASL mechanisms the connection-backed writer understands.
const (
	SASLPlain       = "plain"
	SASLScramSHA256 = "scram-sha-256"
	SASLScramSHA512 = "scram-sha-512"
)

// SASLConfig selects and parameterizes broker authentication.
type SASLConfig struct {
	Mechanism string
	Username  string
	Password  string
}

// Config holds the client settings for the franz-go backed Writer.
// Produces require all in-sync replicas to ack; idempotent produce stays on
// unless explicitly disabled.
type Config struct {
	Brokers  []string
	ClientID string
	TLS      *tls.Config
	SASL     *SASLConfig

	DisableIdempotency bool

	// Compression, when set, overrides the client's codec preference order.
	Compression []kgo.CompressionCodec
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return w.cl.ProduceSync(context.Background(), rec).FirstErr()
}

func saslMechanism(c *SASLConfig) (sasl.Mechanism, error) {
	switch c.Mechanism {
	case SASLPlain:
		return plain.Auth{User: c.Username, Pass: c.Password}.AsMechanism(), nil
	case SASLScramSHA256:
		return scram.Auth{User: c.Username, Pass: c.Password}.AsSha256Mechanism(), nil
	case SASLScramSHA512:
		return scram.Auth{User: c.Username, Pass: c.Password}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported sasl mechanism %q", berr.ErrPublishFailed, c.Mechanism)
	}
}

func clientOptions(cfg Config) ([]kgo.Opt, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}

	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	if cfg.DisableIdempotency {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}

	if len(cfg.Compression) > 0 {
		opts = append(opts, kgo.ProducerBatchCompression(cfg.Compression...))
	}

	if cfg.SASL != nil {
		m, err := saslMechanism(cfg.SASL)
		if err != nil {
			return nil, err
		}

		opts = append(opts, kgo.SASL(m))
	}

	return opts, nil
}

// NewWithKgo builds an Adapter over a real franz-go client and returns it
// with a cleanup that closes the client.
func NewWithKgo(cfg Config) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrPublishFailed)
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, nil, err
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrPublishFailed, err)
	}

	return New(kgoWriter{cl: cl}), cl.Close, nil
}
