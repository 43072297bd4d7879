//go:build franz

package kafka

import (
	"errors"
	"testing"

	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

func Test_NewWithKgo_NoBrokers(t *testing.T) {
	_, _, err := NewWithKgo(Config{})
	if err == nil {
		t.Fatal("expected error for missing brokers")
	}

	if !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}
}

func Test_SaslMechanism(t *testing.T) {
	m, err := saslMechanism(&SASLConfig{Mechanism: SASLPlain, Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("plain: %v", err)
	}

	if m.Name() != "PLAIN" {
		t.Fatalf("mechanism=%q", m.Name())
	}

	m, err = saslMechanism(&SASLConfig{Mechanism: SASLScramSHA256, Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("scram-256: %v", err)
	}

	if m.Name() != "SCRAM-SHA-256" {
		t.Fatalf("mechanism=%q", m.Name())
	}

	m, err = saslMechanism(&SASLConfig{Mechanism: SASLScramSHA512, Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("scram-512: %v", err)
	}

	if m.Name() != "SCRAM-SHA-512" {
		t.Fatalf("mechanism=%q", m.Name())
	}

	if _, err := saslMechanism(&SASLConfig{Mechanism: "kerberos"}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed for unsupported mechanism, got %v", err)
	}
}

func Test_ClientOptions(t *testing.T) {
	// Seed brokers and required acks are always present.
	opts, err := clientOptions(Config{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("options: %v", err)
	}

	if len(opts) != 2 {
		t.Fatalf("want 2 base options, got %d", len(opts))
	}

	full := Config{
		Brokers:            []string{"localhost:9092"},
		ClientID:           "bus",
		DisableIdempotency: true,
		SASL:               &SASLConfig{Mechanism: SASLPlain, Username: "u", Password: "p"},
	}

	opts, err = clientOptions(full)
	if err != nil {
		t.Fatalf("options: %v", err)
	}

	if len(opts) != 5 {
		t.Fatalf("want 5 options, got %d", len(opts))
	}

	bad := Config{
		Brokers: []string{"localhost:9092"},
		SASL:    &SASLConfig{Mechanism: "kerberos"},
	}
	if _, err := clientOptions(bad); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}
}
