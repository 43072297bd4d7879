package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkaadapter "github.com/next-trace/scg-dispatch/adapters/kafka"
	cbus "github.com/next-trace/scg-dispatch/contract/bus"
	berr "github.com/next-trace/scg-dispatch/contract/errors"
)

type record struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakeWriter struct {
	records []record
	err     error
}

func (w *fakeWriter) Write(topic string, key, value []byte, headers map[string]string) error {
	w.records = append(w.records, record{topic: topic, key: key, value: value, headers: headers})
	return w.err
}

type indexCmd struct{ Doc string }

type docEvt struct{ ID string }

type archivedEvt struct{ ID string }

func (archivedEvt) Topic() string { return "docs.archived" }

func Test_EnqueueCommand_TopicAndEnvelope(t *testing.T) {
	w := &fakeWriter{}
	a := kafkaadapter.New(w)

	opts := cbus.QueueOptions{Queue: "indexing", DelaySeconds: 2}
	if err := a.EnqueueCommand(t.Context(), indexCmd{Doc: "d1"}, opts); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r := w.records[0]
	if r.topic != "jobs.indexing" {
		t.Fatalf("topic=%q", r.topic)
	}

	if r.headers["x-delay"] != "2" {
		t.Fatalf("headers=%v", r.headers)
	}

	var env cbus.Envelope
	if err := json.Unmarshal(r.value, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if env.Name != "indexCmd" || env.ID == "" {
		t.Fatalf("envelope=%+v", env)
	}
}

func Test_EnqueueListener_Topic(t *testing.T) {
	w := &fakeWriter{}
	a := kafkaadapter.New(w)

	err := a.EnqueueListener(t.Context(), docEvt{ID: "d1"}, "ReindexSearch", cbus.QueueOptions{})
	if err != nil {
		t.Fatalf("enqueue listener: %v", err)
	}

	if got := w.records[0].topic; got != "listeners.docEvt.ReindexSearch" {
		t.Fatalf("topic=%q", got)
	}
}

func Test_PublishIntegration_KeyAndTopic(t *testing.T) {
	w := &fakeWriter{}
	a := kafkaadapter.New(w)

	err := a.PublishIntegration(t.Context(), archivedEvt{ID: "d1"}, cbus.PublishOptions{Key: "d1"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	r := w.records[0]
	if r.topic != "docs.archived" {
		t.Fatalf("topic=%q", r.topic)
	}

	if string(r.key) != "d1" {
		t.Fatalf("key=%q", r.key)
	}

	if r.headers["key"] != "d1" {
		t.Fatalf("headers=%v", r.headers)
	}
}

func Test_NilWriterErrors(t *testing.T) {
	a := kafkaadapter.New(nil)

	if err := a.EnqueueCommand(t.Context(), indexCmd{}, cbus.QueueOptions{}); !errors.Is(err, berr.ErrEnqueueFailed) {
		t.Fatalf("want ErrEnqueueFailed, got %v", err)
	}

	if err := a.PublishIntegration(t.Context(), archivedEvt{}, cbus.PublishOptions{}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}
}

func Test_WriteFailureWrappedAndCancelPassesThrough(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	a := kafkaadapter.New(w)

	err := a.EnqueueCommand(t.Context(), indexCmd{}, cbus.QueueOptions{})
	if !errors.Is(err, berr.ErrEnqueueFailed) {
		t.Fatalf("want ErrEnqueueFailed, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := a.EnqueueCommand(ctx, indexCmd{}, cbus.QueueOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
