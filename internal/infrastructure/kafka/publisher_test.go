package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/logging"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherDeliver(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	p := &Publisher{writer: w, topic: "fuel-price-runs"}

	summary := domain.RunReportSummary{RunID: "r-1", RunDate: "2024-06-14", Status: domain.StatusPartialFailure, Rejected: 2}
	if err := p.Deliver(context.Background(), summary); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "2024-06-14" || string(msg.Headers[0].Value) != "r-1" || string(msg.Headers[1].Value) != "partial_failure" {
		t.Fatalf("unexpected message metadata %+v", msg)
	}

	var decoded domain.RunReportSummary
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.Rejected != 2 || decoded.Status != domain.StatusPartialFailure {
		t.Fatalf("unexpected payload %+v", decoded)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestPublisherDeliverError(t *testing.T) {
	t.Parallel()

	boom := errors.New("leader not available")
	p := &Publisher{writer: &recordingWriter{err: boom}, topic: "t"}
	if err := p.Deliver(context.Background(), domain.RunReportSummary{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestNewPublisherValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewPublisher(config.KafkaConfig{Topic: "t"}, nil); err == nil {
		t.Fatalf("expected brokers error")
	}
	if _, err := NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Fatalf("expected topic error")
	}
	p, err := NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, logging.Discard())
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	_ = p.Close()
}
