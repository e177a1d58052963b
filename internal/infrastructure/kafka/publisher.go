package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/ports"
	"FuelPriceMonitor/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits one event per run summary, keyed by run date.
type Publisher struct {
	writer messageWriter
	topic  string
}

var _ ports.Sink = (*Publisher)(nil)

// NewPublisher builds a synchronous writer for the configured brokers.
// Writer errors are forwarded to log.
func NewPublisher(cfg config.KafkaConfig, log *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Gzip,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		BatchTimeout:           100 * time.Millisecond,
		AllowAutoTopicCreation: true,
		ErrorLogger:            kafka.LoggerFunc(logger.New(log, "kafka", slog.LevelError).Printf),
	}
	return &Publisher{writer: writer, topic: cfg.Topic}, nil
}

func (p *Publisher) Name() string { return "kafka" }

// Deliver publishes summary as JSON.
func (p *Publisher) Deliver(ctx context.Context, summary domain.RunReportSummary) error {
	value, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(summary.RunDate),
		Value: value,
		Time:  summary.FinishedAt,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(summary.RunID)},
			{Key: "status", Value: []byte(summary.Status)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
