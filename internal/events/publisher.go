package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"pricesync/internal/logger"
	"pricesync/internal/models"
)

const runTopic = "price-sync-runs"

// Publisher emits one summary event per completed execute run so downstream
// consumers (dashboards, alerting) can react without polling the run log.
type Publisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewPublisher returns nil when no brokers are configured; callers treat a
// nil publisher as "events disabled".
func NewPublisher(brokers string, log *logger.Logger) *Publisher {
	if brokers == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        runTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
	}
	return &Publisher{writer: writer, logger: log}
}

type runEvent struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Updated   int       `json:"updated"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Unmatched int       `json:"unmatched"`
	Total     int       `json:"total"`
}

func (p *Publisher) PublishRun(ctx context.Context, record models.SyncRunRecord) error {
	event := runEvent{
		Type:      "price_sync.run_completed",
		RunID:     record.ID,
		Timestamp: record.Timestamp,
		Updated:   record.Updated,
		Failed:    record.Failed,
		Skipped:   record.Skipped,
		Unmatched: record.Unmatched,
		Total:     record.Total,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.ID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	p.logger.Debug("Published run event %s", record.ID)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
