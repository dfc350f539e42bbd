package orders

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/pkg/models"
)

// Compile-time check to ensure KafkaAudit implements Audit
var _ Audit = (*KafkaAudit)(nil)

// KafkaAudit streams order lifecycle events to a Kafka topic. Messages are
// keyed by symbol so one symbol's events stay on one partition, which also
// preserves per-order ordering since an order never changes symbol.
type KafkaAudit struct {
	writer KafkaWriter
	logger *zap.Logger
}

func NewKafkaAudit(writer KafkaWriter, logger *zap.Logger) *KafkaAudit {
	return &KafkaAudit{writer: writer, logger: logger}
}

func (a *KafkaAudit) Record(ctx context.Context, event models.OrderEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("JSON Marshal Error", zap.Error(err), zap.String("order_id", event.OrderID))
		return
	}

	key := event.Symbol
	if key == "" {
		key = event.OrderID
	}

	if err := a.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}); err != nil {
		// Fire-and-forget: the audit stream never affects the client contract.
		a.logger.Error("Kafka Write Error", zap.Error(err), zap.String("order_id", event.OrderID))
	}
}

func (a *KafkaAudit) Close() error {
	return a.writer.Close()
}

// NopAudit is used when no Kafka audit stream is configured.
type NopAudit struct{}

func (NopAudit) Record(context.Context, models.OrderEvent) {}
func (NopAudit) Close() error                               { return nil }
