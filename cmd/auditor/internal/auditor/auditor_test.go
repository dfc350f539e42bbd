package auditor_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/cmd/auditor/internal/auditor"
	"github.com/naphucco/fintech-trading-platform/cmd/auditor/internal/testutils"
	"github.com/naphucco/fintech-trading-platform/pkg/config"
	"github.com/naphucco/fintech-trading-platform/pkg/models"
)

var testCfg = config.AuditorConfig{
	NumWorkers:   2,
	HistoryLimit: 100,
	RetentionTTL: time.Hour,
}

func toMessages(events []models.OrderEvent) []kafka.Message {
	var msgs []kafka.Message
	for _, e := range events {
		val, _ := json.Marshal(e)
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Symbol),
			Value: val,
		})
	}
	return msgs
}

func TestAuditor_MaterializesTransitions(t *testing.T) {
	events := []models.OrderEvent{
		{OrderID: "ORD-1", ClientID: "c1", Symbol: "BTC/USD", Status: models.StatusReceived},
		{OrderID: "ORD-1", ClientID: "c1", Symbol: "BTC/USD", Status: models.StatusValidating},
		{OrderID: "ORD-2", ClientID: "c2", Symbol: "ETH/USD", Status: models.StatusReceived},
	}

	mockReader := &testutils.MockKafkaReader{Messages: toMessages(events)}
	mockRedis := testutils.NewMockRedisClient()

	a := auditor.New(testCfg, zap.NewNop(), mockRedis, mockReader)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.Run(ctx)

	pipeline := mockRedis.PipelineSpy
	pipeline.Mu.Lock()
	defer pipeline.Mu.Unlock()

	if pipeline.ExecCount != 3 {
		t.Errorf("Expected 3 pipeline executions, got %d", pipeline.ExecCount)
	}

	hasOrder := false
	hasHistory := false
	for _, cmd := range pipeline.RecordedCmds {
		if cmd == "SET order:ORD-1" {
			hasOrder = true
		}
		if cmd == "LPUSH orders:client:c1" {
			hasHistory = true
		}
	}
	if !hasOrder {
		t.Error("Missing latest-status write for ORD-1")
	}
	if !hasHistory {
		t.Error("Missing history write for client c1")
	}
}

func TestAuditor_SkipsStaleTransitions(t *testing.T) {
	// A redelivered RECEIVED after VALIDATING must not be materialized.
	events := []models.OrderEvent{
		{OrderID: "ORD-1", ClientID: "c1", Symbol: "BTC/USD", Status: models.StatusValidating},
		{OrderID: "ORD-1", ClientID: "c1", Symbol: "BTC/USD", Status: models.StatusReceived},
		{OrderID: "ORD-1", ClientID: "c1", Symbol: "BTC/USD", Status: models.StatusValidating},
	}

	mockReader := &testutils.MockKafkaReader{Messages: toMessages(events)}
	mockRedis := testutils.NewMockRedisClient()

	a := auditor.New(config.AuditorConfig{NumWorkers: 1, HistoryLimit: 100, RetentionTTL: time.Hour},
		zap.NewNop(), mockRedis, mockReader)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.Run(ctx)

	if got := mockRedis.PipelineSpy.ExecCount; got != 1 {
		t.Errorf("Expected 1 pipeline execution, got %d", got)
	}
}

func TestAuditor_InvalidJSON(t *testing.T) {
	msgs := []kafka.Message{
		{Key: []byte("BTC/USD"), Value: []byte("{broken-json")},
	}

	mockReader := &testutils.MockKafkaReader{Messages: msgs}
	mockRedis := testutils.NewMockRedisClient()

	a := auditor.New(config.AuditorConfig{NumWorkers: 1, HistoryLimit: 100, RetentionTTL: time.Hour},
		zap.NewNop(), mockRedis, mockReader)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	a.Run(ctx)

	if mockRedis.PipelineSpy.ExecCount > 0 {
		t.Error("Should not execute Redis commands for invalid JSON")
	}
}
