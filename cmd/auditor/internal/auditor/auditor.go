package auditor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/pkg/config"
	"github.com/naphucco/fintech-trading-platform/pkg/models"
)

// Auditor consumes the order event stream and materializes it in Redis as
// queryable state: the latest status per order plus a bounded per-client
// history list. The gateway itself keeps no order state, so this service is
// the only place an order can be looked up after the fact.
type Auditor struct {
	cfg    config.AuditorConfig
	logger *zap.Logger
	rdb    RedisClient
	reader KafkaReader
}

func New(cfg config.AuditorConfig, logger *zap.Logger, rdb RedisClient, reader KafkaReader) *Auditor {
	return &Auditor{
		cfg:    cfg,
		logger: logger,
		rdb:    rdb,
		reader: reader,
	}
}

// Run consumes until ctx is cancelled, then drains the workers.
func (a *Auditor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, a.cfg.NumWorkers)
	var wg sync.WaitGroup

	for i := 0; i < a.cfg.NumWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go a.worker(i, workerChans[i], &wg)
	}

	go func() {
		a.logger.Info("Auditor Started", zap.Int("workers", a.cfg.NumWorkers))
		for {
			m, err := a.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				a.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Deterministic sharding: the producer keys by symbol, so one
			// order's events always land on the same worker, in order.
			workerID := getWorkerID(m.Key, a.cfg.NumWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				a.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	a.logger.Info("Shutdown signal received, stopping auditor...")

	for _, ch := range workerChans {
		close(ch)
	}
	a.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (a *Auditor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background() // Background context prevents cancellation mid-Redis write

	// Local state for out-of-order and duplicate suppression (works because
	// of deterministic sharding). Entries are dropped once an order is
	// terminal so the map does not grow with total order count.
	lastRank := make(map[string]int)

	for payload := range msgs {
		var event models.OrderEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			a.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}

		rank := models.StatusRank(event.Status)
		if rank <= lastRank[event.OrderID] {
			a.logger.Debug("Skipping stale transition",
				zap.String("order_id", event.OrderID),
				zap.String("status", event.Status))
			continue
		}

		if err := a.materialize(ctx, event, payload); err != nil {
			a.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("order_id", event.OrderID))
			continue
		}

		a.logger.Debug("Processed",
			zap.String("order_id", event.OrderID),
			zap.String("status", event.Status),
			zap.Int("worker_id", id))

		if event.Terminal() {
			delete(lastRank, event.OrderID)
		} else {
			lastRank[event.OrderID] = rank
		}
	}
}

// materialize writes one transition: latest-status key plus client history,
// in a single pipeline so a reader never sees one without the other.
func (a *Auditor) materialize(ctx context.Context, event models.OrderEvent, payload []byte) error {
	orderKey := fmt.Sprintf("order:%s", event.OrderID)
	historyKey := fmt.Sprintf("orders:client:%s", event.ClientID)

	pipe := a.rdb.Pipeline()
	pipe.Set(ctx, orderKey, payload, a.cfg.RetentionTTL)
	pipe.LPush(ctx, historyKey, payload)
	pipe.LTrim(ctx, historyKey, 0, a.cfg.HistoryLimit-1)
	pipe.Expire(ctx, historyKey, a.cfg.RetentionTTL)

	_, err := pipe.Exec(ctx)
	return err
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32()) % numWorkers
}
