package market

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/pkg/models"
)

const (
	keyPrefix     = "instrument:"
	channelPrefix = "prices."
	snapshotTTL   = 1 * time.Hour // TTL prevents unbounded memory growth
)

// Compile-time check to ensure RedisFeed implements Feed
var _ Feed = (*RedisFeed)(nil)

// RedisFeed mirrors every price move to Redis: SET of the latest snapshot plus
// PUBLISH on a per-symbol channel, in a single pipeline so downstream readers
// never see a published move without its snapshot. Each symbol carries a
// monotonic sequence id so consumers can deduplicate.
type RedisFeed struct {
	client RedisClient
	logger *zap.Logger

	mu   sync.Mutex
	seqs map[string]int64
}

func NewRedisFeed(client RedisClient, logger *zap.Logger) *RedisFeed {
	return &RedisFeed{
		client: client,
		logger: logger,
		seqs:   make(map[string]int64),
	}
}

func (f *RedisFeed) PublishTick(ctx context.Context, updates []models.InstrumentUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	f.mu.Lock()
	for i := range updates {
		f.seqs[updates[i].Symbol]++
		updates[i].SeqID = f.seqs[updates[i].Symbol]
	}
	f.mu.Unlock()

	pipe := f.client.Pipeline()
	for _, u := range updates {
		payload, err := json.Marshal(u)
		if err != nil {
			f.logger.Error("JSON Marshal Error", zap.Error(err), zap.String("symbol", u.Symbol))
			continue
		}
		pipe.Set(ctx, keyPrefix+u.Symbol, payload, snapshotTTL)
		pipe.Publish(ctx, channelPrefix+u.Symbol, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	f.logger.Debug("Feed tick published", zap.Int("symbols", len(updates)))
	return nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}

// NopFeed is used when no Redis mirror is configured.
type NopFeed struct{}

func (NopFeed) PublishTick(context.Context, []models.InstrumentUpdate) error { return nil }
func (NopFeed) Close() error                                                 { return nil }
