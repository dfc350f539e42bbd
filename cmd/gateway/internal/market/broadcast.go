package market

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/protocol"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/registry"
	"github.com/naphucco/fintech-trading-platform/pkg/models"
)

// Broadcaster refreshes the store on a fixed period and fans the updated
// quotes out to every connection, filtered to its subscription set.
type Broadcaster struct {
	store    *Store
	registry *registry.Registry
	feed     Feed
	interval time.Duration
	logger   *zap.Logger
}

func NewBroadcaster(store *Store, reg *registry.Registry, feed Feed, interval time.Duration, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		store:    store,
		registry: reg,
		feed:     feed,
		interval: interval,
		logger:   logger,
	}
}

// Run ticks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("Broadcast engine started", zap.Duration("interval", b.interval))
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Broadcast engine stopped")
			return
		case <-ticker.C:
			b.BroadcastOnce(ctx)
		}
	}
}

// BroadcastOnce performs a single tick: walk all prices, mirror the moves to
// the feed, then push one batched MARKET_DATA message per subscribed
// connection. Connections with no subscriptions receive nothing; connections
// whose transport is gone are skipped.
func (b *Broadcaster) BroadcastOnce(ctx context.Context) {
	quotes := b.store.Tick()
	now := time.Now().UnixMilli()

	if err := b.feed.PublishTick(ctx, toUpdates(quotes, now)); err != nil {
		b.logger.Error("Feed publish failed", zap.Error(err))
	}

	sent := 0
	b.registry.ForEach(func(snap registry.Snapshot) {
		if snap.Sink.Closed() || len(snap.Subs) == 0 {
			return
		}
		filtered := make(map[string]protocol.Quote)
		for sym := range snap.Subs {
			if q, ok := quotes[sym]; ok {
				filtered[sym] = q
			}
		}
		if len(filtered) == 0 {
			return
		}
		snap.Sink.SendJSON(protocol.BatchMarketData{
			Type:      protocol.TypeMarketData,
			Data:      filtered,
			Timestamp: now,
		})
		sent++
	})

	b.logger.Debug("Market data tick",
		zap.Int("messages_sent", sent),
		zap.Int("clients", b.registry.Len()))
}

func toUpdates(quotes map[string]protocol.Quote, ts int64) []models.InstrumentUpdate {
	updates := make([]models.InstrumentUpdate, 0, len(quotes))
	for sym, q := range quotes {
		updates = append(updates, models.InstrumentUpdate{
			Symbol:    sym,
			Price:     q.Price,
			Change:    q.Change,
			Timestamp: ts,
		})
	}
	return updates
}
