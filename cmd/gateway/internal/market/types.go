package market

import (
	"context"
	"math/rand"

	"github.com/redis/go-redis/v9"

	"github.com/naphucco/fintech-trading-platform/pkg/models"
)

// Rand abstracts the price-walk randomness for deterministic tests.
type Rand interface {
	Float64() float64
}

// Feed mirrors each tick's price moves to out-of-process consumers.
type Feed interface {
	PublishTick(ctx context.Context, updates []models.InstrumentUpdate) error
	Close() error
}

// RedisClient abstracts the go-redis surface the feed uses.
type RedisClient interface {
	Pipeline() redis.Pipeliner
	Close() error
}

type RealRand struct{ *rand.Rand }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }
