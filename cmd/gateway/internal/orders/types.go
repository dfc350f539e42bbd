package orders

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/naphucco/fintech-trading-platform/pkg/models"
)

// Order is the pipeline's working copy of one PLACE_ORDER request. It lives
// only for the duration of its run; there is no persistent order store.
type Order struct {
	ID           string
	ConnectionID string
	Symbol       string
	Side         string // BUY | SELL
	Quantity     *float64
	LimitPrice   *float64
}

// Qty returns the order quantity, defaulting to 1 when the client omitted it.
func (o Order) Qty() float64 {
	if o.Quantity == nil {
		return 1
	}
	return *o.Quantity
}

// Clock abstracts time for deterministic testing.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Rand abstracts the simulated business outcomes (risk pass, fill, spread).
type Rand interface {
	Float64() float64
}

// Notifier is where terminal order outcomes surface as human-readable
// strings; the UI layer decides how to display them.
type Notifier interface {
	Notify(title, body string)
}

// Audit receives every order lifecycle transition for downstream consumers.
// Recording is fire-and-forget: a broken audit path never affects the
// client-facing contract.
type Audit interface {
	Record(ctx context.Context, event models.OrderEvent)
	Close() error
}

// KafkaWriter abstracts the audit stream transport.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealRand is safe for use from concurrent pipeline runs.
type RealRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRealRand(seed int64) *RealRand {
	return &RealRand{r: rand.New(rand.NewSource(seed))}
}

func (r *RealRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}
