package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/market"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/orders"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/protocol"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/registry"
)

// Clock abstracts time for deterministic testing.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// Router decodes inbound envelopes and dispatches them to the registry or
// the order pipeline. Unknown or malformed envelopes never terminate the
// connection.
type Router struct {
	ctx      context.Context // gateway lifecycle; cancels in-flight pipeline runs on shutdown
	registry *registry.Registry
	store    *market.Store
	pipeline *orders.Pipeline
	clock    Clock
	stagger  time.Duration
	logger   *zap.Logger
}

func New(
	ctx context.Context,
	reg *registry.Registry,
	store *market.Store,
	pipeline *orders.Pipeline,
	clock Clock,
	stagger time.Duration,
	logger *zap.Logger,
) *Router {
	return &Router{
		ctx:      ctx,
		registry: reg,
		store:    store,
		pipeline: pipeline,
		clock:    clock,
		stagger:  stagger,
		logger:   logger,
	}
}

// HandleConnect registers the connection and sends the WELCOME handshake.
func (r *Router) HandleConnect(sink registry.Sink) {
	r.registry.Register(sink)
	sink.SendJSON(protocol.Welcome{
		Type:      protocol.TypeWelcome,
		ClientID:  sink.ID(),
		Message:   "Connected to FinTech WebSocket Server",
		Timestamp: r.clock.Now().UnixMilli(),
	})
}

// HandleDisconnect removes the connection; further sends to it are no-ops.
func (r *Router) HandleDisconnect(sink registry.Sink) {
	r.registry.Unregister(sink.ID())
	sink.Close()
}

// HandleMessage parses one inbound frame and dispatches it.
func (r *Router) HandleMessage(sink registry.Sink, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.logger.Warn("Invalid frame",
			zap.String("client_id", sink.ID()),
			zap.Error(err))
		r.sendError(sink, "Invalid JSON format", "")
		return
	}

	r.logger.Debug("Received message",
		zap.String("client_id", sink.ID()),
		zap.String("type", env.Type))

	switch env.Type {
	case protocol.TypeSubscribe:
		r.handleSubscribe(sink, env)
	case protocol.TypeUnsubscribe:
		r.handleUnsubscribe(sink, env)
	case protocol.TypePlaceOrder:
		r.handlePlaceOrder(sink, env)
	case protocol.TypeHeartbeat:
		sink.SendJSON(protocol.HeartbeatAck{
			Type:      protocol.TypeHeartbeatAck,
			Timestamp: r.clock.Now().UnixMilli(),
		})
	case protocol.TypePing:
		sink.SendJSON(protocol.Pong{
			Type:      protocol.TypePong,
			Timestamp: r.clock.Now().UnixMilli(),
		})
	default:
		r.sendError(sink, fmt.Sprintf("Unknown message type: %s", env.Type), "")
	}
}

func (r *Router) handleSubscribe(sink registry.Sink, env protocol.Envelope) {
	if len(env.Symbols) == 0 {
		r.sendError(sink, "No symbols provided", "")
		return
	}

	current, ok := r.registry.MutateSubscriptions(sink.ID(), env.Symbols, nil)
	if !ok {
		r.sendError(sink, "Client not found", "")
		return
	}

	sink.SendJSON(protocol.SubscribeAck{
		Type:              protocol.TypeSubscribeAck,
		SubscribedSymbols: current,
		SubscribedCount:   len(env.Symbols),
		Timestamp:         r.clock.Now().UnixMilli(),
	})

	// Partition the request: unknown symbols get an immediate per-symbol
	// error, known ones get a staggered initial snapshot so a large request
	// does not burst all pushes in one instant.
	var known []string
	for _, sym := range env.Symbols {
		if r.store.Has(sym) {
			known = append(known, sym)
		} else {
			r.sendError(sink, fmt.Sprintf("Symbol %s not available", sym), sym)
		}
	}
	if len(known) == 0 {
		return
	}

	go func() {
		for i, sym := range known {
			if i > 0 {
				r.clock.Sleep(r.stagger)
			}
			if sink.Closed() {
				return
			}
			quote, ok := r.store.Quote(sym)
			if !ok {
				continue
			}
			sink.SendJSON(protocol.SnapshotMarketData{
				Type:      protocol.TypeMarketData,
				Symbol:    sym,
				Data:      quote,
				IsInitial: true,
				Timestamp: r.clock.Now().UnixMilli(),
			})
		}
	}()
}

func (r *Router) handleUnsubscribe(sink registry.Sink, env protocol.Envelope) {
	remaining, ok := r.registry.MutateSubscriptions(sink.ID(), nil, env.Symbols)
	if !ok {
		r.sendError(sink, "Cannot unsubscribe - client not found", "")
		return
	}

	sink.SendJSON(protocol.UnsubscribeAck{
		Type:                   protocol.TypeUnsubscribeAck,
		UnsubscribedSymbols:    env.Symbols,
		RemainingSubscriptions: remaining,
		Timestamp:              r.clock.Now().UnixMilli(),
	})
}

func (r *Router) handlePlaceOrder(sink registry.Sink, env protocol.Envelope) {
	orderID := "ORD-" + uuid.NewString()

	order := orders.Order{
		ID:           orderID,
		ConnectionID: sink.ID(),
	}
	if env.Order != nil {
		order.Symbol = env.Order.Symbol
		order.Side = env.Order.Side
		order.Quantity = env.Order.Quantity
		order.LimitPrice = env.Order.LimitPrice
	}

	// The ack goes out before any pipeline stage runs; the run itself is
	// fully decoupled from this connection's receive loop.
	sink.SendJSON(protocol.OrderAck{
		Type:      protocol.TypeOrderAck,
		OrderID:   orderID,
		Status:    protocol.StatusReceived,
		Message:   "Order received and queued for processing",
		Timestamp: r.clock.Now().UnixMilli(),
	})

	r.logger.Info("Order accepted",
		zap.String("client_id", sink.ID()),
		zap.String("order_id", orderID),
		zap.String("symbol", order.Symbol))

	go r.pipeline.Run(r.ctx, order, sink)
}

func (r *Router) sendError(sink registry.Sink, message, symbol string) {
	sink.SendJSON(protocol.Error{
		Type:      protocol.TypeError,
		Message:   message,
		Symbol:    symbol,
		Timestamp: r.clock.Now().UnixMilli(),
	})
}
