package orders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/market"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/protocol"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/registry"
	"github.com/naphucco/fintech-trading-platform/pkg/config"
	"github.com/naphucco/fintech-trading-platform/pkg/models"
)

// Pipeline drives one order through the simulated processing stages:
// RECEIVED -> VALIDATING -> RISK_CHECKING -> SUBMITTED_TO_MATCHING ->
// {FILLED, REJECTED}, with any stage able to short-circuit to ERROR.
// Every stage transition pushes exactly one event to the owning connection;
// after a terminal event nothing further is emitted for that order id.
type Pipeline struct {
	store    *market.Store
	cfg      config.OrdersConfig
	rand     Rand
	clock    Clock
	audit    Audit
	notifier Notifier
	logger   *zap.Logger
}

func NewPipeline(
	store *market.Store,
	cfg config.OrdersConfig,
	rnd Rand,
	clock Clock,
	audit Audit,
	notifier Notifier,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:    store,
		cfg:      cfg,
		rand:     rnd,
		clock:    clock,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
	}
}

// Run executes one pipeline run. It is launched as its own goroutine per
// order; many runs execute concurrently and independently. A dead sink is
// detected between stages and the run is abandoned without error.
func (p *Pipeline) Run(ctx context.Context, order Order, sink registry.Sink) {
	p.record(ctx, order, protocol.StatusReceived, "")

	// Stage 1: validation. The order needs a symbol and, if a quantity was
	// given, it must be positive.
	p.sleep(p.cfg.ValidationDelayMin, p.cfg.ValidationDelayMax)
	if order.Symbol == "" || (order.Quantity != nil && *order.Quantity <= 0) {
		p.fail(ctx, order, sink, protocol.CodeInvalidOrderFormat)
		return
	}
	if !p.pushStatus(ctx, order, sink, protocol.StatusValidating, "Order validation in progress") {
		return
	}

	// Stage 2: simulated risk approval.
	p.sleep(p.cfg.RiskDelayMin, p.cfg.RiskDelayMax)
	if p.rand.Float64() >= p.cfg.RiskPassRate {
		p.fail(ctx, order, sink, protocol.CodeRiskCheckFailed)
		return
	}
	if !p.pushStatus(ctx, order, sink, protocol.StatusRiskChecking, "Risk assessment in progress") {
		return
	}

	// Stage 3: market-data check, not separately pushed.
	currentPrice, ok := p.store.Price(order.Symbol)
	if !ok {
		p.fail(ctx, order, sink, protocol.CodeSymbolNotFound)
		return
	}

	// Stage 4: hand off to the simulated matching engine.
	if !p.pushStatus(ctx, order, sink, protocol.StatusSubmitted, "Order submitted for matching") {
		return
	}
	p.sleep(p.cfg.MatchingDelayMin, p.cfg.MatchingDelayMax)

	// Stage 5: resolution.
	if p.rand.Float64() < p.cfg.FillRate {
		p.fill(ctx, order, sink, currentPrice)
	} else {
		p.reject(ctx, order, sink)
	}
}

// pushStatus emits one intermediate status event. It returns false when the
// connection is gone, which abandons the run.
func (p *Pipeline) pushStatus(ctx context.Context, order Order, sink registry.Sink, status, message string) bool {
	if sink.Closed() || ctx.Err() != nil {
		p.logger.Debug("Abandoning pipeline run, sink closed",
			zap.String("order_id", order.ID),
			zap.String("status", status))
		return false
	}
	sink.SendJSON(protocol.OrderStatusUpdate{
		Type:      protocol.TypeOrderStatusUpdate,
		OrderID:   order.ID,
		Status:    status,
		Message:   message,
		Timestamp: p.clock.Now().UnixMilli(),
	})
	p.record(ctx, order, status, "")
	return true
}

func (p *Pipeline) fill(ctx context.Context, order Order, sink registry.Sink, currentPrice float64) {
	// Fill price is the current price perturbed by a small random spread (±1%).
	filledPrice := currentPrice * (1 + (p.rand.Float64()-0.5)*0.02)
	qty := order.Qty()
	now := p.clock.Now().UnixMilli()

	if !sink.Closed() && ctx.Err() == nil {
		sink.SendJSON(protocol.OrderFilled{
			Type:              protocol.TypeOrderFilled,
			OrderID:           order.ID,
			Status:            protocol.StatusFilled,
			FilledPrice:       filledPrice,
			FilledQuantity:    qty,
			AveragePrice:      filledPrice,
			TotalFilled:       qty,
			RemainingQuantity: 0,
			ExecutionTime:     now,
			Timestamp:         now,
		})
	}
	p.record(ctx, order, protocol.StatusFilled, "")
	p.notifier.Notify("Order Filled",
		fmt.Sprintf("Order %s filled: %.4f %s @ %.2f", order.ID, qty, order.Symbol, filledPrice))
	p.logger.Info("Order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Float64("price", filledPrice),
		zap.Float64("quantity", qty))
}

func (p *Pipeline) reject(ctx context.Context, order Order, sink registry.Sink) {
	now := p.clock.Now().UnixMilli()

	if !sink.Closed() && ctx.Err() == nil {
		sink.SendJSON(protocol.OrderRejected{
			Type:            protocol.TypeOrderRejected,
			OrderID:         order.ID,
			Status:          protocol.StatusRejected,
			Reason:          protocol.CodeInsufficientLiquidity,
			SuggestedAction: "TRY_LIMIT_ORDER_OR_ADJUST_PRICE",
			RejectionTime:   now,
			Timestamp:       now,
		})
	}
	p.record(ctx, order, protocol.StatusRejected, protocol.CodeInsufficientLiquidity)
	p.notifier.Notify("Order Rejected",
		fmt.Sprintf("Order %s rejected: %s", order.ID, protocol.ErrorMessage(protocol.CodeInsufficientLiquidity)))
	p.logger.Info("Order rejected",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol))
}

// fail emits the single terminal ERROR event for this order.
func (p *Pipeline) fail(ctx context.Context, order Order, sink registry.Sink, code string) {
	message := protocol.ErrorMessage(code)

	if !sink.Closed() && ctx.Err() == nil {
		sink.SendJSON(protocol.OrderError{
			Type:         protocol.TypeOrderError,
			OrderID:      order.ID,
			Status:       protocol.StatusError,
			ErrorCode:    code,
			ErrorMessage: message,
			Timestamp:    p.clock.Now().UnixMilli(),
		})
	}
	p.record(ctx, order, protocol.StatusError, code)
	p.notifier.Notify("Order Error", fmt.Sprintf("Order %s failed: %s", order.ID, message))
	p.logger.Warn("Order processing failed",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("error_code", code))
}

func (p *Pipeline) record(ctx context.Context, order Order, status, code string) {
	p.audit.Record(ctx, models.OrderEvent{
		OrderID:   order.ID,
		ClientID:  order.ConnectionID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Status:    status,
		ErrorCode: code,
		Quantity:  order.Qty(),
		Timestamp: p.clock.Now().UnixMilli(),
	})
}

// sleep suspends the run for a duration drawn uniformly from [min, max].
func (p *Pipeline) sleep(min, max time.Duration) {
	d := min
	if max > min {
		d += time.Duration(p.rand.Float64() * float64(max-min))
	}
	p.clock.Sleep(d)
}
