package router_test

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/market"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/orders"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/protocol"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/registry"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/router"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/testutils"
	"github.com/naphucco/fintech-trading-platform/pkg/config"
)

func setupRouter(t *testing.T) (*router.Router, *registry.Registry, *testutils.FakeClock) {
	t.Helper()
	store := market.NewStore(map[string]float64{
		"BTC/USD": 45000,
		"ETH/USD": 2500,
		"AAPL":    180,
	}, &testutils.ScriptRand{Fallback: 0.5})
	reg := registry.New(zap.NewNop())
	clock := testutils.NewFakeClock()
	pipeline := orders.NewPipeline(
		store,
		config.OrdersConfig{RiskPassRate: 0.9, FillRate: 0.7},
		&testutils.ScriptRand{Fallback: 0.5},
		clock,
		&testutils.MockAudit{},
		&testutils.MockNotifier{},
		zap.NewNop(),
	)
	r := router.New(context.Background(), reg, store, pipeline, clock, 100*time.Millisecond, zap.NewNop())
	return r, reg, clock
}

func connect(t *testing.T, r *router.Router) *testutils.MockSink {
	t.Helper()
	sink := testutils.NewMockSink("c1")
	r.HandleConnect(sink)
	return sink
}

// waitForEvents polls until the sink has seen at least n events. Snapshot
// pushes and pipeline runs happen on their own goroutines.
func waitForEvents(t *testing.T, sink *testutils.MockSink, n int) []interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := sink.Recorded(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d events, got %v", n, sink.Types())
	return nil
}

func TestRouter_ConnectSendsWelcome(t *testing.T) {
	r, reg, _ := setupRouter(t)
	sink := connect(t, r)

	events := sink.Recorded()
	if len(events) != 1 {
		t.Fatalf("Expected exactly the welcome message, got %v", sink.Types())
	}
	welcome := events[0].(protocol.Welcome)
	if welcome.ClientID != "c1" {
		t.Errorf("Expected clientId c1, got %s", welcome.ClientID)
	}
	if welcome.Message != "Connected to FinTech WebSocket Server" {
		t.Errorf("Unexpected welcome message %q", welcome.Message)
	}
	if _, ok := reg.Get("c1"); !ok {
		t.Error("Connection should be registered on connect")
	}
}

func TestRouter_DisconnectUnregistersAndCloses(t *testing.T) {
	r, reg, _ := setupRouter(t)
	sink := connect(t, r)

	r.HandleDisconnect(sink)
	r.HandleDisconnect(sink) // idempotent

	if _, ok := reg.Get("c1"); ok {
		t.Error("Connection should be gone after disconnect")
	}
	if !sink.Closed() {
		t.Error("Sink should be closed after disconnect")
	}
}

func TestRouter_SubscribeAckAndSnapshots(t *testing.T) {
	r, _, clock := setupRouter(t)
	sink := connect(t, r)

	r.HandleMessage(sink, []byte(`{"type":"SUBSCRIBE_MARKET_DATA","symbols":["BTC/USD","ETH/USD"]}`))

	// welcome + ack + two initial snapshots
	events := waitForEvents(t, sink, 4)

	ack := events[1].(protocol.SubscribeAck)
	if want := []string{"BTC/USD", "ETH/USD"}; !reflect.DeepEqual(ack.SubscribedSymbols, want) {
		t.Errorf("Expected subscribed symbols %v, got %v", want, ack.SubscribedSymbols)
	}
	if ack.SubscribedCount != 2 {
		t.Errorf("Expected subscribed count 2, got %d", ack.SubscribedCount)
	}

	for i, sym := range []string{"BTC/USD", "ETH/USD"} {
		snap, ok := events[2+i].(protocol.SnapshotMarketData)
		if !ok {
			t.Fatalf("Expected snapshot at position %d, got %T", 2+i, events[2+i])
		}
		if snap.Symbol != sym {
			t.Errorf("Snapshot %d: expected %s, got %s", i, sym, snap.Symbol)
		}
		if !snap.IsInitial {
			t.Errorf("Snapshot for %s must be flagged initial", sym)
		}
		if snap.Data.Price == 0 {
			t.Errorf("Snapshot for %s carries no price", sym)
		}
	}

	// One pause between the two snapshots, none before the first.
	clock.Mu.Lock()
	defer clock.Mu.Unlock()
	if want := []time.Duration{100 * time.Millisecond}; !reflect.DeepEqual(clock.Sleeps, want) {
		t.Errorf("Expected snapshot pauses %v, got %v", want, clock.Sleeps)
	}
}

func TestRouter_SubscribeUnknownSymbol(t *testing.T) {
	r, reg, _ := setupRouter(t)
	sink := connect(t, r)

	r.HandleMessage(sink, []byte(`{"type":"SUBSCRIBE_MARKET_DATA","symbols":["BTC/USD","DOGE/USD"]}`))

	// welcome + ack + per-symbol error + one snapshot for the known symbol
	events := waitForEvents(t, sink, 4)

	errMsg := events[2].(protocol.Error)
	if errMsg.Message != "Symbol DOGE/USD not available" {
		t.Errorf("Unexpected error message %q", errMsg.Message)
	}
	if errMsg.Symbol != "DOGE/USD" {
		t.Errorf("Error should name the offending symbol, got %q", errMsg.Symbol)
	}

	snap := events[3].(protocol.SnapshotMarketData)
	if snap.Symbol != "BTC/USD" {
		t.Errorf("Only the known symbol gets a snapshot, got %s", snap.Symbol)
	}

	// The unknown symbol still joins the subscription set.
	want := []string{"BTC/USD", "DOGE/USD"}
	if got := reg.Subscriptions("c1"); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected subscriptions %v, got %v", want, got)
	}
}

func TestRouter_SubscribeNoSymbols(t *testing.T) {
	r, _, _ := setupRouter(t)
	sink := connect(t, r)

	r.HandleMessage(sink, []byte(`{"type":"SUBSCRIBE_MARKET_DATA","symbols":[]}`))

	errMsg := sink.Last().(protocol.Error)
	if errMsg.Message != "No symbols provided" {
		t.Errorf("Unexpected error message %q", errMsg.Message)
	}
}

func TestRouter_Unsubscribe(t *testing.T) {
	r, _, _ := setupRouter(t)
	sink := connect(t, r)
	r.HandleMessage(sink, []byte(`{"type":"SUBSCRIBE_MARKET_DATA","symbols":["BTC/USD","ETH/USD"]}`))

	r.HandleMessage(sink, []byte(`{"type":"UNSUBSCRIBE_MARKET_DATA","symbols":["ETH/USD","GOOG"]}`))

	var ack protocol.UnsubscribeAck
	found := false
	for _, e := range waitForEvents(t, sink, 3) {
		if a, ok := e.(protocol.UnsubscribeAck); ok {
			ack, found = a, true
		}
	}
	if !found {
		t.Fatalf("Expected an unsubscribe ack, got %v", sink.Types())
	}
	if want := []string{"ETH/USD", "GOOG"}; !reflect.DeepEqual(ack.UnsubscribedSymbols, want) {
		t.Errorf("Ack should echo the requested symbols, got %v", ack.UnsubscribedSymbols)
	}
	if want := []string{"BTC/USD"}; !reflect.DeepEqual(ack.RemainingSubscriptions, want) {
		t.Errorf("Expected remaining %v, got %v", want, ack.RemainingSubscriptions)
	}
}

func TestRouter_HeartbeatAndPing(t *testing.T) {
	r, _, _ := setupRouter(t)
	sink := connect(t, r)

	r.HandleMessage(sink, []byte(`{"type":"HEARTBEAT"}`))
	r.HandleMessage(sink, []byte(`{"type":"PING"}`))

	want := []string{protocol.TypeWelcome, protocol.TypeHeartbeatAck, protocol.TypePong}
	if got := sink.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRouter_InvalidJSON(t *testing.T) {
	r, _, _ := setupRouter(t)
	sink := connect(t, r)

	r.HandleMessage(sink, []byte(`{not json`))

	errMsg := sink.Last().(protocol.Error)
	if errMsg.Message != "Invalid JSON format" {
		t.Errorf("Unexpected error message %q", errMsg.Message)
	}
}

func TestRouter_UnknownMessageType(t *testing.T) {
	r, _, _ := setupRouter(t)
	sink := connect(t, r)

	r.HandleMessage(sink, []byte(`{"type":"MAKE_COFFEE"}`))

	errMsg := sink.Last().(protocol.Error)
	if errMsg.Message != "Unknown message type: MAKE_COFFEE" {
		t.Errorf("Unexpected error message %q", errMsg.Message)
	}
}

func TestRouter_PlaceOrderAcksBeforePipeline(t *testing.T) {
	r, _, _ := setupRouter(t)
	sink := connect(t, r)

	r.HandleMessage(sink, []byte(`{"type":"PLACE_ORDER","order":{"symbol":"BTC/USD","side":"BUY","quantity":1}}`))

	// The ack is synchronous, so it is recorded before any pipeline event.
	events := sink.Recorded()
	if len(events) < 2 {
		t.Fatalf("Expected ack immediately after dispatch, got %v", sink.Types())
	}
	ack := events[1].(protocol.OrderAck)
	if ack.Status != protocol.StatusReceived {
		t.Errorf("Expected RECEIVED status, got %s", ack.Status)
	}
	if !strings.HasPrefix(ack.OrderID, "ORD-") {
		t.Errorf("Expected ORD- prefixed order id, got %s", ack.OrderID)
	}

	// The fallback rand (0.5) passes risk and fills, so the run terminates
	// with a fill carrying the same order id.
	events = waitForEvents(t, sink, 6)
	filled, ok := events[len(events)-1].(protocol.OrderFilled)
	if !ok {
		t.Fatalf("Expected terminal fill, got %v", sink.Types())
	}
	if filled.OrderID != ack.OrderID {
		t.Errorf("Fill order id %s does not match ack %s", filled.OrderID, ack.OrderID)
	}
}

func TestRouter_PlaceOrderWithoutBodyStillAcks(t *testing.T) {
	r, _, _ := setupRouter(t)
	sink := connect(t, r)

	r.HandleMessage(sink, []byte(`{"type":"PLACE_ORDER"}`))

	// Ack first, then the pipeline fails validation on the empty symbol.
	events := waitForEvents(t, sink, 3)
	if _, ok := events[1].(protocol.OrderAck); !ok {
		t.Fatalf("Expected ack, got %T", events[1])
	}
	oe, ok := events[2].(protocol.OrderError)
	if !ok {
		t.Fatalf("Expected order error, got %T", events[2])
	}
	if oe.ErrorCode != protocol.CodeInvalidOrderFormat {
		t.Errorf("Expected INVALID_ORDER_FORMAT, got %s", oe.ErrorCode)
	}
}
