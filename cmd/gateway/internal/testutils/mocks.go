package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/protocol"
	"github.com/naphucco/fintech-trading-platform/pkg/models"
)

// MockSink simulates a connected websocket client
type MockSink struct {
	IDVal   string
	AddrVal string

	Mu     sync.Mutex
	Events []interface{}
	closed bool
}

func NewMockSink(id string) *MockSink {
	return &MockSink{IDVal: id, AddrVal: "127.0.0.1:1234"}
}

func (m *MockSink) ID() string         { return m.IDVal }
func (m *MockSink) RemoteAddr() string { return m.AddrVal }

func (m *MockSink) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.closed {
		return
	}
	m.Events = append(m.Events, v)
}

func (m *MockSink) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.closed = true
}

func (m *MockSink) Closed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.closed
}

// Recorded returns a copy of everything sent so far.
func (m *MockSink) Recorded() []interface{} {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]interface{}, len(m.Events))
	copy(out, m.Events)
	return out
}

// Types returns the wire type discriminator of each recorded event, in order.
func (m *MockSink) Types() []string {
	events := m.Recorded()
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, TypeOf(e))
	}
	return types
}

// Last returns the most recent event, or nil.
func (m *MockSink) Last() interface{} {
	events := m.Recorded()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

// TypeOf extracts the wire type discriminator from an outbound message.
func TypeOf(v interface{}) string {
	switch msg := v.(type) {
	case protocol.Welcome:
		return msg.Type
	case protocol.SubscribeAck:
		return msg.Type
	case protocol.UnsubscribeAck:
		return msg.Type
	case protocol.SnapshotMarketData:
		return msg.Type
	case protocol.BatchMarketData:
		return msg.Type
	case protocol.OrderAck:
		return msg.Type
	case protocol.OrderStatusUpdate:
		return msg.Type
	case protocol.OrderFilled:
		return msg.Type
	case protocol.OrderRejected:
		return msg.Type
	case protocol.OrderError:
		return msg.Type
	case protocol.HeartbeatAck:
		return msg.Type
	case protocol.Pong:
		return msg.Type
	case protocol.Error:
		return msg.Type
	default:
		return ""
	}
}

// ScriptRand pops pre-scripted values; when the script runs out it returns
// Fallback (default 0, which passes every simulated check).
type ScriptRand struct {
	Mu       sync.Mutex
	Script   []float64
	Fallback float64
}

func (r *ScriptRand) Float64() float64 {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if len(r.Script) == 0 {
		return r.Fallback
	}
	v := r.Script[0]
	r.Script = r.Script[1:]
	return v
}

// FakeClock never actually sleeps; it records requested durations and
// advances its own notion of now.
type FakeClock struct {
	Mu     sync.Mutex
	Time   time.Time
	Sleeps []time.Duration
}

func NewFakeClock() *FakeClock {
	return &FakeClock{Time: time.Unix(1700000000, 0)}
}

func (c *FakeClock) Now() time.Time {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.Time
}

func (c *FakeClock) Sleep(d time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Sleeps = append(c.Sleeps, d)
	c.Time = c.Time.Add(d)
}

// MockFeed records published tick updates
type MockFeed struct {
	Mu    sync.Mutex
	Ticks [][]models.InstrumentUpdate
	Err   error
}

func (f *MockFeed) PublishTick(_ context.Context, updates []models.InstrumentUpdate) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.Ticks = append(f.Ticks, updates)
	return f.Err
}

func (f *MockFeed) Close() error { return nil }

// MockAudit records order lifecycle events
type MockAudit struct {
	Mu     sync.Mutex
	Events []models.OrderEvent
}

func (a *MockAudit) Record(_ context.Context, event models.OrderEvent) {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	a.Events = append(a.Events, event)
}

func (a *MockAudit) Close() error { return nil }

func (a *MockAudit) Statuses() []string {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	out := make([]string, 0, len(a.Events))
	for _, e := range a.Events {
		out = append(out, e.Status)
	}
	return out
}

// MockNotifier records notifications
type MockNotifier struct {
	Mu     sync.Mutex
	Titles []string
	Bodies []string
}

func (n *MockNotifier) Notify(title, body string) {
	n.Mu.Lock()
	defer n.Mu.Unlock()
	n.Titles = append(n.Titles, title)
	n.Bodies = append(n.Bodies, body)
}
