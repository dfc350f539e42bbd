package registry_test

import (
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/registry"
	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/testutils"
)

func setup() *registry.Registry {
	return registry.New(zap.NewNop())
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := setup()
	sink := testutils.NewMockSink("c1")

	r.Register(sink)

	got, ok := r.Get("c1")
	if !ok {
		t.Fatal("Expected registered connection to be found")
	}
	if got.ID() != "c1" {
		t.Errorf("Expected id c1, got %s", got.ID())
	}
	if subs := r.Subscriptions("c1"); len(subs) != 0 {
		t.Errorf("New connection should start with no subscriptions, got %v", subs)
	}
}

func TestRegistry_SubscriptionsAreUnion(t *testing.T) {
	r := setup()
	r.Register(testutils.NewMockSink("c1"))

	r.MutateSubscriptions("c1", []string{"BTC/USD", "ETH/USD"}, nil)
	got, ok := r.MutateSubscriptions("c1", []string{"ETH/USD", "AAPL"}, nil)

	if !ok {
		t.Fatal("Expected mutation on live connection to succeed")
	}
	want := []string{"AAPL", "BTC/USD", "ETH/USD"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected union %v, got %v", want, got)
	}
}

func TestRegistry_UnsubscribeIsDifference(t *testing.T) {
	r := setup()
	r.Register(testutils.NewMockSink("c1"))
	r.MutateSubscriptions("c1", []string{"BTC/USD", "ETH/USD"}, nil)

	// Removing a never-subscribed symbol is a no-op, not an error.
	got, ok := r.MutateSubscriptions("c1", nil, []string{"ETH/USD", "GOOG"})

	if !ok {
		t.Fatal("Expected mutation to succeed")
	}
	want := []string{"BTC/USD"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v after removal, got %v", want, got)
	}
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	r := setup()
	r.Unregister("never-registered") // must not panic

	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_MutateAfterUnregister(t *testing.T) {
	r := setup()
	r.Register(testutils.NewMockSink("c1"))
	r.Unregister("c1")

	if _, ok := r.MutateSubscriptions("c1", []string{"BTC/USD"}, nil); ok {
		t.Error("Mutation on removed connection should report not found")
	}
	if _, ok := r.Get("c1"); ok {
		t.Error("Removed connection should not be found")
	}
}

func TestRegistry_ForEachSnapshotIsolation(t *testing.T) {
	r := setup()
	r.Register(testutils.NewMockSink("c1"))
	r.MutateSubscriptions("c1", []string{"BTC/USD"}, nil)

	r.ForEach(func(snap registry.Snapshot) {
		// Mutating the snapshot copy must not touch the registry, and
		// mutating the registry from inside the callback must not deadlock.
		snap.Subs["INJECTED"] = struct{}{}
		r.MutateSubscriptions("c1", []string{"ETH/USD"}, nil)
	})

	want := []string{"BTC/USD", "ETH/USD"}
	if got := r.Subscriptions("c1"); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := setup()
	s1 := testutils.NewMockSink("c1")
	s2 := testutils.NewMockSink("c2")
	r.Register(s1)
	r.Register(s2)

	r.CloseAll()

	if r.Len() != 0 {
		t.Errorf("Expected empty registry after CloseAll, got %d", r.Len())
	}
	if !s1.Closed() || !s2.Closed() {
		t.Error("Expected all sinks closed")
	}
}

func TestRegistry_RaceCondition(t *testing.T) {
	// Run with `go test -race ./...`
	r := setup()
	r.Register(testutils.NewMockSink("c1"))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		r.MutateSubscriptions("c1", []string{"BTC/USD"}, nil)
	}()
	go func() {
		defer wg.Done()
		r.ForEach(func(snap registry.Snapshot) {
			_ = len(snap.Subs)
		})
	}()
	go func() {
		defer wg.Done()
		r.Unregister("c1")
	}()
	wg.Wait()
}
