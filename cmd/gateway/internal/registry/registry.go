package registry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink is the only way the rest of the gateway reaches a connection. Sends
// after Close are no-ops, never errors; nobody outside the gateway package
// touches the transport handle directly.
type Sink interface {
	ID() string
	RemoteAddr() string
	SendJSON(v interface{})
	Close()
	Closed() bool
}

type entry struct {
	sink        Sink
	connectedAt time.Time
	subs        map[string]struct{}
}

// Registry tracks every live connection and its subscription set. All maps
// are guarded by one RWMutex; subscription mutation is atomic with respect
// to concurrent snapshot reads by the broadcast loop.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*entry
	logger *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*entry),
		logger: logger,
	}
}

// Register adds a connection with an empty subscription set.
func (r *Registry) Register(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[s.ID()] = &entry{
		sink:        s,
		connectedAt: time.Now(),
		subs:        make(map[string]struct{}),
	}
	r.logger.Info("Client connected",
		zap.String("client_id", s.ID()),
		zap.String("remote_addr", s.RemoteAddr()),
		zap.Int("total", len(r.conns)))
}

// Unregister removes a connection. Unknown ids are a no-op, not an error.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return
	}
	delete(r.conns, id)
	r.logger.Info("Client disconnected",
		zap.String("client_id", id),
		zap.Int("total", len(r.conns)))
}

// Get returns the connection's sink, or ok=false if it was never registered
// or has already been removed.
func (r *Registry) Get(id string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.sink, true
}

// Subscriptions returns a sorted copy of the connection's current set.
func (r *Registry) Subscriptions(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	return sortedSymbols(e.subs)
}

// MutateSubscriptions applies add then remove under one lock so a concurrent
// reader never observes a partially-applied change. It returns the resulting
// set, sorted, and ok=false if the connection is gone.
func (r *Registry) MutateSubscriptions(id string, add, remove []string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	for _, sym := range add {
		e.subs[sym] = struct{}{}
	}
	for _, sym := range remove {
		delete(e.subs, sym)
	}
	return sortedSymbols(e.subs), true
}

// Snapshot is one connection's view handed to ForEach callbacks. Subs is a
// copy; mutating it does not touch the registry.
type Snapshot struct {
	Sink        Sink
	ConnectedAt time.Time
	Subs        map[string]struct{}
}

// ForEach calls f for every registered connection on a snapshot taken under
// the read lock, so callbacks may send, block, or mutate the registry without
// holding it up.
func (r *Registry) ForEach(f func(snap Snapshot)) {
	r.mu.RLock()
	snaps := make([]Snapshot, 0, len(r.conns))
	for _, e := range r.conns {
		subs := make(map[string]struct{}, len(e.subs))
		for sym := range e.subs {
			subs[sym] = struct{}{}
		}
		snaps = append(snaps, Snapshot{Sink: e.sink, ConnectedAt: e.connectedAt, Subs: subs})
	}
	r.mu.RUnlock()

	for _, snap := range snaps {
		f(snap)
	}
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every connection; used on graceful shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sinks := make([]Sink, 0, len(r.conns))
	for _, e := range r.conns {
		sinks = append(sinks, e.sink)
	}
	r.conns = make(map[string]*entry)
	r.mu.Unlock()

	for _, s := range sinks {
		s.Close()
	}
}

func sortedSymbols(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
