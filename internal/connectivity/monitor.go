// Package connectivity tracks whether the farm server is reachable.
package connectivity

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/pkg/clients/farmapi"
)

// Prober checks server reachability.
type Prober interface {
	Health(ctx context.Context) error
}

// Listener is called with the new state after every transition.
type Listener func(online bool)

// Monitor holds the online flag. A forced offline flag overrides whatever
// probes report, which is how a user pins the client to the local store.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	forced    bool
	listeners []Listener

	prober Prober
	logger *zap.Logger
}

// NewMonitor returns a monitor starting in the given state.
func NewMonitor(prober Prober, online bool, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		online: online,
		prober: prober,
		logger: logger,
	}
}

// Online reports the effective state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online && !m.forced
}

// OnChange registers a listener. Listeners run synchronously in registration order.
func (m *Monitor) OnChange(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Set records the observed network state.
func (m *Monitor) Set(online bool) {
	m.update(func() { m.online = online })
}

// ForceOffline pins the monitor offline until called with false.
func (m *Monitor) ForceOffline(forced bool) {
	m.update(func() { m.forced = forced })
}

// Probe asks the server for its health and records the result. Any response,
// even an error status, proves the server is reachable. No request is sent
// while forced offline.
func (m *Monitor) Probe(ctx context.Context) bool {
	m.mu.Lock()
	forced := m.forced
	m.mu.Unlock()
	if m.prober == nil || forced {
		return m.Online()
	}

	err := m.prober.Health(ctx)
	if ctx.Err() != nil {
		return m.Online()
	}
	if err != nil {
		m.logger.Debug("health probe failed", zap.Error(err))
	}
	m.Set(err == nil || !farmapi.IsNetworkError(err))
	return m.Online()
}

func (m *Monitor) update(mutate func()) {
	m.mu.Lock()
	before := m.online && !m.forced
	mutate()
	after := m.online && !m.forced
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if before == after {
		return
	}

	m.logger.Info("connectivity changed", zap.Bool("online", after))
	for _, fn := range listeners {
		fn(after)
	}
}
