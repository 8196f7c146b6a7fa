// Package replication keeps every local collection in step with the server:
// one live, auto-retrying, bidirectional channel per collection. Conflicts
// resolve by last-write-wins on updated_at, ties broken by revision.
package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/docstore"
	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/pkg/clients/farmapi"
)

// ErrNoRemote is returned by Start without a server address.
var ErrNoRemote = errors.New("no remote url")

// Remote is the replication surface of the server.
type Remote interface {
	Changes(ctx context.Context, token, collection string, since int64, limit int) (models.ChangesResponse, error)
	BulkDocs(ctx context.Context, token, collection string, docs []models.Document) (models.BulkDocsResponse, error)
}

// RemoteFactory builds a Remote for a server address.
type RemoteFactory func(remoteURL string) Remote

// TokenSource supplies the bearer token for every request.
type TokenSource interface {
	Token() string
}

// Options tunes channel timing.
type Options struct {
	LiveInterval time.Duration
	RetryMin     time.Duration
	RetryMax     time.Duration
	BatchSize    int
}

func (o Options) withDefaults() Options {
	if o.LiveInterval <= 0 {
		o.LiveInterval = 2 * time.Second
	}
	if o.RetryMin <= 0 {
		o.RetryMin = time.Second
	}
	if o.RetryMax < o.RetryMin {
		o.RetryMax = 10 * time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	return o
}

// Handle controls one run of every channel.
type Handle struct {
	cancel  context.CancelFunc
	stopped func()
	wg      sync.WaitGroup
	once    sync.Once
	done    chan struct{}
}

// Cancel stops every channel of the run and waits for them to exit.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()
		if h.stopped != nil {
			h.stopped()
		}
		close(h.done)
	})
}

// Done is closed once Cancel has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Status is a snapshot of the manager.
type Status struct {
	Running      bool           `json:"running"`
	RemoteURL    string         `json:"remote_url"`
	OpenChannels int            `json:"open_channels"`
	Pending      map[string]int `json:"pending"`
	PendingTotal int            `json:"pending_total"`
	CheckedAt    time.Time      `json:"checked_at"`
}

// Manager owns the replication channels.
type Manager struct {
	emitter

	registry *docstore.Registry
	factory  RemoteFactory
	tokens   TokenSource
	opts     Options
	logger   *zap.Logger

	runMu  sync.Mutex
	handle *Handle

	stateMu   sync.RWMutex
	current   *Handle
	baseCtx   context.Context
	remoteURL string

	open atomic.Int32

	pendingMu sync.RWMutex
	pending   map[string]int
	checkedAt time.Time
}

// NewManager builds a manager over the injected registry.
func NewManager(registry *docstore.Registry, factory RemoteFactory, tokens TokenSource, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry: registry,
		factory:  factory,
		tokens:   tokens,
		opts:     opts.withDefaults(),
		logger:   logger,
		pending:  make(map[string]int),
	}
}

// OnEvent registers a listener and returns its unsubscribe function.
func (m *Manager) OnEvent(fn Listener) func() {
	return m.on(fn)
}

// Start opens a channel for every registry collection against remoteURL.
// A running set of channels is stopped first. Channels stop when ctx is
// cancelled or when the returned handle is cancelled.
func (m *Manager) Start(ctx context.Context, remoteURL string) (*Handle, error) {
	if remoteURL == "" {
		return nil, ErrNoRemote
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.handle != nil {
		m.handle.Cancel()
		m.handle = nil
	}

	remote := m.factory(remoteURL)
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	h.stopped = func() {
		m.stateMu.Lock()
		if m.current == h {
			m.current = nil
		}
		m.stateMu.Unlock()
	}

	for _, name := range m.registry.Names() {
		coll, err := m.registry.Collection(name)
		if err != nil {
			h.Cancel()
			return nil, fmt.Errorf("open channel %s: %w", name, err)
		}

		h.wg.Add(1)
		m.open.Add(1)
		go m.runChannel(runCtx, h, remote, coll)
	}

	m.handle = h
	m.stateMu.Lock()
	m.current, m.baseCtx, m.remoteURL = h, ctx, remoteURL
	m.stateMu.Unlock()

	// Channels also exit when ctx is cancelled without Stop.
	go func() {
		h.wg.Wait()
		h.stopped()
	}()
	m.logger.Info("sync started", zap.String("remote", remoteURL), zap.Int("channels", len(m.registry.Names())))
	return h, nil
}

// Stop cancels every channel. It is safe to call when nothing runs.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.handle == nil {
		return
	}
	m.handle.Cancel()
	m.handle = nil
	m.logger.Info("sync stopped")
}

// SetOnline reacts to connectivity: offline stops every channel, online
// starts them again against the last remote. Nothing of the previous run
// is kept besides the persisted checkpoints.
func (m *Manager) SetOnline(online bool) {
	if !online {
		m.Stop()
		return
	}

	m.stateMu.RLock()
	ctx, remoteURL := m.baseCtx, m.remoteURL
	m.stateMu.RUnlock()

	if remoteURL == "" {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	if _, err := m.Start(ctx, remoteURL); err != nil {
		m.logger.Error("restart sync", zap.Error(err))
	}
}

// OpenChannels is the number of channel goroutines alive.
func (m *Manager) OpenChannels() int {
	return int(m.open.Load())
}

// PendingCounts computes, per collection, the local changes not yet pushed.
func (m *Manager) PendingCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(m.registry.Names()))
	for _, name := range m.registry.Names() {
		coll, err := m.registry.Collection(name)
		if err != nil {
			return nil, err
		}
		n, err := coll.PendingCount(ctx)
		if err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, nil
}

// PollPending refreshes the pending counts reported by Status.
func (m *Manager) PollPending(ctx context.Context) error {
	counts, err := m.PendingCounts(ctx)
	if err != nil {
		m.logger.Error("poll pending changes", zap.Error(err))
		return err
	}

	m.pendingMu.Lock()
	m.pending = counts
	m.checkedAt = time.Now()
	m.pendingMu.Unlock()
	return nil
}

// Status returns a snapshot using the last polled pending counts.
func (m *Manager) Status() Status {
	m.stateMu.RLock()
	running, remoteURL := m.current != nil, m.remoteURL
	m.stateMu.RUnlock()

	m.pendingMu.RLock()
	defer m.pendingMu.RUnlock()

	st := Status{
		Running:      running,
		RemoteURL:    remoteURL,
		OpenChannels: m.OpenChannels(),
		Pending:      make(map[string]int, len(m.pending)),
		CheckedAt:    m.checkedAt,
	}
	for name, n := range m.pending {
		st.Pending[name] = n
		st.PendingTotal += n
	}
	return st
}

func (m *Manager) token() string {
	if m.tokens == nil {
		return ""
	}
	return m.tokens.Token()
}

func (m *Manager) fail(name string, err error) {
	if errors.Is(err, farmapi.ErrDenied) {
		m.logger.Warn("sync denied", zap.String("collection", name), zap.Error(err))
		m.emit(Event{Type: EventDenied, Collection: name, Err: err})
		return
	}
	m.logger.Warn("sync cycle failed", zap.String("collection", name), zap.Error(err))
	m.emit(Event{Type: EventError, Collection: name, Err: err})
}
