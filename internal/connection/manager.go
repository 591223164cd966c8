// Package connection owns the single shared client handle to the document
// store. It establishes the connection with bounded retries, watches it with
// a heartbeat, reconnects on transient loss, and publishes lifecycle events.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mongokit/internal/events"
	"mongokit/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// Manager drives the connection state machine. All collaborators share the
// one handle it owns; only the Manager mutates connection state.
type Manager struct {
	cfg     Config
	dial    Dialer
	emitter *events.Emitter
	logger  *slog.Logger

	mu             sync.Mutex
	state          State
	client         Client
	inflight       chan struct{} // closed when the current attempt resolves
	lastErr        error
	explicit       bool // disconnect was requested by the caller
	indexesApplied bool // index declarations run once per manager lifetime
	collections    []string
	stopHeartbeat  chan struct{}
}

// Option customises a Manager.
type Option func(*Manager)

// WithDialer replaces the production dialer. Used by tests and by callers
// that need custom client options.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// NewManager creates a manager in the Disconnected state. Nothing is dialed
// until Connect is called.
func NewManager(cfg Config, emitter *events.Emitter, logger *slog.Logger, opts ...Option) *Manager {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = events.NewEmitter(logger)
	}
	m := &Manager{
		cfg:     cfg,
		dial:    MongoDialer,
		emitter: emitter,
		logger:  logger,
		state:   Disconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Events exposes the lifecycle emitter for subscribers.
func (m *Manager) Events() *events.Emitter {
	return m.emitter
}

// Database returns the shared database handle, or nil when not connected.
func (m *Manager) Database() *mongo.Database {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	return m.client.Database()
}

// Connect is idempotent: when already Connected it returns the existing
// handle, when an attempt is in flight the caller joins it, otherwise it
// starts the state machine. Concurrent callers share one attempt. A fresh
// Connect after Failed restarts with the attempt counter reset.
func (m *Manager) Connect(ctx context.Context) (*mongo.Database, error) {
	m.mu.Lock()
	switch m.state {
	case Connected:
		db := m.client.Database()
		m.mu.Unlock()
		return db, nil
	case Connecting, Reconnecting:
		// Join the in-flight attempt.
	default: // Disconnected, Failed
		m.state = Connecting
		m.explicit = false
		m.lastErr = nil
		m.inflight = make(chan struct{})
		go m.establish(m.inflight)
	}
	done := m.inflight
	m.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Connected {
		return m.client.Database(), nil
	}
	if m.lastErr != nil {
		return nil, m.lastErr
	}
	return nil, fmt.Errorf("%w: not connected", model.ErrConnection)
}

// establish runs the initial-connect retry loop and resolves the in-flight
// attempt exactly once.
func (m *Manager) establish(done chan struct{}) {
	ctx := context.Background()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		if m.disconnectRequested() {
			m.resolve(done, nil, fmt.Errorf("%w: connect aborted by disconnect", model.ErrConnection), Disconnected)
			return
		}

		client, err := m.dial(ctx, m.cfg)
		if err == nil {
			m.finishConnect(done, client, false)
			return
		}
		lastErr = err
		m.logger.Warn("connect attempt failed",
			"attempt", attempt, "max", m.cfg.MaxReconnectAttempts, "error", err)

		if attempt < m.cfg.MaxReconnectAttempts {
			time.Sleep(m.cfg.ReconnectInterval)
		}
	}

	err := errors.Join(model.ErrConnection, lastErr)
	m.resolve(done, nil, err, Failed)
	m.emitter.Emit(events.Event{Name: events.Error, Err: err})
}

func (m *Manager) disconnectRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.explicit
}

// resolve commits the outcome of an attempt and wakes every waiter.
func (m *Manager) resolve(done chan struct{}, client Client, err error, state State) {
	m.mu.Lock()
	m.client = client
	m.lastErr = err
	m.state = state
	close(done)
	m.mu.Unlock()
}

// finishConnect commits a successful dial, runs the first-connect tasks, and
// starts the heartbeat.
func (m *Manager) finishConnect(done chan struct{}, client Client, reconnect bool) {
	m.mu.Lock()
	if m.explicit {
		// Disconnect raced the successful dial; honor it.
		m.client = nil
		m.lastErr = fmt.Errorf("%w: connect aborted by disconnect", model.ErrConnection)
		m.state = Disconnected
		close(done)
		m.mu.Unlock()
		_ = client.Disconnect(context.Background())
		return
	}
	m.client = client
	m.lastErr = nil
	m.state = Connected
	stop := make(chan struct{})
	m.stopHeartbeat = stop
	applyIndexes := !m.indexesApplied
	m.indexesApplied = true
	m.mu.Unlock()

	// First-connect tasks finish before any waiter resumes, so collaborators
	// can rely on the collection cache right after Connect returns.
	ctx := context.Background()
	if err := m.RefreshCollections(ctx); err != nil {
		m.logger.Warn("collection list sync failed", "error", err)
	}
	if applyIndexes && len(m.cfg.Indexes) > 0 {
		if err := client.EnsureIndexes(ctx, m.cfg.Indexes); err != nil {
			m.logger.Warn("index creation failed", "error", err)
		}
	}

	m.mu.Lock()
	close(done)
	m.mu.Unlock()

	name := events.Connected
	if reconnect {
		name = events.Reconnected
	}
	m.emitter.Emit(events.Event{Name: name})
	m.logger.Info("connected", "database", m.cfg.Database, "reconnect", reconnect)

	go m.heartbeat(client, stop)
}

// heartbeat pings the store at a fixed interval and hands transport loss to
// the reconnect loop. It exits when the manager disconnects, fails, or a
// newer connection replaces this one.
func (m *Manager) heartbeat(client Client, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PingTimeout)
		err := client.Ping(ctx)
		cancel()
		if err == nil {
			continue
		}

		select {
		case <-stop:
			// Explicit disconnect raced the failed ping; nothing to recover.
			return
		default:
		}

		m.logger.Warn("heartbeat ping failed", "error", err)
		m.emitter.Emit(events.Event{Name: events.Error, Err: err})
		m.reconnect(client)
		return
	}
}

// reconnect runs the bounded reconnect loop after transport loss. Success
// resets the attempt counter (a fresh heartbeat starts); exhaustion is
// terminal until an explicit Connect.
func (m *Manager) reconnect(old Client) {
	m.mu.Lock()
	if m.explicit || m.state != Connected {
		m.mu.Unlock()
		return
	}
	m.state = Reconnecting
	m.client = nil
	m.inflight = make(chan struct{})
	done := m.inflight
	m.mu.Unlock()

	_ = old.Disconnect(context.Background())

	ctx := context.Background()
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		time.Sleep(m.cfg.ReconnectInterval)

		if m.disconnectRequested() {
			m.resolve(done, nil, fmt.Errorf("%w: reconnect aborted by disconnect", model.ErrConnection), Disconnected)
			return
		}

		client, err := m.dial(ctx, m.cfg)
		if err == nil {
			m.finishConnect(done, client, true)
			return
		}
		lastErr = err
		m.logger.Warn("reconnect attempt failed",
			"attempt", attempt, "max", m.cfg.MaxReconnectAttempts, "error", err)
	}

	err := errors.Join(model.ErrConnection, lastErr)
	m.resolve(done, nil, err, Failed)
	m.emitter.Emit(events.Event{Name: events.Error, Err: err})
	m.logger.Error("reconnect attempts exhausted", "attempts", m.cfg.MaxReconnectAttempts)
}

// Disconnect releases the handle and suppresses auto-reconnect. Safe to call
// when already disconnected.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Disconnected && m.client == nil {
		m.mu.Unlock()
		return nil
	}
	m.explicit = true
	client := m.client
	m.client = nil
	m.state = Disconnected
	if m.stopHeartbeat != nil {
		close(m.stopHeartbeat)
		m.stopHeartbeat = nil
	}
	m.mu.Unlock()

	var err error
	if client != nil {
		err = client.Disconnect(ctx)
	}
	m.emitter.Emit(events.Event{Name: events.Disconnected})
	m.logger.Info("disconnected", "database", m.cfg.Database)
	return err
}

// Reset drops all data for the connected database, but only when its name
// matches expectedName. The guard exists so a misconfigured caller cannot
// wipe the wrong environment.
func (m *Manager) Reset(ctx context.Context, expectedName string) error {
	m.mu.Lock()
	if m.state != Connected || m.client == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: not connected", model.ErrConnection)
	}
	if m.cfg.Database != expectedName {
		m.mu.Unlock()
		return model.Validation("reset refused: connected to %q, expected %q", m.cfg.Database, expectedName)
	}
	client := m.client
	m.mu.Unlock()

	if err := client.DropDatabase(ctx); err != nil {
		return err
	}
	m.emitter.Emit(events.Event{Name: events.Reset})
	m.logger.Info("database reset", "database", expectedName)
	return nil
}

// Collections returns the cached collection-name list. Readers treat it as
// eventually consistent; RefreshCollections forces a resync.
func (m *Manager) Collections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.collections))
	copy(out, m.collections)
	return out
}

// HasCollection reports whether name is in the cached list.
func (m *Manager) HasCollection(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.collections {
		if c == name {
			return true
		}
	}
	return false
}

// AddCollection appends a newly created collection name to the cache.
func (m *Manager) AddCollection(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.collections {
		if c == name {
			return
		}
	}
	m.collections = append(m.collections, name)
}

// RefreshCollections resynchronizes the collection-name cache from the
// remote store.
func (m *Manager) RefreshCollections(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return fmt.Errorf("%w: not connected", model.ErrConnection)
	}

	names, err := client.ListCollectionNames(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.collections = names
	m.mu.Unlock()
	return nil
}

// WithTransaction runs fn inside a session transaction, retrying only
// transient transaction failures up to the configured attempt bound.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return fmt.Errorf("%w: not connected", model.ErrConnection)
	}

	return Retry(ctx, m.cfg.TransactionAttempts, m.cfg.ReconnectInterval, IsTransientTransaction,
		func(ctx context.Context) error {
			return client.WithTransaction(ctx, fn)
		})
}
