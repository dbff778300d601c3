package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shehryarbajwa/testbed/internal/browser"
	"github.com/shehryarbajwa/testbed/internal/metrics"
	"github.com/shehryarbajwa/testbed/pkg/models"
)

var (
	// ErrAcquisition wraps every launcher failure returned by Acquire.
	ErrAcquisition = errors.New("failed to acquire browser session")

	// ErrNoWorker is returned by Acquire for an empty WorkerID.
	ErrNoWorker = errors.New("worker id is required")

	// ErrManagerClosed is returned by Acquire after Close.
	ErrManagerClosed = errors.New("session manager is closed")
)

const closeConcurrency = 4

// WorkerID identifies one concurrent execution context, typically one test.
// It is only ever used as a map key.
type WorkerID string

// Session is a live browser exclusively owned by one worker. The embedded
// Driver is not safe for concurrent use; only the owning worker drives it.
type Session struct {
	browser.Driver

	ID        string
	Worker    WorkerID
	Kind      browser.Kind
	Headless  bool
	StartedAt time.Time
}

// Info returns a serializable summary of the session.
func (s *Session) Info() models.SessionInfo {
	return models.SessionInfo{
		ID:        s.ID,
		Worker:    string(s.Worker),
		Browser:   string(s.Kind),
		Headless:  s.Headless,
		StartedAt: s.StartedAt,
		URL:       s.URL(),
	}
}

// Manager binds at most one Session to each WorkerID. Sessions are created
// lazily by Acquire and destroyed by Release. Nothing in the API lists or
// addresses another worker's session.
type Manager struct {
	launcher browser.Launcher
	opts     browser.LaunchOptions
	metrics  *metrics.Recorder
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[WorkerID]*Session
	closed   bool

	// launching collapses concurrent first Acquire calls for the same worker
	// into a single launch.
	launching singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithMetrics records session lifecycle metrics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// NewManager creates a Manager that launches sessions with opts.
func NewManager(launcher browser.Launcher, opts browser.LaunchOptions, options ...Option) *Manager {
	m := &Manager{
		launcher: launcher,
		opts:     opts,
		sessions: make(map[WorkerID]*Session),
		log:      slog.Default().With("component", "session"),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Acquire returns worker's session, launching one if none is mapped. Repeated
// calls return the same *Session until Release. Launch failures are returned
// wrapped in ErrAcquisition and are never retried.
func (m *Manager) Acquire(ctx context.Context, worker WorkerID) (*Session, error) {
	if worker == "" {
		return nil, ErrNoWorker
	}
	if s, err := m.lookup(worker); s != nil || err != nil {
		return s, err
	}

	v, err, _ := m.launching.Do(string(worker), func() (any, error) {
		if s, err := m.lookup(worker); s != nil || err != nil {
			return s, err
		}
		return m.launch(ctx, worker)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) lookup(worker WorkerID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	return m.sessions[worker], nil
}

func (m *Manager) launch(ctx context.Context, worker WorkerID) (*Session, error) {
	start := time.Now()
	drv, err := m.launcher.Launch(ctx, m.opts)
	if err != nil {
		m.metrics.SessionLaunchFailed()
		m.log.Error("session launch failed", "worker", worker, "browser", m.opts.Kind, "error", err)
		return nil, fmt.Errorf("%w for worker %s: %w", ErrAcquisition, worker, err)
	}

	s := &Session{
		Driver:    drv,
		ID:        uuid.New().String(),
		Worker:    worker,
		Kind:      m.opts.Kind,
		Headless:  m.opts.Headless,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.closeDriver(s)
		return nil, ErrManagerClosed
	}
	m.sessions[worker] = s
	m.mu.Unlock()

	m.metrics.SessionLaunched(time.Since(start))
	m.log.Info("session started", "worker", worker, "session", s.ID[:8], "browser", s.Kind, "elapsed", time.Since(start))
	return s, nil
}

// Release closes worker's session and removes the mapping. It is a no-op
// when nothing is mapped and never fails; close errors are logged.
func (m *Manager) Release(worker WorkerID) {
	m.mu.Lock()
	s, ok := m.sessions[worker]
	if ok {
		delete(m.sessions, worker)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.closeDriver(s)
	m.metrics.SessionReleased()
	m.log.Info("session released", "worker", worker, "session", s.ID[:8])
}

func (m *Manager) closeDriver(s *Session) {
	if err := s.Driver.Close(); err != nil {
		m.log.Warn("session close failed", "worker", s.Worker, "session", s.ID[:8], "error", err)
	}
}

// Len reports how many workers currently hold a session.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close tears down sessions whose workers skipped Release, then closes the
// launcher. Subsequent Acquire calls fail with ErrManagerClosed. Failures
// are logged, never returned.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	leaked := make([]*Session, 0, len(m.sessions))
	for worker, s := range m.sessions {
		leaked = append(leaked, s)
		delete(m.sessions, worker)
	}
	m.mu.Unlock()

	if len(leaked) > 0 {
		m.log.Warn("closing sessions that were never released", "count", len(leaked))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(closeConcurrency)
		for _, s := range leaked {
			g.Go(func() error {
				m.closeDriver(s)
				m.metrics.SessionReleased()
				return nil
			})
		}
		_ = g.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("gave up waiting for session teardown", "error", ctx.Err())
	}

	if err := m.launcher.Close(); err != nil {
		m.log.Warn("launcher close failed", "error", err)
	}
}
