package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/config"
)

// SpawnFunc starts one fresh browser-driver instance and wraps it in a
// Session. The production spawner launches headless Chrome via chromedp.
type SpawnFunc func(ctx context.Context) (*Session, error)

// Option configures a Manager.
type Option func(*Manager)

// WithSpawner replaces the Chrome spawner. Primarily used by tests to supply
// sessions backed by fake drivers.
func WithSpawner(fn SpawnFunc) Option {
	return func(m *Manager) { m.spawn = fn }
}

// Manager owns the lifecycle of all browser sessions: start, health-tracked
// reuse, replacement of dead instances, and clean shutdown. Each session is
// a separate Chrome process with its own profile, so no cookies or storage
// survive a replacement.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	spawn  SpawnFunc

	mu     sync.Mutex
	idle   []*Session
	live   map[string]*Session
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a session manager. Browser processes are spawned
// lazily on the first Acquire.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("session_manager"),
		live:   make(map[string]*Session),
	}
	m.spawn = m.launchChrome
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire returns a usable session, spawning a replacement when none is
// available. Failure to start the underlying driver within the bounded
// startup timeout surfaces as *schemas.SessionStartError.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("session manager is shut down")
	}

	// Reuse the most recently released non-dead session.
	for len(m.idle) > 0 {
		s := m.idle[len(m.idle)-1]
		m.idle = m.idle[:len(m.idle)-1]
		if s.HealthState() == schemas.Dead {
			m.mu.Unlock()
			s.Close()
			m.mu.Lock()
			continue
		}
		m.mu.Unlock()
		s.Touch()
		return s, nil
	}
	m.mu.Unlock()

	s, err := m.spawn(ctx)
	if err != nil {
		var startErr *schemas.SessionStartError
		if !errors.As(err, &startErr) {
			err = &schemas.SessionStartError{Err: err}
		}
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return nil, fmt.Errorf("session manager is shut down")
	}
	m.wg.Add(1)
	m.live[s.ID()] = s
	s.onClose = func() {
		m.mu.Lock()
		delete(m.live, s.ID())
		m.mu.Unlock()
		m.wg.Done()
	}
	m.mu.Unlock()

	m.logger.Info("New browser session started.", zap.String("session_id", s.ID()))
	return s, nil
}

// Release returns a borrowed session with its observed health. Dead sessions
// are discarded immediately; the next Acquire spawns a replacement.
func (m *Manager) Release(s *Session, observed schemas.Health) {
	if s == nil {
		return
	}
	s.Observe(observed)

	m.mu.Lock()
	if m.closed || s.HealthState() == schemas.Dead {
		m.mu.Unlock()
		s.Close()
		return
	}
	m.idle = append(m.idle, s)
	m.mu.Unlock()
}

// Shutdown terminates all owned sessions and waits for them to release
// their OS resources, bounded by the context. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.idle = nil
	sessions := make([]*Session, 0, len(m.live))
	for _, s := range m.live {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down session manager.", zap.Int("sessions", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close.", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// launchChrome spawns a fresh headless Chrome process with an isolated
// profile and waits for the CDP connection to come up.
func (m *Manager) launchChrome(ctx context.Context) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("no-sandbox", m.cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", m.cfg.DisableDevShm),
		chromedp.Flag("disable-gpu", true),
	)
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}
	for _, arg := range m.cfg.Args {
		opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
	}

	// The allocator hangs off the background context so the session is not
	// tied to the acquiring call; Shutdown and Session.Close tear it down.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	pageCtx, cancelPage := chromedp.NewContext(allocCtx)
	closeFn := func() {
		cancelPage()
		cancelAlloc()
	}

	startTimeout := m.cfg.StartTimeout
	if startTimeout <= 0 {
		startTimeout = 30 * time.Second
	}
	startCtx, cancelStart := context.WithTimeout(ctx, startTimeout)
	defer cancelStart()

	// chromedp.Run blocks until the browser process is up; bound it.
	startErr := make(chan error, 1)
	go func() {
		startErr <- chromedp.Run(pageCtx)
	}()

	select {
	case err := <-startErr:
		if err != nil {
			closeFn()
			return nil, &schemas.SessionStartError{Err: err}
		}
	case <-startCtx.Done():
		closeFn()
		return nil, &schemas.SessionStartError{
			Err: fmt.Errorf("browser did not start within %s: %w", startTimeout, startCtx.Err()),
		}
	}

	return NewSession(&chromeDriver{ctx: pageCtx}, m.logger, closeFn), nil
}
