package browser

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
)

// Session wraps one live browser-driver connection. It is owned by the
// Manager and borrowed by exactly one lane at a time; commands on it are
// never issued concurrently.
type Session struct {
	id        string
	createdAt time.Time
	drv       schemas.Driver
	logger    *zap.Logger

	mu         sync.Mutex
	lastActive time.Time
	health     schemas.Health
	closed     bool

	closeFn func()
	onClose func()
}

// NewSession wraps a driver in a session shell. closeFn releases the
// underlying browser resources; onClose notifies the owning manager.
// Exposed so tests can build sessions around fake drivers.
func NewSession(drv schemas.Driver, logger *zap.Logger, closeFn func()) *Session {
	id := uuid.New().String()
	return &Session{
		id:         id,
		createdAt:  time.Now(),
		lastActive: time.Now(),
		drv:        drv,
		logger:     logger.With(zap.String("session_id", id)),
		closeFn:    closeFn,
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string { return s.id }

// Driver exposes the command surface of the underlying browser connection.
func (s *Session) Driver() schemas.Driver { return s.drv }

// CreatedAt reports when the underlying browser instance was started.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Observe folds an observed health state into the session. Health only moves
// toward Dead: a session seen degraded never reports healthy again, and a
// dead session stays dead.
func (s *Session) Observe(h schemas.Health) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h > s.health {
		s.logger.Debug("Session health transition.",
			zap.Stringer("from", s.health), zap.Stringer("to", h))
		s.health = h
	}
}

// HealthState returns the session's current health.
func (s *Session) HealthState() schemas.Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// Close releases the underlying browser resources. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.health = schemas.Dead
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	if s.closeFn != nil {
		s.closeFn()
	}
	if s.onClose != nil {
		s.onClose()
	}
}
