package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gate-api/internal/models"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
)

type managerMetrics interface {
	sessionMetrics
	SessionOpened()
	SessionClosed()
}

// ManagerParams groups SessionManager dependencies.
type ManagerParams struct {
	Registrar Registrar
	Camera    CameraStream
	Radio     RadioOpener
	Metrics   managerMetrics
	Logger    *zap.Logger
	Now       func() time.Time
	Config    Config
	IdleTTL   time.Duration
}

// SessionManager owns all live scan sessions, keyed by id. Sessions that
// go quiet longer than the idle TTL are finalized by the reaper so a
// station that disappears does not hold the camera or radio forever.
type SessionManager struct {
	registrar Registrar
	camera    CameraStream
	radio     RadioOpener
	metrics   managerMetrics
	logger    *zap.Logger
	now       func() time.Time
	cfg       Config
	idleTTL   time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager constructs an empty manager.
func NewSessionManager(params ManagerParams) *SessionManager {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	idleTTL := params.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &SessionManager{
		registrar: params.Registrar,
		camera:    params.Camera,
		radio:     params.Radio,
		metrics:   params.Metrics,
		logger:    logger,
		now:       now,
		cfg:       params.Config,
		idleTTL:   idleTTL,
		sessions:  make(map[string]*Session),
	}
}

// Create opens a session for one access mode and activates the requested
// channel. The session is torn down again when the channel cannot be
// acquired, so a failed start never leaks an idle entry.
func (m *SessionManager) Create(ctx context.Context, mode models.AccessMode, channel models.ScanChannel, operator models.OperatorContext) (*Session, error) {
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown access mode")
	}

	session := NewSession(SessionParams{
		ID:        uuid.NewString(),
		Mode:      mode,
		Operator:  operator,
		Registrar: m.registrar,
		Camera:    m.camera,
		Radio:     m.radio,
		Metrics:   m.metrics,
		Logger:    m.logger,
		Now:       m.now,
		Config:    m.cfg,
	})

	if err := session.Start(ctx, channel); err != nil {
		session.Finalize()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	m.logger.Info("scan session opened",
		zap.String("session_id", session.ID()),
		zap.String("mode", string(mode)),
		zap.String("channel", string(channel)))
	return session, nil
}

// Get returns a live session by id.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return session, nil
}

// Finalize tears a session down and removes it from the registry.
func (m *SessionManager) Finalize(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}

	session.Finalize()
	if m.metrics != nil {
		m.metrics.SessionClosed()
	}
	m.logger.Info("scan session closed", zap.String("session_id", id))
	return nil
}

// ReapIdle finalizes sessions with no activity inside the idle TTL and
// returns how many were removed.
func (m *SessionManager) ReapIdle() int {
	cutoff := m.now().UTC().Add(-m.idleTTL)

	m.mu.Lock()
	var stale []*Session
	for id, session := range m.sessions {
		if session.LastActivity().Before(cutoff) {
			stale = append(stale, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range stale {
		session.Finalize()
		if m.metrics != nil {
			m.metrics.SessionClosed()
		}
		m.logger.Info("idle scan session reaped", zap.String("session_id", session.ID()))
	}
	return len(stale)
}

// StartReaper runs ReapIdle on a fixed interval until the context ends.
func (m *SessionManager) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ReapIdle()
			}
		}
	}()
}

// Shutdown finalizes every live session.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, session := range m.sessions {
		sessions = append(sessions, session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		session.Finalize()
		if m.metrics != nil {
			m.metrics.SessionClosed()
		}
	}
}
