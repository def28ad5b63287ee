// Package service orchestrates authentication and session lifecycle: the
// two-step login flow (password then PIN), session validation with
// fingerprint and inactivity checks, and the periodic expiry sweep.
package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qdata-project/qdata/internal/auth/models"
	"github.com/qdata-project/qdata/internal/auth/ratelimit"
	"github.com/qdata-project/qdata/internal/auth/store"
)

// EventSink receives structured security events for audit purposes. The audit
// subsystem sits behind this boundary.
type EventSink interface {
	LogEvent(event models.SecurityEvent)
}

// Config holds the session lifecycle policy.
type Config struct {
	SessionTTL        time.Duration // absolute cap on session lifetime
	InactivityTimeout time.Duration // idle gap after which a session dies on next access
	SweepInterval     time.Duration // how often expired sessions are removed
}

// DefaultConfig matches the shipped policy: 24 hour sessions, 15 minute
// inactivity timeout.
func DefaultConfig() Config {
	return Config{
		SessionTTL:        24 * time.Hour,
		InactivityTimeout: 15 * time.Minute,
		SweepInterval:     time.Hour,
	}
}

// Service is the authentication core exposed to the web layer. Stores, the
// rate limiter, and the event sink are injected so tests can run against
// isolated instances.
type Service struct {
	users    store.UserStore
	sessions store.SessionStore
	limiter  *ratelimit.Limiter
	events   EventSink
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time
	done     chan struct{}
}

func New(
	users store.UserStore,
	sessions store.SessionStore,
	limiter *ratelimit.Limiter,
	events EventSink,
	logger *zap.Logger,
	cfg Config,
) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultConfig().SessionTTL
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultConfig().InactivityTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	return &Service{
		users:    users,
		sessions: sessions,
		limiter:  limiter,
		events:   events,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// StartSweeper periodically removes sessions past their absolute expiry.
// Inactivity is only enforced lazily at access time: an idle session that is
// never touched again sits in the store until its 24h cap passes.
func (s *Service) StartSweeper() {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := s.CleanExpiredSessions(); err != nil {
					s.logger.Error("session sweep failed", zap.Error(err))
				} else if n > 0 {
					s.logger.Debug("swept expired sessions", zap.Int64("count", n))
				}
			case <-s.done:
				return
			}
		}
	}()
}

func (s *Service) Close() {
	close(s.done)
}

// LogUnauthorizedAccess records an attempt to reach a privileged surface
// without the required role.
func (s *Service) LogUnauthorizedAccess(username, ip, resource string) {
	s.logEvent(models.EventUnauthorizedAccess, username, ip, fmt.Sprintf("Attempted to access %s", resource))
}

func (s *Service) logEvent(t models.EventType, username, ip, details string) {
	s.events.LogEvent(models.SecurityEvent{
		Type:      t,
		Username:  username,
		IP:        ip,
		Details:   details,
		Timestamp: s.now(),
	})
}
