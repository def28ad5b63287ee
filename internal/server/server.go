// Package server is the HTTP adapter over the authentication core. It owns
// cookie transport of the session id, header extraction for fingerprinting,
// and the mapping of core outcomes to HTTP status codes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/qdata-project/qdata/internal/audit"
	"github.com/qdata-project/qdata/internal/auth/service"
	"github.com/qdata-project/qdata/internal/config"
)

// SessionCookie carries the opaque session id between requests.
const SessionCookie = "qdata_session"

type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	svc        *service.Service
	events     *audit.Log
	limiter    *ipRateLimiter
	logger     *zap.Logger
}

func New(cfg config.Server, svc *service.Service, events *audit.Log, logger *zap.Logger) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		svc:     svc,
		events:  events,
		limiter: newIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		logger:  logger,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.rateLimit(s.securityHeaders(s.mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	// Setup and login flow, reachable without a session.
	s.mux.HandleFunc("/api/auth/check-setup", s.handleCheckSetup)
	s.mux.HandleFunc("/api/auth/setup", s.handleSetup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)

	// Session-bound routes. PIN verification itself only needs a session;
	// everything else needs the completed second factor.
	s.mux.Handle("/api/auth/verify-pin", s.requireSession(http.HandlerFunc(s.handleVerifyPin)))
	s.mux.Handle("/api/auth/session", s.requireSession(http.HandlerFunc(s.handleSession)))
	s.mux.Handle("/api/auth/logout", s.requireSession(http.HandlerFunc(s.handleLogout)))

	// Admin-only routes behind the PIN gate.
	s.mux.Handle("/api/auth/users", s.requireAdmin(http.HandlerFunc(s.handleListUsers)))
	s.mux.Handle("/api/auth/users/create", s.requireAdmin(http.HandlerFunc(s.handleCreateUser)))
	s.mux.Handle("/api/logs", s.requireAdmin(http.HandlerFunc(s.handleLogs)))
}

func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
