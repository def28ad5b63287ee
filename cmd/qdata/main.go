package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qdata-project/qdata/internal/audit"
	"github.com/qdata-project/qdata/internal/auth/ratelimit"
	"github.com/qdata-project/qdata/internal/auth/service"
	"github.com/qdata-project/qdata/internal/auth/store"
	"github.com/qdata-project/qdata/internal/config"
	"github.com/qdata-project/qdata/internal/logger"
	"github.com/qdata-project/qdata/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to main config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	if err := os.MkdirAll(filepath.Dir(cfg.Data.DatabaseFile), 0o755); err != nil {
		zlog.Fatal("Failed to create data directory", zap.Error(err))
	}

	db, err := store.NewSQLiteStore(cfg.Data.DatabaseFile)
	if err != nil {
		zlog.Fatal("Failed to open store", zap.Error(err))
	}
	defer db.Close()

	events := buildEventLog(cfg, zlog)
	defer events.Close()

	limiter := ratelimit.New(ratelimit.Config{
		MaxAttempts: cfg.Auth.MaxLoginAttempts,
		Window:      cfg.Auth.AttemptWindow,
		Lockout:     cfg.Auth.LockoutDuration,
	})
	limiter.StartCleanup(cfg.Auth.LockoutDuration)
	defer limiter.Close()

	svc := service.New(db, db, limiter, events, zlog, service.Config{
		SessionTTL:        cfg.Auth.SessionTTL,
		InactivityTimeout: cfg.Auth.InactivityTimeout,
		SweepInterval:     cfg.Auth.SweepInterval,
	})
	svc.StartSweeper()
	defer svc.Close()

	srv := server.New(cfg.Server, svc, events, zlog)
	runServer(srv, zlog)
}

// buildEventLog wires the audit sink, with email alerting when configured.
func buildEventLog(cfg *config.Qdata, zlog *zap.Logger) *audit.Log {
	var alerter audit.Alerter
	if cfg.Alerting.Enabled {
		emailAlerter, err := audit.NewEmailAlerter(audit.AlertingConfig{
			Enabled:   cfg.Alerting.Enabled,
			SMTPHost:  cfg.Alerting.SMTPHost,
			SMTPPort:  cfg.Alerting.SMTPPort,
			FromEmail: cfg.Alerting.FromEmail,
			FromPass:  cfg.Alerting.FromPass,
			ToEmails:  cfg.Alerting.ToEmails,
		}, zlog)
		if err != nil {
			zlog.Fatal("Failed to initialize email alerter", zap.Error(err))
		}
		alerter = emailAlerter
	}

	return audit.NewLog(cfg.Audit.Path, audit.Rotation{
		MaxSizeMB:  cfg.Audit.Rotation.MaxSizeMB,
		MaxBackups: cfg.Audit.Rotation.MaxBackups,
		MaxAgeDays: cfg.Audit.Rotation.MaxAgeDays,
		Compress:   cfg.Audit.Rotation.Compress,
	}, zlog, alerter)
}

// runServer starts the server and blocks until a shutdown signal or a server
// error, then drains gracefully.
func runServer(srv *server.Server, zlog *zap.Logger) {
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zlog.Warn("Shutdown signal received. Initializing graceful shutdown")
	case err := <-errChan:
		zlog.Fatal("Server error triggered shutdown", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal("Error during shutdown", zap.Error(err))
	}
	zlog.Info("Server shutdown completed")
}
