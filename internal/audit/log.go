// Package audit receives structured security events from the authenticator
// and session manager and appends them to a rotated JSON log. High-severity
// events are additionally pushed to an Alerter.
package audit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"

	"github.com/qdata-project/qdata/internal/auth/models"
)

// maxRecent caps the in-memory tail kept for querying, matching the log
// retention of the admin UI.
const maxRecent = 1000

// Rotation configures the on-disk event log rotation.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Log is an append-only security event log. Events are written as one JSON
// object per line; the most recent events are also held in memory for the
// admin query endpoint.
type Log struct {
	mu      sync.Mutex
	out     *lumberjack.Logger
	logger  *zap.Logger
	alerter Alerter
	recent  []models.SecurityEvent
	now     func() time.Time
}

// NewLog creates an event log writing to path. A nil alerter disables
// alerting.
func NewLog(path string, rotation Rotation, logger *zap.Logger, alerter Alerter) *Log {
	if alerter == nil {
		alerter = &NoopAlerter{}
	}
	return &Log{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			Compress:   rotation.Compress,
		},
		logger:  logger,
		alerter: alerter,
		now:     time.Now,
	}
}

// LogEvent records a security event. The timestamp is stamped here if the
// caller left it zero. Alert delivery runs off the request path.
func (l *Log) LogEvent(event models.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	l.mu.Lock()
	l.recent = append(l.recent, event)
	if len(l.recent) > maxRecent {
		l.recent = l.recent[len(l.recent)-maxRecent:]
	}
	line, err := json.Marshal(event)
	if err == nil {
		line = append(line, '\n')
		_, err = l.out.Write(line)
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Error("failed to append security event", zap.Error(err))
	}

	l.logger.Info("security event",
		zap.String("type", string(event.Type)),
		zap.String("username", event.Username),
		zap.String("ip", event.IP),
		zap.String("details", event.Details),
	)

	if isAlertable(event.Type) {
		go func() {
			if err := l.alerter.Alert(event); err != nil {
				l.logger.Error("failed to deliver security alert", zap.Error(err))
			}
		}()
	}
}

func isAlertable(t models.EventType) bool {
	return t == models.EventSessionHijackAttempt || t == models.EventRateLimit
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Type     models.EventType
	Username string
	Limit    int
}

// Query returns recent events, newest first.
func (l *Log) Query(f Filter) []models.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.SecurityEvent
	for i := len(l.recent) - 1; i >= 0; i-- {
		ev := l.recent[i]
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		if f.Username != "" && ev.Username != f.Username {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

func (l *Log) Close() error {
	return l.out.Close()
}
