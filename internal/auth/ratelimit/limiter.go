// Package ratelimit tracks failed login attempts per identifier (IP address
// or username) and enforces a time-windowed lockout. State is in-memory; a
// multi-node deployment would need to move it to shared storage.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Config holds the lockout policy knobs.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// DefaultConfig matches the login policy: 5 attempts within 15 minutes, then
// a 15 minute lockout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		Lockout:     15 * time.Minute,
	}
}

// Result reports the outcome of a single Check call. Message is safe to show
// to the end user on denial.
type Result struct {
	Allowed           bool
	AttemptsRemaining int
	LockoutUntil      time.Time
	Message           string
}

type record struct {
	attempts     int
	firstAttempt time.Time
	lockoutUntil time.Time
}

// Limiter is a per-identifier attempt counter. All methods are safe for
// concurrent use; Check performs its read-modify-write under the lock so two
// concurrent failures cannot race past the lockout threshold.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	records map[string]*record
	now     func() time.Time
	done    chan struct{}
}

func New(cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = DefaultConfig().Lockout
	}
	return &Limiter{
		cfg:     cfg,
		records: make(map[string]*record),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Check registers an attempt for the identifier and reports whether it may
// proceed. Once the attempt count reaches the maximum within the window, the
// identifier is locked out and every further attempt is denied until the
// lockout passes, regardless of credential correctness.
func (l *Limiter) Check(id string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[id]

	if ok && !rec.lockoutUntil.IsZero() && now.Before(rec.lockoutUntil) {
		remaining := int(rec.lockoutUntil.Sub(now).Seconds() + 0.999)
		return Result{
			Allowed:      false,
			LockoutUntil: rec.lockoutUntil,
			Message:      fmt.Sprintf("Account locked. Try again in %d seconds", remaining),
		}
	}

	// No record yet, or the window has elapsed: start a fresh window.
	if !ok || now.Sub(rec.firstAttempt) > l.cfg.Window {
		l.records[id] = &record{attempts: 1, firstAttempt: now}
		return Result{Allowed: true, AttemptsRemaining: l.cfg.MaxAttempts - 1}
	}

	rec.attempts++
	if rec.attempts >= l.cfg.MaxAttempts {
		rec.lockoutUntil = now.Add(l.cfg.Lockout)
		return Result{
			Allowed:      false,
			LockoutUntil: rec.lockoutUntil,
			Message:      fmt.Sprintf("Too many failed attempts. Account locked for %d minutes", int(l.cfg.Lockout.Minutes())),
		}
	}

	return Result{Allowed: true, AttemptsRemaining: l.cfg.MaxAttempts - rec.attempts}
}

// Reset clears the record entirely. Called exactly once per identifier, on
// successful authentication.
func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, id)
}

// Cleanup removes entries whose lockout has passed.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, rec := range l.records {
		if !rec.lockoutUntil.IsZero() && rec.lockoutUntil.Before(now) {
			delete(l.records, id)
		}
	}
}

// StartCleanup runs Cleanup on a timer until Close is called.
func (l *Limiter) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-l.done:
				return
			}
		}
	}()
}

func (l *Limiter) Close() {
	close(l.done)
}
