package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()
	l := New(DefaultConfig())
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestCheckAllowsUpToMaxAttempts(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 4; i++ {
		res := l.Check("10.0.0.1")
		assert.True(t, res.Allowed, "attempt %d should be allowed", i+1)
		assert.Equal(t, 4-i, res.AttemptsRemaining)
	}

	// The fifth attempt trips the lockout.
	res := l.Check("10.0.0.1")
	require.False(t, res.Allowed)
	assert.Equal(t, "Too many failed attempts. Account locked for 15 minutes", res.Message)
	assert.False(t, res.LockoutUntil.IsZero())
}

func TestCheckDeniedWhileLocked(t *testing.T) {
	l, current := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		l.Check("10.0.0.1")
	}

	*current = current.Add(5 * time.Minute)
	res := l.Check("10.0.0.1")
	require.False(t, res.Allowed)
	assert.Equal(t, "Account locked. Try again in 600 seconds", res.Message)
}

func TestCheckRecoversAfterLockout(t *testing.T) {
	l, current := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		l.Check("10.0.0.1")
	}
	res := l.Check("10.0.0.1")
	require.False(t, res.Allowed)

	*current = current.Add(16 * time.Minute)
	res = l.Check("10.0.0.1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.AttemptsRemaining)
}

func TestCheckWindowExpiry(t *testing.T) {
	l, current := newTestLimiter(t)

	for i := 0; i < 4; i++ {
		l.Check("10.0.0.1")
	}

	// A fresh window starts once the old one elapses, so the counter resets
	// instead of tripping the lockout.
	*current = current.Add(16 * time.Minute)
	res := l.Check("10.0.0.1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.AttemptsRemaining)
}

func TestIdentifiersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		l.Check("10.0.0.1")
	}
	assert.False(t, l.Check("10.0.0.1").Allowed)
	assert.True(t, l.Check("10.0.0.2").Allowed)
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 4; i++ {
		l.Check("10.0.0.1")
	}
	l.Reset("10.0.0.1")

	res := l.Check("10.0.0.1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.AttemptsRemaining)
}

func TestCleanupRemovesExpiredLockouts(t *testing.T) {
	l, current := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		l.Check("locked")
	}
	l.Check("counting")

	*current = current.Add(16 * time.Minute)
	l.Cleanup()

	l.mu.Lock()
	_, lockedExists := l.records["locked"]
	_, countingExists := l.records["counting"]
	l.mu.Unlock()

	assert.False(t, lockedExists)
	// Entries without a lockout are left for the window check to supersede.
	assert.True(t, countingExists)
}
