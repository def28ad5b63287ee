package service

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	autherr "github.com/qdata-project/qdata/internal/auth"
	"github.com/qdata-project/qdata/internal/auth/fingerprint"
	"github.com/qdata-project/qdata/internal/auth/models"
	"github.com/qdata-project/qdata/internal/auth/ratelimit"
	"github.com/qdata-project/qdata/internal/auth/store"
)

// recordingSink collects security events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (r *recordingSink) LogEvent(event models.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) byType(t models.EventType) []models.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SecurityEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc   *Service
	store *store.SQLiteStore
	sink  *recordingSink
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "qdata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sink := &recordingSink{}
	f := &fixture{
		store: db,
		sink:  sink,
		clock: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	f.svc = New(db, db, ratelimit.New(ratelimit.DefaultConfig()), sink, zap.NewNop(), DefaultConfig())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) createAdmin(t *testing.T) *models.User {
	t.Helper()
	admin, err := f.svc.CreateAdminUser("admin1", "StrongP@ssw0rd!2024", "7391")
	require.NoError(t, err)
	return admin
}

func testFingerprint(userAgent string) *models.Fingerprint {
	return fingerprint.Generate(fingerprint.Input{
		UserAgent:      userAgent,
		AcceptLanguage: "en-US",
		AcceptEncoding: "gzip",
	})
}

func TestSetupFlow(t *testing.T) {
	f := newFixture(t)

	complete, err := f.svc.IsSetupComplete()
	require.NoError(t, err)
	assert.False(t, complete)

	admin := f.createAdmin(t)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.NotEmpty(t, admin.ID)
	assert.NotEmpty(t, admin.Salt)
	assert.True(t, admin.IsActive)

	complete, err = f.svc.IsSetupComplete()
	require.NoError(t, err)
	assert.True(t, complete)

	_, err = f.svc.CreateAdminUser("admin2", "StrongP@ssw0rd!2024", "7391")
	assert.ErrorIs(t, err, autherr.ErrAdminExists)
}

func TestCreateAdminUserValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		username  string
		password  string
		pin       string
		wantField string
	}{
		{"bad username", "a", "StrongP@ssw0rd!2024", "7391", "username"},
		{"weak password", "admin1", "password123", "7391", "password"},
		{"sequential pin", "admin1", "StrongP@ssw0rd!2024", "1234", "pin"},
		{"repeating pin", "admin1", "StrongP@ssw0rd!2024", "1111", "pin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAdminUser(tt.username, tt.password, tt.pin)
			var verr *autherr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	f.createAdmin(t)

	user, err := f.svc.CreateUser("reader", "An0ther$trongPw!", "8264", "admin1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "admin1", user.CreatedBy)

	_, err = f.svc.CreateUser("reader", "An0ther$trongPw!", "8264", "admin1")
	assert.ErrorIs(t, err, autherr.ErrUsernameTaken)
}

func TestAuthenticateUser(t *testing.T) {
	f := newFixture(t)
	f.createAdmin(t)

	t.Run("success updates last login", func(t *testing.T) {
		user, err := f.svc.AuthenticateUser("admin1", "StrongP@ssw0rd!2024", "10.0.0.1")
		require.NoError(t, err)
		require.NotNil(t, user)
		require.NotNil(t, user.LastLogin)
		assert.True(t, user.LastLogin.Equal(f.clock))
		assert.NotEmpty(t, f.sink.byType(models.EventLoginSuccess))
	})

	t.Run("wrong password", func(t *testing.T) {
		user, err := f.svc.AuthenticateUser("admin1", "WrongP@ssw0rd!2024", "10.0.0.1")
		require.NoError(t, err)
		assert.Nil(t, user)

		failed := f.sink.byType(models.EventLoginFailed)
		require.NotEmpty(t, failed)
		assert.Equal(t, "Invalid password", failed[len(failed)-1].Details)
	})

	t.Run("unknown user is indistinguishable from wrong password", func(t *testing.T) {
		user, err := f.svc.AuthenticateUser("ghost", "StrongP@ssw0rd!2024", "10.0.0.2")
		require.NoError(t, err)
		assert.Nil(t, user)

		failed := f.sink.byType(models.EventLoginFailed)
		require.NotEmpty(t, failed)
		assert.Equal(t, "User not found or inactive", failed[len(failed)-1].Details)
	})

	t.Run("deactivated user cannot log in", func(t *testing.T) {
		user, err := f.svc.CreateUser("parked", "An0ther$trongPw!", "8264", "admin1")
		require.NoError(t, err)
		require.NoError(t, f.svc.UpdateUserStatus(user.ID, false))

		got, err := f.svc.AuthenticateUser("parked", "An0ther$trongPw!", "10.0.0.3")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestAuthenticateUserLockout(t *testing.T) {
	f := newFixture(t)
	f.createAdmin(t)

	for i := 0; i < 4; i++ {
		user, err := f.svc.AuthenticateUser("admin1", "wrong", "10.0.0.9")
		require.NoError(t, err)
		assert.Nil(t, user)
	}

	// The fifth attempt from the same address trips the lockout before the
	// password is even checked.
	_, err := f.svc.AuthenticateUser("admin1", "StrongP@ssw0rd!2024", "10.0.0.9")
	var rlErr *autherr.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.False(t, rlErr.LockoutUntil.IsZero())
	assert.NotEmpty(t, f.sink.byType(models.EventRateLimit))

	// A different address is unaffected.
	user, err := f.svc.AuthenticateUser("admin1", "StrongP@ssw0rd!2024", "10.0.0.10")
	require.NoError(t, err)
	assert.NotNil(t, user)
}

func TestVerifyUserPin(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)

	ok, err := f.svc.VerifyUserPin(admin.ID, "7391")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.VerifyUserPin(admin.ID, "7392")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.VerifyUserPin("no-such-id", "7391")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetAllUsersStripsSecrets(t *testing.T) {
	f := newFixture(t)
	f.createAdmin(t)

	users, err := f.svc.GetAllUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Empty(t, users[0].PasswordHash)
	assert.Empty(t, users[0].PinHash)
	assert.Empty(t, users[0].Salt)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)

	user, err := f.svc.CreateUser("reader", "An0ther$trongPw!", "8264", "admin1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteUser(admin.ID), autherr.ErrAdminUndeletable)
	require.NoError(t, f.svc.DeleteUser(user.ID))

	_, err = f.store.GetUserByID(user.ID)
	assert.ErrorIs(t, err, autherr.ErrUserNotFound)
}

// Changing the password must keep the stored salt, because the PIN hash is
// derived under the same salt and would otherwise stop verifying.
func TestChangeUserPasswordKeepsPinVerifiable(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)

	require.NoError(t, f.svc.ChangeUserPassword(admin.ID, "Replacement$Pw2024!"))

	user, err := f.svc.AuthenticateUser("admin1", "Replacement$Pw2024!", "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, user)

	ok, err := f.svc.VerifyUserPin(admin.ID, "7391")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChangeUserPin(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)

	assert.Error(t, f.svc.ChangeUserPin(admin.ID, "1234"))
	require.NoError(t, f.svc.ChangeUserPin(admin.ID, "8264"))

	ok, err := f.svc.VerifyUserPin(admin.ID, "8264")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.VerifyUserPin(admin.ID, "7391")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)
	fp := testFingerprint("Mozilla/5.0")

	session, err := f.svc.CreateSession(admin, false, "10.0.0.1", fp)
	require.NoError(t, err)
	assert.Len(t, session.SessionID, 64)
	assert.False(t, session.PinVerified)
	assert.True(t, session.ExpiresAt.Equal(f.clock.Add(24*time.Hour)))

	// Activity within the window refreshes the timestamp.
	f.advance(10 * time.Minute)
	got, err := f.svc.GetSession(session.SessionID, fp)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LastActivity.Equal(f.clock))

	require.NoError(t, f.svc.UpdateSessionPinVerification(session.SessionID, true))
	got, err = f.svc.GetSession(session.SessionID, fp)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.PinVerified)

	require.NoError(t, f.svc.Logout(session.SessionID))
	got, err = f.svc.GetSession(session.SessionID, fp)
	require.NoError(t, err)
	assert.Nil(t, got)

	logouts := f.sink.byType(models.EventLogout)
	require.NotEmpty(t, logouts)
	assert.Equal(t, "User logged out", logouts[len(logouts)-1].Details)
}

func TestGetSessionInactivityTimeout(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)
	fp := testFingerprint("Mozilla/5.0")

	session, err := f.svc.CreateSession(admin, true, "10.0.0.1", fp)
	require.NoError(t, err)

	f.advance(16 * time.Minute)
	got, err := f.svc.GetSession(session.SessionID, fp)
	require.NoError(t, err)
	assert.Nil(t, got)

	// The stale session is removed, not merely rejected.
	_, err = f.store.GetSession(session.SessionID)
	assert.ErrorIs(t, err, autherr.ErrSessionNotFound)

	logouts := f.sink.byType(models.EventLogout)
	require.NotEmpty(t, logouts)
	assert.Equal(t, "Session expired due to inactivity", logouts[len(logouts)-1].Details)
}

func TestGetSessionAbsoluteExpiry(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)
	fp := testFingerprint("Mozilla/5.0")

	session, err := f.svc.CreateSession(admin, true, "10.0.0.1", fp)
	require.NoError(t, err)

	// Keep the session active past its absolute cap: activity refreshes never
	// extend the 24 hour lifetime.
	for i := 0; i < 102; i++ {
		f.advance(14 * time.Minute)
		if _, err := f.svc.GetSession(session.SessionID, fp); err != nil {
			t.Fatal(err)
		}
	}

	f.advance(14 * time.Minute)
	got, err := f.svc.GetSession(session.SessionID, fp)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.store.GetSession(session.SessionID)
	assert.ErrorIs(t, err, autherr.ErrSessionNotFound)
}

func TestGetSessionFingerprintMismatch(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)

	session, err := f.svc.CreateSession(admin, true, "10.0.0.1", testFingerprint("Mozilla/5.0"))
	require.NoError(t, err)

	got, err := f.svc.GetSession(session.SessionID, testFingerprint("curl/8.0"))
	require.NoError(t, err)
	assert.Nil(t, got)

	// Hijack suspicion destroys the session outright; the original client has
	// to re-authenticate too.
	_, err = f.store.GetSession(session.SessionID)
	assert.ErrorIs(t, err, autherr.ErrSessionNotFound)

	hijacks := f.sink.byType(models.EventSessionHijackAttempt)
	require.Len(t, hijacks, 1)
	assert.Equal(t, "admin1", hijacks[0].Username)
	assert.Equal(t, "user agent mismatch", hijacks[0].Details)
}

func TestGetSessionWithoutStoredFingerprint(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)

	session, err := f.svc.CreateSession(admin, true, "10.0.0.1", nil)
	require.NoError(t, err)

	got, err := f.svc.GetSession(session.SessionID, testFingerprint("Mozilla/5.0"))
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestGetSessionUnknownID(t *testing.T) {
	f := newFixture(t)
	f.createAdmin(t)

	got, err := f.svc.GetSession("no-such-session", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCleanExpiredSessions(t *testing.T) {
	f := newFixture(t)
	admin := f.createAdmin(t)

	stale, err := f.svc.CreateSession(admin, true, "10.0.0.1", nil)
	require.NoError(t, err)

	f.advance(25 * time.Hour)
	live, err := f.svc.CreateSession(admin, true, "10.0.0.1", nil)
	require.NoError(t, err)

	n, err := f.svc.CleanExpiredSessions()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.GetSession(stale.SessionID)
	assert.ErrorIs(t, err, autherr.ErrSessionNotFound)
	_, err = f.store.GetSession(live.SessionID)
	assert.NoError(t, err)
}

// End-to-end: setup, password stage, PIN stage, then lockout after repeated
// failures from the same address.
func TestTwoStepLoginFlow(t *testing.T) {
	f := newFixture(t)
	f.createAdmin(t)
	fp := testFingerprint("Mozilla/5.0")

	user, err := f.svc.AuthenticateUser("admin1", "StrongP@ssw0rd!2024", "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, user)

	session, err := f.svc.CreateSession(user, false, "10.0.0.1", fp)
	require.NoError(t, err)
	assert.False(t, session.PinVerified)

	ok, err := f.svc.VerifyUserPin(user.ID, "7391")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.svc.UpdateSessionPinVerification(session.SessionID, true))

	got, err := f.svc.GetSession(session.SessionID, fp)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.PinVerified)

	for i := 0; i < 5; i++ {
		f.svc.AuthenticateUser("admin1", "wrong", "10.0.0.99")
	}
	_, err = f.svc.AuthenticateUser("admin1", "StrongP@ssw0rd!2024", "10.0.0.99")
	var rlErr *autherr.RateLimitError
	assert.ErrorAs(t, err, &rlErr)
}
