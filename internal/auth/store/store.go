// Package store persists users and sessions. The interfaces isolate the
// storage mechanism from the authenticator and session manager so persistence
// can be swapped without touching core logic.
package store

import (
	"time"

	"github.com/qdata-project/qdata/internal/auth/models"
)

// UserStore is the persisted collection of user records. Lookups for missing
// rows return autherr.ErrUserNotFound; infrastructure failures surface as
// distinct errors, never as a not-found.
type UserStore interface {
	CreateUser(user *models.User) error
	GetUserByUsername(username string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	UpdateUser(user *models.User) error
	DeleteUser(id string) error
	ListUsers() ([]models.User, error)
	HasAdmin(onlyActive bool) (bool, error)
}

// SessionStore is the persisted collection of active sessions. Missing rows
// return autherr.ErrSessionNotFound.
type SessionStore interface {
	CreateSession(session *models.Session) error
	GetSession(sessionID string) (*models.Session, error)
	UpdateSession(session *models.Session) error
	DeleteSession(sessionID string) error
	DeleteExpiredSessions(now time.Time) (int64, error)
}
