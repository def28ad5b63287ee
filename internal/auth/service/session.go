package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	autherr "github.com/qdata-project/qdata/internal/auth"
	"github.com/qdata-project/qdata/internal/auth/fingerprint"
	"github.com/qdata-project/qdata/internal/auth/models"
)

const sessionIDBytes = 32

// CreateSession mints a new session for a password-authenticated user. The
// session starts with pinVerified=false unless the caller has already
// completed the PIN stage.
func (s *Service) CreateSession(user *models.User, pinVerified bool, ipAddress string, fp *models.Fingerprint) (*models.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.Session{
		SessionID:    id,
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
		PinVerified:  pinVerified,
		LastActivity: now,
		IPAddress:    ipAddress,
		Fingerprint:  fp,
	}

	if err := s.sessions.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession is the request-time gate. It validates the session in order:
// existence, absolute expiry, fingerprint, inactivity; every failure deletes
// the session and returns nil. A fingerprint mismatch is treated as a
// security incident, not a normal expiry: the session is destroyed and the
// user must re-authenticate from scratch. On success the activity timestamp
// is refreshed and persisted.
func (s *Service) GetSession(sessionID string, currentFP *models.Fingerprint) (*models.Session, error) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, autherr.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	now := s.now()

	if now.After(session.ExpiresAt) {
		if err := s.sessions.DeleteSession(sessionID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if session.Fingerprint != nil && currentFP != nil {
		if res := fingerprint.Verify(session.Fingerprint, currentFP); !res.IsValid {
			s.logEvent(models.EventSessionHijackAttempt, session.Username, session.IPAddress, res.Reason)
			if err := s.sessions.DeleteSession(sessionID); err != nil {
				return nil, err
			}
			return nil, nil
		}
	}

	if now.Sub(session.LastActivity) > s.cfg.InactivityTimeout {
		if err := s.sessions.DeleteSession(sessionID); err != nil {
			return nil, err
		}
		s.logEvent(models.EventLogout, session.Username, "", "Session expired due to inactivity")
		return nil, nil
	}

	session.LastActivity = now
	if err := s.sessions.UpdateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSessionPinVerification sets the PIN-verified flag. It performs no
// lifecycle re-validation; the caller must have just passed GetSession.
// A missing session is a no-op.
func (s *Service) UpdateSessionPinVerification(sessionID string, verified bool) error {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, autherr.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	session.PinVerified = verified
	return s.sessions.UpdateSession(session)
}

// DeleteSession removes a session unconditionally; used for logout and for
// every fail-closed path in GetSession.
func (s *Service) DeleteSession(sessionID string) error {
	return s.sessions.DeleteSession(sessionID)
}

// Logout deletes the session and records the event.
func (s *Service) Logout(sessionID string) error {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil && !errors.Is(err, autherr.ErrSessionNotFound) {
		return err
	}
	if err := s.sessions.DeleteSession(sessionID); err != nil {
		return err
	}
	if session != nil {
		s.logEvent(models.EventLogout, session.Username, session.IPAddress, "User logged out")
	}
	return nil
}

// CleanExpiredSessions removes sessions past their absolute expiry.
func (s *Service) CleanExpiredSessions() (int64, error) {
	return s.sessions.DeleteExpiredSessions(s.now())
}

func generateSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
