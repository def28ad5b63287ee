package models

import (
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is an identity record. PasswordHash and PinHash are PBKDF2 digests
// derived with the shared per-user Salt. Exactly one admin is created through
// the bootstrap setup path; regular users are created by an authenticated
// admin and carry CreatedBy.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	PinHash      string     `json:"-"`
	Salt         string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by,omitempty"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	IsActive     bool       `json:"is_active"`
}

// WithoutSecrets returns a copy safe to hand to the web layer.
func (u User) WithoutSecrets() User {
	u.PasswordHash = ""
	u.PinHash = ""
	u.Salt = ""
	return u
}

// Session is the ephemeral proof of authentication. Role is denormalized from
// the user at creation time and does not track later role changes. A session
// gates privileged operations only once PinVerified is true.
type Session struct {
	SessionID    string       `json:"session_id"`
	UserID       string       `json:"user_id"`
	Username     string       `json:"username"`
	Role         Role         `json:"role"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
	PinVerified  bool         `json:"pin_verified"`
	LastActivity time.Time    `json:"last_activity"`
	IPAddress    string       `json:"ip_address,omitempty"`
	Fingerprint  *Fingerprint `json:"fingerprint,omitempty"`
}

// Fingerprint is derived from client request headers at session creation and
// compared on every access to detect session reuse from a different client.
// Absent headers stay empty rather than being filled with a placeholder, so a
// client that never sent a header keeps validating as long as it stays absent.
type Fingerprint struct {
	UserAgent      string `json:"user_agent,omitempty"`
	AcceptLanguage string `json:"accept_language,omitempty"`
	AcceptEncoding string `json:"accept_encoding,omitempty"`
	Hash           string `json:"hash"`
}

type EventType string

const (
	EventLoginFailed          EventType = "login_failed"
	EventLoginSuccess         EventType = "login_success"
	EventLogout               EventType = "logout"
	EventRateLimit            EventType = "rate_limit"
	EventSessionHijackAttempt EventType = "session_hijack_attempt"
	EventSuspiciousQuery      EventType = "suspicious_query"
	EventUnauthorizedAccess   EventType = "unauthorized_access"
)

// SecurityEvent is the record handed to the audit sink for every
// authentication-relevant occurrence.
type SecurityEvent struct {
	Type      EventType `json:"type"`
	Username  string    `json:"username,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
