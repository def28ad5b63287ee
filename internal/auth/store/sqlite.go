package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	autherr "github.com/qdata-project/qdata/internal/auth"
	"github.com/qdata-project/qdata/internal/auth/models"
)

// Schema for the SQLite database holding users and sessions. SQLite
// serializes writers, so row mutations are atomic with respect to concurrent
// requests without extra locking in this layer.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    pin_hash TEXT NOT NULL,
    salt TEXT NOT NULL,                  -- shared by password and PIN hashes
    role TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    created_by TEXT,                     -- absent for the bootstrap admin
    last_login DATETIME,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    username TEXT NOT NULL,
    role TEXT NOT NULL,                  -- denormalized from users at creation
    created_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL,
    pin_verified INTEGER NOT NULL DEFAULT 0,
    last_activity DATETIME NOT NULL,
    ip_address TEXT,
    fingerprint TEXT,                    -- JSON-encoded header fingerprint
    FOREIGN KEY (user_id) REFERENCES users (id)
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

// SQLiteStore implements UserStore and SessionStore over a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at dbPath,
// enables foreign keys, and ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(user *models.User) error {
	createdBy := sql.NullString{String: user.CreatedBy, Valid: user.CreatedBy != ""}
	_, err := s.db.Exec(`
        INSERT INTO users (
            id, username, password_hash, pin_hash, salt, role,
            created_at, created_by, last_login, is_active
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, user.ID, user.Username, user.PasswordHash, user.PinHash, user.Salt,
		user.Role, user.CreatedAt, createdBy, nullTime(user.LastLogin), user.IsActive)
	return err
}

// GetUserByUsername retrieves a user by username, active or not.
func (s *SQLiteStore) GetUserByUsername(username string) (*models.User, error) {
	return s.getUser(`WHERE username = ?`, username)
}

// GetUserByID retrieves a user by id.
func (s *SQLiteStore) GetUserByID(id string) (*models.User, error) {
	return s.getUser(`WHERE id = ?`, id)
}

func (s *SQLiteStore) getUser(where string, arg any) (*models.User, error) {
	var (
		user      models.User
		createdBy sql.NullString
		lastLogin sql.NullTime
	)
	err := s.db.QueryRow(`
        SELECT id, username, password_hash, pin_hash, salt, role,
               created_at, created_by, last_login, is_active
        FROM users `+where, arg).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.PinHash, &user.Salt,
		&user.Role, &user.CreatedAt, &createdBy, &lastLogin, &user.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, autherr.ErrUserNotFound
		}
		return nil, err
	}

	user.CreatedBy = createdBy.String
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return &user, nil
}

// UpdateUser persists the mutable user fields: credentials, last login, and
// active status.
func (s *SQLiteStore) UpdateUser(user *models.User) error {
	res, err := s.db.Exec(`
        UPDATE users SET
            password_hash = ?,
            pin_hash = ?,
            salt = ?,
            last_login = ?,
            is_active = ?
        WHERE id = ?
    `, user.PasswordHash, user.PinHash, user.Salt,
		nullTime(user.LastLogin), user.IsActive, user.ID)
	if err != nil {
		return err
	}
	return requireRow(res, autherr.ErrUserNotFound)
}

// DeleteUser removes a user record outright. The service layer forbids this
// for admins; the store does not re-check.
func (s *SQLiteStore) DeleteUser(id string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	return err
}

// ListUsers retrieves all user records, including credential fields; callers
// strip secrets before handing records outward.
func (s *SQLiteStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`
        SELECT id, username, password_hash, pin_hash, salt, role,
               created_at, created_by, last_login, is_active
        FROM users
        ORDER BY created_at ASC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var (
			user      models.User
			createdBy sql.NullString
			lastLogin sql.NullTime
		)
		err := rows.Scan(
			&user.ID, &user.Username, &user.PasswordHash, &user.PinHash, &user.Salt,
			&user.Role, &user.CreatedAt, &createdBy, &lastLogin, &user.IsActive,
		)
		if err != nil {
			return nil, err
		}
		user.CreatedBy = createdBy.String
		if lastLogin.Valid {
			t := lastLogin.Time
			user.LastLogin = &t
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// HasAdmin reports whether an admin user exists, optionally only counting
// active ones.
func (s *SQLiteStore) HasAdmin(onlyActive bool) (bool, error) {
	query := `SELECT COUNT(*) FROM users WHERE role = ?`
	args := []any{models.RoleAdmin}
	if onlyActive {
		query += ` AND is_active = 1`
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateSession inserts a new session record.
func (s *SQLiteStore) CreateSession(session *models.Session) error {
	fp, err := marshalFingerprint(session.Fingerprint)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
        INSERT INTO sessions (
            session_id, user_id, username, role, created_at, expires_at,
            pin_verified, last_activity, ip_address, fingerprint
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, session.SessionID, session.UserID, session.Username, session.Role,
		session.CreatedAt, session.ExpiresAt, session.PinVerified,
		session.LastActivity,
		sql.NullString{String: session.IPAddress, Valid: session.IPAddress != ""}, fp)
	return err
}

// GetSession retrieves a session by id without evaluating expiry; lifecycle
// checks belong to the session manager.
func (s *SQLiteStore) GetSession(sessionID string) (*models.Session, error) {
	var (
		session models.Session
		ip      sql.NullString
		fp      sql.NullString
	)
	err := s.db.QueryRow(`
        SELECT session_id, user_id, username, role, created_at, expires_at,
               pin_verified, last_activity, ip_address, fingerprint
        FROM sessions WHERE session_id = ?
    `, sessionID).Scan(
		&session.SessionID, &session.UserID, &session.Username, &session.Role,
		&session.CreatedAt, &session.ExpiresAt, &session.PinVerified,
		&session.LastActivity, &ip, &fp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, autherr.ErrSessionNotFound
		}
		return nil, err
	}

	session.IPAddress = ip.String
	if fp.Valid && fp.String != "" {
		var f models.Fingerprint
		if err := json.Unmarshal([]byte(fp.String), &f); err != nil {
			return nil, err
		}
		session.Fingerprint = &f
	}
	return &session, nil
}

// UpdateSession persists the mutable session fields: the PIN-verified flag
// and the activity timestamp.
func (s *SQLiteStore) UpdateSession(session *models.Session) error {
	res, err := s.db.Exec(`
        UPDATE sessions SET
            pin_verified = ?,
            last_activity = ?
        WHERE session_id = ?
    `, session.PinVerified, session.LastActivity, session.SessionID)
	if err != nil {
		return err
	}
	return requireRow(res, autherr.ErrSessionNotFound)
}

// DeleteSession removes a session unconditionally.
func (s *SQLiteStore) DeleteSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// DeleteExpiredSessions removes sessions past their absolute expiry and
// returns how many were swept. Inactivity is enforced lazily at access time,
// not here.
func (s *SQLiteStore) DeleteExpiredSessions(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func marshalFingerprint(fp *models.Fingerprint) (sql.NullString, error) {
	if fp == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(fp)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
