package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/qdata-project/qdata/internal/audit"
	autherr "github.com/qdata-project/qdata/internal/auth"
	"github.com/qdata-project/qdata/internal/auth/fingerprint"
	"github.com/qdata-project/qdata/internal/auth/models"
)

type setupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Pin      string `json:"pin"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyPinRequest struct {
	Pin string `json:"pin"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Pin      string `json:"pin"`
}

type userResponse struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

func (s *Server) handleCheckSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	complete, err := s.svc.IsSetupComplete()
	if err != nil {
		s.internalError(w, "check setup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"setupComplete": complete})
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" || req.Pin == "" {
		http.Error(w, "Username, password, and PIN are required", http.StatusBadRequest)
		return
	}

	// The bootstrap path caps usernames tighter than the general policy.
	if len(req.Username) < 3 || len(req.Username) > 20 {
		http.Error(w, "Username must be 3-20 characters", http.StatusBadRequest)
		return
	}

	admin, err := s.svc.CreateAdminUser(req.Username, req.Password, req.Pin)
	if err != nil {
		var verr *autherr.ValidationError
		switch {
		case errors.Is(err, autherr.ErrAdminExists):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.As(err, &verr):
			http.Error(w, verr.Reason, http.StatusBadRequest)
		default:
			s.internalError(w, "setup failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Admin account created successfully",
		"user":    userResponse{ID: admin.ID, Username: admin.Username, Role: admin.Role},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	ip := clientIP(r)
	user, err := s.svc.AuthenticateUser(req.Username, req.Password, ip)
	if err != nil {
		var rlErr *autherr.RateLimitError
		if errors.As(err, &rlErr) {
			if retry := rlErr.RetryAfter(time.Now()); retry > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds()+0.999)))
			}
			http.Error(w, rlErr.Message, http.StatusTooManyRequests)
			return
		}
		s.internalError(w, "login failed", err)
		return
	}
	if user == nil {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	// Session starts with the PIN stage still pending.
	session, err := s.svc.CreateSession(user, false, ip, fingerprint.FromRequest(r))
	if err != nil {
		s.internalError(w, "session creation failed", err)
		return
	}

	setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"requiresPin": true,
		"user":        userResponse{ID: user.ID, Username: user.Username, Role: user.Role},
	})
}

func (s *Server) handleVerifyPin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session := sessionFromContext(r)

	var req verifyPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Pin == "" {
		http.Error(w, "PIN is required", http.StatusBadRequest)
		return
	}

	ok, err := s.svc.VerifyUserPin(session.UserID, req.Pin)
	if err != nil {
		s.internalError(w, "pin verification failed", err)
		return
	}
	if !ok {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	if err := s.svc.UpdateSessionPinVerification(session.SessionID, true); err != nil {
		s.internalError(w, "pin verification failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session := sessionFromContext(r)

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"pinVerified":   session.PinVerified,
		"user": userResponse{
			ID:       session.UserID,
			Username: session.Username,
			Role:     session.Role,
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session := sessionFromContext(r)

	if err := s.svc.Logout(session.SessionID); err != nil {
		s.internalError(w, "logout failed", err)
		return
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users, err := s.svc.GetAllUsers()
	if err != nil {
		s.internalError(w, "listing users failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session := sessionFromContext(r)

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" || req.Pin == "" {
		http.Error(w, "Username, password, and PIN are required", http.StatusBadRequest)
		return
	}

	user, err := s.svc.CreateUser(req.Username, req.Password, req.Pin, session.Username)
	if err != nil {
		var verr *autherr.ValidationError
		switch {
		case errors.Is(err, autherr.ErrUsernameTaken):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.As(err, &verr):
			http.Error(w, verr.Reason, http.StatusBadRequest)
		default:
			s.internalError(w, "user creation failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User created successfully",
		"user":    userResponse{ID: user.ID, Username: user.Username, Role: user.Role},
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := audit.Filter{
		Type:     models.EventType(r.URL.Query().Get("type")),
		Username: r.URL.Query().Get("username"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": s.events.Query(filter)})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func setSessionCookie(w http.ResponseWriter, session *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.SessionID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
