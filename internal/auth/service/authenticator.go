package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	autherr "github.com/qdata-project/qdata/internal/auth"
	"github.com/qdata-project/qdata/internal/auth/credential"
	"github.com/qdata-project/qdata/internal/auth/models"
	"github.com/qdata-project/qdata/internal/auth/validation"
)

// IsSetupComplete reports whether an active admin account exists.
func (s *Service) IsSetupComplete() (bool, error) {
	return s.users.HasAdmin(true)
}

// CreateAdminUser bootstraps the single admin account during first-time
// setup. Fails with ErrAdminExists if any admin record is already present,
// active or not.
func (s *Service) CreateAdminUser(username, password, pin string) (*models.User, error) {
	hasAdmin, err := s.users.HasAdmin(false)
	if err != nil {
		return nil, err
	}
	if hasAdmin {
		return nil, autherr.ErrAdminExists
	}

	user, err := s.newUser(username, password, pin, models.RoleAdmin, "")
	if err != nil {
		return nil, err
	}

	if err := s.users.CreateUser(user); err != nil {
		return nil, err
	}

	s.logEvent(models.EventLoginSuccess, username, "", "Admin user created")
	return user, nil
}

// CreateUser registers a regular user on behalf of an authenticated admin.
func (s *Service) CreateUser(username, password, pin, createdBy string) (*models.User, error) {
	existing, err := s.users.GetUserByUsername(username)
	if err != nil && !errors.Is(err, autherr.ErrUserNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, autherr.ErrUsernameTaken
	}

	user, err := s.newUser(username, password, pin, models.RoleUser, createdBy)
	if err != nil {
		return nil, err
	}

	if err := s.users.CreateUser(user); err != nil {
		return nil, err
	}

	s.logEvent(models.EventLoginSuccess, createdBy, "", fmt.Sprintf("Created new user: %s", username))
	return user, nil
}

// newUser validates the inputs and assembles a user record with freshly
// derived credentials. The PIN hash shares the salt generated for the
// password.
func (s *Service) newUser(username, password, pin string, role models.Role, createdBy string) (*models.User, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, &autherr.ValidationError{Field: "username", Reason: err.Error()}
	}

	if strength := validation.ValidatePasswordStrength(password); !strength.IsValid {
		return nil, &autherr.ValidationError{
			Field:  "password",
			Reason: "weak password: " + strings.Join(strength.Feedback, ", "),
		}
	}

	if err := validation.ValidatePin(pin); err != nil {
		return nil, &autherr.ValidationError{Field: "pin", Reason: err.Error()}
	}

	passwordHash, salt, err := credential.HashPassword(password, "")
	if err != nil {
		return nil, err
	}
	pinHash, err := credential.HashPin(pin, salt)
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		PinHash:      pinHash,
		Salt:         salt,
		Role:         role,
		CreatedAt:    s.now(),
		CreatedBy:    createdBy,
		IsActive:     true,
	}, nil
}

// AuthenticateUser performs the password stage of login. A rate-limiter
// denial is returned as a *autherr.RateLimitError; an unknown or inactive
// user and a wrong password both return (nil, nil) so the API surface cannot
// be used for username enumeration. On success the limiter record for the
// identifier is cleared and the user's last login is updated.
//
// The limiter keys on the client IP when available, falling back to the
// username.
func (s *Service) AuthenticateUser(username, password, ipAddress string) (*models.User, error) {
	id := ipAddress
	if id == "" {
		id = username
	}

	res := s.limiter.Check(id)
	if !res.Allowed {
		s.logEvent(models.EventRateLimit, username, ipAddress, res.Message)
		return nil, &autherr.RateLimitError{LockoutUntil: res.LockoutUntil, Message: res.Message}
	}

	user, err := s.users.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, autherr.ErrUserNotFound) {
			s.logEvent(models.EventLoginFailed, username, ipAddress, "User not found or inactive")
			return nil, nil
		}
		return nil, err
	}
	if !user.IsActive {
		s.logEvent(models.EventLoginFailed, username, ipAddress, "User not found or inactive")
		return nil, nil
	}

	if !credential.VerifyPassword(password, user.PasswordHash, user.Salt) {
		s.logEvent(models.EventLoginFailed, username, ipAddress, "Invalid password")
		return nil, nil
	}

	s.limiter.Reset(id)

	now := s.now()
	user.LastLogin = &now
	if err := s.users.UpdateUser(user); err != nil {
		return nil, err
	}

	s.logEvent(models.EventLoginSuccess, username, ipAddress, "User authenticated successfully")
	return user, nil
}

// VerifyUserPin performs the PIN stage of login for an already
// password-authenticated user. Unknown and inactive users verify as false.
func (s *Service) VerifyUserPin(userID, pin string) (bool, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, autherr.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	if !user.IsActive {
		return false, nil
	}

	return credential.VerifyPin(pin, user.PinHash, user.Salt), nil
}

// GetAllUsers returns every user record with credential fields stripped.
func (s *Service) GetAllUsers() ([]models.User, error) {
	users, err := s.users.ListUsers()
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.WithoutSecrets())
	}
	return out, nil
}

// UpdateUserStatus soft-deletes or reactivates a user.
func (s *Service) UpdateUserStatus(userID string, isActive bool) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return err
	}
	user.IsActive = isActive
	return s.users.UpdateUser(user)
}

// DeleteUser removes a user record outright. Admin accounts cannot be hard
// deleted, only deactivated.
func (s *Service) DeleteUser(userID string) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user.Role == models.RoleAdmin {
		return autherr.ErrAdminUndeletable
	}
	return s.users.DeleteUser(userID)
}

// ChangeUserPassword rehashes the password under the user's existing salt so
// the PIN hash, which shares that salt, stays verifiable.
func (s *Service) ChangeUserPassword(userID, newPassword string) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return err
	}

	if strength := validation.ValidatePasswordStrength(newPassword); !strength.IsValid {
		return &autherr.ValidationError{
			Field:  "password",
			Reason: "weak password: " + strings.Join(strength.Feedback, ", "),
		}
	}

	hash, _, err := credential.HashPassword(newPassword, user.Salt)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.users.UpdateUser(user)
}

// ChangeUserPin rehashes the PIN under the user's existing salt.
func (s *Service) ChangeUserPin(userID, newPin string) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return err
	}

	if err := validation.ValidatePin(newPin); err != nil {
		return &autherr.ValidationError{Field: "pin", Reason: err.Error()}
	}

	hash, err := credential.HashPin(newPin, user.Salt)
	if err != nil {
		return err
	}
	user.PinHash = hash
	return s.users.UpdateUser(user)
}
