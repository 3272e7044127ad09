package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/wellnest/apiserver/internal/apperr"
	"github.com/wellnest/apiserver/internal/auth"
	"github.com/wellnest/apiserver/internal/logging"
	"github.com/wellnest/apiserver/internal/store"
	"github.com/wellnest/apiserver/types"
)

const (
	minPasswordLength = 4

	msgPasswordTooLong = "Password must be at most 72 bytes long."
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// AuthResult is returned by a successful registration or login.
type AuthResult struct {
	Token string           `json:"token"`
	User  types.PublicUser `json:"user"`
}

// UserService encapsulates registration, login and credential use-cases.
type UserService struct {
	repo   UserRepository
	hasher *auth.PasswordHasher
	tokens *auth.TokenService
	log    logging.Logger
}

func NewUserService(repo UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenService, log logging.Logger) *UserService {
	if log == nil {
		log = logging.Nop()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		log:    log.With("service", "user"),
	}
}

// Register creates an account and returns a token for it.
func (s *UserService) Register(ctx context.Context, email, name, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" || password == "" {
		return AuthResult{}, apperr.Validation("Email, name and password are required")
	}
	if len(password) > auth.MaxPasswordBytes {
		return AuthResult{}, apperr.Validation(msgPasswordTooLong)
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return AuthResult{}, apperr.Conflict("Email already in use")
	} else if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, apperr.Internal("Registration failed", err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, apperr.Internal("Registration failed", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		PasswordHash: hashed,
	})
	if err != nil {
		// Lost a race with a concurrent registration for the same email.
		if errors.Is(err, store.ErrConflict) {
			return AuthResult{}, apperr.Conflict("Email already in use")
		}
		return AuthResult{}, apperr.Internal("Registration failed", err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)
	return s.issue(user, "Registration failed")
}

// Login checks credentials. Unknown email and wrong password are reported
// with the same message.
func (s *UserService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return AuthResult{}, apperr.Validation("Email and password are required")
	}
	if len(password) > auth.MaxPasswordBytes {
		return AuthResult{}, apperr.Validation(msgPasswordTooLong)
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, apperr.Auth("Invalid Email or Password")
		}
		return AuthResult{}, apperr.Internal("Login failed", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return AuthResult{}, apperr.Auth("Invalid Email or Password")
		}
		return AuthResult{}, apperr.Internal("Login failed", err)
	}

	return s.issue(user, "Login failed")
}

// ChangePassword replaces the caller's password. Existing tokens stay valid.
func (s *UserService) ChangePassword(ctx context.Context, caller types.Identity, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperr.Validation("Please provide current password and new password.")
	}
	if utf8.RuneCountInString(newPassword) < minPasswordLength {
		return apperr.Validation("New password must be at least 4 characters long.")
	}
	if len(newPassword) > auth.MaxPasswordBytes {
		return apperr.Validation("New password must be at most 72 bytes long.")
	}

	const failed = "Server error. Could not change password."
	user, err := s.repo.GetByID(ctx, caller.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("User not found.")
		}
		return apperr.Internal(failed, err)
	}

	// No stored hash can come from a password over the bcrypt limit.
	if len(currentPassword) > auth.MaxPasswordBytes {
		return apperr.Auth("Current password is incorrect.")
	}
	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperr.Auth("Current password is incorrect.")
		}
		return apperr.Internal(failed, err)
	}
	if newPassword == currentPassword {
		return apperr.Validation("New password cannot be the same as the current password.")
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(failed, err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hashed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("User not found.")
		}
		return apperr.Internal(failed, err)
	}

	s.log.Info(ctx, "password changed", "user_id", user.ID)
	return nil
}

// Authenticate verifies a bearer token and returns the identity it carries.
// The credential store is not consulted.
func (s *UserService) Authenticate(token string) (types.Identity, error) {
	identity, err := s.tokens.Verify(token)
	if err != nil {
		return types.Identity{}, apperr.Auth("Invalid or expired token")
	}
	return identity, nil
}

func (s *UserService) issue(user types.User, failed string) (AuthResult, error) {
	public := user.Public()
	token, err := s.tokens.Issue(public)
	if err != nil {
		return AuthResult{}, apperr.Internal(failed, err)
	}
	return AuthResult{Token: token, User: public}, nil
}
