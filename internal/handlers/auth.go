package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wellnest/apiserver/internal/logging"
	"github.com/wellnest/apiserver/internal/services"
	"github.com/wellnest/apiserver/types"
)

// AuthHandler provides registration, login and credential endpoints.
type AuthHandler struct {
	userService *services.UserService
	log         logging.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, log logging.Logger) *AuthHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &AuthHandler{
		userService: userService,
		log:         log.With("handler", "auth"),
	}
}

// AuthRouter registers auth routes on the given router. credentialLimit, if
// non-nil, wraps the unauthenticated register and login endpoints.
func AuthRouter(
	r chi.Router,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
	credentialLimit func(http.Handler) http.Handler,
	log logging.Logger,
) {
	handler := NewAuthHandler(userService, log)

	r.Group(func(r chi.Router) {
		if credentialLimit != nil {
			r.Use(credentialLimit)
		}
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
	})
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/verify", handler.Verify)
		r.Post("/change-password", handler.ChangePassword)
	})
}

// RequireAuth validates the bearer token and injects the caller identity
// into the request context. The credential store is not consulted.
func RequireAuth(userService *services.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			identity, err := userService.Authenticate(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// Register creates a new user account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.userService.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err, "Registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Verify echoes the identity carried by the caller's token.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{User: identity})
}

// ChangePassword replaces the caller's password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if err := h.userService.ChangePassword(r.Context(), identity, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, h.log, err, "Server error. Could not change password.")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password changed successfully!"})
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type VerifyResponse struct {
	User types.Identity `json:"user"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
