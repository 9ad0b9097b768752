package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"reelpost/internal/database"
	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

// LoginRequest carries the admin password.
type LoginRequest struct {
	Password string `json:"password"`
}

// SetupRequest creates the initial admin password.
type SetupRequest struct {
	Password string `json:"password"`
}

// PasswordChangeRequest rotates the admin password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthResponse is the response from authentication endpoints.
type AuthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"` // Seconds until session expires
}

// SessionCookieName is the name of the session cookie.
const SessionCookieName = "reelpost_session"

// CheckSetupRequired returns whether initial setup is needed
func (h *Handlers) CheckSetupRequired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	needsSetup := !h.db.HasUsers(ctx)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]bool{
		"needsSetup": needsSetup,
	})
}

// Setup creates the initial password
func (h *Handlers) Setup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Only allow setup if no users exist
	if h.db.HasUsers(ctx) {
		http.Error(w, "Setup already completed", http.StatusForbidden)
		return
	}

	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Password) < 6 {
		http.Error(w, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	if len(req.Password) > 72 {
		http.Error(w, "Password must not exceed 72 characters", http.StatusBadRequest)
		return
	}

	if err := h.db.CreateUser(ctx, req.Password); err != nil {
		logging.Error("Failed to create user: %v", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	logging.Info("Initial password configured")

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success: true,
		Message: "Password configured successfully",
	})
}

// Login authenticates with password
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.db.ValidatePassword(ctx, req.Password)
	if err != nil {
		logging.Warn("Failed login attempt")
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()

	session, err := h.db.CreateSession(ctx, user.ID)
	if err != nil {
		logging.Error("Failed to create session: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	logging.Info("Admin logged in, session expires in %v", database.GetSessionDuration())

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success:   true,
		ExpiresIn: int(database.GetSessionDuration().Seconds()),
	})
}

// Logout ends the current session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(SessionCookieName)
	if err == nil && cookie.Value != "" {
		// Best-effort session cleanup, logout still succeeds if this errors
		if err := h.db.DeleteSession(ctx, cookie.Value); err != nil {
			logging.Error("failed to delete session during logout: %v", err)
		}
	}

	clearSessionCookie(w)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// CheckAuth verifies the current session
func (h *Handlers) CheckAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err := h.db.ValidateSession(ctx, cookie.Value); err != nil {
		clearSessionCookie(w)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success:   true,
		ExpiresIn: int(database.GetSessionDuration().Seconds()),
	})
}

// ChangePassword rotates the admin password after verifying the current one.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PasswordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := h.db.ValidatePassword(ctx, req.CurrentPassword); err != nil {
		logging.Warn("Failed password change attempt")
		http.Error(w, "Current password is incorrect", http.StatusUnauthorized)
		return
	}

	if len(req.NewPassword) < 6 {
		http.Error(w, "New password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	if len(req.NewPassword) > 72 {
		http.Error(w, "New password must not exceed 72 characters", http.StatusBadRequest)
		return
	}

	if err := h.db.UpdatePassword(ctx, req.NewPassword); err != nil {
		logging.Error("Failed to update password: %v", err)
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	// Password changes revoke every session, including this one
	clearSessionCookie(w)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success: true,
		Message: "Password updated, please log in again",
	})
}

// AuthMiddleware protects routes that require authentication
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if _, err := h.db.ValidateSession(ctx, cookie.Value); err != nil {
			clearSessionCookie(w)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Sliding expiration
		if err := h.db.ExtendSession(ctx, cookie.Value); err != nil {
			logging.Debug("Failed to extend session: %v", err)
		} else {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    cookie.Value,
				Path:     "/",
				Expires:  time.Now().Add(database.GetSessionDuration()),
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
			})
		}

		next.ServeHTTP(w, r)
	})
}

func isPublicPath(path string) bool {
	if strings.HasPrefix(path, "/api/auth/") {
		return true
	}
	switch path {
	case "/health", "/healthz", "/livez", "/readyz", "/version":
		return true
	}
	return false
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
