package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
)

type AuthHandler struct {
	Responder
	UserRepo     repository.UserRepository
	Tokens       *TokenIssuer
	SecureCookie bool
}

func NewAuthHandler(userRepo repository.UserRepository, tokens *TokenIssuer, rs Responder) *AuthHandler {
	return &AuthHandler{Responder: rs, UserRepo: userRepo, Tokens: tokens}
}

type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token       string      `json:"token"`
	User        models.User `json:"user"`
	Permissions []string    `json:"permissions"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.Username) == "" || payload.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.UserRepo.GetByUsername(strings.TrimSpace(payload.Username))
	if err != nil || !user.CheckPassword(payload.Password) {
		writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if !user.IsActive {
		writeMessage(w, http.StatusForbidden, "Account is disabled")
		return
	}

	token, expiresAt, err := h.Tokens.Issue(user)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:       token,
		User:        *user,
		Permissions: user.EffectivePermissions(),
		ExpiresAt:   expiresAt,
	})
}

// Logout clears the session cookie. Bearer tokens are discarded client-side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "Logged out")
}

type CurrentUserResponse struct {
	models.User
	Permissions []string `json:"permissions"`
}

// CurrentUser returns the authenticated user with the union of their permissions.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, CurrentUserResponse{User: *user, Permissions: user.EffectivePermissions()})
}
