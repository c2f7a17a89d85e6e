package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
	"github.com/camden-git/civicregistry/services"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// UserContextKey is the key used to store the user object in the request context.
	UserContextKey ContextKey = "user"

	// TokenCookieName is the cookie the login handler sets alongside the body token.
	TokenCookieName = "token"

	tokenIssuer = "civicregistry"
)

// TokenIssuer signs and verifies HS256 session tokens whose subject is the user id.
type TokenIssuer struct {
	Secret []byte
	TTL    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{Secret: []byte(secret), TTL: ttl, now: time.Now}
}

// Issue returns a signed token for user and its expiry.
func (ti *TokenIssuer) Issue(user *models.User) (string, time.Time, error) {
	now := ti.now()
	expiresAt := now.Add(ti.TTL)
	claims := &jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(user.ID), 10),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the user id in the subject.
func (ti *TokenIssuer) Verify(tokenString string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.Secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(ti.now))
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return uint(id), nil
}

// tokenFromRequest reads a Bearer header, falling back to the session cookie.
func tokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", errors.New("Authorization header format must be Bearer {token}")
		}
		return parts[1], nil
	}
	if c, err := r.Cookie(TokenCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errors.New("Authentication required")
}

// AuthMiddleware verifies the session token, loads the user and puts it in the request
// context. The username also becomes the actor recorded on ledger entries.
func AuthMiddleware(tokens *TokenIssuer, userRepo repository.UserRepository, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := tokenFromRequest(r)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, err.Error())
			return
		}

		userID, err := tokens.Verify(tokenString)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		user, err := userRepo.GetByID(userID)
		if err != nil {
			// deleted after the token was issued
			writeMessage(w, http.StatusUnauthorized, "User not found")
			return
		}
		if !user.IsActive {
			writeMessage(w, http.StatusForbidden, "Account is disabled")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		ctx = services.WithActor(ctx, user.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok && user != nil
}

// RequireGlobalPermission checks that the authenticated user holds a permission. It must run
// after AuthMiddleware.
func RequireGlobalPermission(requiredPermission string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		if !user.HasGlobalPermission(requiredPermission) {
			writeMessage(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires permission '%s'", requiredPermission))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAnyGlobalPermission checks that the user holds at least one of permissions.
func RequireAnyGlobalPermission(permissions []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		for _, p := range permissions {
			if user.HasGlobalPermission(p) {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeMessage(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires one of: %s", strings.Join(permissions, ", ")))
	})
}
