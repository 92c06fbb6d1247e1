package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusline/comms_services/internal/platform/authz"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	AuthenticatedActorContextKey = ContextKey("authenticatedActor")
)

// AccessClaims are the claims of an access token issued by the school's identity service.
type AccessClaims struct {
	jwt.RegisteredClaims
	IsSuperAdmin bool     `json:"is_super_admin,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	BranchIDs    []string `json:"branch_ids,omitempty"`
}

// Actor converts the claims into the caller identity used by authorization checks.
func (c *AccessClaims) Actor() authz.Actor {
	return authz.Actor{
		UserID:       c.Subject,
		IsSuperAdmin: c.IsSuperAdmin,
		Permissions:  c.Permissions,
		BranchIDs:    c.BranchIDs,
	}
}

// ActorFromContext returns the actor stored by AuthMiddleware.
func ActorFromContext(ctx context.Context) (authz.Actor, bool) {
	actor, ok := ctx.Value(AuthenticatedActorContextKey).(authz.Actor)
	return actor, ok && actor.UserID != ""
}

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor authz.Actor) context.Context {
	return context.WithValue(ctx, AuthenticatedActorContextKey, actor)
}

// IssueAccessToken signs an HS256 access token for actor.
func IssueAccessToken(secret []byte, actor authz.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		IsSuperAdmin: actor.IsSuperAdmin,
		Permissions:  actor.Permissions,
		BranchIDs:    actor.BranchIDs,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAccessToken validates an HS256 access token and returns its claims.
func ParseAccessToken(secret []byte, tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware authenticates requests carrying a Bearer access token.
func AuthMiddleware(secret []byte, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(r.Context(), "Authorization header missing or malformed")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			claims, err := ParseAccessToken(secret, tokenString)
			if err != nil {
				logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), claims.Actor())))
		})
	}
}

// WorkerAuthMiddleware authenticates the delivery worker by comparing its Bearer token with a bcrypt hash.
// With no hash configured every request is rejected.
func WorkerAuthMiddleware(tokenHash string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || tokenHash == "" {
				logger.WarnContext(r.Context(), "Worker token missing or worker auth not configured")
				http.Error(w, "Worker token required", http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				logger.WarnContext(r.Context(), "Worker token rejected", "error", err)
				http.Error(w, "Invalid worker token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), authz.System)))
		})
	}
}
