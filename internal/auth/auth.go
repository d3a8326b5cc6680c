// Package auth carries the calling principal explicitly on the request
// context. Handlers and services read it from there instead of from any
// process-wide session state.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	customError "github.com/segyhp/payroll-loans/pkg/errors"
	"github.com/segyhp/payroll-loans/pkg/response"

	"github.com/golang-jwt/jwt/v5"
)

// Actor is the principal on whose behalf an operation runs.
type Actor struct {
	ID    string
	Roles []string
}

// SystemActor identifies background jobs such as the payroll run.
func SystemActor(name string) Actor {
	return Actor{ID: "system:" + name, Roles: []string{"system"}}
}

type contextKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFromContext returns the actor stored on ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}

// ActorID returns the id of the actor on ctx or "anonymous".
func ActorID(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.ID != "" {
		return actor.ID
	}
	return "anonymous"
}

// Claims is the JWT payload accepted by the API.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject. Used by tooling and tests.
func IssueToken(secret []byte, subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates tokenStr and returns the actor it names.
func ParseToken(secret []byte, tokenStr string) (Actor, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Actor{}, customError.WrapUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return Actor{}, customError.WrapUnauthorized("token has no subject")
	}

	return Actor{ID: claims.Subject, Roles: claims.Roles}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// resulting Actor on the request context.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Authorization token not provided")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				response.Unauthorized(w, "Invalid Authorization header format")
				return
			}

			actor, err := ParseToken(secret, parts[1])
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
