package middleware

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type contextKey string

const (
	AuthContextKey contextKey = "auth_context"
)

// AuthContext holds the authenticated caller's identity. Project-level
// permissions are resolved on demand through internal/authz, not carried
// here, so the cache used for those lookups stays shared across requests.
type AuthContext struct {
	UserID        string
	TokenID       string // jti
	IsServerAdmin bool
}

func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	val, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return val, ok
}

func WithAuthContext(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, auth)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, error) {
	ac, ok := GetAuthContext(ctx)
	if !ok {
		return uuid.Nil, fmt.Errorf("no auth context found")
	}
	uid, err := uuid.Parse(ac.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id in context: %w", err)
	}
	return uid, nil
}
