package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/technosupport/addaxai-connect/internal/auth"
	"github.com/technosupport/addaxai-connect/internal/tokens"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (*tokens.Claims, error)
}

// UserLookup resolves whether a user is a server admin, so the flag can be
// stamped on the request's AuthContext without a second DB round trip per
// downstream handler.
type UserLookup interface {
	IsServerAdmin(ctx context.Context, userID string) (bool, error)
}

type JWTAuth struct {
	tokens    TokenValidator
	blacklist auth.TokenBlacklist
	users     UserLookup
}

func NewJWTAuth(t TokenValidator, b auth.TokenBlacklist, u UserLookup) *JWTAuth {
	return &JWTAuth{tokens: t, blacklist: b, users: u}
}

// Middleware verifies the JWT and injects AuthContext
func (m *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenString := parts[1]

		claims, err := m.tokens.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if claims.TokenType != tokens.Access {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		blacklisted, err := m.blacklist.IsBlacklisted(r.Context(), claims.ID)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if blacklisted {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		isAdmin, err := m.users.IsServerAdmin(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ac := &AuthContext{
			UserID:        claims.UserID,
			TokenID:       claims.ID,
			IsServerAdmin: isAdmin,
		}

		ctx := WithAuthContext(r.Context(), ac)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
