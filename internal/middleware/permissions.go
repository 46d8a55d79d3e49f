package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ProjectAuthorizer is the subset of authz.Checker the HTTP layer depends
// on, kept as an interface so handlers can be tested against a fake.
type ProjectAuthorizer interface {
	CanRead(ctx context.Context, userID, projectID uuid.UUID) (bool, error)
	CanAdmin(ctx context.Context, userID, projectID uuid.UUID) (bool, error)
	CanAdminServer(ctx context.Context, userID uuid.UUID) (bool, error)
}

type AuthzMiddleware struct {
	checker ProjectAuthorizer
}

func NewAuthzMiddleware(checker ProjectAuthorizer) *AuthzMiddleware {
	return &AuthzMiddleware{checker: checker}
}

// RequireServerAdmin rejects any caller that is not a server admin.
func (m *AuthzMiddleware) RequireServerAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := GetAuthContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		userID, err := uuid.Parse(ac.UserID)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		allowed, err := m.checker.CanAdminServer(r.Context(), userID)
		if err != nil || !allowed {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireProjectAdmin rejects any caller that cannot administer the project
// named by the "project_id" query parameter.
func (m *AuthzMiddleware) RequireProjectAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := GetAuthContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		userID, err := uuid.Parse(ac.UserID)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		projectID, err := uuid.Parse(r.URL.Query().Get("project_id"))
		if err != nil {
			http.Error(w, "Forbidden (project_id missing)", http.StatusForbidden)
			return
		}
		allowed, err := m.checker.CanAdmin(r.Context(), userID, projectID)
		if err != nil || !allowed {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
