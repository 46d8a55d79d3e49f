package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/addaxai-connect/internal/middleware"
	"github.com/technosupport/addaxai-connect/internal/tokens"
)

type MockUserLookup struct{}

func (m MockUserLookup) IsServerAdmin(ctx context.Context, userID string) (bool, error) {
	return userID == "admin-user", nil
}

type MockTokenValidator struct{}

func (m MockTokenValidator) ValidateToken(token string) (*tokens.Claims, error) {
	if token == "valid-access" {
		return &tokens.Claims{
			UserID:    "admin-user",
			TokenType: tokens.Access,
		}, nil
	}
	return nil, tokens.ErrInvalidToken
}

type MockBlacklist struct{}

func (m MockBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return jti == "revoked-jti", nil
}
func (m MockBlacklist) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	return nil
}

func TestJWTAuthMiddleware_Success(t *testing.T) {
	mw := middleware.NewJWTAuth(MockTokenValidator{}, MockBlacklist{}, MockUserLookup{})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer valid-access")
	w := httptest.NewRecorder()

	mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := middleware.GetAuthContext(r.Context())
		if !ok || ac.UserID != "admin-user" || !ac.IsServerAdmin {
			t.Errorf("AuthContext missing or invalid")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestJWTAuthMiddleware_MissingHeader(t *testing.T) {
	mw := middleware.NewJWTAuth(MockTokenValidator{}, MockBlacklist{}, MockUserLookup{})
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	mw.Middleware(nil).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

type stubAuthorizer struct {
	serverAdmins map[string]bool
	projectAdmin map[string]bool
}

func (s stubAuthorizer) CanRead(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	return true, nil
}

func (s stubAuthorizer) CanAdmin(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	return s.projectAdmin[userID.String()+":"+projectID.String()], nil
}

func (s stubAuthorizer) CanAdminServer(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.serverAdmins[userID.String()], nil
}

func TestAuthzMiddleware_RequireServerAdmin(t *testing.T) {
	admin := uuid.New()
	az := middleware.NewAuthzMiddleware(stubAuthorizer{serverAdmins: map[string]bool{admin.String(): true}})

	ctx := middleware.WithAuthContext(context.Background(), &middleware.AuthContext{UserID: admin.String()})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	az.RequireServerAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestAuthzMiddleware_RequireServerAdmin_Denied(t *testing.T) {
	other := uuid.New()
	az := middleware.NewAuthzMiddleware(stubAuthorizer{})

	ctx := middleware.WithAuthContext(context.Background(), &middleware.AuthContext{UserID: other.String()})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	az.RequireServerAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestAuthzMiddleware_RequireProjectAdmin(t *testing.T) {
	user := uuid.New()
	project := uuid.New()
	az := middleware.NewAuthzMiddleware(stubAuthorizer{
		projectAdmin: map[string]bool{user.String() + ":" + project.String(): true},
	})

	ctx := middleware.WithAuthContext(context.Background(), &middleware.AuthContext{UserID: user.String()})
	req := httptest.NewRequest("GET", "/?project_id="+project.String(), nil).WithContext(ctx)
	w := httptest.NewRecorder()

	az.RequireProjectAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
