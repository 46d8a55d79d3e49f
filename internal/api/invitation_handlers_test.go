package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/api"
	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/middleware"
)

func TestInvitationHandler_Create_RequiresAuthContext(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &api.InvitationHandler{
		Invitations: data.InvitationModel{DB: db},
		Memberships: data.MembershipModel{DB: db},
		Users:       data.UserModel{DB: db},
	}

	body, _ := json.Marshal(map[string]string{"email": "new@example.org", "role": string(data.RoleProjectViewer)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Create() without auth context status = %d, want 401", w.Code)
	}
}

func TestInvitationHandler_Register_BootstrapsServerAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &api.InvitationHandler{
		Invitations: data.InvitationModel{DB: db},
		Memberships: data.MembershipModel{DB: db},
		Users:       data.UserModel{DB: db},
	}

	invID := uuid.New()
	invitedBy := uuid.New()
	tokenHash := sqlmock.AnyArg()
	rows := sqlmock.NewRows([]string{
		"id", "email", "project_id", "role", "token_hash", "invited_by_id", "expires_at", "used_at", "created_at",
	}).AddRow(invID, "new@example.org", nil, data.RoleProjectViewer, "irrelevant", invitedBy,
		time.Now().Add(24*time.Hour), nil, time.Now())
	mock.ExpectQuery("SELECT id, email, project_id").WithArgs(tokenHash).WillReturnRows(rows)

	mock.ExpectQuery("INSERT INTO users").WillReturnRows(
		sqlmock.NewRows([]string{"created_at", "updated_at", "password_updated_at"}).
			AddRow(time.Now(), time.Now(), time.Now()))

	mock.ExpectExec("UPDATE user_invitations").WithArgs(invID).WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(map[string]string{
		"token": "plaintext-token-value", "email": "new@example.org",
		"password": "a-strong-password", "display_name": "New Admin",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations/register", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Register() status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestInvitationHandler_Register_EmailMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &api.InvitationHandler{
		Invitations: data.InvitationModel{DB: db},
		Memberships: data.MembershipModel{DB: db},
		Users:       data.UserModel{DB: db},
	}

	rows := sqlmock.NewRows([]string{
		"id", "email", "project_id", "role", "token_hash", "invited_by_id", "expires_at", "used_at", "created_at",
	}).AddRow(uuid.New(), "invited@example.org", nil, data.RoleProjectViewer, "irrelevant", uuid.New(),
		time.Now().Add(24*time.Hour), nil, time.Now())
	mock.ExpectQuery("SELECT id, email, project_id").WillReturnRows(rows)

	body, _ := json.Marshal(map[string]string{
		"token": "plaintext-token-value", "email": "someone-else@example.org",
		"password": "a-strong-password", "display_name": "Someone Else",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations/register", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Register() with mismatched email status = %d, want 404", w.Code)
	}
}

func TestInvitationHandler_Create_WithAuthContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &api.InvitationHandler{
		Invitations: data.InvitationModel{DB: db},
		Memberships: data.MembershipModel{DB: db},
		Users:       data.UserModel{DB: db},
	}

	mock.ExpectQuery("INSERT INTO user_invitations").WillReturnRows(
		sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	body, _ := json.Marshal(map[string]string{"email": "new@example.org", "role": string(data.RoleProjectViewer)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations", bytes.NewReader(body))
	ctx := middleware.WithAuthContext(req.Context(), &middleware.AuthContext{UserID: uuid.New().String(), IsServerAdmin: true})
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Create() status = %d, body = %s", w.Code, w.Body.String())
	}
}
