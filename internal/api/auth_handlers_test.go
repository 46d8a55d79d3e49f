package api_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/api"
	"github.com/technosupport/addaxai-connect/internal/auth"
	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/session"
	"github.com/technosupport/addaxai-connect/internal/tokens"
)

func newAuthHandler(t *testing.T, db *sql.DB) (*api.AuthHandler, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	h := &api.AuthHandler{
		Users:    data.UserModel{DB: db},
		Tokens:   data.TokenModel{DB: db},
		Sessions: session.NewManager(mr.Addr(), ""),
		JWT:      tokens.NewManager("test-signing-key"),
	}
	return h, mr.Close
}

func TestAuthHandler_Login_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h, closeRedis := newAuthHandler(t, db)
	defer closeRedis()

	userID := uuid.New()
	hash, err := auth.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	rows := sqlmock.NewRows([]string{
		"id", "email", "display_name", "password_hash", "is_active", "is_verified",
		"is_server_admin", "password_updated_at", "created_at", "updated_at", "deleted_at",
	}).AddRow(userID, "ranger@example.org", "Ranger", hash, true, true, false, time.Now(), time.Now(), time.Now(), nil)
	mock.ExpectQuery("SELECT id, email, display_name").WithArgs("ranger@example.org").WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	body, _ := json.Marshal(map[string]string{"email": "ranger@example.org", "password": "correct horse battery staple"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Login() status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["access_token"] == "" || resp["refresh_token"] == "" {
		t.Errorf("Login() response missing tokens: %+v", resp)
	}
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h, closeRedis := newAuthHandler(t, db)
	defer closeRedis()

	hash, _ := auth.HashPassword("the-real-password")
	rows := sqlmock.NewRows([]string{
		"id", "email", "display_name", "password_hash", "is_active", "is_verified",
		"is_server_admin", "password_updated_at", "created_at", "updated_at", "deleted_at",
	}).AddRow(uuid.New(), "ranger@example.org", "Ranger", hash, true, true, false, time.Now(), time.Now(), time.Now(), nil)
	mock.ExpectQuery("SELECT id, email, display_name").WithArgs("ranger@example.org").WillReturnRows(rows)

	body, _ := json.Marshal(map[string]string{"email": "ranger@example.org", "password": "guess"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Login() status = %d, want 401", w.Code)
	}
}

func TestAuthHandler_Login_UnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h, closeRedis := newAuthHandler(t, db)
	defer closeRedis()

	mock.ExpectQuery("SELECT id, email, display_name").
		WithArgs("ghost@example.org").
		WillReturnError(data.ErrUserNotFound)

	body, _ := json.Marshal(map[string]string{"email": "ghost@example.org", "password": "anything"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Login() status = %d, want 401", w.Code)
	}
}
