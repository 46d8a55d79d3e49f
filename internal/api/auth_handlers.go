// Package api holds the HTTP handlers for the server's public AuthZ
// surface: login, token refresh, logout, and invitation-based registration.
// Everything else in the spec is reached through queue consumers, not HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/auth"
	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/middleware"
	"github.com/technosupport/addaxai-connect/internal/session"
	"github.com/technosupport/addaxai-connect/internal/tokens"
)

const refreshTokenTTL = 7 * 24 * time.Hour

// AuthHandler implements login/refresh/logout against the user and
// refresh-token tables, backed by Redis for session bookkeeping and
// brute-force lockout.
type AuthHandler struct {
	Users    data.UserModel
	Tokens   data.TokenModel
	Sessions *session.Manager
	JWT      *tokens.Manager
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Login verifies credentials, tracks failed attempts for lockout, and on
// success mints a fresh access/refresh token pair and session row.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ctx := r.Context()

	if locked, err := h.Sessions.CheckLockout(ctx, req.Email); err == nil && locked {
		writeError(w, http.StatusTooManyRequests, "account temporarily locked, try again later")
		return
	}

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil || !u.IsActive {
		_ = h.Sessions.RecordFailedAttempt(ctx, req.Email)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := auth.CheckPassword(req.Password, u.PasswordHash)
	if err != nil || !ok {
		_ = h.Sessions.RecordFailedAttempt(ctx, req.Email)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issueTokens(w, r, u.ID.String())
}

// issueTokens mints an access/refresh pair, persists the refresh token, and
// registers a session for the user, then writes the tokenResponse.
func (h *AuthHandler) issueTokens(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	access, err := h.JWT.GenerateAccessToken(userID)
	if err != nil {
		log.Printf("auth: generate access token: %v", err)
		writeError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}

	sessionID := uuid.New().String()
	refreshPlain, _, err := h.Tokens.New(ctx, userID, sessionID, refreshTokenTTL)
	if err != nil {
		log.Printf("auth: persist refresh token: %v", err)
		writeError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}

	if err := h.Sessions.CreateSession(ctx, userID, sessionID); err != nil {
		log.Printf("auth: create session: %v", err)
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refreshPlain,
		TokenType:    "Bearer",
		ExpiresIn:    15 * 60,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token: the presented token is revoked and
// replaced, and a new access token is minted for the same user.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ctx := r.Context()

	t, err := h.Tokens.GetByHash(ctx, req.RefreshToken)
	if errors.Is(err, data.ErrRecordNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if err != nil {
		log.Printf("auth: lookup refresh token: %v", err)
		writeError(w, http.StatusInternalServerError, "could not refresh session")
		return
	}
	if !t.RevokedAt.IsZero() || time.Now().UTC().After(t.ExpiresAt) {
		writeError(w, http.StatusUnauthorized, "refresh token expired or revoked")
		return
	}

	newRefresh, newID, err := h.Tokens.New(ctx, t.UserID, t.SessionID, refreshTokenTTL)
	if err != nil {
		log.Printf("auth: mint replacement refresh token: %v", err)
		writeError(w, http.StatusInternalServerError, "could not refresh session")
		return
	}
	if err := h.Tokens.Rotate(ctx, t.ID, newID); err != nil {
		log.Printf("auth: rotate refresh token: %v", err)
	}

	access, err := h.JWT.GenerateAccessToken(t.UserID)
	if err != nil {
		log.Printf("auth: generate access token: %v", err)
		writeError(w, http.StatusInternalServerError, "could not refresh session")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    15 * 60,
	})
}

// Logout revokes every outstanding refresh token and session for the
// caller, identified by the bearer access token already validated by the
// JWT middleware.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx := r.Context()

	if req.RefreshToken != "" {
		if t, err := h.Tokens.GetByHash(ctx, req.RefreshToken); err == nil {
			_ = h.Sessions.RevokeSession(ctx, t.SessionID)
		}
	}
	ac, ok := middleware.GetAuthContext(ctx)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.Tokens.RevokeAllForUser(ctx, ac.UserID); err != nil {
		log.Printf("auth: revoke refresh tokens on logout: %v", err)
	}
	if err := h.Sessions.RevokeAllUserSessions(ctx, ac.UserID); err != nil {
		log.Printf("auth: revoke sessions on logout: %v", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
