package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/auth"
	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/middleware"
)

// InvitationHandler issues and redeems UserInvitation tokens: server
// admins create them, anonymous callers redeem them to register.
type InvitationHandler struct {
	Invitations data.InvitationModel
	Memberships data.MembershipModel
	Users       data.UserModel
}

type createInvitationRequest struct {
	Email     string              `json:"email"`
	Role      data.InvitationRole `json:"role"`
	ProjectID *uuid.UUID          `json:"project_id"`
}

type createInvitationResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Create mints a new invitation token for an email address, optionally
// scoped to a project. Restricted to server admins by the route's
// RequireServerAdmin middleware.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Email == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "email and role are required")
		return
	}

	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	invitedBy, err := uuid.Parse(ac.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	plain := uuid.New().String()
	inv := &data.UserInvitation{
		Email:       req.Email,
		ProjectID:   req.ProjectID,
		Role:        req.Role,
		TokenHash:   hashToken(plain),
		InvitedByID: invitedBy,
		ExpiresAt:   time.Now().UTC().Add(data.InvitationTTL),
	}
	if err := h.Invitations.Create(r.Context(), inv); err != nil {
		log.Printf("invitations: create: %v", err)
		writeError(w, http.StatusInternalServerError, "could not create invitation")
		return
	}

	writeJSON(w, http.StatusCreated, createInvitationResponse{
		Token:     plain,
		ExpiresAt: inv.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type registerRequest struct {
	Token       string `json:"token"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Register redeems an invitation token: the email on the token must match
// the submitted email, the token must be unused and unexpired. On success
// the user is created pre-verified, the token is marked used, and the
// membership the invitation implied (if any) is granted.
func (h *InvitationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ctx := r.Context()

	inv, err := h.Invitations.GetByTokenHash(ctx, hashToken(req.Token))
	switch {
	case errors.Is(err, data.ErrInvitationNotFound):
		writeError(w, http.StatusNotFound, "invitation not found")
		return
	case errors.Is(err, data.ErrInvitationUsed):
		writeError(w, http.StatusConflict, "invitation already used")
		return
	case errors.Is(err, data.ErrInvitationExpired):
		writeError(w, http.StatusGone, "invitation expired")
		return
	case err != nil:
		log.Printf("invitations: lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "could not register")
		return
	}
	if inv.Email != req.Email {
		writeError(w, http.StatusNotFound, "invitation not found")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("invitations: hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "could not register")
		return
	}

	u := &data.User{
		Email:         req.Email,
		DisplayName:   req.DisplayName,
		PasswordHash:  hash,
		IsActive:      true,
		IsVerified:    true,
		IsServerAdmin: inv.ProjectID == nil,
	}
	if err := h.Users.Create(ctx, u); err != nil {
		if errors.Is(err, data.ErrEmailDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		log.Printf("invitations: create user: %v", err)
		writeError(w, http.StatusInternalServerError, "could not register")
		return
	}

	if inv.ProjectID != nil {
		role := data.ProjectRoleViewer
		if inv.Role == data.RoleProjectAdmin {
			role = data.ProjectRoleAdmin
		}
		if err := h.Memberships.Upsert(ctx, u.ID, *inv.ProjectID, role); err != nil {
			log.Printf("invitations: grant membership: %v", err)
		}
	}

	if err := h.Invitations.MarkUsed(ctx, inv.ID); err != nil {
		log.Printf("invitations: mark used: %v", err)
	}

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": u.ID.String()})
}
