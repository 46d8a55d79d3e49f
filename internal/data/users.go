package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailDuplicate     = errors.New("email already exists")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationUsed     = errors.New("invitation already used")
)

// User is a platform account. There is no tenant scoping at the user
// level: access to a given project runs entirely through ProjectMembership
// rows, except for server admins, who can read and administer every project.
type User struct {
	ID                uuid.UUID
	Email             string
	DisplayName       string
	PasswordHash      string
	IsActive          bool
	IsVerified        bool
	IsServerAdmin     bool
	PasswordUpdatedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

type UserModel struct {
	DB DBTX
}

func (m UserModel) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, display_name, password_hash, is_active, is_verified,
		       is_server_admin, password_updated_at, created_at, updated_at, deleted_at
		FROM users
		WHERE email = $1 AND deleted_at IS NULL`
	return m.scanOne(ctx, query, email)
}

func (m UserModel) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, display_name, password_hash, is_active, is_verified,
		       is_server_admin, password_updated_at, created_at, updated_at, deleted_at
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`
	return m.scanOne(ctx, query, id)
}

func (m UserModel) scanOne(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	var deletedAt sql.NullTime

	err := m.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsActive, &u.IsVerified,
		&u.IsServerAdmin, &u.PasswordUpdatedAt, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return &u, nil
}

func (m UserModel) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, email, display_name, password_hash, is_active, is_verified, is_server_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at, password_updated_at`

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := m.DB.QueryRowContext(ctx, query, u.ID, u.Email, u.DisplayName, u.PasswordHash,
		u.IsActive, u.IsVerified, u.IsServerAdmin).Scan(&u.CreatedAt, &u.UpdatedAt, &u.PasswordUpdatedAt)
	if isUniqueViolation(err) {
		return ErrEmailDuplicate
	}
	return err
}

func (m UserModel) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $1, password_updated_at = (NOW() AT TIME ZONE 'UTC'), updated_at = (NOW() AT TIME ZONE 'UTC')
		WHERE id = $2 AND deleted_at IS NULL`
	res, err := m.DB.ExecContext(ctx, query, passwordHash, userID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m UserModel) MarkVerified(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET is_verified = true, updated_at = (NOW() AT TIME ZONE 'UTC') WHERE id = $1`
	_, err := m.DB.ExecContext(ctx, query, userID)
	return err
}

func (m UserModel) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET deleted_at = (NOW() AT TIME ZONE 'UTC'), is_active = false WHERE id = $1 AND deleted_at IS NULL`
	res, err := m.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m UserModel) List(ctx context.Context, limit, offset int) ([]User, error) {
	query := `
		SELECT id, email, display_name, password_hash, is_active, is_verified,
		       is_server_admin, password_updated_at, created_at, updated_at, deleted_at
		FROM users
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := m.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var deletedAt sql.NullTime
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsActive,
			&u.IsVerified, &u.IsServerAdmin, &u.PasswordUpdatedAt, &u.CreatedAt, &u.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if deletedAt.Valid {
			u.DeletedAt = &deletedAt.Time
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// InvitationRole is the project role granted when an invitation is accepted.
// A nil ProjectID invitation grants no project membership on acceptance; it
// is used to bootstrap server-admin accounts.
type InvitationRole string

const (
	RoleProjectAdmin  InvitationRole = "project-admin"
	RoleProjectViewer InvitationRole = "project-viewer"
)

type UserInvitation struct {
	ID          uuid.UUID
	Email       string
	ProjectID   *uuid.UUID
	Role        InvitationRole
	TokenHash   string
	InvitedByID uuid.UUID
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

const InvitationTTL = 7 * 24 * time.Hour

type InvitationModel struct {
	DB DBTX
}

func (m InvitationModel) Create(ctx context.Context, inv *UserInvitation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	query := `
		INSERT INTO user_invitations (id, email, project_id, role, token_hash, invited_by_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	return m.DB.QueryRowContext(ctx, query, inv.ID, inv.Email, inv.ProjectID, inv.Role,
		inv.TokenHash, inv.InvitedByID, inv.ExpiresAt).Scan(&inv.CreatedAt)
}

// GetByTokenHash returns the invitation along with ErrInvitationExpired or
// ErrInvitationUsed if it can no longer be redeemed; the caller can still
// inspect the returned row (e.g. to show the invited email) in that case.
func (m InvitationModel) GetByTokenHash(ctx context.Context, tokenHash string) (*UserInvitation, error) {
	query := `
		SELECT id, email, project_id, role, token_hash, invited_by_id, expires_at, used_at, created_at
		FROM user_invitations
		WHERE token_hash = $1`

	var inv UserInvitation
	var projectID uuid.NullUUID
	var usedAt sql.NullTime

	err := m.DB.QueryRowContext(ctx, query, tokenHash).Scan(
		&inv.ID, &inv.Email, &projectID, &inv.Role, &inv.TokenHash, &inv.InvitedByID,
		&inv.ExpiresAt, &usedAt, &inv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		inv.ProjectID = &projectID.UUID
	}
	if usedAt.Valid {
		inv.UsedAt = &usedAt.Time
	}

	if inv.UsedAt != nil {
		return &inv, ErrInvitationUsed
	}
	if time.Now().UTC().After(inv.ExpiresAt) {
		return &inv, ErrInvitationExpired
	}
	return &inv, nil
}

func (m InvitationModel) MarkUsed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE user_invitations SET used_at = (NOW() AT TIME ZONE 'UTC') WHERE id = $1 AND used_at IS NULL`
	res, err := m.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
