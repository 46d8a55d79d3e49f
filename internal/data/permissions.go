package data

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// ProjectRole is a user's standing within a single project.
type ProjectRole string

const (
	ProjectRoleAdmin  ProjectRole = "project-admin"
	ProjectRoleViewer ProjectRole = "project-viewer"
)

var ErrMembershipNotFound = errors.New("project membership not found")

type ProjectMembership struct {
	UserID    uuid.UUID
	ProjectID uuid.UUID
	Role      ProjectRole
}

type MembershipModel struct {
	DB DBTX
}

// GetGrants returns every project the user belongs to along with their role.
// Server admins are not represented here: their implicit access to every
// project is resolved by the authz layer from User.IsServerAdmin, not from
// membership rows.
func (m MembershipModel) GetGrants(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]ProjectRole, error) {
	query := `SELECT project_id, role FROM project_memberships WHERE user_id = $1`
	rows, err := m.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := make(map[uuid.UUID]ProjectRole)
	for rows.Next() {
		var projectID uuid.UUID
		var role ProjectRole
		if err := rows.Scan(&projectID, &role); err != nil {
			return nil, err
		}
		grants[projectID] = role
	}
	return grants, rows.Err()
}

func (m MembershipModel) Get(ctx context.Context, userID, projectID uuid.UUID) (*ProjectMembership, error) {
	query := `SELECT user_id, project_id, role FROM project_memberships WHERE user_id = $1 AND project_id = $2`
	var pm ProjectMembership
	err := m.DB.QueryRowContext(ctx, query, userID, projectID).Scan(&pm.UserID, &pm.ProjectID, &pm.Role)
	if err == sql.ErrNoRows {
		return nil, ErrMembershipNotFound
	}
	return &pm, err
}

func (m MembershipModel) Upsert(ctx context.Context, userID, projectID uuid.UUID, role ProjectRole) error {
	query := `
		INSERT INTO project_memberships (user_id, project_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, project_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := m.DB.ExecContext(ctx, query, userID, projectID, role)
	return err
}

func (m MembershipModel) Remove(ctx context.Context, userID, projectID uuid.UUID) error {
	query := `DELETE FROM project_memberships WHERE user_id = $1 AND project_id = $2`
	res, err := m.DB.ExecContext(ctx, query, userID, projectID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (m MembershipModel) ListMembers(ctx context.Context, projectID uuid.UUID) ([]ProjectMembership, error) {
	query := `SELECT user_id, project_id, role FROM project_memberships WHERE project_id = $1`
	rows, err := m.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectMembership
	for rows.Next() {
		var pm ProjectMembership
		if err := rows.Scan(&pm.UserID, &pm.ProjectID, &pm.Role); err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}
