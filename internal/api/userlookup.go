package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/technosupport/addaxai-connect/internal/data"
)

// UserLookup adapts data.UserModel to middleware.UserLookup, so the JWT
// middleware can stamp IsServerAdmin on the AuthContext without importing
// the data package directly.
type UserLookup struct {
	Users data.UserModel
}

func (l UserLookup) IsServerAdmin(ctx context.Context, userID string) (bool, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return false, err
	}
	u, err := l.Users.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u.IsServerAdmin, nil
}
