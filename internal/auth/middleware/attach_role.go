package auth

import (
	"context"
	"strconv"

	"github.com/gabicam/gabicam/internal/rbac"
	"github.com/gabicam/gabicam/internal/user"
)

// attach stores the user, subject and role. The role comes from the user row,
// not from token claims.
func attach(ctx context.Context, u user.User) context.Context {
	ctx = WithUser(ctx, u)
	ctx = WithSubject(ctx, strconv.FormatInt(u.ID, 10))
	return rbac.WithRole(ctx, roleOf(u))
}

func roleOf(u user.User) string {
	switch u.Role {
	case user.RoleAdmin:
		return rbac.RoleAdmin
	default:
		return rbac.RoleTeacher
	}
}
