package services

import (
	"context"

	"github.com/google/uuid"

	"careportal/internal/domain/care"
)

type ctxKey string

const (
	userIDKey ctxKey = "auth_user_id"
	roleKey   ctxKey = "auth_role"
)

// WithUserContext attaches the authenticated user to the request context.
func WithUserContext(ctx context.Context, userID uuid.UUID, role care.Role) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

func RoleFromContext(ctx context.Context) (care.Role, bool) {
	role, ok := ctx.Value(roleKey).(care.Role)
	return role, ok
}
