package common

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	guardianIDKey ctxKey = "auth/guardian-id"
	roleKey       ctxKey = "auth/role"
)

// Roles recognised by the API surface.
const (
	RoleGuardian = "guardian"
	RoleAdmin    = "admin"
)

// WithGuardianID stores the authenticated guardian identifier on the context.
func WithGuardianID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, guardianIDKey, id)
}

// GuardianID extracts the authenticated guardian identifier if present.
func GuardianID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(guardianIDKey).(uuid.UUID)
	return id, ok
}

// WithRole stores the caller's role on the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// Role extracts the caller's role, defaulting to guardian.
func Role(ctx context.Context) string {
	if r, ok := ctx.Value(roleKey).(string); ok && r != "" {
		return r
	}
	return RoleGuardian
}

// IsAdmin reports whether the context belongs to an admin caller.
func IsAdmin(ctx context.Context) bool {
	return Role(ctx) == RoleAdmin
}
