package auth

import (
	"context"

	"taskflow/backend/internal/models"
)

type contextKey struct{}

// WithUser returns a copy of ctx carrying the authenticated identity.
func WithUser(ctx context.Context, user models.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext reports the identity stored by WithUser, if any.
func UserFromContext(ctx context.Context) (models.Identity, bool) {
	user, ok := ctx.Value(contextKey{}).(models.Identity)
	if !ok || user.ID.IsNil() {
		return models.Identity{}, false
	}
	return user, true
}
