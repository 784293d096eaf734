package httpapi

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tasktracker/internal/model"
)

type ctxKey string

const userKey ctxKey = "tasks.user"

// WithUser stores the authenticated user in context.
func WithUser(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromCtx fetches the authenticated user from context.
func UserFromCtx(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(userKey).(model.User)
	return u, ok
}

// UserIDFromCtx fetches the authenticated user ID from context.
func UserIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	u, ok := UserFromCtx(ctx)
	if !ok || u.ID == uuid.Nil {
		return uuid.Nil, false
	}
	return u.ID, true
}
