package tools

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "user_id"

// ErrNoUser is returned when a tool runs without a bound user.
var ErrNoUser = errors.New("no user bound to context")

// WithUserID binds the requesting user to the context. Tool handlers
// only ever see data belonging to this user.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the bound user from the context.
func UserIDFromContext(ctx context.Context) (uuid.UUID, error) {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok && id != uuid.Nil {
		return id, nil
	}
	return uuid.Nil, ErrNoUser
}
