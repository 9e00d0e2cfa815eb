package domain

import "context"

type contextKey string

// UserIDContextKey is the key the security layer stores the authenticated local user id under.
const UserIDContextKey contextKey = "local_user_id"

// WithUserID returns a copy of ctx carrying the authenticated local user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// UserIDFromContext retrieves the authenticated local user id from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	return userID, ok && userID != ""
}
