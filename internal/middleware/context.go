package middleware

import (
	"context"
	"slices"
)

// Actor is the authenticated caller resolved from an API token.
type Actor struct {
	TokenID     string
	UserID      string
	TenantID    string
	Email       string
	Permissions []string
}

func (a Actor) Can(permission string) bool {
	return slices.Contains(a.Permissions, permission)
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	actorKey     contextKey = "actor"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	v, ok := ctx.Value(actorKey).(Actor)
	return v, ok
}
