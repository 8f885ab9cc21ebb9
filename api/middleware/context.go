package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		return v
	}
	return ""
}

// ActorFromContext rebuilds the authenticated caller seeded by Auth.
func ActorFromContext(ctx context.Context) (tenders.Actor, bool) {
	userID, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return tenders.Actor{}, false
	}
	role := RoleFromContext(ctx)
	if !role.IsValid() {
		return tenders.Actor{}, false
	}
	return tenders.Actor{UserID: userID, Role: role}, true
}

// WithActor injects an authenticated caller into the context.
func WithActor(ctx context.Context, actor tenders.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, actor.UserID.String())
	return context.WithValue(ctx, ctxRole, actor.Role)
}
