package rest

import (
	"context"

	"github.com/google/uuid"
)

type ctxKeyAuth struct{}

type AuthContext struct {
	UserID uuid.UUID
	Role   string
	Ver    int64
}

func withAuth(ctx context.Context, a AuthContext) context.Context {
	return context.WithValue(ctx, ctxKeyAuth{}, a)
}

func GetAuth(ctx context.Context) (AuthContext, bool) {
	a, ok := ctx.Value(ctxKeyAuth{}).(AuthContext)
	if !ok || a.UserID == uuid.Nil {
		return AuthContext{}, false
	}
	return a, true
}
