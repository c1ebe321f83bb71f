package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   domain.Role
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.UserID, ok
}
