package handler

import (
	"net/http"
	"slices"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/auth"
	"github.com/josh-kwaku/points-ledger/internal/domain"
)

func principalFrom(r *http.Request) (auth.Principal, *AppError) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return auth.Principal{}, ErrMissingToken
	}
	return p, nil
}

// requireRole returns the principal when its role is one of roles.
func requireRole(r *http.Request, roles ...domain.Role) (auth.Principal, *AppError) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		return p, appErr
	}
	if !slices.Contains(roles, p.Role) {
		return p, ErrForbidden
	}
	return p, nil
}

func actorOf(p auth.Principal) domain.User {
	return domain.User{ID: p.UserID, Role: p.Role}
}

func uuidFromPath(r *http.Request, name string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return id, nil
}
