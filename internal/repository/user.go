package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/points-ledger/internal/domain"
)

const userColumns = `id, email, name, role, status, created_at`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return u, nil
}

// GetMerchant returns the user only if it is an active merchant. Points can
// only be held against such a user, so anything else reads as not found.
func (r *UserRepository) GetMerchant(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND role = $2 AND status = $3`,
		id, domain.RoleMerchant, domain.UserStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("GetMerchant: %w", err)
	}
	return u, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return u, err
}

func scanUser(s scanner) (*domain.User, error) {
	var u domain.User
	err := s.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
