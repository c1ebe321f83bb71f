package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/points-ledger/internal/domain"
)

const balanceColumns = `user_id, merchant_id, balance, updated_at`

type BalanceRepository struct {
	db *sql.DB
}

func NewBalanceRepository(db *sql.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) Get(ctx context.Context, userID, merchantID uuid.UUID) (*domain.Balance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE user_id = $1 AND merchant_id = $2`,
		userID, merchantID,
	)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return b, nil
}

func (r *BalanceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Balance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE user_id = $1 ORDER BY merchant_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUser: scan: %w", err)
		}
		balances = append(balances, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUser: rows: %w", err)
	}
	return balances, nil
}

func (r *BalanceRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, userID, merchantID uuid.UUID) (*domain.Balance, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE user_id = $1 AND merchant_id = $2 FOR UPDATE`,
		userID, merchantID,
	)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return b, nil
}

// AdjustBalance applies a signed delta to an existing balance row. A delta that
// would take the balance below zero leaves the row untouched and returns
// ErrInsufficientFunds.
func (r *BalanceRepository) AdjustBalance(ctx context.Context, tx *sql.Tx, userID, merchantID uuid.UUID, delta int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRowContext(ctx,
		`UPDATE balances SET balance = balance + $3, updated_at = now()
		WHERE user_id = $1 AND merchant_id = $2 AND balance + $3 >= 0
		RETURNING balance`,
		userID, merchantID, delta,
	).Scan(&newBalance)
	if err == nil {
		return newBalance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("AdjustBalance: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM balances WHERE user_id = $1 AND merchant_id = $2)`,
		userID, merchantID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("AdjustBalance: check exists: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("AdjustBalance: %w", domain.ErrNotFound)
	}
	return 0, fmt.Errorf("AdjustBalance: %w", domain.ErrInsufficientFunds)
}

// Credit adds amount to the balance, creating the row on first deposit.
func (r *BalanceRepository) Credit(ctx context.Context, tx *sql.Tx, userID, merchantID uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO balances (user_id, merchant_id, balance, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, merchant_id)
		DO UPDATE SET balance = balances.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance`,
		userID, merchantID, amount,
	).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("Credit: %w", err)
	}
	return newBalance, nil
}

func scanBalance(s scanner) (*domain.Balance, error) {
	var b domain.Balance
	if err := s.Scan(&b.UserID, &b.MerchantID, &b.Balance, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
