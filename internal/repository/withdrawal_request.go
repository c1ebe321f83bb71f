package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
)

const withdrawalRequestColumns = `id, transaction_id, moid, user_id, merchant_id, amount,
	bank_code, account_number, account_holder, created_at`

type WithdrawalRequestRepository struct {
	db *sql.DB
}

func NewWithdrawalRequestRepository(db *sql.DB) *WithdrawalRequestRepository {
	return &WithdrawalRequestRepository{db: db}
}

func (r *WithdrawalRequestRepository) Create(ctx context.Context, tx *sql.Tx, w *domain.WithdrawalRequest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawal_requests (`+withdrawalRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.TransactionID, w.Moid, w.UserID, w.MerchantID, w.Amount,
		w.BankCode, w.AccountNumber, w.AccountHolder, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WithdrawalRequestRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.WithdrawalRequest, error) {
	w, err := r.getOne(ctx, `SELECT `+withdrawalRequestColumns+` FROM withdrawal_requests WHERE transaction_id = $1`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("GetByTransactionID: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRequestRepository) GetByMoid(ctx context.Context, moid string) (*domain.WithdrawalRequest, error) {
	w, err := r.getOne(ctx, `SELECT `+withdrawalRequestColumns+` FROM withdrawal_requests WHERE moid = $1`, moid)
	if err != nil {
		return nil, fmt.Errorf("GetByMoid: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRequestRepository) getOne(ctx context.Context, query string, args ...any) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&w.ID, &w.TransactionID, &w.Moid, &w.UserID, &w.MerchantID, &w.Amount,
		&w.BankCode, &w.AccountNumber, &w.AccountHolder, &w.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
