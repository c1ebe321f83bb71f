package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
)

const virtualAccountColumns = `id, user_id, merchant_id, provider, bank_code, bank_name,
	account_number, account_holder, status, provider_reference, created_at, updated_at`

type VirtualAccountRepository struct {
	db *sql.DB
}

func NewVirtualAccountRepository(db *sql.DB) *VirtualAccountRepository {
	return &VirtualAccountRepository{db: db}
}

func (r *VirtualAccountRepository) Create(ctx context.Context, va *domain.VirtualAccount) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO virtual_accounts (
			id, user_id, merchant_id, provider, bank_code, bank_name,
			account_number, account_holder, status, provider_reference, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		va.ID, va.UserID, va.MerchantID, va.Provider, va.BankCode, va.BankName,
		va.AccountNumber, va.AccountHolder, va.Status, va.ProviderReference, va.CreatedAt, va.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("Create: %w: %w", domain.ErrAccountExists, err)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *VirtualAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.VirtualAccount, error) {
	return r.getOne(ctx, "GetByID", `id = $1`, id)
}

func (r *VirtualAccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.VirtualAccount, error) {
	return r.getOne(ctx, "GetByAccountNumber", `account_number = $1`, accountNumber)
}

func (r *VirtualAccountRepository) GetActiveByUserAndMerchant(ctx context.Context, userID, merchantID uuid.UUID) (*domain.VirtualAccount, error) {
	return r.getOne(ctx, "GetActiveByUserAndMerchant",
		`user_id = $1 AND merchant_id = $2 AND status = 'ACTIVE'`, userID, merchantID)
}

func (r *VirtualAccountRepository) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM virtual_accounts WHERE account_number = $1)`, accountNumber,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("AccountNumberExists: %w", err)
	}
	return exists, nil
}

func (r *VirtualAccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.VirtualAccount, error) {
	return r.list(ctx, "ListByUser", `user_id = $1`, userID)
}

func (r *VirtualAccountRepository) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.VirtualAccount, error) {
	return r.list(ctx, "ListByMerchant", `merchant_id = $1`, merchantID)
}

func (r *VirtualAccountRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.VirtualAccountStatus) (*domain.VirtualAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE virtual_accounts SET status = $2, updated_at = now()
		WHERE id = $1 RETURNING `+virtualAccountColumns,
		id, status,
	)
	va, err := scanVirtualAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
		}
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("UpdateStatus: %w: %w", domain.ErrAccountExists, err)
		}
		return nil, fmt.Errorf("UpdateStatus: %w", err)
	}
	return va, nil
}

func (r *VirtualAccountRepository) getOne(ctx context.Context, op, where string, args ...any) (*domain.VirtualAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+virtualAccountColumns+` FROM virtual_accounts WHERE `+where, args...,
	)
	va, err := scanVirtualAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return va, nil
}

func (r *VirtualAccountRepository) list(ctx context.Context, op, where string, args ...any) ([]domain.VirtualAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+virtualAccountColumns+` FROM virtual_accounts WHERE `+where+` ORDER BY created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var accounts []domain.VirtualAccount
	for rows.Next() {
		va, err := scanVirtualAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		accounts = append(accounts, *va)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return accounts, nil
}

func scanVirtualAccount(s scanner) (*domain.VirtualAccount, error) {
	var va domain.VirtualAccount
	err := s.Scan(
		&va.ID, &va.UserID, &va.MerchantID, &va.Provider, &va.BankCode, &va.BankName,
		&va.AccountNumber, &va.AccountHolder, &va.Status, &va.ProviderReference,
		&va.CreatedAt, &va.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &va, nil
}
