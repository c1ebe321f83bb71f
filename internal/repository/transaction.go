package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/points-ledger/internal/domain"
)

const transactionColumns = `id, user_id, merchant_id, type, status, amount,
	reference_id, description, metadata, created_at, updated_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a ledger entry. A second entry with the same reference id and
// type is rejected with ErrDuplicateEvent.
func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, user_id, merchant_id, type, status, amount,
			reference_id, description, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.UserID, t.MerchantID, t.Type, t.Status, t.Amount,
		t.ReferenceID, t.Description, nullJSON(t.Metadata), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("Create: %w: %w", domain.ErrDuplicateEvent, err)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) FindByReference(ctx context.Context, referenceID string, typ domain.TransactionType) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference_id = $1 AND type = $2`,
		referenceID, typ,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("FindByReference: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("FindByReference: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transaction, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return t, nil
}

// ExistsByReference reports whether an entry of any of the given types already
// consumed referenceID.
func (r *TransactionRepository) ExistsByReference(ctx context.Context, referenceID string, types ...domain.TransactionType) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE reference_id = $1 AND type = ANY($2::text[]))`,
		referenceID, pq.Array(typeStrings(types)),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ExistsByReference: %w", err)
	}
	return exists, nil
}

// UpdateStatus moves the entry to status `to` only while its current status is
// one of `from`. When no row matches, ErrTransactionTerminal is returned.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus, upd domain.TransactionUpdate) error {
	fromStatuses := make([]string, len(from))
	for i, s := range from {
		fromStatuses[i] = string(s)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET
			status = $2,
			reference_id = COALESCE($3, reference_id),
			metadata = COALESCE($4::jsonb, metadata),
			description = CASE WHEN $5::text = '' THEN description
				ELSE COALESCE(description || ': ', '') || $5::text END,
			updated_at = now()
		WHERE id = $1 AND status = ANY($6::text[])`,
		id, to, upd.ReferenceID, nullJSON(upd.Metadata), upd.AppendDescription, pq.Array(fromStatuses),
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrTransactionTerminal)
	}
	return nil
}

func (r *TransactionRepository) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int, error) {
	where, args := transactionFilterClause(f)

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE `+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT `+transactionColumns+` FROM transactions
		WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("List: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("List: rows: %w", err)
	}
	return txns, total, nil
}

func transactionFilterClause(f domain.TransactionFilter) (string, []any) {
	conds := []string{"TRUE"}
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.MerchantID != nil {
		add("merchant_id = $%d", *f.MerchantID)
	}
	if len(f.Types) > 0 {
		add("type = ANY($%d::text[])", pq.Array(typeStrings(f.Types)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d::text[])", pq.Array(statuses))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	return strings.Join(conds, " AND "), args
}

func typeStrings(types []domain.TransactionType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var metadata []byte

	err := s.Scan(
		&t.ID, &t.UserID, &t.MerchantID, &t.Type, &t.Status, &t.Amount,
		&t.ReferenceID, &t.Description, &metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadata != nil {
		t.Metadata = metadata
	}
	return &t, nil
}
