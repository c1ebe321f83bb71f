package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
)

const webhookEventColumns = `id, kind, reference, payload, status, error, received_at, processed_at`

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(ctx context.Context, e *domain.WebhookEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (id, kind, reference, payload, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Kind, e.Reference, nullJSON(e.Payload), e.Status, e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// MarkProcessed records the outcome of a received delivery. errMsg is stored
// only when non-empty.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = $2, error = NULLIF($3, ''), processed_at = now()
		WHERE id = $1`,
		id, status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkProcessed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkProcessed: %w", domain.ErrNotFound)
	}
	return nil
}

// ListByReference returns every delivery for a gateway reference, oldest first.
func (r *WebhookEventRepository) ListByReference(ctx context.Context, kind domain.WebhookEventKind, reference string) ([]domain.WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events
		WHERE kind = $1 AND reference = $2 ORDER BY received_at, id`,
		kind, reference,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByReference: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByReference: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByReference: rows: %w", err)
	}
	return events, nil
}

func scanWebhookEvent(s scanner) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var payload []byte
	err := s.Scan(&e.ID, &e.Kind, &e.Reference, &payload, &e.Status, &e.Error, &e.ReceivedAt, &e.ProcessedAt)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		e.Payload = payload
	}
	return &e, nil
}
