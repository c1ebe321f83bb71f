package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/events"
	"github.com/josh-kwaku/points-ledger/internal/logging"
)

var compensableStatuses = []domain.TransactionStatus{
	domain.TransactionStatusPending,
	domain.TransactionStatusProcessing,
}

// compensate marks a withdrawal FAILED, writes the WITHDRAWAL_FAILED entry and
// returns the reserved amount to the balance in one unit of work. The
// conditional status update makes it run at most once per withdrawal: if the
// entry is already terminal nothing is written and nil is returned.
func (s *Service) compensate(ctx context.Context, original *domain.Transaction, reason string) error {
	log := logging.FromContext(ctx)
	amount := -original.Amount

	err := s.writeCompensation(ctx, original, amount, reason)
	if errors.Is(err, domain.ErrTransactionTerminal) {
		log.Info("withdrawal already settled, skipping compensation",
			"transaction_id", original.ID,
		)
		return nil
	}
	if err != nil {
		s.metrics.ObserveCompensationFailure()
		logging.Critical(ctx, "withdrawal compensation failed, balance needs manual reconciliation",
			"transaction_id", original.ID,
			"reference_id", original.ReferenceID,
			"user_id", original.UserID,
			"merchant_id", original.MerchantID,
			"amount", amount,
			"reason", reason,
			"error", err,
		)
		return fmt.Errorf("compensate: %w: %w", domain.ErrCompensationFailed, err)
	}

	s.metrics.ObserveCompensation()
	log.Info("withdrawal compensated",
		"transaction_id", original.ID,
		"amount", amount,
		"reason", reason,
	)

	e := events.New(events.TypeWithdrawalFailed, original.ID, original.UserID, original.MerchantID, amount, original.ReferenceID)
	e.Reason = reason
	s.publish(ctx, e)
	return nil
}

func (s *Service) writeCompensation(ctx context.Context, original *domain.Transaction, amount int64, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("writeCompensation: begin tx: %w", err)
	}
	defer tx.Rollback()

	err = s.transactions.UpdateStatus(ctx, tx, original.ID,
		compensableStatuses,
		domain.TransactionStatusFailed,
		domain.TransactionUpdate{AppendDescription: reason},
	)
	if err != nil {
		return fmt.Errorf("writeCompensation: %w", err)
	}

	now := time.Now().UTC()
	description := "Withdrawal failed: " + reason
	refund := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      original.UserID,
		MerchantID:  original.MerchantID,
		Type:        domain.TransactionTypeWithdrawalFailed,
		Status:      domain.TransactionStatusCompleted,
		Amount:      amount,
		ReferenceID: original.ReferenceID,
		Description: &description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.transactions.Create(ctx, tx, refund); err != nil {
		return fmt.Errorf("writeCompensation: create refund entry: %w", err)
	}

	if _, err := s.balances.AdjustBalance(ctx, tx, original.UserID, original.MerchantID, amount); err != nil {
		return fmt.Errorf("writeCompensation: credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("writeCompensation: commit: %w", err)
	}
	return nil
}
