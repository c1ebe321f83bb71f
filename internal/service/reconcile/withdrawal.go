package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/events"
	"github.com/josh-kwaku/points-ledger/internal/gateway"
	"github.com/josh-kwaku/points-ledger/internal/logging"
)

const (
	withdrawalRefPrefix  = "WD-"
	maxReferenceAttempts = 3
)

type WithdrawalRequest struct {
	UserID      uuid.UUID
	MerchantID  uuid.UUID
	Amount      int64
	Destination domain.BankDestination
	Description string
}

// RequestWithdrawal reserves the amount from the customer's balance, asks the
// gateway to pay it out and records the synchronous outcome. When the gateway
// rejects the payout or cannot be reached, the reservation is compensated
// before the error is returned.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.WithdrawalResult, error) {
	log := logging.FromContext(ctx)

	if err := validateWithdrawal(req); err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}

	txn, err := s.reserveWithRetry(ctx, req)
	if err != nil {
		s.metrics.ObserveWithdrawal("rejected")
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}

	log.Info("withdrawal reserved",
		"transaction_id", txn.ID,
		"reference_id", txn.ReferenceID,
		"user_id", req.UserID,
		"merchant_id", req.MerchantID,
		"amount", req.Amount,
	)
	s.publish(ctx, events.New(events.TypeWithdrawalRequested, txn.ID, txn.UserID, txn.MerchantID, req.Amount, txn.ReferenceID))

	// Past this point the caller going away must not interrupt reconciliation.
	ctx = context.WithoutCancel(ctx)

	resp, gwErr := s.gateway.ExecuteWithdrawal(ctx, gateway.WithdrawalRequest{
		Moid:          txn.ReferenceID,
		Amount:        req.Amount,
		BankCode:      req.Destination.BankCode,
		AccountNumber: req.Destination.AccountNumber,
		AccountHolder: req.Destination.AccountHolder,
	})
	if gwErr != nil {
		return nil, s.failWithdrawal(ctx, txn, gwErr)
	}

	result := &domain.WithdrawalResult{
		TransactionID:     txn.ID,
		Status:            domain.TransactionStatusProcessing,
		ReferenceID:       txn.ReferenceID,
		ExternalReference: resp.NatvTrNo,
	}

	if err := s.markProcessing(ctx, txn, resp); err != nil {
		if errors.Is(err, domain.ErrTransactionTerminal) {
			// A notification settled the withdrawal before we recorded PROCESSING.
			if current, getErr := s.transactions.GetByID(ctx, txn.ID); getErr == nil {
				result.Status = current.Status
			}
			log.Info("withdrawal settled by notification before processing was recorded",
				"transaction_id", txn.ID,
				"status", result.Status,
			)
		} else {
			// Money has left at the gateway; the notification will reconcile.
			log.Error("failed to record withdrawal as processing",
				"transaction_id", txn.ID,
				"external_reference", resp.NatvTrNo,
				"error", err,
			)
		}
	} else {
		s.publish(ctx, events.New(events.TypeWithdrawalProcessing, txn.ID, txn.UserID, txn.MerchantID, req.Amount, resp.NatvTrNo))
	}

	s.metrics.ObserveWithdrawal("processing")
	log.Info("withdrawal accepted by gateway",
		"transaction_id", txn.ID,
		"external_reference", resp.NatvTrNo,
	)
	return result, nil
}

func validateWithdrawal(req WithdrawalRequest) error {
	if req.Amount <= 0 {
		return fmt.Errorf("validateWithdrawal: %w", domain.ErrInvalidAmount)
	}
	if req.UserID == uuid.Nil || req.MerchantID == uuid.Nil {
		return fmt.Errorf("validateWithdrawal: user and merchant required: %w", domain.ErrInvalidRequest)
	}
	d := req.Destination
	if strings.TrimSpace(d.BankCode) == "" ||
		strings.TrimSpace(d.AccountNumber) == "" ||
		strings.TrimSpace(d.AccountHolder) == "" {
		return fmt.Errorf("validateWithdrawal: bank destination incomplete: %w", domain.ErrInvalidRequest)
	}
	return nil
}

func (s *Service) reserveWithRetry(ctx context.Context, req WithdrawalRequest) (*domain.Transaction, error) {
	var err error
	for range maxReferenceAttempts {
		var txn *domain.Transaction
		txn, err = s.reserveWithdrawal(ctx, req, newWithdrawalReference())
		if err == nil {
			return txn, nil
		}
		if !errors.Is(err, domain.ErrDuplicateEvent) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("reserveWithRetry: %w", err)
}

// reserveWithdrawal writes the PENDING entry, its withdrawal request and the
// debit in one unit of work, under a lock on the balance row.
func (s *Service) reserveWithdrawal(ctx context.Context, req WithdrawalRequest, reference string) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: begin tx: %w", err)
	}
	defer tx.Rollback()

	bal, err := s.balances.GetForUpdate(ctx, tx, req.UserID, req.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: %w", err)
	}
	if bal.Balance < req.Amount {
		return nil, fmt.Errorf("reserveWithdrawal: %w", domain.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Withdrawal to %s %s", req.Destination.BankCode, req.Destination.AccountNumber)
	}

	txn := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      req.UserID,
		MerchantID:  req.MerchantID,
		Type:        domain.TransactionTypeWithdrawalRequest,
		Status:      domain.TransactionStatusPending,
		Amount:      -req.Amount,
		ReferenceID: reference,
		Description: &description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.transactions.Create(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: create transaction: %w", err)
	}

	wr := &domain.WithdrawalRequest{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		Moid:          txn.ReferenceID,
		UserID:        req.UserID,
		MerchantID:    req.MerchantID,
		Amount:        req.Amount,
		BankCode:      req.Destination.BankCode,
		AccountNumber: req.Destination.AccountNumber,
		AccountHolder: req.Destination.AccountHolder,
		CreatedAt:     now,
	}
	if err := s.withdrawals.Create(ctx, tx, wr); err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: create withdrawal request: %w", err)
	}

	if _, err := s.balances.AdjustBalance(ctx, tx, req.UserID, req.MerchantID, -req.Amount); err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: debit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: commit: %w", err)
	}
	return txn, nil
}

func (s *Service) markProcessing(ctx context.Context, txn *domain.Transaction, resp *gateway.WithdrawalResponse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("markProcessing: begin tx: %w", err)
	}
	defer tx.Rollback()

	err = s.transactions.UpdateStatus(ctx, tx, txn.ID,
		[]domain.TransactionStatus{domain.TransactionStatusPending},
		domain.TransactionStatusProcessing,
		domain.TransactionUpdate{
			ReferenceID: strPtr(resp.NatvTrNo),
			Metadata:    resp.Raw,
		},
	)
	if err != nil {
		return fmt.Errorf("markProcessing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("markProcessing: commit: %w", err)
	}
	return nil
}

// failWithdrawal compensates a reservation the gateway did not accept and
// returns the error the caller should see.
func (s *Service) failWithdrawal(ctx context.Context, txn *domain.Transaction, gwErr error) error {
	log := logging.FromContext(ctx)

	reason := "gateway unavailable"
	result := "gateway_unavailable"
	if be, ok := gateway.IsBusinessError(gwErr); ok {
		reason = fmt.Sprintf("%s: %s", be.Code, be.Message)
		result = "gateway_rejected"
	}

	log.Warn("withdrawal not accepted by gateway, compensating",
		"transaction_id", txn.ID,
		"reference_id", txn.ReferenceID,
		"reason", reason,
		"error", gwErr,
	)
	s.metrics.ObserveWithdrawal(result)

	if err := s.compensate(ctx, txn, reason); err != nil {
		return fmt.Errorf("RequestWithdrawal: %w (gateway: %w)", err, gwErr)
	}
	return fmt.Errorf("RequestWithdrawal: %w", gwErr)
}

func newWithdrawalReference() string {
	id := uuid.NewString()
	return withdrawalRefPrefix + id[:8]
}
