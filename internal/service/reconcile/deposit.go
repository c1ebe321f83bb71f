package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/events"
	"github.com/josh-kwaku/points-ledger/internal/logging"
)

// DepositRequest credits points either to the owner of a virtual account or to
// a user directly. VirtualAccountNumber takes precedence when both are set; a
// MerchantID alongside it must match the account's merchant.
type DepositRequest struct {
	VirtualAccountNumber string
	UserID               uuid.UUID
	MerchantID           uuid.UUID
	Amount               int64
	ExternalReference    string
	Description          string
	Payload              json.RawMessage
}

type DepositResult struct {
	Transaction *domain.Transaction
	Duplicate   bool
}

// CreditDeposit records a completed DEPOSIT and credits the balance. Each
// external reference is credited at most once; a repeat returns the original
// entry with Duplicate set.
func (s *Service) CreditDeposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	log := logging.FromContext(ctx)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("CreditDeposit: %w", domain.ErrInvalidAmount)
	}
	if strings.TrimSpace(req.ExternalReference) == "" {
		return nil, fmt.Errorf("CreditDeposit: external reference required: %w", domain.ErrInvalidRequest)
	}

	userID, merchantID, err := s.resolveDepositTarget(ctx, req)
	if err != nil {
		s.metrics.ObserveDeposit("unresolved")
		return nil, fmt.Errorf("CreditDeposit: %w", err)
	}

	existing, err := s.transactions.FindByReference(ctx, req.ExternalReference, domain.TransactionTypeDeposit)
	if err == nil {
		return s.duplicateDeposit(ctx, existing, userID, merchantID)
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("CreditDeposit: dedup lookup: %w", err)
	}

	txn, newBalance, err := s.writeDeposit(ctx, req, userID, merchantID)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			// A concurrent delivery of the same deposit committed first.
			existing, findErr := s.transactions.FindByReference(ctx, req.ExternalReference, domain.TransactionTypeDeposit)
			if findErr != nil {
				return nil, fmt.Errorf("CreditDeposit: %w", findErr)
			}
			return s.duplicateDeposit(ctx, existing, userID, merchantID)
		}
		return nil, fmt.Errorf("CreditDeposit: %w", err)
	}

	s.metrics.ObserveDeposit("credited")
	log.Info("deposit credited",
		"transaction_id", txn.ID,
		"external_reference", req.ExternalReference,
		"user_id", userID,
		"merchant_id", merchantID,
		"amount", req.Amount,
		"balance", newBalance,
	)
	s.publish(ctx, events.New(events.TypeDepositCredited, txn.ID, userID, merchantID, req.Amount, req.ExternalReference))

	return &DepositResult{Transaction: txn}, nil
}

// duplicateDeposit answers a repeated external reference. A repeat for the same
// balance returns the original entry; one aimed at another balance is refused
// without exposing the original.
func (s *Service) duplicateDeposit(ctx context.Context, existing *domain.Transaction, userID, merchantID uuid.UUID) (*DepositResult, error) {
	log := logging.FromContext(ctx)

	if existing.UserID != userID || existing.MerchantID != merchantID {
		log.Warn("external reference reused for another balance",
			"transaction_id", existing.ID,
			"external_reference", existing.ReferenceID,
			"user_id", userID,
			"merchant_id", merchantID,
		)
		s.metrics.ObserveDeposit("conflict")
		return nil, fmt.Errorf("CreditDeposit: %s: %w", existing.ReferenceID, domain.ErrReferenceConflict)
	}

	log.Info("duplicate deposit ignored",
		"transaction_id", existing.ID,
		"external_reference", existing.ReferenceID,
	)
	s.metrics.ObserveDeposit("duplicate")
	return &DepositResult{Transaction: existing, Duplicate: true}, nil
}

func (s *Service) resolveDepositTarget(ctx context.Context, req DepositRequest) (uuid.UUID, uuid.UUID, error) {
	if req.VirtualAccountNumber != "" {
		va, err := s.virtualAccounts.GetByAccountNumber(ctx, req.VirtualAccountNumber)
		if err != nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("resolveDepositTarget: virtual account %s: %w", req.VirtualAccountNumber, err)
		}
		if req.MerchantID != uuid.Nil && va.MerchantID != req.MerchantID {
			return uuid.Nil, uuid.Nil, fmt.Errorf("resolveDepositTarget: %s belongs to another merchant: %w", va.AccountNumber, domain.ErrForbidden)
		}
		if va.Status != domain.VirtualAccountStatusActive {
			return uuid.Nil, uuid.Nil, fmt.Errorf("resolveDepositTarget: %s is %s: %w", va.AccountNumber, va.Status, domain.ErrVirtualAccountInactive)
		}
		return va.UserID, va.MerchantID, nil
	}

	if req.UserID == uuid.Nil || req.MerchantID == uuid.Nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("resolveDepositTarget: no target: %w", domain.ErrInvalidRequest)
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("resolveDepositTarget: user: %w", err)
	}
	if _, err := s.users.GetMerchant(ctx, req.MerchantID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("resolveDepositTarget: merchant: %w", err)
	}
	return req.UserID, req.MerchantID, nil
}

func (s *Service) writeDeposit(ctx context.Context, req DepositRequest, userID, merchantID uuid.UUID) (*domain.Transaction, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("writeDeposit: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	description := req.Description
	if description == "" {
		description = "Deposit from bank transfer"
	}

	txn := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		MerchantID:  merchantID,
		Type:        domain.TransactionTypeDeposit,
		Status:      domain.TransactionStatusCompleted,
		Amount:      req.Amount,
		ReferenceID: req.ExternalReference,
		Description: &description,
		Metadata:    req.Payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.transactions.Create(ctx, tx, txn); err != nil {
		return nil, 0, fmt.Errorf("writeDeposit: %w", err)
	}

	newBalance, err := s.balances.Credit(ctx, tx, userID, merchantID, req.Amount)
	if err != nil {
		return nil, 0, fmt.Errorf("writeDeposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("writeDeposit: commit: %w", err)
	}
	return txn, newBalance, nil
}
