package domain

import (
	"time"

	"github.com/google/uuid"
)

type BankDestination struct {
	BankCode      string
	AccountNumber string
	AccountHolder string
}

// WithdrawalRequest records where a withdrawal is sent. It is written with its
// WITHDRAWAL_REQUEST transaction and never changes afterwards.
type WithdrawalRequest struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	// Moid is the reference sent to the gateway. The ledger entry's reference
	// is replaced by the gateway's own once the withdrawal is accepted.
	Moid          string
	UserID        uuid.UUID
	MerchantID    uuid.UUID
	Amount        int64
	BankCode      string
	AccountNumber string
	AccountHolder string
	CreatedAt     time.Time
}

type WithdrawalResult struct {
	TransactionID     uuid.UUID
	Status            TransactionStatus
	ReferenceID       string
	ExternalReference string
}
