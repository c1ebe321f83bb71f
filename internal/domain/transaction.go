package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeDeposit             TransactionType = "DEPOSIT"
	TransactionTypeWithdrawalRequest   TransactionType = "WITHDRAWAL_REQUEST"
	TransactionTypeWithdrawalCompleted TransactionType = "WITHDRAWAL_COMPLETED"
	TransactionTypeWithdrawalFailed    TransactionType = "WITHDRAWAL_FAILED"
	TransactionTypeTransfer            TransactionType = "TRANSFER"
	TransactionTypeFee                 TransactionType = "FEE"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawalRequest,
		TransactionTypeWithdrawalCompleted, TransactionTypeWithdrawalFailed,
		TransactionTypeTransfer, TransactionTypeFee:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusRefunded   TransactionStatus = "REFUNDED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
)

func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusRefunded, TransactionStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusRefunded, TransactionStatusCancelled:
		return true
	default:
		return false
	}
}

// Transaction is one ledger entry. Amount is the signed delta the entry
// applied to the owner's balance, so the sum of a user's entries for a
// merchant equals their balance.
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	MerchantID  uuid.UUID
	Type        TransactionType
	Status      TransactionStatus
	Amount      int64
	ReferenceID string
	Description *string
	Metadata    json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransactionUpdate carries the optional fields written alongside a status
// transition. Zero values leave the stored column unchanged.
type TransactionUpdate struct {
	ReferenceID       *string
	Metadata          json.RawMessage
	AppendDescription string
}

// TransactionFilter narrows a ledger listing. Nil UserID and MerchantID match
// every user and merchant.
type TransactionFilter struct {
	UserID     *uuid.UUID
	MerchantID *uuid.UUID
	Types      []TransactionType
	Statuses   []TransactionStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
