package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeWithdrawalRequested  Type = "ledger.withdrawal.requested"
	TypeWithdrawalProcessing Type = "ledger.withdrawal.processing"
	TypeWithdrawalCompleted  Type = "ledger.withdrawal.completed"
	TypeWithdrawalFailed     Type = "ledger.withdrawal.failed"
	TypeDepositCredited      Type = "ledger.deposit.credited"
)

// Event is emitted after the ledger change it describes has been committed.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Type          Type      `json:"type"`
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	MerchantID    uuid.UUID `json:"merchant_id"`
	Amount        int64     `json:"amount"`
	ReferenceID   string    `json:"reference_id"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func New(typ Type, transactionID, userID, merchantID uuid.UUID, amount int64, referenceID string) Event {
	return Event{
		ID:            uuid.New(),
		Type:          typ,
		TransactionID: transactionID,
		UserID:        userID,
		MerchantID:    merchantID,
		Amount:        amount,
		ReferenceID:   referenceID,
		OccurredAt:    time.Now().UTC(),
	}
}
