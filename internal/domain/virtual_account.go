package domain

import (
	"time"

	"github.com/google/uuid"
)

type VirtualAccountStatus string

const (
	VirtualAccountStatusActive   VirtualAccountStatus = "ACTIVE"
	VirtualAccountStatusInactive VirtualAccountStatus = "INACTIVE"
	VirtualAccountStatusExpired  VirtualAccountStatus = "EXPIRED"
)

// VirtualAccount is a bank account number issued by the gateway that routes
// incoming bank transfers to one customer's balance with one merchant.
type VirtualAccount struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	MerchantID        uuid.UUID
	Provider          string
	BankCode          string
	BankName          string
	AccountNumber     string
	AccountHolder     string
	Status            VirtualAccountStatus
	ProviderReference *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
