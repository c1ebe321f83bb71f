package domain

import (
	"time"

	"github.com/google/uuid"
)

// Balance is a customer's point balance held with one merchant.
type Balance struct {
	UserID     uuid.UUID
	MerchantID uuid.UUID
	Balance    int64
	UpdatedAt  time.Time
}
