package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrForbidden               = errors.New("forbidden")
	ErrAccountExists           = errors.New("virtual account already exists for this merchant")
	ErrVirtualAccountInactive  = errors.New("virtual account is not active")
	ErrTransactionTerminal     = errors.New("transaction already in terminal state")
	ErrDuplicateEvent          = errors.New("duplicate event")
	ErrReferenceConflict       = errors.New("external reference already used for another account")
	ErrGatewayUnavailable      = errors.New("payment gateway unavailable")
	ErrInvalidSender           = errors.New("notification sender does not match merchant id")
	ErrCompensationFailed      = errors.New("compensation failed")
	ErrNotificationInProgress  = errors.New("notification is being processed")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)
