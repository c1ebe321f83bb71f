package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrForbidden        = &AppError{http.StatusForbidden, "FORBIDDEN", "Not allowed for this role"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds      = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient balance"}
	ErrInvalidAmount          = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrAccountExists          = &AppError{http.StatusConflict, "VIRTUAL_ACCOUNT_EXISTS", "An active virtual account already exists for this merchant"}
	ErrVirtualAccountInactive = &AppError{http.StatusUnprocessableEntity, "VIRTUAL_ACCOUNT_INACTIVE", "Virtual account is not active"}
	ErrTransactionTerminal    = &AppError{http.StatusConflict, "TRANSACTION_SETTLED", "Transaction is already settled"}
	ErrGatewayRejected        = &AppError{http.StatusBadGateway, "GATEWAY_REJECTED", "Payment gateway rejected the request"}
	ErrGatewayUnavailable     = &AppError{http.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE", "Payment gateway is unavailable, please retry later"}
	ErrCompensationFailed     = &AppError{http.StatusInternalServerError, "COMPENSATION_FAILED", "Withdrawal failed and the balance could not be restored; support has been alerted"}
	ErrNotificationInProgress = &AppError{http.StatusConflict, "NOTIFICATION_IN_PROGRESS", "Notification is already being processed"}
	ErrReferenceConflict      = &AppError{http.StatusConflict, "REFERENCE_CONFLICT", "External reference was already used for another account"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
