package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookEventKind string

const (
	WebhookEventKindDeposit    WebhookEventKind = "deposit"
	WebhookEventKindWithdrawal WebhookEventKind = "withdrawal"
)

type WebhookEventStatus string

const (
	WebhookEventStatusReceived  WebhookEventStatus = "RECEIVED"
	WebhookEventStatusApplied   WebhookEventStatus = "APPLIED"
	WebhookEventStatusDuplicate WebhookEventStatus = "DUPLICATE"
	WebhookEventStatusRejected  WebhookEventStatus = "REJECTED"
)

// WebhookEvent is one delivery of a gateway notification, kept for audit.
// Redeliveries of the same notification produce separate rows.
type WebhookEvent struct {
	ID          uuid.UUID
	Kind        WebhookEventKind
	Reference   string
	Payload     json.RawMessage
	Status      WebhookEventStatus
	Error       *string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}
