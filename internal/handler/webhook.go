package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/logging"
	"github.com/josh-kwaku/points-ledger/internal/service/reconcile"
)

const (
	ackSuccess = "0000"
	ackFailure = "9999"

	maxWebhookBody = 1 << 20
)

type notificationService interface {
	HandleDepositNotification(ctx context.Context, n reconcile.DepositNotification) (reconcile.NotificationOutcome, error)
	HandleWithdrawalNotification(ctx context.Context, n reconcile.WithdrawalNotification) (reconcile.NotificationOutcome, error)
}

type webhookEventLog interface {
	Create(ctx context.Context, e *domain.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, errMsg string) error
	ListByReference(ctx context.Context, kind domain.WebhookEventKind, reference string) ([]domain.WebhookEvent, error)
}

// WebhookHandler receives EZPG notifications. The gateway only reads the
// plain-text result code and redelivers on anything but 0000.
type WebhookHandler struct {
	notifications notificationService
	events        webhookEventLog
}

// NewWebhookHandler builds the handler. events may be nil; when set, every
// well-formed delivery and its outcome is recorded.
func NewWebhookHandler(notifications notificationService, events webhookEventLog) *WebhookHandler {
	return &WebhookHandler{notifications: notifications, events: events}
}

type depositNotificationPayload struct {
	Mid       string `json:"mid" validate:"required"`
	VacctNo   string `json:"vacctNo" validate:"required"`
	BankCd    string `json:"bankCd" validate:"required"`
	Amt       string `json:"amt" validate:"required,numeric"`
	DepositDt string `json:"depositDt" validate:"required"`
	DepositTm string `json:"depositTm" validate:"required"`
	TrNo      string `json:"trNo" validate:"required"`
	DepositNm string `json:"depositNm,omitempty"`
	BankTrID  string `json:"bankTrId,omitempty"`
}

type withdrawalNotificationPayload struct {
	Mid       string `json:"mid" validate:"required"`
	NatvTrNo  string `json:"natvTrNo"`
	Moid      string `json:"moid" validate:"required"`
	ResultCd  string `json:"resultCd" validate:"required"`
	ResultMsg string `json:"resultMsg"`
	Amt       string `json:"amt" validate:"required,numeric"`
	BankCd    string `json:"bankCd" validate:"required"`
	AccntNo   string `json:"accntNo" validate:"required"`
	AccntNm   string `json:"accntNm" validate:"required"`
	TrDt      string `json:"trDt" validate:"required"`
	TrTm      string `json:"trTm" validate:"required"`
	BankTrID  string `json:"bankTrId,omitempty"`
}

func (h *WebhookHandler) DepositNotification(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var p depositNotificationPayload
	body, ok := decodeNotification(w, r, &p)
	if !ok {
		return
	}

	eventID := h.recordReceived(r.Context(), domain.WebhookEventKindDeposit, p.TrNo, body)

	out, err := h.notifications.HandleDepositNotification(r.Context(), reconcile.DepositNotification{
		Mid:        p.Mid,
		VacctNo:    p.VacctNo,
		BankCd:     p.BankCd,
		Amt:        p.Amt,
		DepositDt:  p.DepositDt,
		DepositTm:  p.DepositTm,
		TrNo:       p.TrNo,
		DepositNm:  p.DepositNm,
		BankTrID:   p.BankTrID,
		RawPayload: body,
	})
	h.recordOutcome(r.Context(), eventID, out, err)
	if err != nil {
		logNotificationError(r.Context(), "deposit", err)
		respondAck(w, http.StatusBadRequest, ackFailure)
		return
	}

	log.Info("deposit notification acknowledged", "tr_no", p.TrNo, "outcome", out)
	respondAck(w, http.StatusOK, ackSuccess)
}

func (h *WebhookHandler) WithdrawalNotification(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var p withdrawalNotificationPayload
	body, ok := decodeNotification(w, r, &p)
	if !ok {
		return
	}

	ref := p.NatvTrNo
	if ref == "" {
		ref = p.Moid
	}
	eventID := h.recordReceived(r.Context(), domain.WebhookEventKindWithdrawal, ref, body)

	out, err := h.notifications.HandleWithdrawalNotification(r.Context(), reconcile.WithdrawalNotification{
		Mid:        p.Mid,
		NatvTrNo:   p.NatvTrNo,
		Moid:       p.Moid,
		ResultCd:   p.ResultCd,
		ResultMsg:  p.ResultMsg,
		Amt:        p.Amt,
		BankCd:     p.BankCd,
		AccntNo:    p.AccntNo,
		AccntNm:    p.AccntNm,
		TrDt:       p.TrDt,
		TrTm:       p.TrTm,
		BankTrID:   p.BankTrID,
		RawPayload: body,
	})
	h.recordOutcome(r.Context(), eventID, out, err)
	if err != nil {
		logNotificationError(r.Context(), "withdrawal", err)
		respondAck(w, http.StatusBadRequest, ackFailure)
		return
	}

	log.Info("withdrawal notification acknowledged",
		"natv_tr_no", p.NatvTrNo,
		"result_cd", p.ResultCd,
		"outcome", out,
	)
	respondAck(w, http.StatusOK, ackSuccess)
}

func decodeNotification(w http.ResponseWriter, r *http.Request, dst any) (json.RawMessage, bool) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Error("failed to read notification body", "error", err)
		respondAck(w, http.StatusBadRequest, ackFailure)
		return nil, false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		log.Warn("failed to parse notification payload", "error", err)
		respondAck(w, http.StatusBadRequest, ackFailure)
		return nil, false
	}

	if fields := validateStruct(dst); len(fields) > 0 {
		log.Warn("notification payload failed validation", "fields", fields)
		respondAck(w, http.StatusBadRequest, ackFailure)
		return nil, false
	}

	return body, true
}

// recordReceived stores the delivery before it is processed. A failure to
// record is logged and does not block processing.
func (h *WebhookHandler) recordReceived(ctx context.Context, kind domain.WebhookEventKind, reference string, body json.RawMessage) uuid.UUID {
	if h.events == nil {
		return uuid.Nil
	}
	e := &domain.WebhookEvent{
		ID:         uuid.New(),
		Kind:       kind,
		Reference:  reference,
		Payload:    body,
		Status:     domain.WebhookEventStatusReceived,
		ReceivedAt: time.Now().UTC(),
	}
	if err := h.events.Create(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("failed to record webhook event", "kind", kind, "reference", reference, "error", err)
		return uuid.Nil
	}
	return e.ID
}

func (h *WebhookHandler) recordOutcome(ctx context.Context, id uuid.UUID, out reconcile.NotificationOutcome, procErr error) {
	if h.events == nil || id == uuid.Nil {
		return
	}

	status := domain.WebhookEventStatusApplied
	var msg string
	switch {
	case procErr != nil:
		status = domain.WebhookEventStatusRejected
		msg = procErr.Error()
	case out == reconcile.OutcomeDuplicate:
		status = domain.WebhookEventStatusDuplicate
	}

	if err := h.events.MarkProcessed(context.WithoutCancel(ctx), id, status, msg); err != nil {
		logging.FromContext(ctx).Warn("failed to record webhook outcome", "webhook_event_id", id, "error", err)
	}
}

type webhookEventQuery struct {
	Kind      string `json:"kind" validate:"required,oneof=deposit withdrawal"`
	Reference string `json:"reference" validate:"required,max=100"`
}

type webhookEventDTO struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	Error       *string         `json:"error,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// ListEvents returns every recorded delivery for a gateway reference. Admin only.
func (h *WebhookHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if _, appErr := requireRole(r, domain.RoleAdmin); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	if h.events == nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	q := webhookEventQuery{
		Kind:      r.URL.Query().Get("kind"),
		Reference: r.URL.Query().Get("reference"),
	}
	if fields := validateStruct(q); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	list, err := h.events.ListByReference(r.Context(), domain.WebhookEventKind(q.Kind), q.Reference)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]webhookEventDTO, len(list))
	for i, e := range list {
		dtos[i] = webhookEventDTO{
			ID:          e.ID,
			Kind:        string(e.Kind),
			Reference:   e.Reference,
			Status:      string(e.Status),
			Error:       e.Error,
			Payload:     e.Payload,
			ReceivedAt:  e.ReceivedAt,
			ProcessedAt: e.ProcessedAt,
		}
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func logNotificationError(ctx context.Context, kind string, err error) {
	log := logging.FromContext(ctx)
	switch {
	case errors.Is(err, domain.ErrInvalidSender):
		log.Warn("notification from unexpected sender rejected", "kind", kind, "error", err)
	case errors.Is(err, domain.ErrNotificationInProgress):
		log.Info("notification already in progress, asking gateway to retry", "kind", kind)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrVirtualAccountInactive), errors.Is(err, domain.ErrInvalidRequest):
		log.Warn("notification rejected", "kind", kind, "error", err)
	default:
		log.Error("notification processing failed", "kind", kind, "error", err)
	}
}

func respondAck(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, code)
}
