package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/service/reconcile"
)

type mockNotificationService struct {
	deposit    *reconcile.DepositNotification
	withdrawal *reconcile.WithdrawalNotification
	outcome    reconcile.NotificationOutcome
	err        error
}

func (m *mockNotificationService) HandleDepositNotification(_ context.Context, n reconcile.DepositNotification) (reconcile.NotificationOutcome, error) {
	m.deposit = &n
	return m.outcome, m.err
}

func (m *mockNotificationService) HandleWithdrawalNotification(_ context.Context, n reconcile.WithdrawalNotification) (reconcile.NotificationOutcome, error) {
	m.withdrawal = &n
	return m.outcome, m.err
}

func validDepositBody() string {
	b, _ := json.Marshal(map[string]string{
		"mid":       "M123",
		"vacctNo":   "7001123456",
		"bankCd":    "004",
		"amt":       "10000",
		"depositDt": "20240115",
		"depositTm": "103000",
		"trNo":      "TR1",
		"depositNm": "Kim",
	})
	return string(b)
}

func validWithdrawalBody() string {
	b, _ := json.Marshal(map[string]string{
		"mid":       "M123",
		"natvTrNo":  "NATV-1",
		"moid":      "WD-1a2b3c4d",
		"resultCd":  "0001",
		"resultMsg": "account closed",
		"amt":       "5000",
		"bankCd":    "004",
		"accntNo":   "110222333333",
		"accntNm":   "Kim",
		"trDt":      "20240115",
		"trTm":      "110000",
	})
	return string(b)
}

func TestDepositNotification(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantBody   string
		wantCalled bool
	}{
		{
			name:       "applied",
			body:       validDepositBody(),
			wantStatus: http.StatusOK,
			wantBody:   "0000",
			wantCalled: true,
		},
		{
			name:       "invalid json",
			body:       "not-json",
			wantStatus: http.StatusBadRequest,
			wantBody:   "9999",
		},
		{
			name:       "missing fields",
			body:       `{"mid":"M123","amt":"100"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "9999",
		},
		{
			name:       "non numeric amount",
			body:       strings.Replace(validDepositBody(), `"amt":"10000"`, `"amt":"ten"`, 1),
			wantStatus: http.StatusBadRequest,
			wantBody:   "9999",
		},
		{
			name:       "wrong sender",
			body:       validDepositBody(),
			svcErr:     fmt.Errorf("HandleDepositNotification: %w", domain.ErrInvalidSender),
			wantStatus: http.StatusBadRequest,
			wantBody:   "9999",
			wantCalled: true,
		},
		{
			name:       "in progress elsewhere",
			body:       validDepositBody(),
			svcErr:     domain.ErrNotificationInProgress,
			wantStatus: http.StatusBadRequest,
			wantBody:   "9999",
			wantCalled: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockNotificationService{outcome: reconcile.OutcomeApplied, err: tc.svcErr}
			h := NewWebhookHandler(svc, nil)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/ezpg/deposit-notification", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()

			h.DepositNotification(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantBody, rr.Body.String())
			assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
			assert.Equal(t, tc.wantCalled, svc.deposit != nil)
		})
	}
}

func TestDepositNotification_PassesPayloadThrough(t *testing.T) {
	svc := &mockNotificationService{outcome: reconcile.OutcomeDuplicate}
	h := NewWebhookHandler(svc, nil)

	body := validDepositBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ezpg/deposit-notification", strings.NewReader(body))
	rr := httptest.NewRecorder()

	h.DepositNotification(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "duplicates are acknowledged")
	require.NotNil(t, svc.deposit)
	assert.Equal(t, "TR1", svc.deposit.TrNo)
	assert.Equal(t, "7001123456", svc.deposit.VacctNo)
	assert.Equal(t, "10000", svc.deposit.Amt)
	assert.Equal(t, "Kim", svc.deposit.DepositNm)
	assert.JSONEq(t, body, string(svc.deposit.RawPayload))
}

func TestWithdrawalNotification(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantBody   string
	}{
		{"failure result still acknowledged", validWithdrawalBody(), nil, http.StatusOK, "0000"},
		{"unknown withdrawal", validWithdrawalBody(), domain.ErrNotFound, http.StatusBadRequest, "9999"},
		{"store failure", validWithdrawalBody(), fmt.Errorf("connection refused"), http.StatusBadRequest, "9999"},
		{"missing required fields", `{"mid":"M123","moid":"WD-1","resultCd":"0000","amt":"1"}`, nil, http.StatusBadRequest, "9999"},
		{"empty body", "", nil, http.StatusBadRequest, "9999"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockNotificationService{outcome: reconcile.OutcomeApplied, err: tc.svcErr}
			h := NewWebhookHandler(svc, nil)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/ezpg/withdrawal-notification", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()

			h.WithdrawalNotification(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantBody, rr.Body.String())
		})
	}
}

func TestWithdrawalNotification_MapsFields(t *testing.T) {
	svc := &mockNotificationService{outcome: reconcile.OutcomeApplied}
	h := NewWebhookHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ezpg/withdrawal-notification", strings.NewReader(validWithdrawalBody()))
	rr := httptest.NewRecorder()

	h.WithdrawalNotification(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, svc.withdrawal)
	assert.Equal(t, "NATV-1", svc.withdrawal.NatvTrNo)
	assert.Equal(t, "WD-1a2b3c4d", svc.withdrawal.Moid)
	assert.Equal(t, "0001", svc.withdrawal.ResultCd)
	assert.Equal(t, "account closed", svc.withdrawal.ResultMsg)
}

type memEventLog struct {
	events    map[uuid.UUID]*domain.WebhookEvent
	errs      map[uuid.UUID]string
	createErr error
}

func newMemEventLog() *memEventLog {
	return &memEventLog{events: make(map[uuid.UUID]*domain.WebhookEvent), errs: make(map[uuid.UUID]string)}
}

func (m *memEventLog) Create(_ context.Context, e *domain.WebhookEvent) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *memEventLog) MarkProcessed(_ context.Context, id uuid.UUID, status domain.WebhookEventStatus, errMsg string) error {
	e, ok := m.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = status
	m.errs[id] = errMsg
	return nil
}

func (m *memEventLog) ListByReference(_ context.Context, kind domain.WebhookEventKind, reference string) ([]domain.WebhookEvent, error) {
	var out []domain.WebhookEvent
	for _, e := range m.events {
		if e.Kind == kind && e.Reference == reference {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEventLog) only(t *testing.T) (*domain.WebhookEvent, string) {
	t.Helper()
	require.Len(t, m.events, 1)
	for id, e := range m.events {
		return e, m.errs[id]
	}
	return nil, ""
}

func TestWebhookEventLog(t *testing.T) {
	tests := []struct {
		name       string
		outcome    reconcile.NotificationOutcome
		svcErr     error
		wantStatus domain.WebhookEventStatus
		wantErrMsg bool
	}{
		{"applied", reconcile.OutcomeApplied, nil, domain.WebhookEventStatusApplied, false},
		{"duplicate", reconcile.OutcomeDuplicate, nil, domain.WebhookEventStatusDuplicate, false},
		{"rejected", "", domain.ErrVirtualAccountInactive, domain.WebhookEventStatusRejected, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			log := newMemEventLog()
			h := NewWebhookHandler(&mockNotificationService{outcome: tc.outcome, err: tc.svcErr}, log)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/ezpg/deposit-notification", strings.NewReader(validDepositBody()))
			h.DepositNotification(httptest.NewRecorder(), req)

			e, errMsg := log.only(t)
			assert.Equal(t, domain.WebhookEventKindDeposit, e.Kind)
			assert.Equal(t, "TR1", e.Reference)
			assert.Equal(t, tc.wantStatus, e.Status)
			assert.Equal(t, tc.wantErrMsg, errMsg != "")
			assert.JSONEq(t, validDepositBody(), string(e.Payload))
		})
	}
}

func TestWebhookEventLog_FailureDoesNotBlockAck(t *testing.T) {
	log := newMemEventLog()
	log.createErr = errors.New("connection refused")
	svc := &mockNotificationService{outcome: reconcile.OutcomeApplied}
	h := NewWebhookHandler(svc, log)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ezpg/withdrawal-notification", strings.NewReader(validWithdrawalBody()))
	rr := httptest.NewRecorder()
	h.WithdrawalNotification(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0000", rr.Body.String())
	assert.NotNil(t, svc.withdrawal)
}

func TestWebhookEventLog_MalformedNotRecorded(t *testing.T) {
	log := newMemEventLog()
	h := NewWebhookHandler(&mockNotificationService{}, log)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ezpg/deposit-notification", strings.NewReader("{"))
	h.DepositNotification(httptest.NewRecorder(), req)

	assert.Empty(t, log.events)
}

func TestListWebhookEvents(t *testing.T) {
	log := newMemEventLog()
	h := NewWebhookHandler(&mockNotificationService{outcome: reconcile.OutcomeApplied}, log)
	h.DepositNotification(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/webhooks/ezpg/deposit-notification", strings.NewReader(validDepositBody())))

	tests := []struct {
		name     string
		role     domain.Role
		query    string
		wantCode int
		wantLen  int
	}{
		{"admin lookup", domain.RoleAdmin, "?kind=deposit&reference=TR1", http.StatusOK, 1},
		{"other kind", domain.RoleAdmin, "?kind=withdrawal&reference=TR1", http.StatusOK, 0},
		{"missing reference", domain.RoleAdmin, "?kind=deposit", http.StatusBadRequest, 0},
		{"unknown kind", domain.RoleAdmin, "?kind=refund&reference=TR1", http.StatusBadRequest, 0},
		{"merchant forbidden", domain.RoleMerchant, "?kind=deposit&reference=TR1", http.StatusForbidden, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/webhook-events"+tt.query, nil)
			req = withPrincipal(req, uuid.New(), tt.role)
			rr := httptest.NewRecorder()

			h.ListEvents(rr, req)

			require.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			data, ok := decodeResponse(t, rr).Data.([]any)
			require.True(t, ok)
			assert.Len(t, data, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, "APPLIED", data[0].(map[string]any)["status"])
			}
		})
	}
}

func TestWithdrawalNotification_MoidOnly(t *testing.T) {
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(validWithdrawalBody()), &body))
	delete(body, "natvTrNo")
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	log := newMemEventLog()
	svc := &mockNotificationService{outcome: reconcile.OutcomeApplied}
	h := NewWebhookHandler(svc, log)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ezpg/withdrawal-notification", strings.NewReader(string(raw)))
	rr := httptest.NewRecorder()
	h.WithdrawalNotification(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0000", rr.Body.String())
	require.NotNil(t, svc.withdrawal)
	assert.Empty(t, svc.withdrawal.NatvTrNo)
	assert.Equal(t, "WD-1a2b3c4d", svc.withdrawal.Moid)

	e, _ := log.only(t)
	assert.Equal(t, "WD-1a2b3c4d", e.Reference)
}
