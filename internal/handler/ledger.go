package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/logging"
	"github.com/josh-kwaku/points-ledger/internal/service/reconcile"
)

type ledgerService interface {
	RequestWithdrawal(ctx context.Context, req reconcile.WithdrawalRequest) (*domain.WithdrawalResult, error)
	CreditDeposit(ctx context.Context, req reconcile.DepositRequest) (*reconcile.DepositResult, error)
	GetBalance(ctx context.Context, userID, merchantID uuid.UUID) (*domain.Balance, error)
	ListBalances(ctx context.Context, userID uuid.UUID) ([]domain.Balance, error)
	ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int, error)
	GetTransaction(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.Transaction, error)
}

type LedgerHandler struct {
	ledger ledgerService
}

func NewLedgerHandler(ledger ledgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

type withdrawalRequest struct {
	MerchantID    string `json:"merchant_id" validate:"required,uuid"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	BankCode      string `json:"bank_code" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required"`
	AccountHolder string `json:"account_holder" validate:"required"`
	Description   string `json:"description" validate:"max=255"`
}

type depositRequest struct {
	UserID               string `json:"user_id" validate:"required_without=VirtualAccountNumber,omitempty,uuid"`
	MerchantID           string `json:"merchant_id" validate:"omitempty,uuid"`
	VirtualAccountNumber string `json:"virtual_account_number"`
	Amount               int64  `json:"amount" validate:"gt=0"`
	ExternalReference    string `json:"external_reference" validate:"required"`
	Description          string `json:"description" validate:"max=255"`
}

type withdrawalDTO struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	Status            string    `json:"status"`
	ReferenceID       string    `json:"reference_id"`
	ExternalReference string    `json:"external_reference"`
}

type balanceDTO struct {
	UserID     uuid.UUID `json:"user_id"`
	MerchantID uuid.UUID `json:"merchant_id"`
	Balance    int64     `json:"balance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toBalanceDTO(b *domain.Balance) balanceDTO {
	return balanceDTO{
		UserID:     b.UserID,
		MerchantID: b.MerchantID,
		Balance:    b.Balance,
		UpdatedAt:  b.UpdatedAt,
	}
}

type transactionDTO struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	MerchantID  uuid.UUID       `json:"merchant_id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Amount      int64           `json:"amount"`
	ReferenceID string          `json:"reference_id"`
	Description *string         `json:"description,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	return transactionDTO{
		ID:          t.ID,
		UserID:      t.UserID,
		MerchantID:  t.MerchantID,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Amount:      t.Amount,
		ReferenceID: t.ReferenceID,
		Description: t.Description,
		Metadata:    t.Metadata,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (h *LedgerHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	p, appErr := requireRole(r, domain.RoleCustomer)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.ledger.RequestWithdrawal(r.Context(), reconcile.WithdrawalRequest{
		UserID:     p.UserID,
		MerchantID: uuid.MustParse(req.MerchantID),
		Amount:     req.Amount,
		Destination: domain.BankDestination{
			BankCode:      req.BankCode,
			AccountNumber: req.AccountNumber,
			AccountHolder: req.AccountHolder,
		},
		Description: req.Description,
	})
	if err != nil {
		log.Warn("withdrawal request failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", res.TransactionID))
	RespondSuccess(w, http.StatusAccepted, withdrawalDTO{
		TransactionID:     res.TransactionID,
		Status:            string(res.Status),
		ReferenceID:       res.ReferenceID,
		ExternalReference: res.ExternalReference,
	})
}

// CreateDeposit credits a customer directly. Merchants may only credit
// balances held with themselves.
func (h *LedgerHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	p, appErr := requireRole(r, domain.RoleMerchant, domain.RoleAdmin)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	dep := reconcile.DepositRequest{
		VirtualAccountNumber: req.VirtualAccountNumber,
		Amount:               req.Amount,
		ExternalReference:    req.ExternalReference,
		Description:          req.Description,
	}
	if req.UserID != "" {
		dep.UserID = uuid.MustParse(req.UserID)
	}
	switch {
	case p.Role == domain.RoleMerchant:
		dep.MerchantID = p.UserID
	case req.MerchantID != "":
		dep.MerchantID = uuid.MustParse(req.MerchantID)
	}

	res, err := h.ledger.CreditDeposit(r.Context(), dep)
	if err != nil {
		log.Warn("deposit failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	RespondSuccess(w, status, toTransactionDTO(res.Transaction))
}

func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	merchantID, appErr := uuidFromPath(r, "merchantId")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	b, err := h.ledger.GetBalance(r.Context(), p.UserID, merchantID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("balance lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toBalanceDTO(b))
}

func (h *LedgerHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	balances, err := h.ledger.ListBalances(r.Context(), p.UserID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]balanceDTO, len(balances))
	for i := range balances {
		dtos[i] = toBalanceDTO(&balances[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

// ListTransactions scopes the query by role: customers see their own entries,
// merchants the entries held with them, admins anything.
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	f, fields := parseTransactionFilter(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	switch p.Role {
	case domain.RoleMerchant:
		f.MerchantID = &p.UserID
	case domain.RoleAdmin:
	default:
		f.UserID = &p.UserID
	}

	txns, total, err := h.ledger.ListTransactions(r.Context(), f)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(txns))
	for i := range txns {
		dtos[i] = toTransactionDTO(&txns[i])
	}
	limit := f.Limit
	if limit <= 0 {
		limit = len(dtos)
	}
	RespondSuccess(w, http.StatusOK, listResponse{
		Items: dtos,
		Page:  pageMeta{Total: total, Limit: limit, Offset: f.Offset},
	})
}

func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	id, appErr := uuidFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	t, err := h.ledger.GetTransaction(r.Context(), id, actorOf(p))
	if err != nil {
		logging.FromContext(r.Context()).Warn("transaction lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(t))
}

func parseTransactionFilter(r *http.Request) (domain.TransactionFilter, []FieldError) {
	q := r.URL.Query()
	var f domain.TransactionFilter
	var errs []FieldError

	for _, v := range splitList(q.Get("type")) {
		f.Types = append(f.Types, domain.TransactionType(strings.ToUpper(v)))
	}
	for _, v := range splitList(q.Get("status")) {
		f.Statuses = append(f.Statuses, domain.TransactionStatus(strings.ToUpper(v)))
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errs = append(errs, FieldError{Field: "from", Message: "must be an RFC 3339 timestamp"})
		} else {
			f.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errs = append(errs, FieldError{Field: "to", Message: "must be an RFC 3339 timestamp"})
		} else {
			f.To = &t
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs = append(errs, FieldError{Field: "limit", Message: "must be a positive integer"})
		} else {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, FieldError{Field: "offset", Message: "must be a non-negative integer"})
		} else {
			f.Offset = n
		}
	}

	return f, errs
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
