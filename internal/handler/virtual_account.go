package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/logging"
	"github.com/josh-kwaku/points-ledger/internal/service"
)

type virtualAccountService interface {
	Register(ctx context.Context, req service.RegisterVirtualAccountRequest) (*domain.VirtualAccount, error)
	Get(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.VirtualAccount, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.VirtualAccount, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.VirtualAccount, error)
	Activate(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.VirtualAccount, error)
	Deactivate(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.VirtualAccount, error)
}

type VirtualAccountHandler struct {
	accounts virtualAccountService
}

func NewVirtualAccountHandler(accounts virtualAccountService) *VirtualAccountHandler {
	return &VirtualAccountHandler{accounts: accounts}
}

// Customers register for themselves; merchants register on behalf of a user.
type registerVirtualAccountRequest struct {
	MerchantID    string `json:"merchant_id" validate:"omitempty,uuid"`
	UserID        string `json:"user_id" validate:"omitempty,uuid"`
	AccountHolder string `json:"account_holder" validate:"max=100"`
}

type virtualAccountDTO struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	MerchantID        uuid.UUID `json:"merchant_id"`
	Provider          string    `json:"provider"`
	BankCode          string    `json:"bank_code"`
	BankName          string    `json:"bank_name"`
	AccountNumber     string    `json:"account_number"`
	AccountHolder     string    `json:"account_holder"`
	Status            string    `json:"status"`
	ProviderReference *string   `json:"provider_reference,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toVirtualAccountDTO(va *domain.VirtualAccount) virtualAccountDTO {
	return virtualAccountDTO{
		ID:                va.ID,
		UserID:            va.UserID,
		MerchantID:        va.MerchantID,
		Provider:          va.Provider,
		BankCode:          va.BankCode,
		BankName:          va.BankName,
		AccountNumber:     va.AccountNumber,
		AccountHolder:     va.AccountHolder,
		Status:            string(va.Status),
		ProviderReference: va.ProviderReference,
		CreatedAt:         va.CreatedAt,
		UpdatedAt:         va.UpdatedAt,
	}
}

func (h *VirtualAccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	p, appErr := requireRole(r, domain.RoleCustomer, domain.RoleMerchant)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req registerVirtualAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	reg := service.RegisterVirtualAccountRequest{AccountHolder: req.AccountHolder}
	switch p.Role {
	case domain.RoleMerchant:
		if req.UserID == "" {
			RespondValidationError(w, []FieldError{{Field: "user_id", Message: "required"}})
			return
		}
		reg.UserID = uuid.MustParse(req.UserID)
		reg.MerchantID = p.UserID
	default:
		if req.MerchantID == "" {
			RespondValidationError(w, []FieldError{{Field: "merchant_id", Message: "required"}})
			return
		}
		reg.UserID = p.UserID
		reg.MerchantID = uuid.MustParse(req.MerchantID)
	}

	va, err := h.accounts.Register(r.Context(), reg)
	if err != nil {
		log.Warn("virtual account registration failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toVirtualAccountDTO(va))
}

// List returns the caller's accounts, or every account issued under a merchant.
func (h *VirtualAccountHandler) List(w http.ResponseWriter, r *http.Request) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var (
		accounts []domain.VirtualAccount
		err      error
	)
	if p.Role == domain.RoleMerchant {
		accounts, err = h.accounts.ListByMerchant(r.Context(), p.UserID)
	} else {
		accounts, err = h.accounts.ListByUser(r.Context(), p.UserID)
	}
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]virtualAccountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toVirtualAccountDTO(&accounts[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *VirtualAccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withAccount(w, r, h.accounts.Get)
}

func (h *VirtualAccountHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.withAccount(w, r, h.accounts.Activate)
}

func (h *VirtualAccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.withAccount(w, r, h.accounts.Deactivate)
}

func (h *VirtualAccountHandler) withAccount(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, domain.User) (*domain.VirtualAccount, error)) {
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

	va, err := op(r.Context(), id, actorOf(p))
	if err != nil {
		logging.FromContext(r.Context()).Warn("virtual account operation failed", "virtual_account_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toVirtualAccountDTO(va))
}
