package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/service"
)

type mockVirtualAccountService struct {
	registered *service.RegisterVirtualAccountRequest
	listedBy   string
	actor      *domain.User
	err        error
}

func (m *mockVirtualAccountService) account(id uuid.UUID) *domain.VirtualAccount {
	return &domain.VirtualAccount{
		ID:            id,
		AccountNumber: "7001123456",
		BankCode:      "004",
		Status:        domain.VirtualAccountStatusActive,
	}
}

func (m *mockVirtualAccountService) Register(_ context.Context, req service.RegisterVirtualAccountRequest) (*domain.VirtualAccount, error) {
	m.registered = &req
	if m.err != nil {
		return nil, m.err
	}
	return m.account(uuid.New()), nil
}

func (m *mockVirtualAccountService) Get(_ context.Context, id uuid.UUID, actor domain.User) (*domain.VirtualAccount, error) {
	m.actor = &actor
	if m.err != nil {
		return nil, m.err
	}
	return m.account(id), nil
}

func (m *mockVirtualAccountService) ListByUser(_ context.Context, _ uuid.UUID) ([]domain.VirtualAccount, error) {
	m.listedBy = "user"
	return []domain.VirtualAccount{*m.account(uuid.New())}, m.err
}

func (m *mockVirtualAccountService) ListByMerchant(_ context.Context, _ uuid.UUID) ([]domain.VirtualAccount, error) {
	m.listedBy = "merchant"
	return []domain.VirtualAccount{*m.account(uuid.New())}, m.err
}

func (m *mockVirtualAccountService) Activate(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.VirtualAccount, error) {
	return m.Get(ctx, id, actor)
}

func (m *mockVirtualAccountService) Deactivate(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.VirtualAccount, error) {
	va, err := m.Get(ctx, id, actor)
	if va != nil {
		va.Status = domain.VirtualAccountStatusInactive
	}
	return va, err
}

func TestRegisterVirtualAccountHandler(t *testing.T) {
	callerID := uuid.New()
	otherID := uuid.New()

	tests := []struct {
		name         string
		role         domain.Role
		body         string
		svcErr       error
		wantCode     int
		wantUser     uuid.UUID
		wantMerchant uuid.UUID
	}{
		{"customer registers for self", domain.RoleCustomer, fmt.Sprintf(`{"merchant_id":%q}`, otherID), nil,
			http.StatusCreated, callerID, otherID},
		{"merchant registers for a user", domain.RoleMerchant, fmt.Sprintf(`{"user_id":%q}`, otherID), nil,
			http.StatusCreated, otherID, callerID},
		{"customer without merchant", domain.RoleCustomer, `{}`, nil, http.StatusBadRequest, uuid.Nil, uuid.Nil},
		{"merchant without user", domain.RoleMerchant, `{}`, nil, http.StatusBadRequest, uuid.Nil, uuid.Nil},
		{"admin not allowed", domain.RoleAdmin, fmt.Sprintf(`{"merchant_id":%q}`, otherID), nil, http.StatusForbidden, uuid.Nil, uuid.Nil},
		{"bad uuid", domain.RoleCustomer, `{"merchant_id":"abc"}`, nil, http.StatusBadRequest, uuid.Nil, uuid.Nil},
		{"already registered", domain.RoleCustomer, fmt.Sprintf(`{"merchant_id":%q}`, otherID), domain.ErrAccountExists,
			http.StatusConflict, callerID, otherID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockVirtualAccountService{err: tt.svcErr}
			h := NewVirtualAccountHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/virtual-accounts", strings.NewReader(tt.body))
			req = withPrincipal(req, callerID, tt.role)
			rr := httptest.NewRecorder()

			h.Register(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantUser == uuid.Nil {
				assert.Nil(t, svc.registered)
				return
			}
			require.NotNil(t, svc.registered)
			assert.Equal(t, tt.wantUser, svc.registered.UserID)
			assert.Equal(t, tt.wantMerchant, svc.registered.MerchantID)
		})
	}
}

func TestListVirtualAccounts(t *testing.T) {
	for role, want := range map[domain.Role]string{
		domain.RoleCustomer: "user",
		domain.RoleMerchant: "merchant",
	} {
		t.Run(string(role), func(t *testing.T) {
			svc := &mockVirtualAccountService{}
			h := NewVirtualAccountHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/virtual-accounts", nil)
			req = withPrincipal(req, uuid.New(), role)
			rr := httptest.NewRecorder()

			h.List(rr, req)

			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, want, svc.listedBy)
		})
	}
}

func TestVirtualAccountStatusRoutes(t *testing.T) {
	callerID := uuid.New()
	svc := &mockVirtualAccountService{}
	h := NewVirtualAccountHandler(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/virtual-accounts/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/virtual-accounts/{id}/deactivate", h.Deactivate)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/virtual-accounts/"+id.String()+"/deactivate", nil)
	req = withPrincipal(req, callerID, domain.RoleMerchant)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeResponse(t, rr).Data.(map[string]any)
	assert.Equal(t, "INACTIVE", data["status"])
	require.NotNil(t, svc.actor)
	assert.Equal(t, domain.User{ID: callerID, Role: domain.RoleMerchant}, *svc.actor)

	svc.err = fmt.Errorf("Get: %w", domain.ErrNotFound)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/virtual-accounts/"+id.String(), nil)
	req = withPrincipal(req, uuid.New(), domain.RoleCustomer)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
