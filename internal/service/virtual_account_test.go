package service

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/gateway"
)

type memAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.VirtualAccount
	taken    map[string]bool
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		accounts: make(map[uuid.UUID]*domain.VirtualAccount),
		taken:    make(map[string]bool),
	}
}

func (m *memAccounts) Create(_ context.Context, va *domain.VirtualAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken[va.AccountNumber] {
		return fmt.Errorf("Create: %w", domain.ErrAccountExists)
	}
	cp := *va
	m.accounts[va.ID] = &cp
	m.taken[va.AccountNumber] = true
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*domain.VirtualAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	va, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *va
	return &cp, nil
}

func (m *memAccounts) GetActiveByUserAndMerchant(_ context.Context, userID, merchantID uuid.UUID) (*domain.VirtualAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, va := range m.accounts {
		if va.UserID == userID && va.MerchantID == merchantID && va.Status == domain.VirtualAccountStatusActive {
			cp := *va
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAccounts) AccountNumberExists(_ context.Context, accountNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taken[accountNumber], nil
}

func (m *memAccounts) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.VirtualAccount, error) {
	return m.filter(func(va *domain.VirtualAccount) bool { return va.UserID == userID }), nil
}

func (m *memAccounts) ListByMerchant(_ context.Context, merchantID uuid.UUID) ([]domain.VirtualAccount, error) {
	return m.filter(func(va *domain.VirtualAccount) bool { return va.MerchantID == merchantID }), nil
}

func (m *memAccounts) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.VirtualAccountStatus) (*domain.VirtualAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	va, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if status == domain.VirtualAccountStatusActive {
		for _, other := range m.accounts {
			if other.ID != id && other.UserID == va.UserID && other.MerchantID == va.MerchantID &&
				other.Status == domain.VirtualAccountStatusActive {
				return nil, domain.ErrAccountExists
			}
		}
	}
	va.Status = status
	cp := *va
	return &cp, nil
}

func (m *memAccounts) filter(keep func(*domain.VirtualAccount) bool) []domain.VirtualAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VirtualAccount
	for _, va := range m.accounts {
		if keep(va) {
			out = append(out, *va)
		}
	}
	return out
}

type memUsers map[uuid.UUID]*domain.User

func (m memUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (m memUsers) GetMerchant(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := m.GetByID(ctx, id)
	if err != nil || u.Role != domain.RoleMerchant || u.Status != domain.UserStatusActive {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

type stubGateway struct {
	requests []gateway.VirtualAccountRequest
	err      error
}

func (g *stubGateway) RegisterVirtualAccount(_ context.Context, req gateway.VirtualAccountRequest) (*gateway.VirtualAccountResponse, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.VirtualAccountResponse{
		TransactionID: "VA-TX-" + req.AccountNumber,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountHolder: req.AccountHolder,
	}, nil
}

func (g *stubGateway) Provider() string { return "EZPG" }

type vaFixture struct {
	svc      *VirtualAccountService
	accounts *memAccounts
	gw       *stubGateway
	customer *domain.User
	merchant *domain.User
}

func newVAFixture() *vaFixture {
	customer := &domain.User{ID: uuid.New(), Name: "Lee Jiwoo", Role: domain.RoleCustomer, Status: domain.UserStatusActive}
	merchant := &domain.User{ID: uuid.New(), Name: "Coffee Co", Role: domain.RoleMerchant, Status: domain.UserStatusActive}
	accounts := newMemAccounts()
	gw := &stubGateway{}
	svc := NewVirtualAccountService(accounts,
		memUsers{customer.ID: customer, merchant.ID: merchant},
		gw,
		VirtualAccountConfig{AccountPrefix: "7001", DefaultBankCode: "004", DefaultBankName: "KB Kookmin"},
	)
	return &vaFixture{svc: svc, accounts: accounts, gw: gw, customer: customer, merchant: merchant}
}

func TestRegisterVirtualAccount(t *testing.T) {
	f := newVAFixture()

	va, err := f.svc.Register(context.Background(), RegisterVirtualAccountRequest{
		UserID:     f.customer.ID,
		MerchantID: f.merchant.ID,
	})

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^7001\d{6}$`), va.AccountNumber)
	assert.Equal(t, domain.VirtualAccountStatusActive, va.Status)
	assert.Equal(t, "EZPG", va.Provider)
	assert.Equal(t, "004", va.BankCode)
	assert.Equal(t, "KB Kookmin", va.BankName)
	assert.Equal(t, "Lee Jiwoo", va.AccountHolder)
	require.NotNil(t, va.ProviderReference)
	assert.Equal(t, "VA-TX-"+va.AccountNumber, *va.ProviderReference)

	require.Len(t, f.gw.requests, 1)
	assert.Equal(t, va.AccountNumber, f.gw.requests[0].AccountNumber)
}

func TestRegisterVirtualAccount_Rejections(t *testing.T) {
	f := newVAFixture()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterVirtualAccountRequest{UserID: f.customer.ID, MerchantID: f.merchant.ID})
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     RegisterVirtualAccountRequest
		wantErr error
	}{
		{"second active account", RegisterVirtualAccountRequest{UserID: f.customer.ID, MerchantID: f.merchant.ID}, domain.ErrAccountExists},
		{"unknown user", RegisterVirtualAccountRequest{UserID: uuid.New(), MerchantID: f.merchant.ID}, domain.ErrNotFound},
		{"merchant is a customer", RegisterVirtualAccountRequest{UserID: f.merchant.ID, MerchantID: f.customer.ID}, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Len(t, f.gw.requests, 1, "rejected registrations must not reach the gateway")
}

func TestRegisterVirtualAccount_GatewayFailure(t *testing.T) {
	f := newVAFixture()
	f.gw.err = &gateway.BusinessError{Code: "HTTP_400", Message: "bad request"}

	_, err := f.svc.Register(context.Background(), RegisterVirtualAccountRequest{
		UserID:     f.customer.ID,
		MerchantID: f.merchant.ID,
	})

	_, ok := gateway.IsBusinessError(err)
	assert.True(t, ok)
	accounts, _ := f.accounts.ListByUser(context.Background(), f.customer.ID)
	assert.Empty(t, accounts)
}

func TestVirtualAccountStatusChanges(t *testing.T) {
	f := newVAFixture()
	ctx := context.Background()

	va, err := f.svc.Register(ctx, RegisterVirtualAccountRequest{UserID: f.customer.ID, MerchantID: f.merchant.ID})
	require.NoError(t, err)

	deactivated, err := f.svc.Deactivate(ctx, va.ID, *f.customer)
	require.NoError(t, err)
	assert.Equal(t, domain.VirtualAccountStatusInactive, deactivated.Status)

	// With the old account inactive, a new one can be issued, and the old
	// one can no longer be reactivated.
	replacement, err := f.svc.Register(ctx, RegisterVirtualAccountRequest{UserID: f.customer.ID, MerchantID: f.merchant.ID})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, va.ID, *f.merchant)
	require.ErrorIs(t, err, domain.ErrAccountExists)

	_, err = f.svc.Deactivate(ctx, replacement.ID, *f.merchant)
	require.NoError(t, err)
	activated, err := f.svc.Activate(ctx, va.ID, *f.merchant)
	require.NoError(t, err)
	assert.Equal(t, domain.VirtualAccountStatusActive, activated.Status)

	again, err := f.svc.Activate(ctx, va.ID, *f.customer)
	require.NoError(t, err)
	assert.Equal(t, domain.VirtualAccountStatusActive, again.Status)
}

func TestVirtualAccountAccess(t *testing.T) {
	f := newVAFixture()
	ctx := context.Background()

	va, err := f.svc.Register(ctx, RegisterVirtualAccountRequest{UserID: f.customer.ID, MerchantID: f.merchant.ID})
	require.NoError(t, err)

	stranger := domain.User{ID: uuid.New(), Role: domain.RoleCustomer}
	otherMerchant := domain.User{ID: uuid.New(), Role: domain.RoleMerchant}
	admin := domain.User{ID: uuid.New(), Role: domain.RoleAdmin}

	tests := []struct {
		name    string
		actor   domain.User
		allowed bool
	}{
		{"owner", *f.customer, true},
		{"account merchant", *f.merchant, true},
		{"admin", admin, true},
		{"another customer", stranger, false},
		{"another merchant", otherMerchant, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Get(ctx, va.ID, tt.actor)
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrNotFound)

			_, err = f.svc.Deactivate(ctx, va.ID, tt.actor)
			require.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestGenerateAccountNumber(t *testing.T) {
	n, err := generateAccountNumber("9")
	require.NoError(t, err)
	assert.Regexp(t, `^9\d{6}$`, n)
}
