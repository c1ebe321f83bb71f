package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/gateway"
	"github.com/josh-kwaku/points-ledger/internal/logging"
)

const (
	accountNumberDigits   = 6
	maxAccountNumberTries = 5
)

type VirtualAccountConfig struct {
	AccountPrefix   string
	DefaultBankCode string
	DefaultBankName string
}

type RegisterVirtualAccountRequest struct {
	UserID        uuid.UUID
	MerchantID    uuid.UUID
	AccountHolder string
}

type VirtualAccountService struct {
	accounts virtualAccountRepository
	users    userRepository
	gateway  virtualAccountGateway
	cfg      VirtualAccountConfig
}

func NewVirtualAccountService(accounts virtualAccountRepository, users userRepository, gw virtualAccountGateway, cfg VirtualAccountConfig) *VirtualAccountService {
	return &VirtualAccountService{accounts: accounts, users: users, gateway: gw, cfg: cfg}
}

// Register issues a new virtual account through the gateway. A customer may
// hold one active account per merchant.
func (s *VirtualAccountService) Register(ctx context.Context, req RegisterVirtualAccountRequest) (*domain.VirtualAccount, error) {
	log := logging.FromContext(ctx)

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("Register: user: %w", err)
	}
	if _, err := s.users.GetMerchant(ctx, req.MerchantID); err != nil {
		return nil, fmt.Errorf("Register: merchant: %w", err)
	}

	_, err = s.accounts.GetActiveByUserAndMerchant(ctx, req.UserID, req.MerchantID)
	if err == nil {
		return nil, fmt.Errorf("Register: %w", domain.ErrAccountExists)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("Register: check existing: %w", err)
	}

	acctNum, err := s.uniqueAccountNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	holder := strings.TrimSpace(req.AccountHolder)
	if holder == "" {
		holder = user.Name
	}

	resp, err := s.gateway.RegisterVirtualAccount(ctx, gateway.VirtualAccountRequest{
		BankCode:      s.cfg.DefaultBankCode,
		AccountNumber: acctNum,
		AccountHolder: holder,
	})
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	now := time.Now().UTC()
	va := &domain.VirtualAccount{
		ID:                uuid.New(),
		UserID:            req.UserID,
		MerchantID:        req.MerchantID,
		Provider:          s.gateway.Provider(),
		BankCode:          s.cfg.DefaultBankCode,
		BankName:          s.cfg.DefaultBankName,
		AccountNumber:     acctNum,
		AccountHolder:     holder,
		Status:            domain.VirtualAccountStatusActive,
		ProviderReference: &resp.TransactionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.accounts.Create(ctx, va); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	log.Info("virtual account registered",
		"virtual_account_id", va.ID,
		"user_id", va.UserID,
		"merchant_id", va.MerchantID,
		"provider_reference", resp.TransactionID,
	)
	return va, nil
}

func (s *VirtualAccountService) Get(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.VirtualAccount, error) {
	va, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if !canManage(va, actor) {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	return va, nil
}

func (s *VirtualAccountService) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.VirtualAccount, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	return accounts, nil
}

func (s *VirtualAccountService) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.VirtualAccount, error) {
	accounts, err := s.accounts.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("ListByMerchant: %w", err)
	}
	return accounts, nil
}

func (s *VirtualAccountService) Activate(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.VirtualAccount, error) {
	va, err := s.setStatus(ctx, id, actor, domain.VirtualAccountStatusActive)
	if err != nil {
		return nil, fmt.Errorf("Activate: %w", err)
	}
	return va, nil
}

func (s *VirtualAccountService) Deactivate(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.VirtualAccount, error) {
	va, err := s.setStatus(ctx, id, actor, domain.VirtualAccountStatusInactive)
	if err != nil {
		return nil, fmt.Errorf("Deactivate: %w", err)
	}
	return va, nil
}

func (s *VirtualAccountService) setStatus(ctx context.Context, id uuid.UUID, actor domain.User, status domain.VirtualAccountStatus) (*domain.VirtualAccount, error) {
	va, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(va, actor) {
		return nil, domain.ErrNotFound
	}
	if va.Status == status {
		return va, nil
	}
	if va.Status == domain.VirtualAccountStatusExpired {
		return nil, fmt.Errorf("virtual account expired: %w", domain.ErrInvalidRequest)
	}

	updated, err := s.accounts.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("virtual account status changed",
		"virtual_account_id", id,
		"from", va.Status,
		"to", status,
		"actor_id", actor.ID,
	)
	return updated, nil
}

// canManage reports whether actor is the account's owner, its merchant or an admin.
func canManage(va *domain.VirtualAccount, actor domain.User) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleMerchant:
		return va.MerchantID == actor.ID
	default:
		return va.UserID == actor.ID
	}
}

func (s *VirtualAccountService) uniqueAccountNumber(ctx context.Context) (string, error) {
	for range maxAccountNumberTries {
		candidate, err := generateAccountNumber(s.cfg.AccountPrefix)
		if err != nil {
			return "", err
		}
		exists, err := s.accounts.AccountNumberExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("uniqueAccountNumber: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("uniqueAccountNumber: exhausted %d attempts", maxAccountNumberTries)
}

func generateAccountNumber(prefix string) (string, error) {
	digits := make([]byte, accountNumberDigits)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generateAccountNumber: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return prefix + string(digits), nil
}
