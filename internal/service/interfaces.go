package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/gateway"
)

type userRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetMerchant(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type virtualAccountRepository interface {
	Create(ctx context.Context, va *domain.VirtualAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.VirtualAccount, error)
	GetActiveByUserAndMerchant(ctx context.Context, userID, merchantID uuid.UUID) (*domain.VirtualAccount, error)
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.VirtualAccount, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.VirtualAccount, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.VirtualAccountStatus) (*domain.VirtualAccount, error)
}

type virtualAccountGateway interface {
	RegisterVirtualAccount(ctx context.Context, req gateway.VirtualAccountRequest) (*gateway.VirtualAccountResponse, error)
	Provider() string
}
