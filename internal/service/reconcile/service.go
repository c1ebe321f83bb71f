package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/events"
	"github.com/josh-kwaku/points-ledger/internal/gateway"
	"github.com/josh-kwaku/points-ledger/internal/logging"
	"github.com/josh-kwaku/points-ledger/internal/metrics"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type balanceRepo interface {
	Get(ctx context.Context, userID, merchantID uuid.UUID) (*domain.Balance, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Balance, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, userID, merchantID uuid.UUID) (*domain.Balance, error)
	AdjustBalance(ctx context.Context, tx *sql.Tx, userID, merchantID uuid.UUID, delta int64) (int64, error)
	Credit(ctx context.Context, tx *sql.Tx, userID, merchantID uuid.UUID, amount int64) (int64, error)
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transaction, error)
	FindByReference(ctx context.Context, referenceID string, typ domain.TransactionType) (*domain.Transaction, error)
	ExistsByReference(ctx context.Context, referenceID string, types ...domain.TransactionType) (bool, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus, upd domain.TransactionUpdate) error
	List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int, error)
}

type withdrawalRepo interface {
	Create(ctx context.Context, tx *sql.Tx, w *domain.WithdrawalRequest) error
	GetByMoid(ctx context.Context, moid string) (*domain.WithdrawalRequest, error)
}

type virtualAccountRepo interface {
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.VirtualAccount, error)
}

type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetMerchant(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type gatewayClient interface {
	ExecuteWithdrawal(ctx context.Context, req gateway.WithdrawalRequest) (*gateway.WithdrawalResponse, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type Config struct {
	// GatewayMerchantID is the mid the gateway must present on notifications.
	GatewayMerchantID string

	// PublishBuffer and PublishTimeout bound event delivery. Events are sent
	// off the request path; a full buffer drops the event.
	PublishBuffer  int
	PublishTimeout time.Duration
}

type Deps struct {
	DB              txBeginner
	Balances        balanceRepo
	Transactions    transactionRepo
	Withdrawals     withdrawalRepo
	VirtualAccounts virtualAccountRepo
	Users           userRepo
	Gateway         gatewayClient

	// Optional.
	Publisher eventPublisher
	Locker    locker
	Metrics   *metrics.Metrics
}

type Service struct {
	db              txBeginner
	balances        balanceRepo
	transactions    transactionRepo
	withdrawals     withdrawalRepo
	virtualAccounts virtualAccountRepo
	users           userRepo
	gateway         gatewayClient
	publisher       eventPublisher
	dispatcher      *events.Dispatcher
	locker          locker
	metrics         *metrics.Metrics
	cfg             Config
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.PublishBuffer <= 0 {
		cfg.PublishBuffer = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	s := &Service{
		db:              deps.DB,
		balances:        deps.Balances,
		transactions:    deps.Transactions,
		withdrawals:     deps.Withdrawals,
		virtualAccounts: deps.VirtualAccounts,
		users:           deps.Users,
		gateway:         deps.Gateway,
		publisher:       deps.Publisher,
		locker:          deps.Locker,
		metrics:         deps.Metrics,
		cfg:             cfg,
	}
	if deps.Publisher != nil {
		s.dispatcher = events.NewDispatcher(deps.Publisher, cfg.PublishBuffer, cfg.PublishTimeout)
		s.publisher = s.dispatcher
	}
	return s
}

// Close waits for queued ledger events to be handed to the publisher.
func (s *Service) Close() {
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
}

// GetBalance returns the caller's balance with a merchant. A customer who has
// never been credited has a zero balance.
func (s *Service) GetBalance(ctx context.Context, userID, merchantID uuid.UUID) (*domain.Balance, error) {
	b, err := s.balances.Get(ctx, userID, merchantID)
	if err != nil {
		if isNotFound(err) {
			return &domain.Balance{UserID: userID, MerchantID: merchantID}, nil
		}
		return nil, fmt.Errorf("GetBalance: %w", err)
	}
	return b, nil
}

func (s *Service) ListBalances(ctx context.Context, userID uuid.UUID) ([]domain.Balance, error) {
	balances, err := s.balances.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ListBalances: %w", err)
	}
	return balances, nil
}

func (s *Service) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	for _, t := range f.Types {
		if !t.IsValid() {
			return nil, 0, fmt.Errorf("ListTransactions: type %q: %w", t, domain.ErrInvalidRequest)
		}
	}
	for _, st := range f.Statuses {
		if !st.IsValid() {
			return nil, 0, fmt.Errorf("ListTransactions: status %q: %w", st, domain.ErrInvalidRequest)
		}
	}

	txns, total, err := s.transactions.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}
	return txns, total, nil
}

// GetTransaction returns a ledger entry visible to actor: its owner, the
// merchant it is held with, or an admin. Anything else reads as not found.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID, actor domain.User) (*domain.Transaction, error) {
	t, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	switch {
	case actor.Role == domain.RoleAdmin:
	case actor.Role == domain.RoleMerchant && t.MerchantID == actor.ID:
	case t.UserID == actor.ID:
	default:
		return nil, fmt.Errorf("GetTransaction: %w", domain.ErrNotFound)
	}
	return t, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("ledger event dropped",
			"event_type", e.Type,
			"transaction_id", e.TransactionID,
			"error", err,
		)
	}
}

// acquire serializes processing of one external reference across replicas.
// Without a configured locker the database constraints alone guard it.
func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, key)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
