package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/points-ledger/internal/config"
	"github.com/josh-kwaku/points-ledger/internal/events"
	"github.com/josh-kwaku/points-ledger/internal/gateway"
	"github.com/josh-kwaku/points-ledger/internal/handler"
	"github.com/josh-kwaku/points-ledger/internal/lock"
	"github.com/josh-kwaku/points-ledger/internal/logging"
	"github.com/josh-kwaku/points-ledger/internal/metrics"
	"github.com/josh-kwaku/points-ledger/internal/middleware"
	"github.com/josh-kwaku/points-ledger/internal/repository"
	"github.com/josh-kwaku/points-ledger/internal/service"
	"github.com/josh-kwaku/points-ledger/internal/service/reconcile"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("points-ledger", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	db := repository.NewDB(pool)

	m := metrics.New(prometheus.DefaultRegisterer)

	users := repository.NewUserRepository(pool)
	virtualAccounts := repository.NewVirtualAccountRepository(pool)
	idempotency := repository.NewIdempotencyRepository(pool)

	gw := gateway.NewClient(gateway.Config{
		BaseURL:      cfg.GatewayBaseURL,
		MerchantID:   cfg.GatewayMerchantID,
		MerchantKey:  cfg.GatewayMerchantKey,
		WithdrawType: cfg.GatewayWithdrawType,
		Timeout:      cfg.GatewayTimeout,
	}, m)

	checks := map[string]handler.Pinger{"postgres": db}
	deps := reconcile.Deps{
		DB:              db,
		Balances:        repository.NewBalanceRepository(pool),
		Transactions:    repository.NewTransactionRepository(pool),
		Withdrawals:     repository.NewWithdrawalRequestRepository(pool),
		VirtualAccounts: virtualAccounts,
		Users:           users,
		Gateway:         gw,
		Metrics:         m,
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := publisher.Close(); err != nil {
				slog.Error("failed to close event publisher", "error", err)
			}
		}()
		deps.Publisher = publisher
		slog.Info("ledger events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		deps.Locker = lock.NewRedisLocker(rdb, cfg.NotificationLockTTL)
		checks["redis"] = redisPinger{rdb}
	}

	ledger := reconcile.NewService(deps, reconcile.Config{
		GatewayMerchantID: cfg.GatewayMerchantID,
		PublishBuffer:     cfg.EventBuffer,
		PublishTimeout:    cfg.EventPublishTimeout,
	})
	defer ledger.Close()
	accounts := service.NewVirtualAccountService(virtualAccounts, users, gw, service.VirtualAccountConfig{
		AccountPrefix:   cfg.VirtualAccountPrefix,
		DefaultBankCode: cfg.DefaultBankCode,
		DefaultBankName: cfg.DefaultBankName,
	})

	healthHandler := handler.NewHealthHandler(version, checks)
	ledgerHandler := handler.NewLedgerHandler(ledger)
	accountHandler := handler.NewVirtualAccountHandler(accounts)
	userHandler := handler.NewUserHandler(users)
	webhookHandler := handler.NewWebhookHandler(ledger, repository.NewWebhookEventRepository(pool))

	authMw := middleware.Auth(cfg.JWTSecret)
	idemMw := middleware.Idempotency(idempotency, cfg.IdempotencyTTL)
	protected := func(h http.HandlerFunc) http.Handler { return authMw(h) }
	mutating := func(h http.HandlerFunc) http.Handler { return authMw(idemMw(h)) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /api/v1/me", protected(userHandler.Me))

	mux.Handle("GET /api/v1/balances", protected(ledgerHandler.ListBalances))
	mux.Handle("GET /api/v1/balances/{merchantId}", protected(ledgerHandler.GetBalance))
	mux.Handle("GET /api/v1/transactions", protected(ledgerHandler.ListTransactions))
	mux.Handle("GET /api/v1/transactions/{id}", protected(ledgerHandler.GetTransaction))
	mux.Handle("POST /api/v1/withdrawals", mutating(ledgerHandler.RequestWithdrawal))
	mux.Handle("POST /api/v1/deposits", mutating(ledgerHandler.CreateDeposit))

	mux.Handle("POST /api/v1/virtual-accounts", mutating(accountHandler.Register))
	mux.Handle("GET /api/v1/virtual-accounts", protected(accountHandler.List))
	mux.Handle("GET /api/v1/virtual-accounts/{id}", protected(accountHandler.Get))
	mux.Handle("POST /api/v1/virtual-accounts/{id}/activate", protected(accountHandler.Activate))
	mux.Handle("POST /api/v1/virtual-accounts/{id}/deactivate", protected(accountHandler.Deactivate))

	mux.Handle("GET /api/v1/webhook-events", protected(webhookHandler.ListEvents))

	mux.HandleFunc("POST /webhooks/ezpg/deposit-notification", webhookHandler.DepositNotification)
	mux.HandleFunc("POST /webhooks/ezpg/withdrawal-notification", webhookHandler.WithdrawalNotification)

	var h http.Handler = mux
	h = middleware.Recovery(h)
	h = middleware.Logging(m)(h)
	h = middleware.Tracing(h)

	go runIdempotencyCleanup(ctx, idempotency, m, cfg.IdempotencyCleanupInterval)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var err error
	for i := range 30 {
		var db *sql.DB
		if db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connectDB: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}

	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}

type idempotencyCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

func runIdempotencyCleanup(ctx context.Context, store idempotencyCleaner, m *metrics.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx)
			if err != nil {
				slog.Error("idempotency cleanup failed", "error", err)
				continue
			}
			m.ObserveIdempotencyCleanup(n, time.Now())
			if n > 0 {
				slog.Info("expired idempotency keys removed", "count", n)
			}
		}
	}
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
