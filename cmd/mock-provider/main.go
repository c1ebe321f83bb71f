package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/points-ledger/internal/logging"
	"github.com/josh-kwaku/points-ledger/internal/middleware"
)

type config struct {
	Port          int           `env:"MOCK_PORT" envDefault:"8081"`
	MerchantID    string        `env:"GATEWAY_MERCHANT_ID" envDefault:"M123"`
	MerchantKey   string        `env:"GATEWAY_MERCHANT_KEY" envDefault:"mock-key"`
	CallbackURL   string        `env:"MOCK_CALLBACK_URL"`
	CallbackDelay time.Duration `env:"MOCK_CALLBACK_DELAY" envDefault:"2s"`
	AppEnv        string        `env:"APP_ENV" envDefault:"development"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("mock-provider", "info", cfg.AppEnv)

	p := newProvider(cfg, &http.Client{Timeout: 5 * time.Second})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.Tracing(middleware.Recovery(p.routes())),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("mock provider started", "addr", addr, "callback_url", cfg.CallbackURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
