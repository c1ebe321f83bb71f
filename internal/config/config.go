package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	IdempotencyTTL             time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyCleanupInterval time.Duration `env:"IDEMPOTENCY_CLEANUP_INTERVAL" envDefault:"1h"`

	GatewayBaseURL      string        `env:"GATEWAY_BASE_URL" envDefault:"https://api.ez-pg.com"`
	GatewayMerchantID   string        `env:"GATEWAY_MERCHANT_ID,required"`
	GatewayMerchantKey  string        `env:"GATEWAY_MERCHANT_KEY,required"`
	GatewayTimeout      time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	GatewayWithdrawType string        `env:"GATEWAY_WITHDRAW_TYPE" envDefault:"03"`

	VirtualAccountPrefix string `env:"VIRTUAL_ACCOUNT_PREFIX" envDefault:"9999"`
	DefaultBankCode      string `env:"DEFAULT_BANK_CODE" envDefault:"001"`
	DefaultBankName      string `env:"DEFAULT_BANK_NAME" envDefault:"Default Bank"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"ledger-events"`

	EventBuffer         int           `env:"EVENT_BUFFER" envDefault:"1024"`
	EventPublishTimeout time.Duration `env:"EVENT_PUBLISH_TIMEOUT" envDefault:"5s"`

	RedisAddr           string        `env:"REDIS_ADDR"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	NotificationLockTTL time.Duration `env:"NOTIFICATION_LOCK_TTL" envDefault:"30s"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

// Load reads the environment. Values from dotenvFiles fill in variables that
// are not already set; missing files are skipped.
func Load(dotenvFiles ...string) (*Config, error) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config.Load: %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
