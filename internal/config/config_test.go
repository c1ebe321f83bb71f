package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/points_ledger")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GATEWAY_MERCHANT_ID", "M123")
	t.Setenv("GATEWAY_MERCHANT_KEY", "key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "03", cfg.GatewayWithdrawType)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 1024, cfg.EventBuffer)
	assert.Equal(t, 5*time.Second, cfg.EventPublishTimeout)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	os.Unsetenv("GATEWAY_MERCHANT_ID")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_DotenvDoesNotOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=7070\nKAFKA_BROKERS=k1:9092,k2:9092\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("KAFKA_BROKERS") })

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}
