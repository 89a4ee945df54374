package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Engine.OpenFinalizeAttempts)
	assert.Equal(t, time.Second, cfg.Engine.OpenFinalizeDelay.Duration)
	assert.Equal(t, 5, cfg.Engine.CloseFinalizeAttempts)
	assert.Equal(t, 2*time.Second, cfg.Engine.CloseFinalizeDelay.Duration)
	assert.Equal(t, 10*time.Second, cfg.Engine.CrossRateTTL.Duration)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "karbit.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "live"
user_id = 42

[postgres]
dsn = "postgres://karbit@db/karbit"

[exchanges]
domestic = "bithumb"
foreign = "okx"

[server]
addr = "127.0.0.1:9090"
cors_origins = ["https://karbit.example"]

[engine]
close_finalize_delay = "3s"
sync_finalize = true

[paper.venues.bithumb]
fee_rate = 0.0004
prices = { BTC = 99000000.0, USDT = 1390.0 }

[paper.venues.okx]
prices = { BTC = 70100.0 }
lot_sizes = { BTC = 0.01 }
`), 0o600))

	t.Setenv("KARBIT_ENGINE_DEFAULT_LEVERAGE", "3")
	t.Setenv("KARBIT_NOTIFY_EVENTS", "partial_execution, position_closed,")
	t.Setenv("KARBIT_REDIS_ADDR", "")
	t.Setenv("KARBIT_SERVER_API_KEY", "k-123")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, int64(42), cfg.UserID)
	assert.Equal(t, "postgres://karbit@db/karbit", cfg.Postgres.DSN)
	assert.Equal(t, 3*time.Second, cfg.Engine.CloseFinalizeDelay.Duration)
	assert.Equal(t, time.Second, cfg.Engine.OpenFinalizeDelay.Duration)
	assert.True(t, cfg.Engine.SyncFinalize)
	assert.Equal(t, 3, cfg.Engine.DefaultLeverage)
	assert.Equal(t, []string{"partial_execution", "position_closed"}, cfg.Notify.Events)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0.01, cfg.Paper.Venues["okx"].LotSizes["BTC"])
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://karbit.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "k-123", cfg.Server.APIKey)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout.Duration)

	kr, err := cfg.Exchanges.DomesticID()
	require.NoError(t, err)
	assert.Equal(t, "bithumb", kr.String())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"
	cfg.UserID = 0
	cfg.Exchanges.Domestic = "bybit"
	cfg.Exchanges.Foreign = "kraken"
	cfg.Engine.OpenFinalizeAttempts = 0
	cfg.Engine.FallbackCrossRate = 0
	cfg.Engine.DefaultLeverage = 200
	cfg.Server.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "backtest"`,
		"user_id must be > 0",
		"bybit is not a domestic venue",
		"exchanges: foreign: unsupported exchange",
		"open_finalize_attempts must be >= 1",
		"fallback_cross_rate must be > 0",
		"default_leverage must be 1-125, got 200",
		"server: addr must not be empty",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateLiveNeedsBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeLive
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: host must not be empty")
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
}

func TestValidateLeaseCoversFinalization(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.LeaseTTL.Duration = 30 * time.Second
	cfg.Engine.FinalizeTimeout.Duration = time.Minute

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine: lease_ttl (30s) must be >= finalize_timeout (1m0s)")

	cfg.Engine.LeaseTTL.Duration = time.Minute
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "s3cret"
	cfg.Notify.TelegramToken = "bot-token"
	cfg.Server.APIKey = "api-key"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.S3.SecretKey)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	assert.Equal(t, redacted, out.Server.APIKey)
	assert.Empty(t, out.S3.AccessKey)

	out.Paper.Venues["upbit"].Prices["BTC"] = 1
	assert.Equal(t, 100_000_000.0, cfg.Paper.Venues["upbit"].Prices["BTC"])
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
