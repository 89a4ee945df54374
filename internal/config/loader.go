package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KARBIT_"

// Load decodes the TOML file at path over Defaults, loads .env when present
// and applies KARBIT_* overrides. An empty path skips the file. The result
// is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and switch modes at deploy
// time without editing the TOML file.
func applyEnvOverrides(cfg *Config) {
	// postgres
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// redis
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")

	// s3
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setInt(&cfg.S3.ArchiveAfterDays, "S3_ARCHIVE_AFTER_DAYS")

	// exchanges
	setStr(&cfg.Exchanges.Domestic, "EXCHANGES_DOMESTIC")
	setStr(&cfg.Exchanges.Foreign, "EXCHANGES_FOREIGN")
	setFloat64(&cfg.Exchanges.RequestsPerSecond, "EXCHANGES_REQUESTS_PER_SECOND")
	setInt(&cfg.Exchanges.Burst, "EXCHANGES_BURST")

	// engine
	setDuration(&cfg.Engine.ConfirmDelay, "ENGINE_CONFIRM_DELAY")
	setInt(&cfg.Engine.OpenFinalizeAttempts, "ENGINE_OPEN_FINALIZE_ATTEMPTS")
	setDuration(&cfg.Engine.OpenFinalizeDelay, "ENGINE_OPEN_FINALIZE_DELAY")
	setInt(&cfg.Engine.CloseFinalizeAttempts, "ENGINE_CLOSE_FINALIZE_ATTEMPTS")
	setDuration(&cfg.Engine.CloseFinalizeDelay, "ENGINE_CLOSE_FINALIZE_DELAY")
	setFloat64(&cfg.Engine.FallbackCrossRate, "ENGINE_FALLBACK_CROSS_RATE")
	setDuration(&cfg.Engine.CrossRateTTL, "ENGINE_CROSS_RATE_TTL")
	setDuration(&cfg.Engine.LeaseTTL, "ENGINE_LEASE_TTL")
	setBool(&cfg.Engine.SyncFinalize, "ENGINE_SYNC_FINALIZE")
	setInt(&cfg.Engine.DefaultLeverage, "ENGINE_DEFAULT_LEVERAGE")

	// notify
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// server
	setStr(&cfg.Server.Addr, "SERVER_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setFloat64(&cfg.Server.RequestsPerSecond, "SERVER_REQUESTS_PER_SECOND")

	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setInt64(&cfg.UserID, "USER_ID")
	setInt64(&cfg.StrategyID, "STRATEGY_ID")
}

// The setters only touch dst when the variable is set, non-empty and
// parses.

func lookup(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v, ok := lookup(key); ok {
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
