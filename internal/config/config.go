// Package config defines the karbit configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// Config is the root configuration. Fields are decoded from TOML over
// Defaults and then overridden by KARBIT_* environment variables.
type Config struct {
	Postgres   PostgresConfig  `toml:"postgres"`
	Redis      RedisConfig     `toml:"redis"`
	S3         S3Config        `toml:"s3"`
	Exchanges  ExchangesConfig `toml:"exchanges"`
	Engine     EngineConfig    `toml:"engine"`
	Notify     NotifyConfig    `toml:"notify"`
	Paper      PaperConfig     `toml:"paper"`
	Server     ServerConfig    `toml:"server"`
	Mode       string          `toml:"mode"`
	LogLevel   string          `toml:"log_level"`
	UserID     int64           `toml:"user_id"`
	StrategyID int64           `toml:"strategy_id"`
}

// PostgresConfig holds the ledger database connection.
type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
}

// RedisConfig holds the cache, lease and bus connection.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds the archive bucket. Archiving is disabled when Bucket is
// empty.
type S3Config struct {
	Endpoint         string `toml:"endpoint"`
	Region           string `toml:"region"`
	Bucket           string `toml:"bucket"`
	AccessKey        string `toml:"access_key"`
	SecretKey        string `toml:"secret_key"`
	UseSSL           bool   `toml:"use_ssl"`
	ForcePathStyle   bool   `toml:"force_path_style"`
	ArchiveAfterDays int    `toml:"archive_after_days"`
}

// ExchangesConfig selects the venue pair and the client-side request rate.
type ExchangesConfig struct {
	Domestic string `toml:"domestic"`
	Foreign  string `toml:"foreign"`
	// RequestsPerSecond throttles every call to one venue. Zero disables
	// throttling.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// DomesticID returns the parsed domestic venue id.
func (e ExchangesConfig) DomesticID() (domain.ExchangeID, error) {
	return domain.ParseExchangeID(e.Domestic)
}

// ForeignID returns the parsed foreign venue id.
func (e ExchangesConfig) ForeignID() (domain.ExchangeID, error) {
	return domain.ParseExchangeID(e.Foreign)
}

// EngineConfig holds orchestration timings and the cross-rate settings.
type EngineConfig struct {
	ConfirmDelay          duration `toml:"confirm_delay"`
	OpenFinalizeAttempts  int      `toml:"open_finalize_attempts"`
	OpenFinalizeDelay     duration `toml:"open_finalize_delay"`
	CloseFinalizeAttempts int      `toml:"close_finalize_attempts"`
	CloseFinalizeDelay    duration `toml:"close_finalize_delay"`
	CrossRateSymbol       string   `toml:"cross_rate_symbol"`
	CrossRateTTL          duration `toml:"cross_rate_ttl"`
	FallbackCrossRate     float64  `toml:"fallback_cross_rate"`
	LeaseTTL              duration `toml:"lease_ttl"`
	FinalizeTimeout       duration `toml:"finalize_timeout"`
	SyncFinalize          bool     `toml:"sync_finalize"`
	DefaultLeverage       int      `toml:"default_leverage"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds the HTTP API used by the serve command.
type ServerConfig struct {
	Addr              string   `toml:"addr"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	ShutdownTimeout   duration `toml:"shutdown_timeout"`
}

// PaperConfig describes the simulated venues, keyed by exchange id.
type PaperConfig struct {
	Venues map[string]PaperVenue `toml:"venues"`
}

// PaperVenue is one simulated venue.
type PaperVenue struct {
	FeeRate  float64            `toml:"fee_rate"`
	Prices   map[string]float64 `toml:"prices"`
	LotSizes map[string]float64 `toml:"lot_sizes"`
	// SettleAfter is the number of order queries answered empty before the
	// fill shows up.
	SettleAfter int `toml:"settle_after"`
}

// duration decodes TOML strings such as "500ms" or "2m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

const (
	ModePaper = "paper"
	ModeLive  = "live"
)

const maxLeverage = 125

// Defaults returns a Config that runs in paper mode out of the box.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "karbit",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			MaxConnLifetime: duration{30 * time.Minute},
			RunMigrations:   true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "karbit:",
		},
		S3: S3Config{
			Region:           "us-east-1",
			ForcePathStyle:   true,
			ArchiveAfterDays: 90,
		},
		Exchanges: ExchangesConfig{
			Domestic:          string(domain.ExchangeUpbit),
			Foreign:           string(domain.ExchangeBybit),
			RequestsPerSecond: 8,
			Burst:             4,
		},
		Engine: EngineConfig{
			ConfirmDelay:          duration{500 * time.Millisecond},
			OpenFinalizeAttempts:  3,
			OpenFinalizeDelay:     duration{time.Second},
			CloseFinalizeAttempts: 5,
			CloseFinalizeDelay:    duration{2 * time.Second},
			CrossRateSymbol:       "USDT",
			CrossRateTTL:          duration{10 * time.Second},
			FallbackCrossRate:     1300,
			LeaseTTL:              duration{2 * time.Minute},
			FinalizeTimeout:       duration{time.Minute},
			DefaultLeverage:       1,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "partial_execution"},
		},
		Paper: PaperConfig{
			Venues: map[string]PaperVenue{
				"upbit": {
					FeeRate: 0.0005,
					Prices:  map[string]float64{"BTC": 100_000_000, "ETH": 5_000_000, "USDT": 1400},
				},
				"bybit": {
					FeeRate:     0.00055,
					Prices:      map[string]float64{"BTC": 70_000, "ETH": 3_500},
					LotSizes:    map[string]float64{"BTC": 0.001, "ETH": 0.01},
					SettleAfter: 1,
				},
			},
		},
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerSecond: 5,
			Burst:             10,
			ShutdownTimeout:   duration{15 * time.Second},
		},
		Mode:       ModePaper,
		LogLevel:   "info",
		UserID:     1,
		StrategyID: 1,
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks every section and returns one error listing all problems.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	mode := strings.ToLower(c.Mode)
	if mode != ModePaper && mode != ModeLive {
		add("unknown mode %q (valid: paper, live)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	if c.UserID <= 0 {
		add("user_id must be > 0")
	}

	// Exchanges
	if id, err := c.Exchanges.DomesticID(); err != nil {
		add("exchanges: domestic: %v", err)
	} else if id.Market() != domain.MarketDomestic {
		add("exchanges: domestic: %s is not a domestic venue", id)
	}
	if id, err := c.Exchanges.ForeignID(); err != nil {
		add("exchanges: foreign: %v", err)
	} else if id.Market() != domain.MarketForeign {
		add("exchanges: foreign: %s is not a foreign venue", id)
	}
	if c.Exchanges.RequestsPerSecond < 0 {
		add("exchanges: requests_per_second must be >= 0")
	}
	if c.Exchanges.RequestsPerSecond > 0 && c.Exchanges.Burst < 1 {
		add("exchanges: burst must be >= 1 when throttling")
	}

	// Engine
	e := c.Engine
	if e.ConfirmDelay.Duration < 0 || e.OpenFinalizeDelay.Duration < 0 || e.CloseFinalizeDelay.Duration < 0 {
		add("engine: delays must be >= 0")
	}
	if e.OpenFinalizeAttempts < 1 {
		add("engine: open_finalize_attempts must be >= 1")
	}
	if e.CloseFinalizeAttempts < 1 {
		add("engine: close_finalize_attempts must be >= 1")
	}
	if strings.TrimSpace(e.CrossRateSymbol) == "" {
		add("engine: cross_rate_symbol must not be empty")
	}
	if e.CrossRateTTL.Duration <= 0 {
		add("engine: cross_rate_ttl must be > 0")
	}
	if e.FallbackCrossRate <= 0 {
		add("engine: fallback_cross_rate must be > 0")
	}
	if e.LeaseTTL.Duration <= 0 {
		add("engine: lease_ttl must be > 0")
	}
	if e.FinalizeTimeout.Duration <= 0 {
		add("engine: finalize_timeout must be > 0")
	}
	if e.LeaseTTL.Duration < e.FinalizeTimeout.Duration {
		add("engine: lease_ttl (%s) must be >= finalize_timeout (%s)", e.LeaseTTL.Duration, e.FinalizeTimeout.Duration)
	}
	if e.DefaultLeverage < 1 || e.DefaultLeverage > maxLeverage {
		add("engine: default_leverage must be 1-%d, got %d", maxLeverage, e.DefaultLeverage)
	}

	// Server
	if strings.TrimSpace(c.Server.Addr) == "" {
		add("server: addr must not be empty")
	}
	if c.Server.RequestsPerSecond < 0 {
		add("server: requests_per_second must be >= 0")
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst < 1 {
		add("server: burst must be >= 1 when rate limiting")
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		add("server: shutdown_timeout must be > 0")
	}

	switch mode {
	case ModeLive:
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be 0-pool_max_conns")
		}
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	// Paper venues back both modes until exchange adapters are configured,
	// so they are always checked.
	for name, v := range c.Paper.Venues {
		if _, err := domain.ParseExchangeID(name); err != nil {
			add("paper: venues: %v", err)
		}
		if v.FeeRate < 0 || v.FeeRate >= 1 {
			add("paper: venues.%s: fee_rate must be in [0, 1)", name)
		}
		if v.SettleAfter < 0 {
			add("paper: venues.%s: settle_after must be >= 0", name)
		}
		for sym, p := range v.Prices {
			if p <= 0 {
				add("paper: venues.%s: price of %s must be > 0", name, sym)
			}
		}
	}
	for _, id := range []string{c.Exchanges.Domestic, c.Exchanges.Foreign} {
		if _, ok := c.Paper.Venues[strings.ToLower(id)]; !ok && id != "" {
			add("paper: venues.%s is not configured", id)
		}
	}

	if c.S3.Bucket != "" {
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
		if c.S3.ArchiveAfterDays < 1 {
			add("s3: archive_after_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
