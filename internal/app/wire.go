package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	s3blob "github.com/Juhan1212/karbit-sub001/internal/blob/s3"
	"github.com/Juhan1212/karbit-sub001/internal/cache/redis"
	"github.com/Juhan1212/karbit-sub001/internal/config"
	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/engine"
	"github.com/Juhan1212/karbit-sub001/internal/exchange"
	"github.com/Juhan1212/karbit-sub001/internal/exchange/paper"
	"github.com/Juhan1212/karbit-sub001/internal/notify"
	"github.com/Juhan1212/karbit-sub001/internal/oracle"
	"github.com/Juhan1212/karbit-sub001/internal/server/handler"
	"github.com/Juhan1212/karbit-sub001/internal/service"
	"github.com/Juhan1212/karbit-sub001/internal/store/memory"
	"github.com/Juhan1212/karbit-sub001/internal/store/postgres"
)

// Dependencies bundles everything the commands need. It is built by Wire and
// released by the cleanup function Wire returns.
type Dependencies struct {
	// Stores
	Ledger        domain.PositionLedger
	UserStats     domain.UserStatsStore
	StrategyStats domain.StrategyStatsStore
	Journal       domain.ExecutionJournal
	AuditStore    domain.AuditStore

	// Caches
	RateCache   domain.RateCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Venues and orchestration
	Registry *exchange.Registry
	Rates    *oracle.Oracle
	Engine   *engine.Engine
	Trades   *service.TradeService

	// Archiver is nil when no bucket is configured.
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// Checks ping the external backends for readiness.
	Checks map[string]handler.Check
}

// Wire builds the dependencies for cfg.Mode: live mode persists to Postgres
// and Redis, paper mode keeps everything in memory.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	switch strings.ToLower(cfg.Mode) {
	case config.ModeLive:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		deps.Checks["postgres"] = pgClient.Pool().Ping

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		stores := pgClient.Stores()
		deps.Ledger = stores.Positions
		deps.UserStats = stores.Users
		deps.StrategyStats = stores.Strategies
		deps.Journal = stores.Executions
		deps.AuditStore = stores.Audit

		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient.Ping

		deps.RateCache = redis.NewRateCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)

	default:
		deps.Ledger = memory.NewLedger()
		deps.UserStats = memory.NewUserStats()
		deps.StrategyStats = memory.NewStrategyStats()
		deps.Journal = memory.NewJournal()
		deps.AuditStore = memory.NewAuditLog()
		deps.RateCache = memory.NewRateCache()
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus()
	}

	registry, venues, err := buildRegistry(cfg, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: venues: %w", err))
	}
	deps.Registry = registry
	// A fresh process must see the shorts the ledger still holds open.
	for _, venue := range venues {
		if _, err := venue.Restore(ctx, deps.Ledger, cfg.UserID); err != nil {
			return fail(fmt.Errorf("wire: restore venue: %w", err))
		}
	}

	domesticID, err := cfg.Exchanges.DomesticID()
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	domestic, err := registry.Get(domesticID)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}

	// The domestic venue quotes the stablecoin in local currency.
	deps.Rates = oracle.New(deps.RateCache, domestic, oracle.Config{
		Symbol:   cfg.Engine.CrossRateSymbol,
		CacheKey: "cross:" + strings.ToUpper(cfg.Engine.CrossRateSymbol),
		TTL:      cfg.Engine.CrossRateTTL.Duration,
		Fallback: cfg.Engine.FallbackCrossRate,
	}, logger)

	deps.Engine, err = engine.New(engine.Deps{
		Registry:      registry,
		Ledger:        deps.Ledger,
		UserStats:     deps.UserStats,
		StrategyStats: deps.StrategyStats,
		Journal:       deps.Journal,
		Rates:         deps.Rates,
		Logger:        logger,
	}, engine.Config{
		ConfirmDelay: cfg.Engine.ConfirmDelay.Duration,
		OpenFinalize: engine.RetryPolicy{
			MaxAttempts: cfg.Engine.OpenFinalizeAttempts,
			Delay:       cfg.Engine.OpenFinalizeDelay.Duration,
		},
		CloseFinalize: engine.RetryPolicy{
			MaxAttempts: cfg.Engine.CloseFinalizeAttempts,
			Delay:       cfg.Engine.CloseFinalizeDelay.Duration,
		},
	})
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}

	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Checks["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Ledger, deps.AuditStore, logger)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	deps.Trades, err = service.NewTradeService(service.Deps{
		Engine:   deps.Engine,
		Locks:    deps.LockManager,
		Journal:  deps.Journal,
		Bus:      deps.SignalBus,
		Audit:    deps.AuditStore,
		Notifier: deps.Notifier,
		Logger:   logger,
	}, service.Config{
		LeaseTTL:        cfg.Engine.LeaseTTL.Duration,
		SyncFinalize:    cfg.Engine.SyncFinalize,
		FinalizeTimeout: cfg.Engine.FinalizeTimeout.Duration,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	// In-flight finalizations complete before stores are closed.
	closers = append(closers, deps.Trades.Wait)

	return deps, cleanup, nil
}

// buildRegistry creates one simulated venue per configured entry, each
// behind the client-side throttle. The unwrapped venues are returned too so
// their state can be restored from the ledger.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*exchange.Registry, []*paper.Exchange, error) {
	names := make([]string, 0, len(cfg.Paper.Venues))
	for name := range cfg.Paper.Venues {
		names = append(names, name)
	}
	sort.Strings(names)

	traders := make([]exchange.Trader, 0, len(names))
	venues := make([]*paper.Exchange, 0, len(names))
	for _, name := range names {
		id, err := domain.ParseExchangeID(name)
		if err != nil {
			return nil, nil, err
		}
		v := cfg.Paper.Venues[name]
		venue := paper.New(paper.Config{
			ID:          id,
			FeeRate:     v.FeeRate,
			Prices:      v.Prices,
			LotSizes:    v.LotSizes,
			SettleAfter: v.SettleAfter,
		}, logger)
		venues = append(venues, venue)
		traders = append(traders, exchange.Throttle(venue, cfg.Exchanges.RequestsPerSecond, cfg.Exchanges.Burst))
	}
	registry, err := exchange.NewRegistry(traders...)
	if err != nil {
		return nil, nil, err
	}
	return registry, venues, nil
}
