// Package engine runs the two-leg position lifecycle: entry, finalization,
// settlement and exit across a domestic spot venue and a foreign derivatives
// venue.
//
// Placed legs are never unwound automatically. Every orchestration records
// its progress in an execution journal so a failure or crash between legs
// leaves a marker that can be inspected and reconciled by hand.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/exchange"
	"github.com/Juhan1212/karbit-sub001/internal/fixedpoint"
	"github.com/Juhan1212/karbit-sub001/internal/oracle"
)

// Clock abstracts time so tests can run the retry loops instantly.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CrossRate resolves the stablecoin-to-local-currency rate.
type CrossRate interface {
	// Rate always returns a rate, falling back to a static approximation.
	Rate(ctx context.Context) oracle.Quote
}

// RetryPolicy bounds a finalization poll. Delay is waited before every
// attempt, including the first.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Config holds engine timing.
type Config struct {
	// ConfirmDelay is waited before the single confirmation query of a leg
	// during synchronous entry.
	ConfirmDelay  time.Duration
	OpenFinalize  RetryPolicy
	CloseFinalize RetryPolicy
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		ConfirmDelay:  500 * time.Millisecond,
		OpenFinalize:  RetryPolicy{MaxAttempts: 3, Delay: time.Second},
		CloseFinalize: RetryPolicy{MaxAttempts: 5, Delay: 2 * time.Second},
	}
}

// Deps are the collaborators an Engine needs.
type Deps struct {
	Registry      *exchange.Registry
	Ledger        domain.PositionLedger
	UserStats     domain.UserStatsStore
	StrategyStats domain.StrategyStatsStore
	Journal       domain.ExecutionJournal
	Rates         CrossRate
	Clock         Clock
	Logger        *slog.Logger
}

// Engine orchestrates entries and exits. It holds no per-request state and
// is safe for concurrent use; serialising work on the same user and coin is
// the caller's job.
type Engine struct {
	registry   *exchange.Registry
	ledger     domain.PositionLedger
	users      domain.UserStatsStore
	strategies domain.StrategyStatsStore
	journal    domain.ExecutionJournal
	rates      CrossRate
	clock      Clock
	cfg        Config
	logger     *slog.Logger
}

// New creates an Engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	var missing []string
	if deps.Registry == nil {
		missing = append(missing, "registry")
	}
	if deps.Ledger == nil {
		missing = append(missing, "ledger")
	}
	if deps.UserStats == nil {
		missing = append(missing, "user stats")
	}
	if deps.StrategyStats == nil {
		missing = append(missing, "strategy stats")
	}
	if deps.Journal == nil {
		missing = append(missing, "journal")
	}
	if deps.Rates == nil {
		missing = append(missing, "cross rate")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("engine: missing dependencies: %v", missing)
	}

	def := DefaultConfig()
	if cfg.OpenFinalize.MaxAttempts <= 0 {
		cfg.OpenFinalize = def.OpenFinalize
	}
	if cfg.CloseFinalize.MaxAttempts <= 0 {
		cfg.CloseFinalize = def.CloseFinalize
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		registry:   deps.Registry,
		ledger:     deps.Ledger,
		users:      deps.UserStats,
		strategies: deps.StrategyStats,
		journal:    deps.Journal,
		rates:      deps.Rates,
		clock:      deps.Clock,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "engine")),
	}, nil
}

func (e *Engine) begin(ctx context.Context, kind domain.ExecutionKind, userID, strategyID int64, coin string, kr, fr domain.ExchangeID) domain.Execution {
	now := e.clock.Now()
	exec := domain.Execution{
		ID:         uuid.NewString(),
		Kind:       kind,
		UserID:     userID,
		StrategyID: strategyID,
		Coin:       coin,
		KrExchange: kr,
		FrExchange: fr,
		Stage:      domain.StageStarted,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	e.record(ctx, exec)
	return exec
}

func (e *Engine) advance(ctx context.Context, exec *domain.Execution, stage domain.ExecutionStage) {
	exec.Stage = stage
	exec.UpdatedAt = e.clock.Now()
	e.record(ctx, *exec)
}

// record never fails the orchestration: the journal is a recovery aid and
// losing a write must not strand a leg that is already on the exchange.
func (e *Engine) record(ctx context.Context, exec domain.Execution) {
	if err := e.journal.Save(ctx, exec); err != nil {
		e.logger.WarnContext(ctx, "journal write failed",
			slog.String("execution_id", exec.ID),
			slog.String("stage", string(exec.Stage)),
			slog.String("error", err.Error()),
		)
	}
}

// abort marks an execution that failed before any order reached an exchange.
func (e *Engine) abort(ctx context.Context, exec *domain.Execution, err error) error {
	exec.Error = err.Error()
	e.advance(ctx, exec, domain.StageFailed)
	return err
}

// partial records a failure after at least one leg was placed. The stage is
// left at the last completed step so the execution stays listed as
// incomplete.
func (e *Engine) partial(ctx context.Context, exec *domain.Execution, err error) error {
	exec.Error = err.Error()
	exec.UpdatedAt = e.clock.Now()
	e.record(ctx, *exec)

	e.logger.ErrorContext(ctx, "execution left partially applied",
		slog.String("execution_id", exec.ID),
		slog.String("kind", string(exec.Kind)),
		slog.String("stage", string(exec.Stage)),
		slog.String("kr_order_id", exec.KrOrderID),
		slog.String("fr_order_id", exec.FrOrderID),
		slog.String("error", err.Error()),
	)

	return &domain.PartialExecutionError{
		Kind:            exec.Kind,
		Stage:           exec.Stage,
		ExecutionID:     exec.ID,
		DomesticOrderID: exec.KrOrderID,
		ForeignOrderID:  exec.FrOrderID,
		Err:             err,
	}
}

// filledFunds returns the quote value of a fill, deriving it from price and
// quantity when the venue omits it.
func filledFunds(o domain.OrderDetail, decimals int32) float64 {
	if o.Funds > 0 {
		return o.Funds
	}
	return fixedpoint.Multiply(o.Filled, o.Price, decimals)
}
