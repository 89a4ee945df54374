package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionLedger persists position rows. Rows are append-only.
type PositionLedger interface {
	InsertOpen(ctx context.Context, pos Position) error
	InsertClosed(ctx context.Context, pos Position) error
	// ActivePositions returns the OPEN rows of user and coin that fall inside
	// the active window, oldest first.
	ActivePositions(ctx context.Context, userID int64, coin string) ([]Position, error)
	ListClosed(ctx context.Context, opts ListOpts) ([]Position, error)
}

// UserStatsStore keeps per-user aggregates.
type UserStatsStore interface {
	// AddDeployedCapital adjusts the user's deployed capital by delta, which
	// may be negative.
	AddDeployedCapital(ctx context.Context, userID int64, delta float64) error
	DeployedCapital(ctx context.Context, userID int64) (float64, error)
}

// StrategyStats is the cumulative result of a strategy's closed trades.
type StrategyStats struct {
	StrategyID    int64
	Trades        int64
	Wins          int64
	Losses        int64
	TotalProfit   float64
	SumProfitRate float64
	LastExitAt    time.Time
}

// StrategyStatsStore keeps per-strategy aggregates.
type StrategyStatsStore interface {
	RecordClose(ctx context.Context, strategyID int64, profit, profitRate float64, at time.Time) error
	Get(ctx context.Context, strategyID int64) (StrategyStats, error)
}

// ExecutionJournal records orchestration steps.
type ExecutionJournal interface {
	// Save inserts the execution or updates its stage, order ids and error.
	Save(ctx context.Context, exec Execution) error
	GetByID(ctx context.Context, id string) (Execution, error)
	ListIncomplete(ctx context.Context) ([]Execution, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
