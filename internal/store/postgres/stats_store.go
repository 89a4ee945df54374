package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// UserStatsStore implements domain.UserStatsStore using PostgreSQL.
type UserStatsStore struct {
	pool *pgxpool.Pool
}

// NewUserStatsStore creates a new UserStatsStore.
func NewUserStatsStore(pool *pgxpool.Pool) *UserStatsStore {
	return &UserStatsStore{pool: pool}
}

// AddDeployedCapital adds delta in a single upsert so concurrent updates for
// the same user never lose an increment.
func (s *UserStatsStore) AddDeployedCapital(ctx context.Context, userID int64, delta float64) error {
	const query = `
		INSERT INTO user_stats (user_id, deployed_capital, updated_at)
		VALUES ($1, ROUND($2::numeric, 2)::double precision, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			deployed_capital = ROUND((user_stats.deployed_capital::numeric + $2::numeric), 2)::double precision,
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, userID, delta); err != nil {
		return fmt.Errorf("postgres: add deployed capital for user %d: %w", userID, err)
	}
	return nil
}

// DeployedCapital returns the user's deployed capital, or 0 for an unknown user.
func (s *UserStatsStore) DeployedCapital(ctx context.Context, userID int64) (float64, error) {
	var v float64
	err := s.pool.QueryRow(ctx, `SELECT deployed_capital FROM user_stats WHERE user_id = $1`, userID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get deployed capital for user %d: %w", userID, err)
	}
	return v, nil
}

// StrategyStatsStore implements domain.StrategyStatsStore using PostgreSQL.
type StrategyStatsStore struct {
	pool *pgxpool.Pool
}

// NewStrategyStatsStore creates a new StrategyStatsStore.
func NewStrategyStatsStore(pool *pgxpool.Pool) *StrategyStatsStore {
	return &StrategyStatsStore{pool: pool}
}

// RecordClose counts one closed trade for the strategy.
func (s *StrategyStatsStore) RecordClose(ctx context.Context, strategyID int64, profit, profitRate float64, at time.Time) error {
	win, loss := 0, 1
	if profit > 0 {
		win, loss = 1, 0
	}
	const query = `
		INSERT INTO strategy_stats (strategy_id, trades, wins, losses, total_profit, sum_profit_rate, last_exit_at, updated_at)
		VALUES ($1, 1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (strategy_id) DO UPDATE SET
			trades = strategy_stats.trades + 1,
			wins = strategy_stats.wins + EXCLUDED.wins,
			losses = strategy_stats.losses + EXCLUDED.losses,
			total_profit = ROUND((strategy_stats.total_profit::numeric + EXCLUDED.total_profit::numeric), 2)::double precision,
			sum_profit_rate = ROUND((strategy_stats.sum_profit_rate::numeric + EXCLUDED.sum_profit_rate::numeric), 2)::double precision,
			last_exit_at = GREATEST(strategy_stats.last_exit_at, EXCLUDED.last_exit_at),
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, strategyID, win, loss, profit, profitRate, at); err != nil {
		return fmt.Errorf("postgres: record close for strategy %d: %w", strategyID, err)
	}
	return nil
}

// Get returns the strategy's aggregates.
func (s *StrategyStatsStore) Get(ctx context.Context, strategyID int64) (domain.StrategyStats, error) {
	var (
		st         domain.StrategyStats
		lastExitAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT strategy_id, trades, wins, losses, total_profit, sum_profit_rate, last_exit_at
		FROM strategy_stats WHERE strategy_id = $1`, strategyID,
	).Scan(&st.StrategyID, &st.Trades, &st.Wins, &st.Losses, &st.TotalProfit, &st.SumProfitRate, &lastExitAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StrategyStats{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.StrategyStats{}, fmt.Errorf("postgres: get strategy stats %d: %w", strategyID, err)
	}
	if lastExitAt != nil {
		st.LastExitAt = *lastExitAt
	}
	return st, nil
}

var (
	_ domain.UserStatsStore     = (*UserStatsStore)(nil)
	_ domain.StrategyStatsStore = (*StrategyStatsStore)(nil)
)
