package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// ExecutionStore implements domain.ExecutionJournal using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, kind, user_id, strategy_id, coin_symbol, kr_exchange, fr_exchange,
	stage, kr_order_id, fr_order_id, error, started_at, updated_at`

func scanExecution(row pgx.Row) (domain.Execution, error) {
	var (
		e                      domain.Execution
		kind, kr, fr, stageStr string
	)
	if err := row.Scan(&e.ID, &kind, &e.UserID, &e.StrategyID, &e.Coin, &kr, &fr,
		&stageStr, &e.KrOrderID, &e.FrOrderID, &e.Error, &e.StartedAt, &e.UpdatedAt); err != nil {
		return domain.Execution{}, err
	}
	e.Kind = domain.ExecutionKind(kind)
	e.KrExchange = domain.ExchangeID(kr)
	e.FrExchange = domain.ExchangeID(fr)
	e.Stage = domain.ExecutionStage(stageStr)
	return e, nil
}

// Save inserts the execution, or updates its progress fields when it
// already exists. started_at is never overwritten.
func (s *ExecutionStore) Save(ctx context.Context, e domain.Execution) error {
	const query = `
		INSERT INTO executions (id, kind, user_id, strategy_id, coin_symbol, kr_exchange, fr_exchange,
			stage, kr_order_id, fr_order_id, error, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()), COALESCE($13, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			kr_order_id = EXCLUDED.kr_order_id,
			fr_order_id = EXCLUDED.fr_order_id,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`
	_, err := s.pool.Exec(ctx, query,
		e.ID, string(e.Kind), e.UserID, e.StrategyID, e.Coin, string(e.KrExchange), string(e.FrExchange),
		string(e.Stage), e.KrOrderID, e.FrOrderID, e.Error, nullTime(e.StartedAt), nullTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: save execution %s: %w", e.ID, err)
	}
	return nil
}

// GetByID returns a single execution.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	e, err := scanExecution(s.pool.QueryRow(ctx, `SELECT `+executionSelectCols+` FROM executions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Execution{}, domain.ErrNotFound
		}
		return domain.Execution{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return e, nil
}

// ListIncomplete returns executions that never reached a terminal stage,
// oldest first.
func (s *ExecutionStore) ListIncomplete(ctx context.Context) ([]domain.Execution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionSelectCols+`
		FROM executions
		WHERE stage NOT IN ($1, $2)
		ORDER BY started_at`,
		string(domain.StagePersisted), string(domain.StageFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list incomplete executions: %w", err)
	}
	defer rows.Close()

	var list []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

var _ domain.ExecutionJournal = (*ExecutionStore)(nil)
