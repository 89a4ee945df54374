package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// PositionStore implements domain.PositionLedger using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, user_id, strategy_id, coin_symbol, status, entry_time, exit_time,
	kr_exchange, kr_order_id, kr_price, kr_volume, kr_funds, kr_fee,
	fr_exchange, fr_order_id, fr_price, fr_original_price, fr_volume, fr_funds, fr_fee, fr_slippage, leverage,
	entry_rate, exit_rate, cross_rate, profit, profit_rate`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p              domain.Position
		id             int64
		status, kr, fr string
	)
	err := row.Scan(
		&id, &p.UserID, &p.StrategyID, &p.Coin, &status, &p.EntryTime, &p.ExitTime,
		&kr, &p.KrOrderID, &p.KrPrice, &p.KrVolume, &p.KrFunds, &p.KrFee,
		&fr, &p.FrOrderID, &p.FrPrice, &p.FrOriginalPrice, &p.FrVolume, &p.FrFunds, &p.FrFee, &p.FrSlippage, &p.Leverage,
		&p.EntryRate, &p.ExitRate, &p.CrossRate, &p.Profit, &p.ProfitRate,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.ID = strconv.FormatInt(id, 10)
	p.Status = domain.PositionStatus(status)
	p.KrExchange = domain.ExchangeID(kr)
	p.FrExchange = domain.ExchangeID(fr)
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PositionStore) insert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			user_id, strategy_id, coin_symbol, status, entry_time, exit_time,
			kr_exchange, kr_order_id, kr_price, kr_volume, kr_funds, kr_fee,
			fr_exchange, fr_order_id, fr_price, fr_original_price, fr_volume, fr_funds, fr_fee, fr_slippage, leverage,
			entry_rate, exit_rate, cross_rate, profit, profit_rate
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21,
			$22, $23, $24, $25, $26
		)`
	_, err := s.pool.Exec(ctx, query,
		p.UserID, p.StrategyID, p.Coin, string(p.Status), p.EntryTime, p.ExitTime,
		string(p.KrExchange), p.KrOrderID, p.KrPrice, p.KrVolume, p.KrFunds, p.KrFee,
		string(p.FrExchange), p.FrOrderID, p.FrPrice, p.FrOriginalPrice, p.FrVolume, p.FrFunds, p.FrFee, p.FrSlippage, p.Leverage,
		p.EntryRate, p.ExitRate, p.CrossRate, p.Profit, p.ProfitRate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: insert %s position %s/%s: %w", p.Status, p.KrOrderID, p.FrOrderID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert %s position %d/%s: %w", p.Status, p.UserID, p.Coin, err)
	}
	return nil
}

// InsertOpen appends an OPEN row.
func (s *PositionStore) InsertOpen(ctx context.Context, p domain.Position) error {
	p.Status = domain.PositionStatusOpen
	p.ExitTime = nil
	return s.insert(ctx, p)
}

// InsertClosed appends a CLOSED row. A missing exit time defaults to the
// entry time.
func (s *PositionStore) InsertClosed(ctx context.Context, p domain.Position) error {
	p.Status = domain.PositionStatusClosed
	if p.ExitTime == nil {
		t := p.EntryTime
		p.ExitTime = &t
	}
	return s.insert(ctx, p)
}

// ActivePositions returns OPEN rows entered strictly after the latest close
// of the same user and coin.
func (s *PositionStore) ActivePositions(ctx context.Context, userID int64, coin string) ([]domain.Position, error) {
	query := `
		SELECT ` + positionSelectCols + `
		FROM positions p
		WHERE p.user_id = $1
		  AND p.coin_symbol = $2
		  AND p.status = 'OPEN'
		  AND p.entry_time > COALESCE((
		      SELECT MAX(c.exit_time) FROM positions c
		      WHERE c.user_id = $1 AND c.coin_symbol = $2 AND c.status = 'CLOSED'
		  ), '-infinity'::timestamptz)
		ORDER BY p.entry_time, p.id`
	rows, err := s.pool.Query(ctx, query, userID, coin)
	if err != nil {
		return nil, fmt.Errorf("postgres: active positions %d/%s: %w", userID, coin, err)
	}
	return scanPositions(rows)
}

// ListClosed returns CLOSED rows ordered by exit time.
func (s *PositionStore) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := withListOpts(
		`SELECT `+positionSelectCols+` FROM positions WHERE status = 'CLOSED'`, nil,
		"exit_time", "exit_time, id", opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	return scanPositions(rows)
}

var _ domain.PositionLedger = (*PositionStore)(nil)
