package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/karbit?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "karbit"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestPositionStore_ActiveWindow(t *testing.T) {
	stores := setupTestDB(t).Stores()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seq := 0
	open := func(at time.Time, funds, rate float64) domain.Position {
		seq++
		return domain.Position{
			UserID: 1, StrategyID: 3, Coin: "BTC", EntryTime: at,
			KrExchange: domain.ExchangeUpbit, KrOrderID: fmt.Sprintf("kr-%d", seq), KrFunds: funds, KrVolume: 0.01,
			FrExchange: domain.ExchangeBybit, FrOrderID: fmt.Sprintf("fr-%d", seq), FrFunds: 7, Leverage: 2,
			EntryRate: rate, CrossRate: ptr(1400.0),
		}
	}

	require.NoError(t, stores.Positions.InsertOpen(ctx, open(t0, 999, 99)))
	closedAt := t0.Add(time.Hour)
	closed := open(closedAt, 0, 0)
	closed.ExitTime = &closedAt
	closed.Profit = ptr(12.5)
	require.NoError(t, stores.Positions.InsertClosed(ctx, closed))
	require.NoError(t, stores.Positions.InsertOpen(ctx, open(closedAt, 555, 55)))
	require.NoError(t, stores.Positions.InsertOpen(ctx, open(t0.Add(2*time.Hour), 100, 10)))
	require.NoError(t, stores.Positions.InsertOpen(ctx, open(t0.Add(3*time.Hour), 300, 20)))

	dup := open(t0.Add(4*time.Hour), 1, 1)
	require.NoError(t, stores.Positions.InsertOpen(ctx, dup))
	assert.ErrorIs(t, stores.Positions.InsertOpen(ctx, dup), domain.ErrAlreadyExists)

	active, err := stores.Positions.ActivePositions(ctx, 1, "BTC")
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, 100.0, active[0].KrFunds)
	assert.Equal(t, 300.0, active[1].KrFunds)
	assert.Equal(t, domain.PositionStatusOpen, active[0].Status)
	assert.Equal(t, domain.ExchangeBybit, active[0].FrExchange)
	assert.Equal(t, 2, active[0].Leverage)
	require.NotNil(t, active[0].CrossRate)
	assert.Nil(t, active[0].ExitTime)
	assert.Nil(t, active[0].Profit)

	rows, err := stores.Positions.ListClosed(ctx, domain.ListOpts{Until: ptr(t0.Add(2 * time.Hour))})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Profit)
	assert.Equal(t, 12.5, *rows[0].Profit)
	assert.True(t, rows[0].ExitTime.Equal(closedAt))

	none, err := stores.Positions.ActivePositions(ctx, 2, "BTC")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStatsStores(t *testing.T) {
	stores := setupTestDB(t).Stores()
	ctx := context.Background()

	require.NoError(t, stores.Users.AddDeployedCapital(ctx, 1, 1_980_000.10))
	require.NoError(t, stores.Users.AddDeployedCapital(ctx, 1, -980_000.05))
	v, err := stores.Users.DeployedCapital(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1_000_000.05, v)

	v, err = stores.Users.DeployedCapital(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, v)

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, stores.Strategies.RecordClose(ctx, 9, 2000, 0.2, now))
	require.NoError(t, stores.Strategies.RecordClose(ctx, 9, -500, -0.05, now.Add(time.Minute)))

	st, err := stores.Strategies.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Trades)
	assert.Equal(t, int64(1), st.Wins)
	assert.Equal(t, int64(1), st.Losses)
	assert.Equal(t, 1500.0, st.TotalProfit)
	assert.Equal(t, 0.15, st.SumProfitRate)
	assert.True(t, st.LastExitAt.Equal(now.Add(time.Minute)))

	_, err = stores.Strategies.Get(ctx, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecutionStore(t *testing.T) {
	stores := setupTestDB(t).Stores()
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Microsecond)

	exec := domain.Execution{
		ID: "e-1", Kind: domain.ExecutionOpen, UserID: 1, StrategyID: 3, Coin: "BTC",
		KrExchange: domain.ExchangeUpbit, FrExchange: domain.ExchangeBybit,
		Stage: domain.StageStarted, StartedAt: started, UpdatedAt: started,
	}
	require.NoError(t, stores.Executions.Save(ctx, exec))

	exec.Stage = domain.StageDomesticConfirmed
	exec.KrOrderID = "kr-1"
	exec.Error = "lot size unavailable"
	exec.StartedAt = started.Add(time.Hour)
	exec.UpdatedAt = started.Add(time.Second)
	require.NoError(t, stores.Executions.Save(ctx, exec))

	done := domain.Execution{
		ID: "e-2", Kind: domain.ExecutionClose, UserID: 1, Coin: "ETH",
		KrExchange: domain.ExchangeUpbit, FrExchange: domain.ExchangeOKX,
		Stage: domain.StagePersisted, StartedAt: started, UpdatedAt: started,
	}
	require.NoError(t, stores.Executions.Save(ctx, done))

	got, err := stores.Executions.GetByID(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageDomesticConfirmed, got.Stage)
	assert.Equal(t, "kr-1", got.KrOrderID)
	assert.True(t, got.StartedAt.Equal(started))

	pending, err := stores.Executions.ListIncomplete(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e-1", pending[0].ID)

	_, err = stores.Executions.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuditStore(t *testing.T) {
	stores := setupTestDB(t).Stores()
	ctx := context.Background()

	require.NoError(t, stores.Audit.Log(ctx, "position_opened", map[string]any{"coin": "BTC"}))
	require.NoError(t, stores.Audit.Log(ctx, "position_closed", map[string]any{"coin": "BTC", "profit": 2000.0}))

	entries, err := stores.Audit.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "position_closed", entries[0].Event)
	assert.Equal(t, 2000.0, entries[0].Detail["profit"])
}
