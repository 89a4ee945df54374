package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

func TestLedger_ActiveWindowExcludesPreviousCycle(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.InsertOpen(ctx, domain.Position{UserID: 1, Coin: "BTC", EntryTime: t0, KrFunds: 100}))
	closeAt := t0.Add(time.Hour)
	require.NoError(t, l.InsertClosed(ctx, domain.Position{UserID: 1, Coin: "BTC", EntryTime: closeAt, ExitTime: &closeAt}))
	// Same instant as the close: not strictly after, so excluded.
	require.NoError(t, l.InsertOpen(ctx, domain.Position{UserID: 1, Coin: "BTC", EntryTime: closeAt, KrFunds: 200}))
	require.NoError(t, l.InsertOpen(ctx, domain.Position{UserID: 1, Coin: "BTC", EntryTime: t0.Add(2 * time.Hour), KrFunds: 300}))
	// Other user and other coin are ignored.
	require.NoError(t, l.InsertOpen(ctx, domain.Position{UserID: 2, Coin: "BTC", EntryTime: t0.Add(3 * time.Hour), KrFunds: 400}))
	require.NoError(t, l.InsertOpen(ctx, domain.Position{UserID: 1, Coin: "ETH", EntryTime: t0.Add(3 * time.Hour), KrFunds: 500}))

	active, err := l.ActivePositions(ctx, 1, "BTC")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 300.0, active[0].KrFunds)

	active, err = l.ActivePositions(ctx, 1, "ETH")
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestLedger_ListClosed(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		at := t0.Add(time.Duration(i) * 24 * time.Hour)
		require.NoError(t, l.InsertClosed(ctx, domain.Position{UserID: 1, Coin: "BTC", EntryTime: at, ExitTime: &at}))
	}
	until := t0.Add(48 * time.Hour)
	rows, err := l.ListClosed(ctx, domain.ListOpts{Until: &until})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = l.ListClosed(ctx, domain.ListOpts{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, t0.Add(48*time.Hour), *rows[0].ExitTime)
}

func TestStrategyStats_RecordClose(t *testing.T) {
	ctx := context.Background()
	s := NewStrategyStats()
	now := time.Now()

	require.NoError(t, s.RecordClose(ctx, 7, 1500, 1.5, now))
	require.NoError(t, s.RecordClose(ctx, 7, -300, -0.3, now))

	st, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Trades)
	assert.Equal(t, int64(1), st.Wins)
	assert.Equal(t, int64(1), st.Losses)
	assert.Equal(t, 1200.0, st.TotalProfit)
	assert.Equal(t, 1.2, st.SumProfitRate)

	_, err = s.Get(ctx, 8)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJournal_ListIncomplete(t *testing.T) {
	ctx := context.Background()
	j := NewJournal()
	t0 := time.Now()

	require.NoError(t, j.Save(ctx, domain.Execution{ID: "a", Stage: domain.StageDomesticPlaced, StartedAt: t0}))
	require.NoError(t, j.Save(ctx, domain.Execution{ID: "b", Stage: domain.StagePersisted, StartedAt: t0}))
	require.NoError(t, j.Save(ctx, domain.Execution{ID: "c", Stage: domain.StageFailed, StartedAt: t0}))
	require.NoError(t, j.Save(ctx, domain.Execution{ID: "a", Stage: domain.StageForeignPlaced}))

	got, err := j.ListIncomplete(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StageForeignPlaced, got[0].Stage)
	assert.Equal(t, t0, got[0].StartedAt)
}

func TestLedger_RejectsDuplicateOrders(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	pos := domain.Position{
		UserID: 1, Coin: "BTC", EntryTime: time.Now(),
		KrExchange: domain.ExchangeUpbit, KrOrderID: "kr-1",
		FrExchange: domain.ExchangeBybit, FrOrderID: "fr-1",
	}
	require.NoError(t, l.InsertOpen(ctx, pos))
	assert.ErrorIs(t, l.InsertOpen(ctx, pos), domain.ErrAlreadyExists)
	// The same order pair may still be recorded once per status.
	assert.NoError(t, l.InsertClosed(ctx, pos))
}
