package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// scriptedTrader answers GetOrder and ClosedPnL from fixed responses and
// counts the calls.
type scriptedTrader struct {
	id     domain.ExchangeID
	order  domain.OrderDetail
	pnl    domain.ClosedPnL
	err    error
	pnlErr error

	mu        sync.Mutex
	getCalls  int
	pnlCalls  int
	failUntil int
}

func (s *scriptedTrader) ID() domain.ExchangeID { return s.id }

func (s *scriptedTrader) PlaceOrder(context.Context, domain.OrderRequest) (string, error) {
	return string(s.id) + "-1", nil
}

func (s *scriptedTrader) GetOrder(_ context.Context, orderID, _ string) (domain.OrderDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.err != nil || s.getCalls <= s.failUntil {
		return domain.OrderDetail{}, errors.Join(errors.New("gateway timeout"), s.err)
	}
	o := s.order
	o.ID = orderID
	return o, nil
}

func (s *scriptedTrader) GetSpotPrice(context.Context, string) (float64, error) { return 0, nil }

func (s *scriptedTrader) ClosedPnL(context.Context, string, string) (domain.ClosedPnL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pnlCalls++
	return s.pnl, s.pnlErr
}

func (s *scriptedTrader) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls, s.pnlCalls
}

func openSub() OpenSubmission {
	return OpenSubmission{
		ExecutionID:     "exec-1",
		UserID:          1,
		StrategyID:      7,
		Coin:            "BTC",
		Domestic:        domain.ExchangeUpbit,
		Foreign:         domain.ExchangeBybit,
		Leverage:        1,
		DomesticOrderID: "kr-1",
		ForeignOrderID:  "fr-1",
	}
}

func TestFinalizeOpen_ExhaustsAttemptsAndProceedsWithLastData(t *testing.T) {
	ctx := context.Background()
	kr := &scriptedTrader{id: domain.ExchangeUpbit, order: domain.OrderDetail{Amount: 0.01, Filled: 0}}
	fr := &scriptedTrader{id: domain.ExchangeBybit, order: domain.OrderDetail{Amount: 0.01, Filled: 0}}
	f := newFixture(t, kr, fr)

	res, err := f.engine.FinalizeOpen(ctx, openSub())
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, f.clock.Sleeps())
	krCalls, _ := kr.calls()
	frCalls, _ := fr.calls()
	assert.Equal(t, 3, krCalls)
	assert.Equal(t, 3, frCalls)

	assert.Zero(t, res.Position.KrVolume)
	assert.Zero(t, res.Position.FrVolume)
	assert.Zero(t, res.Position.EntryRate)

	active, err := f.ledger.ActivePositions(ctx, 1, "BTC")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestFinalizeOpen_TransientErrorIsRetried(t *testing.T) {
	ctx := context.Background()
	settled := domain.OrderDetail{Price: 70_000, Amount: 0.01, Filled: 0.01, Funds: 700}
	kr := &scriptedTrader{id: domain.ExchangeUpbit, order: domain.OrderDetail{Price: 1e8, Amount: 0.01, Filled: 0.01, Funds: 1_000_000}}
	fr := &scriptedTrader{id: domain.ExchangeBybit, order: settled, failUntil: 1}
	f := newFixture(t, kr, fr)

	res, err := f.engine.FinalizeOpen(ctx, openSub())
	require.NoError(t, err)
	assert.Len(t, f.clock.Sleeps(), 2)
	assert.Equal(t, 1428.57, res.Position.EntryRate)
}

func TestFinalizeOpen_ErrorOnFinalAttemptIsFatal(t *testing.T) {
	ctx := context.Background()
	kr := &scriptedTrader{id: domain.ExchangeUpbit, order: domain.OrderDetail{Amount: 0.01, Filled: 0.01}}
	fr := &scriptedTrader{id: domain.ExchangeBybit, err: domain.ErrNotFound}
	f := newFixture(t, kr, fr)

	_, err := f.engine.FinalizeOpen(ctx, openSub())
	require.ErrorIs(t, err, domain.ErrForeignOrderUnavailable)

	var pe *domain.PartialExecutionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "kr-1", pe.DomesticOrderID)
	assert.Equal(t, "fr-1", pe.ForeignOrderID)
	assert.Len(t, f.clock.Sleeps(), 3)

	active, err := f.ledger.ActivePositions(ctx, 1, "BTC")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestFinalizeClose_PnLUnavailable(t *testing.T) {
	ctx := context.Background()
	kr := &scriptedTrader{id: domain.ExchangeUpbit, order: domain.OrderDetail{Amount: 0.01, Filled: 0.01}}
	fr := &scriptedTrader{
		id:     domain.ExchangeBybit,
		order:  domain.OrderDetail{Amount: 0.01, Filled: 0.01},
		pnlErr: errors.New("rate limited"),
	}
	f := newFixture(t, kr, fr)

	_, err := f.engine.FinalizeClose(ctx, CloseSubmission{
		ExecutionID:     "exec-2",
		UserID:          1,
		Coin:            "BTC",
		Domestic:        domain.ExchangeUpbit,
		Foreign:         domain.ExchangeBybit,
		DomesticOrderID: "kr-2",
		ForeignOrderID:  "fr-2",
		Settlement:      domain.PositionSettlement{Coin: "BTC", TotalKrFunds: 1_000_000, TotalFrFunds: 700, PositionsCount: 1},
	})
	require.ErrorIs(t, err, domain.ErrForeignPnLUnavailable)
	assert.Contains(t, err.Error(), "partially closed")

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, f.clock.Sleeps())
	_, pnlCalls := fr.calls()
	assert.Equal(t, 5, pnlCalls)
}

func TestFinalizeClose_IncompletePnLProceedsAfterFiveAttempts(t *testing.T) {
	ctx := context.Background()
	kr := &scriptedTrader{id: domain.ExchangeUpbit, order: domain.OrderDetail{Price: 1.1e8, Amount: 0.01, Filled: 0.01, Funds: 1_100_000}}
	fr := &scriptedTrader{id: domain.ExchangeBybit, order: domain.OrderDetail{Price: 77_000, Amount: 0.01, Filled: 0.01}}
	f := newFixture(t, kr, fr)

	res, err := f.engine.FinalizeClose(ctx, CloseSubmission{
		ExecutionID:     "exec-3",
		UserID:          1,
		StrategyID:      7,
		Coin:            "BTC",
		Domestic:        domain.ExchangeUpbit,
		Foreign:         domain.ExchangeBybit,
		DomesticOrderID: "kr-3",
		ForeignOrderID:  "fr-3",
		Settlement:      domain.PositionSettlement{Coin: "BTC", TotalKrFunds: 1_000_000, TotalFrFunds: 700, PositionsCount: 1},
	})
	require.NoError(t, err)
	assert.Len(t, f.clock.Sleeps(), 5)

	// Empty PnL report: only the domestic leg contributes, and the exit
	// rate degrades to zero.
	assert.Equal(t, 100_000.0, res.Profit)
	assert.Zero(t, *res.Position.ExitRate)
	assert.Equal(t, 1380.0, res.CrossRate.Value)
}

func TestPoll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	kr := &scriptedTrader{id: domain.ExchangeUpbit}
	fr := &scriptedTrader{id: domain.ExchangeBybit}
	f := newFixture(t, kr, fr)

	_, err := f.engine.FinalizeOpen(ctx, openSub())
	assert.ErrorIs(t, err, context.Canceled)
	krCalls, _ := kr.calls()
	assert.Zero(t, krCalls)
}
