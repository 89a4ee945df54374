package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

func newForeign(settleAfter int) *Exchange {
	return New(Config{
		ID:          domain.ExchangeBybit,
		FeeRate:     0.001,
		Prices:      map[string]float64{"BTC": 100},
		LotSizes:    map[string]float64{"BTC": 0.001},
		SettleAfter: settleAfter,
	}, nil)
}

func TestPlaceOrder_QuoteAmountBuy(t *testing.T) {
	ctx := context.Background()
	ex := New(Config{
		ID:      domain.ExchangeUpbit,
		FeeRate: 0.0005,
		Prices:  map[string]float64{"BTC": 100_000_000},
	}, nil)

	id, err := ex.PlaceOrder(ctx, domain.OrderRequest{
		Symbol: "BTC", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy,
		Amount: 1_000_000, QuoteAmount: true,
	})
	require.NoError(t, err)

	o, err := ex.GetOrder(ctx, id, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 0.01, o.Filled)
	assert.Equal(t, 1_000_000.0, o.Funds)
	assert.Equal(t, 500.0, o.Fee)
	assert.True(t, o.Settled())
}

func TestGetOrder_SettlesAfterConfiguredQueries(t *testing.T) {
	ctx := context.Background()
	ex := newForeign(2)

	id, err := ex.PlaceOrder(ctx, domain.OrderRequest{Symbol: "BTC", Type: domain.OrderTypeMarket, Side: domain.OrderSideSell, Amount: 1})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		o, err := ex.GetOrder(ctx, id, "BTC")
		require.NoError(t, err)
		assert.False(t, o.Settled())
	}
	o, err := ex.GetOrder(ctx, id, "BTC")
	require.NoError(t, err)
	assert.True(t, o.Settled())

	_, err = ex.GetOrder(ctx, "missing", "BTC")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCloseEntirePosition_ReportsPnL(t *testing.T) {
	ctx := context.Background()
	ex := newForeign(0)

	_, err := ex.PlaceOrder(ctx, domain.OrderRequest{Symbol: "BTC", Type: domain.OrderTypeMarket, Side: domain.OrderSideSell, Amount: 2})
	require.NoError(t, err)

	ex.SetPrice("BTC", 90)
	closeID, err := ex.PlaceOrder(ctx, domain.OrderRequest{
		Symbol: "BTC", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy,
		ReduceOnly: true, CloseEntirePosition: true,
	})
	require.NoError(t, err)

	pnl, err := ex.ClosedPnL(ctx, "BTC", closeID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, pnl.TotalVolume)
	assert.Equal(t, 90.0, pnl.AvgExitPrice)
	assert.Equal(t, 0.18, pnl.CloseFee)
	assert.Equal(t, 19.82, pnl.TotalPnL)

	_, err = ex.PlaceOrder(ctx, domain.OrderRequest{
		Symbol: "BTC", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy,
		ReduceOnly: true, CloseEntirePosition: true,
	})
	assert.Error(t, err)
}

func TestSetLeverage(t *testing.T) {
	ctx := context.Background()
	ex := newForeign(0)

	st, err := ex.SetLeverage(ctx, "BTC", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.LeverageSet, st)

	st, err = ex.SetLeverage(ctx, "BTC", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.LeverageNotModified, st)

	st, err = ex.SetLeverage(ctx, "BTC", 500)
	require.NoError(t, err)
	assert.Equal(t, domain.LeverageRejected, st)

	dom := New(Config{ID: domain.ExchangeUpbit}, nil)
	_, err = dom.SetLeverage(ctx, "BTC", 1)
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

type ledgerRows map[string][]domain.Position

func (l ledgerRows) ActivePositions(_ context.Context, _ int64, coin string) ([]domain.Position, error) {
	return l[coin], nil
}

func TestRestore_RebuildsShortsFromLedger(t *testing.T) {
	ctx := context.Background()
	ex := newForeign(0)
	rows := ledgerRows{"BTC": {
		{Coin: "BTC", FrExchange: domain.ExchangeBybit, FrVolume: 1, FrPrice: 100},
		{Coin: "BTC", FrExchange: domain.ExchangeBybit, FrVolume: 3, FrPrice: 120},
		{Coin: "BTC", FrExchange: domain.ExchangeBinance, FrVolume: 5, FrPrice: 90},
	}}

	n, err := ex.Restore(ctx, rows, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ex.SetPrice("BTC", 110)
	closeID, err := ex.PlaceOrder(ctx, domain.OrderRequest{
		Symbol: "BTC", Type: domain.OrderTypeMarket, Side: domain.OrderSideBuy,
		ReduceOnly: true, CloseEntirePosition: true,
	})
	require.NoError(t, err)

	pnl, err := ex.ClosedPnL(ctx, "BTC", closeID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, pnl.TotalVolume)
	// avg entry 115, exit 110, fee 0.44
	assert.Equal(t, 19.56, pnl.TotalPnL)
}

func TestRestore_IgnoresDomesticVenue(t *testing.T) {
	ex := New(Config{ID: domain.ExchangeUpbit, Prices: map[string]float64{"BTC": 1}}, nil)
	n, err := ex.Restore(context.Background(), ledgerRows{"BTC": {{FrExchange: domain.ExchangeUpbit, FrVolume: 1}}}, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPlaceOrder_IdsUniqueAcrossInstances(t *testing.T) {
	ctx := context.Background()
	sell := domain.OrderRequest{Symbol: "BTC", Type: domain.OrderTypeMarket, Side: domain.OrderSideSell, Amount: 1}

	first, err := newForeign(0).PlaceOrder(ctx, sell)
	require.NoError(t, err)
	second, err := newForeign(0).PlaceOrder(ctx, sell)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
