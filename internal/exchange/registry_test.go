package exchange_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/exchange"
	"github.com/Juhan1212/karbit-sub001/internal/exchange/paper"
)

func TestRegistry_Pair(t *testing.T) {
	upbit := paper.New(paper.Config{ID: domain.ExchangeUpbit}, nil)
	bybit := paper.New(paper.Config{ID: domain.ExchangeBybit}, nil)

	reg, err := exchange.NewRegistry(upbit, bybit)
	require.NoError(t, err)
	assert.Equal(t, []domain.ExchangeID{domain.ExchangeBybit, domain.ExchangeUpbit}, reg.IDs())

	pair, err := reg.Pair(domain.ExchangeUpbit, domain.ExchangeBybit)
	require.NoError(t, err)
	assert.Equal(t, domain.ExchangeUpbit, pair.Domestic.ID())
	assert.Equal(t, domain.ExchangeBybit, pair.Foreign.ID())

	_, err = reg.Pair(domain.ExchangeBybit, domain.ExchangeUpbit)
	assert.ErrorIs(t, err, domain.ErrUnsupportedExchange)

	_, err = reg.Pair(domain.ExchangeBithumb, domain.ExchangeBybit)
	assert.ErrorIs(t, err, domain.ErrUnsupportedExchange)
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	a := paper.New(paper.Config{ID: domain.ExchangeOKX}, nil)
	b := paper.New(paper.Config{ID: domain.ExchangeOKX}, nil)
	_, err := exchange.NewRegistry(a, b)
	assert.Error(t, err)
}

type bareTrader struct{}

func (bareTrader) ID() domain.ExchangeID { return domain.ExchangeBinance }
func (bareTrader) PlaceOrder(context.Context, domain.OrderRequest) (string, error) {
	return "1", nil
}
func (bareTrader) GetOrder(context.Context, string, string) (domain.OrderDetail, error) {
	return domain.OrderDetail{}, nil
}
func (bareTrader) GetSpotPrice(context.Context, string) (float64, error) { return 1, nil }

func TestThrottle_PreservesCapabilities(t *testing.T) {
	ctx := context.Background()

	bare := exchange.Throttle(bareTrader{}, 1000, 10)
	_, err := exchange.LotSize(ctx, bare, "BTC")
	assert.ErrorIs(t, err, domain.ErrUnsupported)
	_, err = exchange.SetLeverage(ctx, bare, "BTC", 1)
	assert.ErrorIs(t, err, domain.ErrUnsupported)

	full := exchange.Throttle(paper.New(paper.Config{
		ID:       domain.ExchangeBinance,
		LotSizes: map[string]float64{"BTC": 0.001},
	}, nil), 1000, 10)
	lot, err := exchange.LotSize(ctx, full, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 0.001, lot)

	assert.Equal(t, bareTrader{}, exchange.Throttle(bareTrader{}, 0, 0))
}
