package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/store/memory"
)

type mockPriceSource struct {
	mock.Mock
}

func (m *mockPriceSource) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func newTestOracle(cache domain.RateCache, live PriceSource, now time.Time) *Oracle {
	o := New(cache, live, Config{Symbol: "USDT", TTL: 10 * time.Second, Fallback: 1380}, nil)
	o.now = func() time.Time { return now }
	return o
}

func TestRate_PrefersFreshCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := memory.NewRateCache()
	require.NoError(t, cache.SetRate(ctx, "USDT", 1395.5, now.Add(-5*time.Second)))

	live := &mockPriceSource{}
	q := newTestOracle(cache, live, now).Rate(ctx)

	assert.Equal(t, 1395.5, q.Value)
	assert.Equal(t, SourceCache, q.Source)
	live.AssertNotCalled(t, "GetSpotPrice", mock.Anything, mock.Anything)
}

func TestRate_StaleCacheFallsThroughToLive(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := memory.NewRateCache()
	require.NoError(t, cache.SetRate(ctx, "USDT", 1395.5, now.Add(-time.Minute)))

	live := &mockPriceSource{}
	live.On("GetSpotPrice", mock.Anything, "USDT").Return(1401.0, nil).Once()

	q := newTestOracle(cache, live, now).Rate(ctx)
	assert.Equal(t, 1401.0, q.Value)
	assert.Equal(t, SourceLive, q.Source)

	v, ts, err := cache.GetRate(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, 1401.0, v)
	assert.Equal(t, now, ts)
	live.AssertExpectations(t)
}

func TestRate_FallsBackToStatic(t *testing.T) {
	ctx := context.Background()
	live := &mockPriceSource{}
	live.On("GetSpotPrice", mock.Anything, "USDT").Return(0.0, errors.New("timeout"))

	o := newTestOracle(memory.NewRateCache(), live, time.Now())
	q := o.Rate(ctx)
	assert.Equal(t, 1380.0, q.Value)
	assert.Equal(t, SourceFallback, q.Source)

	_, err := o.Latest(ctx)
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)
}

func TestLatest_NoSources(t *testing.T) {
	o := newTestOracle(nil, nil, time.Now())
	_, err := o.Latest(context.Background())
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)
	assert.Equal(t, SourceFallback, o.Rate(context.Background()).Source)
}
