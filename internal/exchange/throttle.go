package exchange

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// Throttled wraps a Trader so every call waits on a token bucket first.
// Optional capabilities of the inner adapter stay reachable through the
// wrapper; calls to capabilities the inner adapter lacks return
// domain.ErrUnsupported.
type Throttled struct {
	inner   Trader
	limiter *rate.Limiter
}

// Throttle limits t to rps requests per second with the given burst. A
// non-positive rps returns t unchanged.
func Throttle(t Trader, rps float64, burst int) Trader {
	if rps <= 0 {
		return t
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{inner: t, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *Throttled) ID() domain.ExchangeID { return t.inner.ID() }

func (t *Throttled) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.inner.PlaceOrder(ctx, req)
}

func (t *Throttled) GetOrder(ctx context.Context, orderID, symbol string) (domain.OrderDetail, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return domain.OrderDetail{}, err
	}
	return t.inner.GetOrder(ctx, orderID, symbol)
}

func (t *Throttled) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return t.inner.GetSpotPrice(ctx, symbol)
}

func (t *Throttled) LotSize(ctx context.Context, symbol string) (float64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return LotSize(ctx, t.inner, symbol)
}

func (t *Throttled) SetLeverage(ctx context.Context, symbol string, leverage int) (domain.LeverageStatus, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return SetLeverage(ctx, t.inner, symbol, leverage)
}

func (t *Throttled) ClosedPnL(ctx context.Context, symbol, orderID string) (domain.ClosedPnL, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return domain.ClosedPnL{}, err
	}
	return ClosedPnL(ctx, t.inner, symbol, orderID)
}

var (
	_ Trader         = (*Throttled)(nil)
	_ LotSizer       = (*Throttled)(nil)
	_ LeverageSetter = (*Throttled)(nil)
	_ PnLReporter    = (*Throttled)(nil)
)
