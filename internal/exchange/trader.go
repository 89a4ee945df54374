// Package exchange defines the trading port the position engine consumes and
// the registry that resolves venue ids to adapters.
package exchange

import (
	"context"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// Trader is the capability every exchange adapter provides.
type Trader interface {
	ID() domain.ExchangeID
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (orderID string, err error)
	GetOrder(ctx context.Context, orderID, symbol string) (domain.OrderDetail, error)
	GetSpotPrice(ctx context.Context, symbol string) (float64, error)
}

// LotSizer is implemented by adapters that expose a minimum quantity step.
type LotSizer interface {
	LotSize(ctx context.Context, symbol string) (float64, error)
}

// LeverageSetter is implemented by derivatives adapters.
type LeverageSetter interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) (domain.LeverageStatus, error)
}

// PnLReporter is implemented by adapters that report realized PnL per
// closing order.
type PnLReporter interface {
	ClosedPnL(ctx context.Context, symbol, orderID string) (domain.ClosedPnL, error)
}

// LotSize asks t for the lot size of symbol. It returns domain.ErrUnsupported
// when the adapter has no such capability.
func LotSize(ctx context.Context, t Trader, symbol string) (float64, error) {
	ls, ok := t.(LotSizer)
	if !ok {
		return 0, domain.ErrUnsupported
	}
	return ls.LotSize(ctx, symbol)
}

// SetLeverage configures leverage on t. It returns domain.ErrUnsupported when
// the adapter has no such capability.
func SetLeverage(ctx context.Context, t Trader, symbol string, leverage int) (domain.LeverageStatus, error) {
	ls, ok := t.(LeverageSetter)
	if !ok {
		return "", domain.ErrUnsupported
	}
	return ls.SetLeverage(ctx, symbol, leverage)
}

// ClosedPnL fetches the realized PnL report for orderID. It returns
// domain.ErrUnsupported when the adapter has no such capability.
func ClosedPnL(ctx context.Context, t Trader, symbol, orderID string) (domain.ClosedPnL, error) {
	pr, ok := t.(PnLReporter)
	if !ok {
		return domain.ClosedPnL{}, domain.ErrUnsupported
	}
	return pr.ClosedPnL(ctx, symbol, orderID)
}
