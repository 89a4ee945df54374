// Package paper is an in-process exchange simulator. It fills market orders
// at the configured price and mimics the eventual consistency of real order
// endpoints by answering the first queries for an order with empty fills.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/exchange"
	"github.com/Juhan1212/karbit-sub001/internal/fixedpoint"
)

const maxLeverage = 125

// Config describes one simulated venue.
type Config struct {
	ID       domain.ExchangeID
	FeeRate  float64
	Prices   map[string]float64
	LotSizes map[string]float64
	// SettleAfter is the number of order or PnL queries answered with empty
	// data before the real fill is reported.
	SettleAfter int
}

type order struct {
	detail     domain.OrderDetail
	queries    int
	pnl        *domain.ClosedPnL
	pnlQueries int
}

type short struct {
	size     float64
	avgEntry float64
}

// Exchange is a simulated venue. It is safe for concurrent use.
type Exchange struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	prices    map[string]float64
	orders    map[string]*order
	shorts    map[string]*short
	leverages map[string]int
}

// New creates a simulated venue.
func New(cfg Config, logger *slog.Logger) *Exchange {
	if logger == nil {
		logger = slog.Default()
	}
	prices := make(map[string]float64, len(cfg.Prices))
	for k, v := range cfg.Prices {
		prices[k] = v
	}
	return &Exchange{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "paper"), slog.String("exchange", cfg.ID.String())),
		now:       time.Now,
		prices:    prices,
		orders:    make(map[string]*order),
		shorts:    make(map[string]*short),
		leverages: make(map[string]int),
	}
}

func (e *Exchange) ID() domain.ExchangeID { return e.cfg.ID }

// SetPrice moves the simulated market price of symbol.
func (e *Exchange) SetPrice(symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[symbol] = price
}

func (e *Exchange) GetSpotPrice(_ context.Context, symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: %s: price for %s: %w", e.cfg.ID, symbol, domain.ErrNotFound)
	}
	return p, nil
}

func (e *Exchange) PlaceOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	price, ok := e.prices[req.Symbol]
	if !ok {
		return "", fmt.Errorf("paper: %s: price for %s: %w", e.cfg.ID, req.Symbol, domain.ErrNotFound)
	}
	if req.Type == domain.OrderTypeLimit && req.Price > 0 {
		price = req.Price
	}

	fundsDecimals := fixedpoint.PriceDecimals
	if e.cfg.ID.Market() == domain.MarketDomestic {
		fundsDecimals = fixedpoint.CurrencyDecimals
	}

	var qty, funds float64
	switch {
	case req.CloseEntirePosition:
		pos := e.shorts[req.Symbol]
		if pos == nil || pos.size <= 0 {
			return "", fmt.Errorf("paper: %s: no open position for %s", e.cfg.ID, req.Symbol)
		}
		qty = pos.size
		funds = fixedpoint.Multiply(qty, price, fundsDecimals)
	case req.QuoteAmount:
		funds = req.Amount
		qty = fixedpoint.Divide(funds, price, fixedpoint.VolumeDecimals)
	default:
		qty = req.Amount
		funds = fixedpoint.Multiply(qty, price, fundsDecimals)
	}
	if qty <= 0 {
		return "", fmt.Errorf("paper: %s: order quantity must be positive", e.cfg.ID)
	}
	fee := fixedpoint.Multiply(funds, e.cfg.FeeRate, fixedpoint.PriceDecimals)

	// Ids stay unique across processes that share one ledger.
	id := string(e.cfg.ID) + "-" + uuid.NewString()
	o := &order{detail: domain.OrderDetail{
		ID:        id,
		Symbol:    req.Symbol,
		Price:     price,
		Amount:    qty,
		Filled:    qty,
		Funds:     funds,
		Fee:       fee,
		Timestamp: e.now(),
	}}

	if e.cfg.ID.Market() == domain.MarketForeign {
		pnl, err := e.applyDerivative(req, qty, price, fee)
		if err != nil {
			return "", err
		}
		o.pnl = pnl
	}
	e.orders[id] = o

	e.logger.Debug("order filled",
		slog.String("order_id", id),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.Float64("qty", qty),
		slog.Float64("price", price),
	)
	return id, nil
}

// applyDerivative updates the simulated short book. Sells open or extend a
// short; reducing buys close it and produce a realized PnL report.
func (e *Exchange) applyDerivative(req domain.OrderRequest, qty, price, fee float64) (*domain.ClosedPnL, error) {
	pos := e.shorts[req.Symbol]
	if pos == nil {
		pos = &short{}
		e.shorts[req.Symbol] = pos
	}

	if req.Side == domain.OrderSideSell {
		cost := fixedpoint.Add(
			fixedpoint.Multiply(pos.size, pos.avgEntry, fixedpoint.PriceDecimals),
			fixedpoint.Multiply(qty, price, fixedpoint.PriceDecimals),
			fixedpoint.PriceDecimals,
		)
		pos.size = fixedpoint.Add(pos.size, qty, fixedpoint.VolumeDecimals)
		pos.avgEntry = fixedpoint.Divide(cost, pos.size, fixedpoint.PriceDecimals)
		return nil, nil
	}

	if pos.size <= 0 {
		if req.ReduceOnly || req.CloseEntirePosition {
			return nil, fmt.Errorf("paper: %s: reduce-only order with no open position for %s", e.cfg.ID, req.Symbol)
		}
		return nil, nil
	}
	if qty > pos.size {
		qty = pos.size
	}
	gross := fixedpoint.Multiply(fixedpoint.Subtract(pos.avgEntry, price, fixedpoint.PriceDecimals), qty, fixedpoint.PriceDecimals)
	pnl := &domain.ClosedPnL{
		AvgExitPrice: price,
		TotalVolume:  qty,
		TotalPnL:     fixedpoint.Subtract(gross, fee, fixedpoint.PriceDecimals),
		CloseFee:     fee,
		OrderPrice:   price,
	}
	pos.size = fixedpoint.Subtract(pos.size, qty, fixedpoint.VolumeDecimals)
	if pos.size <= 0 {
		pos.size, pos.avgEntry = 0, 0
	}
	return pnl, nil
}

// PositionSource lists a user's active ledger rows for a coin.
type PositionSource interface {
	ActivePositions(ctx context.Context, userID int64, coin string) ([]domain.Position, error)
}

// Restore rebuilds the short book of a foreign venue from the active ledger
// rows of userID, so a new process can cover shorts opened by an earlier one.
// It returns the number of symbols with an open short.
func (e *Exchange) Restore(ctx context.Context, src PositionSource, userID int64) (int, error) {
	if e.cfg.ID.Market() != domain.MarketForeign {
		return 0, nil
	}
	e.mu.Lock()
	symbols := make([]string, 0, len(e.prices))
	for sym := range e.prices {
		symbols = append(symbols, sym)
	}
	e.mu.Unlock()

	restored := 0
	for _, sym := range symbols {
		rows, err := src.ActivePositions(ctx, userID, sym)
		if err != nil {
			return restored, fmt.Errorf("paper: %s: restore %s: %w", e.cfg.ID, sym, err)
		}
		var volumes, prices []float64
		for _, p := range rows {
			if p.FrExchange != e.cfg.ID || p.FrVolume <= 0 {
				continue
			}
			volumes = append(volumes, p.FrVolume)
			prices = append(prices, p.FrPrice)
		}
		if len(volumes) == 0 {
			continue
		}

		pos := &short{
			size:     fixedpoint.Sum(volumes, fixedpoint.VolumeDecimals),
			avgEntry: fixedpoint.WeightedAverage(prices, volumes, fixedpoint.PriceDecimals),
		}
		e.mu.Lock()
		e.shorts[sym] = pos
		e.mu.Unlock()
		restored++

		e.logger.InfoContext(ctx, "short restored from ledger",
			slog.String("symbol", sym),
			slog.Float64("size", pos.size),
			slog.Float64("avg_entry", pos.avgEntry),
		)
	}
	return restored, nil
}

func (e *Exchange) GetOrder(_ context.Context, orderID, symbol string) (domain.OrderDetail, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok || o.detail.Symbol != symbol {
		return domain.OrderDetail{}, fmt.Errorf("paper: %s: order %s: %w", e.cfg.ID, orderID, domain.ErrNotFound)
	}
	o.queries++
	if o.queries <= e.cfg.SettleAfter {
		return domain.OrderDetail{ID: o.detail.ID, Symbol: o.detail.Symbol, Timestamp: o.detail.Timestamp}, nil
	}
	return o.detail, nil
}

func (e *Exchange) LotSize(_ context.Context, symbol string) (float64, error) {
	if e.cfg.ID.Market() != domain.MarketForeign {
		return 0, domain.ErrUnsupported
	}
	lot, ok := e.cfg.LotSizes[symbol]
	if !ok || lot <= 0 {
		return 0, fmt.Errorf("paper: %s: lot size for %s: %w", e.cfg.ID, symbol, domain.ErrNotFound)
	}
	return lot, nil
}

func (e *Exchange) SetLeverage(_ context.Context, symbol string, leverage int) (domain.LeverageStatus, error) {
	if e.cfg.ID.Market() != domain.MarketForeign {
		return "", domain.ErrUnsupported
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if leverage < 1 || leverage > maxLeverage {
		return domain.LeverageRejected, nil
	}
	if e.leverages[symbol] == leverage {
		return domain.LeverageNotModified, nil
	}
	e.leverages[symbol] = leverage
	return domain.LeverageSet, nil
}

func (e *Exchange) ClosedPnL(_ context.Context, symbol, orderID string) (domain.ClosedPnL, error) {
	if e.cfg.ID.Market() != domain.MarketForeign {
		return domain.ClosedPnL{}, domain.ErrUnsupported
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok || o.detail.Symbol != symbol || o.pnl == nil {
		return domain.ClosedPnL{}, fmt.Errorf("paper: %s: closed pnl for %s: %w", e.cfg.ID, orderID, domain.ErrNotFound)
	}
	o.pnlQueries++
	if o.pnlQueries <= e.cfg.SettleAfter {
		return domain.ClosedPnL{}, nil
	}
	return *o.pnl, nil
}

var (
	_ exchange.Trader         = (*Exchange)(nil)
	_ exchange.LotSizer       = (*Exchange)(nil)
	_ exchange.LeverageSetter = (*Exchange)(nil)
	_ exchange.PnLReporter    = (*Exchange)(nil)
)
