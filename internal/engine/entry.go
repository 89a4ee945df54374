package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/exchange"
	"github.com/Juhan1212/karbit-sub001/internal/fixedpoint"
	"github.com/Juhan1212/karbit-sub001/internal/oracle"
)

// OpenRequest asks for a new hedged position.
type OpenRequest struct {
	UserID     int64
	StrategyID int64
	Coin       string
	Domestic   domain.ExchangeID
	Foreign    domain.ExchangeID
	// Seed is the local-currency amount spent on the domestic buy.
	Seed     float64
	Leverage int
}

func (r *OpenRequest) normalize() error {
	r.Coin = strings.ToUpper(strings.TrimSpace(r.Coin))
	if r.Coin == "" {
		return errors.New("engine: open: coin is required")
	}
	if r.Seed <= 0 {
		return fmt.Errorf("engine: open: seed must be positive, got %v", r.Seed)
	}
	if r.Leverage == 0 {
		r.Leverage = 1
	}
	return nil
}

// OpenSubmission describes an entry whose legs are placed but not yet
// written to the ledger.
type OpenSubmission struct {
	ExecutionID     string
	UserID          int64
	StrategyID      int64
	Coin            string
	Domestic        domain.ExchangeID
	Foreign         domain.ExchangeID
	Leverage        int
	Volume          float64
	DomesticOrderID string
	ForeignOrderID  string
	// DomesticOrder is the domestic fill observed before sizing the short.
	DomesticOrder domain.OrderDetail
	SubmittedAt   time.Time
}

func (s OpenSubmission) execution(stage domain.ExecutionStage) domain.Execution {
	return domain.Execution{
		ID:         s.ExecutionID,
		Kind:       domain.ExecutionOpen,
		UserID:     s.UserID,
		StrategyID: s.StrategyID,
		Coin:       s.Coin,
		KrExchange: s.Domestic,
		FrExchange: s.Foreign,
		Stage:      stage,
		KrOrderID:  s.DomesticOrderID,
		FrOrderID:  s.ForeignOrderID,
		StartedAt:  s.SubmittedAt,
	}
}

// OpenResult is a persisted entry.
type OpenResult struct {
	Position      domain.Position
	DomesticOrder domain.OrderDetail
	ForeignOrder  domain.OrderDetail
}

// Open places both legs and persists the position, confirming the foreign
// leg with a single delayed query.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (OpenResult, error) {
	sub, err := e.SubmitOpen(ctx, req)
	if err != nil {
		return OpenResult{}, err
	}
	pair, err := e.registry.Pair(sub.Domestic, sub.Foreign)
	if err != nil {
		return OpenResult{}, err
	}
	exec := sub.execution(domain.StageForeignPlaced)

	if err := e.clock.Sleep(ctx, e.cfg.ConfirmDelay); err != nil {
		return OpenResult{}, e.partial(ctx, &exec, err)
	}
	fr, err := pair.Foreign.GetOrder(ctx, sub.ForeignOrderID, sub.Coin)
	if err != nil {
		return OpenResult{}, e.partial(ctx, &exec, fmt.Errorf("engine: confirm foreign order: %w: %w", domain.ErrOrderNoData, err))
	}
	e.advance(ctx, &exec, domain.StageForeignConfirmed)

	return e.persistOpen(ctx, &exec, sub, sub.DomesticOrder, fr)
}

// SubmitOpen places the domestic buy, confirms its fill, sizes and places
// the foreign short, and returns without touching the ledger. Call
// FinalizeOpen to persist.
func (e *Engine) SubmitOpen(ctx context.Context, req OpenRequest) (OpenSubmission, error) {
	if err := req.normalize(); err != nil {
		return OpenSubmission{}, err
	}
	pair, err := e.registry.Pair(req.Domestic, req.Foreign)
	if err != nil {
		return OpenSubmission{}, err
	}

	exec := e.begin(ctx, domain.ExecutionOpen, req.UserID, req.StrategyID, req.Coin, req.Domestic, req.Foreign)
	log := e.logger.With(
		slog.String("execution_id", exec.ID),
		slog.Int64("user_id", req.UserID),
		slog.String("coin", req.Coin),
	)

	krID, err := pair.Domestic.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:      req.Coin,
		Type:        domain.OrderTypeMarket,
		Side:        domain.OrderSideBuy,
		Amount:      req.Seed,
		QuoteAmount: true,
	})
	if err != nil {
		return OpenSubmission{}, e.abort(ctx, &exec, fmt.Errorf("engine: place domestic buy: %w", err))
	}
	exec.KrOrderID = krID
	e.advance(ctx, &exec, domain.StageDomesticPlaced)
	log.InfoContext(ctx, "domestic buy placed", slog.String("kr_order_id", krID), slog.Float64("seed", req.Seed))

	if err := e.clock.Sleep(ctx, e.cfg.ConfirmDelay); err != nil {
		return OpenSubmission{}, e.partial(ctx, &exec, err)
	}
	kr, err := pair.Domestic.GetOrder(ctx, krID, req.Coin)
	if err != nil {
		return OpenSubmission{}, e.partial(ctx, &exec, fmt.Errorf("engine: confirm domestic order: %w: %w", domain.ErrOrderNoData, err))
	}
	if kr.Filled <= 0 {
		return OpenSubmission{}, e.partial(ctx, &exec, fmt.Errorf("engine: confirm domestic order: %w", domain.ErrOrderNoData))
	}
	e.advance(ctx, &exec, domain.StageDomesticConfirmed)

	lot, err := exchange.LotSize(ctx, pair.Foreign, req.Coin)
	if err != nil {
		return OpenSubmission{}, e.partial(ctx, &exec, fmt.Errorf("engine: %w: %w", domain.ErrLotSizeUnavailable, err))
	}
	if lot <= 0 {
		return OpenSubmission{}, e.partial(ctx, &exec, fmt.Errorf("engine: %w: non-positive lot %v", domain.ErrLotSizeUnavailable, lot))
	}

	volume := fixedpoint.FloorToStep(kr.Filled, lot)
	if volume <= 0 {
		return OpenSubmission{}, e.partial(ctx, &exec, fmt.Errorf("engine: filled %v with lot %v: %w", kr.Filled, lot, domain.ErrVolumeTooSmall))
	}
	if volume < kr.Filled {
		log.WarnContext(ctx, "domestic remainder left unhedged",
			slog.Float64("filled", kr.Filled),
			slog.Float64("hedged", volume),
			slog.Float64("lot", lot),
		)
	}

	status, err := exchange.SetLeverage(ctx, pair.Foreign, req.Coin, req.Leverage)
	switch {
	case errors.Is(err, domain.ErrUnsupported):
	case err != nil:
		return OpenSubmission{}, e.partial(ctx, &exec, fmt.Errorf("engine: %w: %w", domain.ErrLeverageRejected, err))
	case status != domain.LeverageSet && status != domain.LeverageNotModified:
		return OpenSubmission{}, e.partial(ctx, &exec, fmt.Errorf("engine: leverage %d: %w", req.Leverage, domain.ErrLeverageRejected))
	}

	frID, err := pair.Foreign.PlaceOrder(ctx, domain.OrderRequest{
		Symbol: req.Coin,
		Type:   domain.OrderTypeMarket,
		Side:   domain.OrderSideSell,
		Amount: volume,
	})
	if err != nil {
		return OpenSubmission{}, e.partial(ctx, &exec, fmt.Errorf("engine: place foreign short: %w", err))
	}
	exec.FrOrderID = frID
	e.advance(ctx, &exec, domain.StageForeignPlaced)
	log.InfoContext(ctx, "foreign short placed", slog.String("fr_order_id", frID), slog.Float64("volume", volume))

	return OpenSubmission{
		ExecutionID:     exec.ID,
		UserID:          req.UserID,
		StrategyID:      req.StrategyID,
		Coin:            req.Coin,
		Domestic:        req.Domestic,
		Foreign:         req.Foreign,
		Leverage:        req.Leverage,
		Volume:          volume,
		DomesticOrderID: krID,
		ForeignOrderID:  frID,
		DomesticOrder:   kr,
		SubmittedAt:     exec.StartedAt,
	}, nil
}

// FinalizeOpen polls both legs until their fills are reported, then
// persists the position.
func (e *Engine) FinalizeOpen(ctx context.Context, sub OpenSubmission) (OpenResult, error) {
	pair, err := e.registry.Pair(sub.Domestic, sub.Foreign)
	if err != nil {
		return OpenResult{}, err
	}
	exec := sub.execution(domain.StageForeignPlaced)

	snap, err := e.poll(ctx, e.cfg.OpenFinalize, pollTarget{
		pair:   pair,
		symbol: sub.Coin,
		krID:   sub.DomesticOrderID,
		frID:   sub.ForeignOrderID,
		execID: sub.ExecutionID,
	})
	if err != nil {
		return OpenResult{}, e.partial(ctx, &exec, err)
	}
	e.advance(ctx, &exec, domain.StageForeignConfirmed)

	return e.persistOpen(ctx, &exec, sub, snap.domestic, snap.foreign)
}

func (e *Engine) persistOpen(ctx context.Context, exec *domain.Execution, sub OpenSubmission, kr, fr domain.OrderDetail) (OpenResult, error) {
	// One lookup per open. A fallback rate is used for deployed capital but
	// never recorded as the cross rate.
	q := e.rates.Rate(ctx)
	var crossRate *float64
	if q.Source != oracle.SourceFallback {
		v := q.Value
		crossRate = &v
	}

	krFunds := filledFunds(kr, fixedpoint.CurrencyDecimals)
	frFunds := filledFunds(fr, fixedpoint.PriceDecimals)

	pos := domain.Position{
		UserID:     sub.UserID,
		StrategyID: sub.StrategyID,
		Coin:       sub.Coin,
		Status:     domain.PositionStatusOpen,
		EntryTime:  e.clock.Now(),

		KrExchange: sub.Domestic,
		KrOrderID:  sub.DomesticOrderID,
		KrPrice:    kr.Price,
		KrVolume:   kr.Filled,
		KrFunds:    krFunds,
		KrFee:      kr.Fee,

		FrExchange:      sub.Foreign,
		FrOrderID:       sub.ForeignOrderID,
		FrPrice:         fr.Price,
		FrOriginalPrice: fr.Price,
		FrVolume:        fr.Filled,
		FrFunds:         frFunds,
		FrFee:           fr.Fee,
		Leverage:        sub.Leverage,

		EntryRate: fixedpoint.Divide(krFunds, frFunds, fixedpoint.CurrencyDecimals),
		CrossRate: crossRate,
	}

	if err := e.ledger.InsertOpen(ctx, pos); err != nil {
		return OpenResult{}, e.partial(ctx, exec, fmt.Errorf("engine: insert open position: %w", err))
	}
	e.advance(ctx, exec, domain.StagePersisted)

	deployed := fixedpoint.Add(krFunds, fixedpoint.Multiply(frFunds, q.Value, fixedpoint.CurrencyDecimals), fixedpoint.CurrencyDecimals)
	if err := e.users.AddDeployedCapital(ctx, sub.UserID, deployed); err != nil {
		e.logger.ErrorContext(ctx, "deployed capital update failed",
			slog.Int64("user_id", sub.UserID),
			slog.Float64("amount", deployed),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "position opened",
		slog.String("execution_id", exec.ID),
		slog.Int64("user_id", pos.UserID),
		slog.String("coin", pos.Coin),
		slog.Float64("kr_volume", pos.KrVolume),
		slog.Float64("fr_volume", pos.FrVolume),
		slog.Float64("entry_rate", pos.EntryRate),
	)
	return OpenResult{Position: pos, DomesticOrder: kr, ForeignOrder: fr}, nil
}
