package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/fixedpoint"
	"github.com/Juhan1212/karbit-sub001/internal/oracle"
)

// CloseMode selects how the foreign buy-to-cover is sized.
type CloseMode string

const (
	// CloseEntirePosition flattens the whole foreign short with a
	// reduce-only order, whatever its size on the venue.
	CloseEntirePosition CloseMode = "entire"
	// CloseAmount buys back exactly CloseRequest.ForeignAmount.
	CloseAmount CloseMode = "amount"
)

// CloseRequest asks to close every active position of a user in a coin.
type CloseRequest struct {
	UserID        int64
	Coin          string
	Domestic      domain.ExchangeID
	Foreign       domain.ExchangeID
	Mode          CloseMode
	ForeignAmount float64
}

func (r *CloseRequest) normalize() error {
	r.Coin = strings.ToUpper(strings.TrimSpace(r.Coin))
	if r.Coin == "" {
		return errors.New("engine: close: coin is required")
	}
	switch r.Mode {
	case "":
		r.Mode = CloseEntirePosition
	case CloseEntirePosition:
	case CloseAmount:
		if r.ForeignAmount <= 0 {
			return fmt.Errorf("engine: close: foreign amount must be positive, got %v", r.ForeignAmount)
		}
	default:
		return fmt.Errorf("engine: close: unknown mode %q", r.Mode)
	}
	return nil
}

// CloseSubmission describes an exit whose legs are placed but not yet
// written to the ledger.
type CloseSubmission struct {
	ExecutionID     string
	UserID          int64
	StrategyID      int64
	Coin            string
	Domestic        domain.ExchangeID
	Foreign         domain.ExchangeID
	Leverage        int
	DomesticOrderID string
	ForeignOrderID  string
	Settlement      domain.PositionSettlement
	SubmittedAt     time.Time
}

func (s CloseSubmission) execution(stage domain.ExecutionStage) domain.Execution {
	return domain.Execution{
		ID:         s.ExecutionID,
		Kind:       domain.ExecutionClose,
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

// CloseResult is a persisted exit.
type CloseResult struct {
	Position      domain.Position
	Settlement    domain.PositionSettlement
	DomesticOrder domain.OrderDetail
	ForeignOrder  domain.OrderDetail
	PnL           domain.ClosedPnL
	CrossRate     oracle.Quote
	Profit        float64
	ProfitRate    float64
}

// Close submits the closing legs and finalizes them in one call.
func (e *Engine) Close(ctx context.Context, req CloseRequest) (CloseResult, error) {
	sub, err := e.SubmitClose(ctx, req)
	if err != nil {
		return CloseResult{}, err
	}
	return e.FinalizeClose(ctx, sub)
}

// SubmitClose sizes the exit from the active settlement and places the
// domestic sell followed by the foreign buy-to-cover.
func (e *Engine) SubmitClose(ctx context.Context, req CloseRequest) (CloseSubmission, error) {
	if err := req.normalize(); err != nil {
		return CloseSubmission{}, err
	}
	pair, err := e.registry.Pair(req.Domestic, req.Foreign)
	if err != nil {
		return CloseSubmission{}, err
	}

	settlement, positions, err := e.Settlement(ctx, req.UserID, req.Coin)
	if err != nil {
		return CloseSubmission{}, err
	}
	latest := positions[len(positions)-1]

	exec := e.begin(ctx, domain.ExecutionClose, req.UserID, latest.StrategyID, req.Coin, req.Domestic, req.Foreign)
	log := e.logger.With(
		slog.String("execution_id", exec.ID),
		slog.Int64("user_id", req.UserID),
		slog.String("coin", req.Coin),
	)

	krID, err := pair.Domestic.PlaceOrder(ctx, domain.OrderRequest{
		Symbol: req.Coin,
		Type:   domain.OrderTypeMarket,
		Side:   domain.OrderSideSell,
		Amount: settlement.TotalKrVolume,
	})
	if err != nil {
		return CloseSubmission{}, e.abort(ctx, &exec, fmt.Errorf("engine: place domestic sell: %w", err))
	}
	exec.KrOrderID = krID
	e.advance(ctx, &exec, domain.StageDomesticPlaced)
	log.InfoContext(ctx, "domestic sell placed",
		slog.String("kr_order_id", krID),
		slog.Float64("volume", settlement.TotalKrVolume),
		slog.Int("positions", settlement.PositionsCount),
	)

	cover := domain.OrderRequest{
		Symbol:     req.Coin,
		Type:       domain.OrderTypeMarket,
		Side:       domain.OrderSideBuy,
		ReduceOnly: true,
	}
	if req.Mode == CloseAmount {
		cover.Amount = req.ForeignAmount
	} else {
		cover.CloseEntirePosition = true
	}
	frID, err := pair.Foreign.PlaceOrder(ctx, cover)
	if err != nil {
		return CloseSubmission{}, e.partial(ctx, &exec, fmt.Errorf("engine: place foreign buy-to-cover: %w", err))
	}
	exec.FrOrderID = frID
	e.advance(ctx, &exec, domain.StageForeignPlaced)
	log.InfoContext(ctx, "foreign buy-to-cover placed", slog.String("fr_order_id", frID), slog.String("mode", string(req.Mode)))

	return CloseSubmission{
		ExecutionID:     exec.ID,
		UserID:          req.UserID,
		StrategyID:      latest.StrategyID,
		Coin:            req.Coin,
		Domestic:        req.Domestic,
		Foreign:         req.Foreign,
		Leverage:        latest.Leverage,
		DomesticOrderID: krID,
		ForeignOrderID:  frID,
		Settlement:      settlement,
		SubmittedAt:     exec.StartedAt,
	}, nil
}

// FinalizeClose polls both closing legs and the foreign PnL report, computes
// realized profit and writes the CLOSED row.
func (e *Engine) FinalizeClose(ctx context.Context, sub CloseSubmission) (CloseResult, error) {
	pair, err := e.registry.Pair(sub.Domestic, sub.Foreign)
	if err != nil {
		return CloseResult{}, err
	}
	exec := sub.execution(domain.StageForeignPlaced)

	snap, err := e.poll(ctx, e.cfg.CloseFinalize, pollTarget{
		pair:    pair,
		symbol:  sub.Coin,
		krID:    sub.DomesticOrderID,
		frID:    sub.ForeignOrderID,
		withPnL: true,
		execID:  sub.ExecutionID,
	})
	if err != nil {
		return CloseResult{}, e.partial(ctx, &exec, err)
	}
	e.advance(ctx, &exec, domain.StageForeignConfirmed)

	q := e.rates.Rate(ctx)
	kr, fr, pnl, st := snap.domestic, snap.foreign, snap.pnl, sub.Settlement

	krFunds := filledFunds(kr, fixedpoint.CurrencyDecimals)
	exitRate := fixedpoint.Divide(kr.Price, pnl.AvgExitPrice, fixedpoint.CurrencyDecimals)
	krProfit := fixedpoint.Subtract(fixedpoint.Subtract(krFunds, kr.Fee, fixedpoint.CurrencyDecimals), st.TotalKrFunds, fixedpoint.CurrencyDecimals)
	frProfit := fixedpoint.Multiply(pnl.TotalPnL, q.Value, fixedpoint.CurrencyDecimals)
	profit := fixedpoint.Add(krProfit, frProfit, fixedpoint.CurrencyDecimals)

	deployed := fixedpoint.Add(st.TotalKrFunds, fixedpoint.Multiply(st.TotalFrFunds, q.Value, fixedpoint.CurrencyDecimals), fixedpoint.CurrencyDecimals)
	invested := fixedpoint.Divide(deployed, 2, fixedpoint.CurrencyDecimals)
	profitRate := fixedpoint.ProfitRate(invested, fixedpoint.Add(invested, profit, fixedpoint.CurrencyDecimals))

	now := e.clock.Now()
	cross := q.Value
	pos := domain.Position{
		UserID:     sub.UserID,
		StrategyID: sub.StrategyID,
		Coin:       sub.Coin,
		Status:     domain.PositionStatusClosed,
		EntryTime:  now,
		ExitTime:   &now,

		KrExchange: sub.Domestic,
		KrOrderID:  sub.DomesticOrderID,
		KrPrice:    kr.Price,
		KrVolume:   kr.Filled,
		KrFunds:    krFunds,
		KrFee:      kr.Fee,

		FrExchange:      sub.Foreign,
		FrOrderID:       sub.ForeignOrderID,
		FrPrice:         pnl.AvgExitPrice,
		FrOriginalPrice: pnl.OrderPrice,
		FrVolume:        pnl.TotalVolume,
		FrFunds:         fixedpoint.Multiply(pnl.AvgExitPrice, pnl.TotalVolume, fixedpoint.PriceDecimals),
		FrFee:           pnl.CloseFee,
		FrSlippage:      fixedpoint.ProfitRate(pnl.OrderPrice, pnl.AvgExitPrice),
		Leverage:        sub.Leverage,

		EntryRate:  exitRate,
		ExitRate:   &exitRate,
		CrossRate:  &cross,
		Profit:     &profit,
		ProfitRate: &profitRate,
	}

	if err := e.ledger.InsertClosed(ctx, pos); err != nil {
		return CloseResult{}, e.partial(ctx, &exec, fmt.Errorf("engine: insert closed position: %w", err))
	}
	e.advance(ctx, &exec, domain.StagePersisted)

	if err := e.users.AddDeployedCapital(ctx, sub.UserID, -deployed); err != nil {
		e.logger.ErrorContext(ctx, "deployed capital update failed",
			slog.Int64("user_id", sub.UserID),
			slog.Float64("amount", -deployed),
			slog.String("error", err.Error()),
		)
	}
	if err := e.strategies.RecordClose(ctx, sub.StrategyID, profit, profitRate, now); err != nil {
		e.logger.ErrorContext(ctx, "strategy stats update failed",
			slog.Int64("strategy_id", sub.StrategyID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "position closed",
		slog.String("execution_id", sub.ExecutionID),
		slog.Int64("user_id", sub.UserID),
		slog.String("coin", sub.Coin),
		slog.Float64("profit", profit),
		slog.Float64("profit_rate", profitRate),
		slog.String("rate_source", string(q.Source)),
		slog.Bool("settled", snap.settled),
	)

	return CloseResult{
		Position:      pos,
		Settlement:    st,
		DomesticOrder: kr,
		ForeignOrder:  fr,
		PnL:           pnl,
		CrossRate:     q,
		Profit:        profit,
		ProfitRate:    profitRate,
	}, nil
}
