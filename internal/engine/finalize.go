package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/exchange"
)

// legSnapshot is the last observed state of both legs.
type legSnapshot struct {
	domestic domain.OrderDetail
	foreign  domain.OrderDetail
	pnl      domain.ClosedPnL
	attempts int
	settled  bool
}

type pollTarget struct {
	pair    exchange.Pair
	symbol  string
	krID    string
	frID    string
	withPnL bool
	execID  string
}

// poll re-queries both legs until the venues report populated fills. Each
// attempt is preceded by policy.Delay. The legs are fetched concurrently and
// judged independently. A fetch error on the final attempt is fatal. Data
// that is still incomplete after the final attempt is returned as-is.
func (e *Engine) poll(ctx context.Context, policy RetryPolicy, t pollTarget) (legSnapshot, error) {
	var snap legSnapshot
	log := e.logger.With(
		slog.String("execution_id", t.execID),
		slog.String("symbol", t.symbol),
		slog.String("kr_order_id", t.krID),
		slog.String("fr_order_id", t.frID),
	)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := e.clock.Sleep(ctx, policy.Delay); err != nil {
			return snap, err
		}
		snap.attempts = attempt

		var (
			kr, fr               domain.OrderDetail
			pnl                  domain.ClosedPnL
			krErr, frErr, pnlErr error
		)
		// Goroutines report through their own error variables so one failing
		// query never cancels the others.
		var g errgroup.Group
		g.Go(func() error {
			kr, krErr = t.pair.Domestic.GetOrder(ctx, t.krID, t.symbol)
			return nil
		})
		g.Go(func() error {
			fr, frErr = t.pair.Foreign.GetOrder(ctx, t.frID, t.symbol)
			return nil
		})
		if t.withPnL {
			g.Go(func() error {
				pnl, pnlErr = exchange.ClosedPnL(ctx, t.pair.Foreign, t.symbol, t.frID)
				return nil
			})
		}
		_ = g.Wait()

		final := attempt == policy.MaxAttempts
		failed := false
		for _, f := range []struct {
			err   error
			cause error
		}{
			{krErr, domain.ErrDomesticOrderUnavailable},
			{frErr, domain.ErrForeignOrderUnavailable},
			{pnlErr, domain.ErrForeignPnLUnavailable},
		} {
			if f.err == nil {
				continue
			}
			if final {
				return snap, fmt.Errorf("engine: finalize after %d attempts: %w: %w", attempt, f.cause, f.err)
			}
			log.WarnContext(ctx, "finalize query failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("cause", f.cause.Error()),
				slog.String("error", f.err.Error()),
			)
			failed = true
		}

		if krErr == nil {
			snap.domestic = kr
		}
		if frErr == nil {
			snap.foreign = fr
		}
		if t.withPnL && pnlErr == nil {
			snap.pnl = pnl
		}
		if failed {
			continue
		}

		snap.settled = kr.Settled() && fr.Settled() && (!t.withPnL || pnl.Settled())
		if snap.settled {
			log.DebugContext(ctx, "legs settled", slog.Int("attempt", attempt))
			return snap, nil
		}
		log.DebugContext(ctx, "legs not settled yet", slog.Int("attempt", attempt))
	}

	log.WarnContext(ctx, "proceeding with incomplete order data", slog.Int("attempts", snap.attempts))
	return snap, nil
}
