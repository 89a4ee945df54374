package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/engine"
	"github.com/Juhan1212/karbit-sub001/internal/service"
)

type command func(ctx context.Context, a *App, deps *Dependencies, args []string) error

var commands = map[string]command{
	"open":       openCommand,
	"close":      closeCommand,
	"cycle":      cycleCommand,
	"settlement": settlementCommand,
	"pending":    pendingCommand,
	"rate":       rateCommand,
	"events":     eventsCommand,
	"serve":      serveCommand,
	"archive":    archiveCommand,
}

func commandList() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, "|")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUsage, fs.Name(), err)
	}
	return nil
}

func (a *App) openRequest(coin string, seed float64, leverage int, strategyID int64) (engine.OpenRequest, error) {
	kr, err := a.cfg.Exchanges.DomesticID()
	if err != nil {
		return engine.OpenRequest{}, err
	}
	fr, err := a.cfg.Exchanges.ForeignID()
	if err != nil {
		return engine.OpenRequest{}, err
	}
	if leverage == 0 {
		leverage = a.cfg.Engine.DefaultLeverage
	}
	if strategyID == 0 {
		strategyID = a.cfg.StrategyID
	}
	return engine.OpenRequest{
		UserID:     a.cfg.UserID,
		StrategyID: strategyID,
		Coin:       coin,
		Domestic:   kr,
		Foreign:    fr,
		Seed:       seed,
		Leverage:   leverage,
	}, nil
}

func (a *App) closeRequest(coin, mode string, amount float64) (engine.CloseRequest, error) {
	kr, err := a.cfg.Exchanges.DomesticID()
	if err != nil {
		return engine.CloseRequest{}, err
	}
	fr, err := a.cfg.Exchanges.ForeignID()
	if err != nil {
		return engine.CloseRequest{}, err
	}
	return engine.CloseRequest{
		UserID:        a.cfg.UserID,
		Coin:          coin,
		Domestic:      kr,
		Foreign:       fr,
		Mode:          engine.CloseMode(mode),
		ForeignAmount: amount,
	}, nil
}

// openCommand enters a hedged position. Without sync finalization the
// command still waits for the background finalization before exiting so the
// process does not drop it.
func openCommand(ctx context.Context, a *App, deps *Dependencies, args []string) error {
	fs := newFlagSet("open")
	coin := fs.String("coin", "", "coin symbol, e.g. BTC")
	seed := fs.Float64("seed", 0, "local-currency amount to spend on the domestic buy")
	leverage := fs.Int("leverage", 0, "foreign leverage (default engine.default_leverage)")
	strategyID := fs.Int64("strategy", 0, "strategy id (default strategy_id)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	req, err := a.openRequest(*coin, *seed, *leverage, *strategyID)
	if err != nil {
		return err
	}
	res, err := deps.Trades.Open(ctx, req)
	if err != nil {
		_ = a.print(res)
		return err
	}
	if err := a.print(res); err != nil {
		return err
	}
	deps.Trades.Wait()
	return nil
}

func closeCommand(ctx context.Context, a *App, deps *Dependencies, args []string) error {
	fs := newFlagSet("close")
	coin := fs.String("coin", "", "coin symbol, e.g. BTC")
	mode := fs.String("mode", string(engine.CloseEntirePosition), "entire or amount")
	amount := fs.Float64("amount", 0, "foreign buy-back amount when -mode=amount")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	req, err := a.closeRequest(*coin, *mode, *amount)
	if err != nil {
		return err
	}
	res, err := deps.Trades.Close(ctx, req)
	if err != nil {
		_ = a.print(res)
		return err
	}
	if err := a.print(res); err != nil {
		return err
	}
	deps.Trades.Wait()
	return nil
}

// cycleCommand opens and then closes a position in one process. Paper mode
// keeps its ledger in memory, so this is how it exercises a full lifecycle.
func cycleCommand(ctx context.Context, a *App, deps *Dependencies, args []string) error {
	fs := newFlagSet("cycle")
	coin := fs.String("coin", "BTC", "coin symbol")
	seed := fs.Float64("seed", 1_000_000, "local-currency amount to spend on the domestic buy")
	hold := fs.Duration("hold", 0, "time to hold the position before closing")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	openReq, err := a.openRequest(*coin, *seed, 0, 0)
	if err != nil {
		return err
	}
	opened, err := deps.Trades.Open(ctx, openReq)
	if err != nil {
		return err
	}
	deps.Trades.Wait()

	if *hold > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(*hold):
		}
	}

	closeReq, err := a.closeRequest(*coin, string(engine.CloseEntirePosition), 0)
	if err != nil {
		return err
	}
	settlement, err := deps.Trades.Settlement(ctx, closeReq.UserID, closeReq.Coin)
	if err != nil {
		return err
	}
	closed, err := deps.Trades.Close(ctx, closeReq)
	if err != nil {
		return err
	}
	deps.Trades.Wait()

	return a.print(map[string]service.Result{
		"open":       opened,
		"settlement": settlement,
		"close":      closed,
	})
}

// settlementCommand reports the active settlement of one or more coins,
// queried concurrently.
func settlementCommand(ctx context.Context, a *App, deps *Dependencies, args []string) error {
	fs := newFlagSet("settlement")
	coins := fs.String("coin", "", "comma-separated coin symbols")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var list []string
	for _, c := range strings.Split(*coins, ",") {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			list = append(list, c)
		}
	}
	if len(list) == 0 {
		return fmt.Errorf("%w: settlement: -coin is required", ErrUsage)
	}

	var mu sync.Mutex
	out := make(map[string]service.Result, len(list))
	g, gctx := errgroup.WithContext(ctx)
	for _, coin := range list {
		g.Go(func() error {
			res, err := deps.Trades.Settlement(gctx, a.cfg.UserID, coin)
			if err != nil && !errors.Is(err, domain.ErrNoActivePosition) {
				return fmt.Errorf("settlement %s: %w", coin, err)
			}
			mu.Lock()
			out[coin] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return a.print(out)
}

func pendingCommand(ctx context.Context, a *App, deps *Dependencies, _ []string) error {
	execs, err := deps.Trades.Pending(ctx)
	if err != nil {
		return err
	}
	if len(execs) > 0 {
		a.logger.WarnContext(ctx, "incomplete executions need a manual check", slog.Int("count", len(execs)))
	}
	return a.print(execs)
}

func rateCommand(ctx context.Context, a *App, deps *Dependencies, _ []string) error {
	return a.print(deps.Rates.Rate(ctx))
}

// eventsCommand prints position events from the durable stream.
func eventsCommand(ctx context.Context, a *App, deps *Dependencies, args []string) error {
	fs := newFlagSet("events")
	from := fs.String("from", "0", "stream id to read after")
	count := fs.Int("count", 100, "maximum number of events")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	msgs, err := deps.SignalBus.StreamRead(ctx, service.PositionChannel, *from, *count)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	type event struct {
		ID    string          `json:"id"`
		Event json.RawMessage `json:"event"`
	}
	out := make([]event, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, event{ID: m.ID, Event: json.RawMessage(m.Payload)})
	}
	return a.print(out)
}

func archiveCommand(ctx context.Context, a *App, deps *Dependencies, args []string) error {
	fs := newFlagSet("archive")
	days := fs.Int("days", a.cfg.S3.ArchiveAfterDays, "archive CLOSED positions older than this many days")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if deps.Archiver == nil {
		return errors.New("archive: s3.bucket is not configured")
	}
	if *days < 1 {
		return fmt.Errorf("%w: archive: -days must be >= 1", ErrUsage)
	}

	before := time.Now().UTC().AddDate(0, 0, -*days)
	n, err := deps.Archiver.ArchivePositions(ctx, before)
	if err != nil {
		return err
	}
	return a.print(map[string]any{
		"archived": n,
		"before":   before.Format(time.RFC3339),
	})
}
