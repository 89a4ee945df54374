package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Juhan1212/karbit-sub001/internal/server"
	"github.com/Juhan1212/karbit-sub001/internal/server/handler"
	"github.com/Juhan1212/karbit-sub001/internal/server/ws"
	"github.com/Juhan1212/karbit-sub001/internal/service"
)

// buildServer assembles the HTTP API and the event hub over deps.
func (a *App) buildServer(deps *Dependencies) (*server.Server, *ws.Hub, error) {
	kr, err := a.cfg.Exchanges.DomesticID()
	if err != nil {
		return nil, nil, err
	}
	fr, err := a.cfg.Exchanges.ForeignID()
	if err != nil {
		return nil, nil, err
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Channels:       []string{service.PositionChannel},
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Positions: handler.NewPositionHandler(deps.Trades, handler.Defaults{
			UserID:     a.cfg.UserID,
			StrategyID: a.cfg.StrategyID,
			Domestic:   kr,
			Foreign:    fr,
			Leverage:   a.cfg.Engine.DefaultLeverage,
		}, a.logger),
		Rates: handler.NewRateHandler(deps.Rates, a.logger),
	}

	srv := server.NewServer(server.Config{
		Addr:              a.cfg.Server.Addr,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RequestsPerSecond: a.cfg.Server.RequestsPerSecond,
		Burst:             a.cfg.Server.Burst,
	}, handlers, hub, a.logger)
	return srv, hub, nil
}

// serveCommand runs the HTTP API until ctx is cancelled, then drains
// in-flight requests and background finalizations.
func serveCommand(ctx context.Context, a *App, deps *Dependencies, args []string) error {
	fs := newFlagSet("serve")
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	a.cfg.Server.Addr = *addr

	srv, hub, err := a.buildServer(deps)
	if err != nil {
		return err
	}

	if execs, err := deps.Trades.Pending(ctx); err == nil && len(execs) > 0 {
		a.logger.WarnContext(ctx, "incomplete executions need a manual check", slog.Int("count", len(execs)))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	deps.Trades.Wait()
	return err
}
