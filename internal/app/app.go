// Package app wires the karbit dependencies for the configured mode and runs
// one operator command against them.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Juhan1212/karbit-sub001/internal/config"
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

// App owns the configuration, the logger and the cleanup functions that run
// in reverse order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// New creates an App that prints command results to stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    os.Stdout,
	}
}

// SetOutput redirects command results.
func (a *App) SetOutput(w io.Writer) { a.out = w }

// Run wires the dependencies and executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: karbit [-config file] <%s> [flags]", ErrUsage, commandList())
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q (valid: %s)", ErrUsage, args[0], commandList())
	}

	a.logger.InfoContext(ctx, "starting command",
		slog.String("command", args[0]),
		slog.String("mode", a.cfg.Mode),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return cmd(ctx, a, deps, args[1:])
}

// Close releases resources in reverse registration order. It is safe to call
// more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
