// Package oracle resolves the stablecoin-to-local-currency cross rate used to
// express foreign-leg values in local currency.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// Source says where a resolved rate came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// Quote is a resolved cross rate.
type Quote struct {
	Value  float64
	Source Source
	At     time.Time
}

// PriceSource fetches a live price. Exchange adapters satisfy it.
type PriceSource interface {
	GetSpotPrice(ctx context.Context, symbol string) (float64, error)
}

// Config configures an Oracle.
type Config struct {
	// Symbol is the stablecoin ticker quoted on the live source, e.g. "USDT".
	Symbol string
	// CacheKey is the RateCache key. Defaults to Symbol.
	CacheKey string
	TTL      time.Duration
	Fallback float64
}

// Oracle resolves the cross rate cache-first, then live, then from a static
// fallback.
type Oracle struct {
	cache  domain.RateCache
	live   PriceSource
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Oracle. cache and live may be nil.
func New(cache domain.RateCache, live PriceSource, cfg Config, logger *slog.Logger) *Oracle {
	if cfg.CacheKey == "" {
		cfg.CacheKey = cfg.Symbol
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{
		cache:  cache,
		live:   live,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "oracle")),
		now:    time.Now,
	}
}

// Latest returns the cached or live rate. It never falls back to the static
// value and returns domain.ErrRateUnavailable when neither source answers.
func (o *Oracle) Latest(ctx context.Context) (Quote, error) {
	if q, ok := o.cached(ctx); ok {
		return q, nil
	}
	if o.live == nil {
		return Quote{}, domain.ErrRateUnavailable
	}

	v, err := o.live.GetSpotPrice(ctx, o.cfg.Symbol)
	if err != nil || v <= 0 {
		if err == nil {
			err = fmt.Errorf("non-positive rate %v", v)
		}
		o.logger.WarnContext(ctx, "live cross rate fetch failed", slog.String("error", err.Error()))
		return Quote{}, fmt.Errorf("oracle: live %s: %w", o.cfg.Symbol, errors.Join(domain.ErrRateUnavailable, err))
	}

	now := o.now()
	if o.cache != nil {
		if err := o.cache.SetRate(ctx, o.cfg.CacheKey, v, now); err != nil {
			o.logger.WarnContext(ctx, "cross rate cache write failed", slog.String("error", err.Error()))
		}
	}
	return Quote{Value: v, Source: SourceLive, At: now}, nil
}

// Rate always returns a usable rate, using the static fallback as the last
// resort.
func (o *Oracle) Rate(ctx context.Context) Quote {
	q, err := o.Latest(ctx)
	if err == nil {
		return q
	}
	o.logger.WarnContext(ctx, "using fallback cross rate", slog.Float64("rate", o.cfg.Fallback))
	return Quote{Value: o.cfg.Fallback, Source: SourceFallback, At: o.now()}
}

func (o *Oracle) cached(ctx context.Context) (Quote, bool) {
	if o.cache == nil {
		return Quote{}, false
	}
	v, ts, err := o.cache.GetRate(ctx, o.cfg.CacheKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.WarnContext(ctx, "cross rate cache read failed", slog.String("error", err.Error()))
		}
		return Quote{}, false
	}
	if v <= 0 || o.now().Sub(ts) > o.cfg.TTL {
		return Quote{}, false
	}
	return Quote{Value: v, Source: SourceCache, At: ts}, true
}
