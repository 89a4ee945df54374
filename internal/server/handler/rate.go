package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/oracle"
)

// RateSource yields the current cross rate.
type RateSource interface {
	Rate(ctx context.Context) oracle.Quote
}

// RateHandler exposes the cross-rate oracle.
type RateHandler struct {
	rates  RateSource
	logger *slog.Logger
}

// NewRateHandler creates a RateHandler.
func NewRateHandler(rates RateSource, logger *slog.Logger) *RateHandler {
	return &RateHandler{rates: rates, logger: logHandler(logger, "rate")}
}

type rateResponse struct {
	Rate   float64 `json:"rate"`
	Source string  `json:"source"`
	At     string  `json:"at,omitempty"`
}

// CrossRate returns the stablecoin cross rate and where it came from.
// GET /api/rate
func (h *RateHandler) CrossRate(w http.ResponseWriter, r *http.Request) {
	q := h.rates.Rate(r.Context())
	resp := rateResponse{Rate: q.Value, Source: string(q.Source)}
	if !q.At.IsZero() {
		resp.At = q.At.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}
