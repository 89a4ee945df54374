package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/engine"
	"github.com/Juhan1212/karbit-sub001/internal/service"
)

// TradeService defines the methods that the position handler requires.
type TradeService interface {
	Open(ctx context.Context, req engine.OpenRequest) (service.Result, error)
	Close(ctx context.Context, req engine.CloseRequest) (service.Result, error)
	Settlement(ctx context.Context, userID int64, coin string) (service.Result, error)
	Pending(ctx context.Context) ([]domain.Execution, error)
}

// Defaults fill request fields the caller leaves empty.
type Defaults struct {
	UserID     int64
	StrategyID int64
	Domestic   domain.ExchangeID
	Foreign    domain.ExchangeID
	Leverage   int
}

// PositionHandler serves the position lifecycle endpoints.
type PositionHandler struct {
	trades   TradeService
	defaults Defaults
	logger   *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(trades TradeService, defaults Defaults, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		trades:   trades,
		defaults: defaults,
		logger:   logHandler(logger, "position"),
	}
}

type openRequest struct {
	UserID     int64   `json:"user_id"`
	StrategyID int64   `json:"strategy_id"`
	Coin       string  `json:"coin"`
	KrExchange string  `json:"kr_exchange"`
	FrExchange string  `json:"fr_exchange"`
	Seed       float64 `json:"seed"`
	Leverage   int     `json:"leverage"`
}

type closeRequest struct {
	UserID     int64   `json:"user_id"`
	Coin       string  `json:"coin"`
	KrExchange string  `json:"kr_exchange"`
	FrExchange string  `json:"fr_exchange"`
	Mode       string  `json:"mode"`
	Amount     float64 `json:"amount"`
}

// venues resolves the requested pair, falling back to the defaults.
func (h *PositionHandler) venues(kr, fr string) (domain.ExchangeID, domain.ExchangeID, error) {
	domestic, foreign := h.defaults.Domestic, h.defaults.Foreign
	var err error
	if kr != "" {
		if domestic, err = domain.ParseExchangeID(kr); err != nil {
			return "", "", err
		}
	}
	if fr != "" {
		if foreign, err = domain.ParseExchangeID(fr); err != nil {
			return "", "", err
		}
	}
	return domestic, foreign, nil
}

// Open enters a hedged position.
// POST /api/positions/open
func (h *PositionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Coin) == "" {
		writeError(w, http.StatusBadRequest, "coin is required")
		return
	}
	if body.Seed <= 0 {
		writeError(w, http.StatusBadRequest, "seed must be positive")
		return
	}
	domestic, foreign, err := h.venues(body.KrExchange, body.FrExchange)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := engine.OpenRequest{
		UserID:     body.UserID,
		StrategyID: body.StrategyID,
		Coin:       body.Coin,
		Domestic:   domestic,
		Foreign:    foreign,
		Seed:       body.Seed,
		Leverage:   body.Leverage,
	}
	if req.UserID == 0 {
		req.UserID = h.defaults.UserID
	}
	if req.StrategyID == 0 {
		req.StrategyID = h.defaults.StrategyID
	}
	if req.Leverage == 0 {
		req.Leverage = h.defaults.Leverage
	}

	res, err := h.trades.Open(r.Context(), req)
	h.respond(w, r, "open", res, err)
}

// Close exits the active position of a coin.
// POST /api/positions/close
func (h *PositionHandler) Close(w http.ResponseWriter, r *http.Request) {
	var body closeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Coin) == "" {
		writeError(w, http.StatusBadRequest, "coin is required")
		return
	}
	mode := engine.CloseMode(strings.ToLower(strings.TrimSpace(body.Mode)))
	switch mode {
	case "", engine.CloseEntirePosition:
		mode = engine.CloseEntirePosition
	case engine.CloseAmount:
		if body.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "amount must be positive when mode is amount")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "mode must be entire or amount")
		return
	}
	domestic, foreign, err := h.venues(body.KrExchange, body.FrExchange)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := engine.CloseRequest{
		UserID:        body.UserID,
		Coin:          body.Coin,
		Domestic:      domestic,
		Foreign:       foreign,
		Mode:          mode,
		ForeignAmount: body.Amount,
	}
	if req.UserID == 0 {
		req.UserID = h.defaults.UserID
	}

	res, err := h.trades.Close(r.Context(), req)
	h.respond(w, r, "close", res, err)
}

// Settlement reports the aggregate of the active positions of a coin.
// GET /api/positions/settlement?coin=BTC&user_id=1
func (h *PositionHandler) Settlement(w http.ResponseWriter, r *http.Request) {
	coin := strings.TrimSpace(r.URL.Query().Get("coin"))
	if coin == "" {
		writeError(w, http.StatusBadRequest, "coin query parameter required")
		return
	}
	userID, err := queryInt64(r, "user_id", h.defaults.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.trades.Settlement(r.Context(), userID, coin)
	h.respond(w, r, "settlement", res, err)
}

// Pending lists executions that never reached a terminal stage.
// GET /api/executions/pending
func (h *PositionHandler) Pending(w http.ResponseWriter, r *http.Request) {
	execs, err := h.trades.Pending(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list pending executions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pending executions")
		return
	}
	if execs == nil {
		execs = []domain.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

// respond writes the service Result. Failures still carry the Result body so
// callers see the order ids of a partial execution.
func (h *PositionHandler) respond(w http.ResponseWriter, r *http.Request, op string, res service.Result, err error) {
	if err == nil {
		status := http.StatusOK
		if res.NeedsFinalization {
			status = http.StatusAccepted
		}
		writeJSON(w, status, res)
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError || errors.As(err, new(*domain.PartialExecutionError)) {
		h.logger.ErrorContext(r.Context(), "position request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
	if res.Message == "" {
		res.Message = err.Error()
	}
	writeJSON(w, status, res)
}
