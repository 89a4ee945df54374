package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/engine"
	"github.com/Juhan1212/karbit-sub001/internal/notify"
)

// PositionChannel is the bus channel and stream that carry position events.
const PositionChannel = "positions"

// PositionEngine is the orchestration surface TradeService drives.
type PositionEngine interface {
	SubmitOpen(ctx context.Context, req engine.OpenRequest) (engine.OpenSubmission, error)
	FinalizeOpen(ctx context.Context, sub engine.OpenSubmission) (engine.OpenResult, error)
	SubmitClose(ctx context.Context, req engine.CloseRequest) (engine.CloseSubmission, error)
	FinalizeClose(ctx context.Context, sub engine.CloseSubmission) (engine.CloseResult, error)
	Settlement(ctx context.Context, userID int64, coin string) (domain.PositionSettlement, []domain.Position, error)
}

// Config controls leasing and finalization.
type Config struct {
	// LeaseTTL bounds how long one user and coin stay locked. It must cover
	// submission plus finalization.
	LeaseTTL time.Duration
	// SyncFinalize finalizes inside Open and Close instead of in the
	// background.
	SyncFinalize bool
	// FinalizeTimeout bounds a background finalization.
	FinalizeTimeout time.Duration
}

// Deps are the collaborators of a TradeService. Notifier may be nil.
type Deps struct {
	Engine   PositionEngine
	Locks    domain.LockManager
	Journal  domain.ExecutionJournal
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Notifier *notify.Notifier
	Logger   *slog.Logger
}

// Result is what callers of Open, Close and Settlement receive. Submission
// results carry NeedsFinalization and the order ids; finalized results carry
// the persisted row and, for closes, the realized profit.
type Result struct {
	Success           bool                       `json:"success"`
	Message           string                     `json:"message"`
	NeedsFinalization bool                       `json:"needs_finalization,omitempty"`
	ExecutionID       string                     `json:"execution_id,omitempty"`
	DomesticOrderID   string                     `json:"kr_order_id,omitempty"`
	ForeignOrderID    string                     `json:"fr_order_id,omitempty"`
	Settlement        *domain.PositionSettlement `json:"settlement,omitempty"`
	Position          *domain.Position           `json:"position,omitempty"`
	Profit            *float64                   `json:"profit,omitempty"`
	ProfitRate        *float64                   `json:"profit_rate,omitempty"`
}

// failed reports err. A partial execution keeps its order ids so callers can
// reconcile the leg that did fill.
func failed(err error) Result {
	res := Result{Success: false, Message: err.Error()}
	var perr *domain.PartialExecutionError
	if errors.As(err, &perr) {
		res.ExecutionID = perr.ExecutionID
		res.DomesticOrderID = perr.DomesticOrderID
		res.ForeignOrderID = perr.ForeignOrderID
	}
	return res
}

// TradeService serialises position lifecycles per user and coin, finalizes
// them, and reports the outcome on the bus, the audit log and the notifier.
type TradeService struct {
	engine   PositionEngine
	locks    domain.LockManager
	journal  domain.ExecutionJournal
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	cfg      Config
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewTradeService creates a TradeService.
func NewTradeService(deps Deps, cfg Config) (*TradeService, error) {
	if deps.Engine == nil || deps.Locks == nil || deps.Journal == nil || deps.Bus == nil || deps.Audit == nil {
		return nil, errors.New("trade_service: engine, locks, journal, bus and audit are required")
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeService{
		engine:   deps.Engine,
		locks:    deps.Locks,
		journal:  deps.Journal,
		bus:      deps.Bus,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "trade_service")),
	}, nil
}

// Open submits an entry under the user and coin lease. Unless SyncFinalize
// is set the returned Result only reports the placed orders and
// finalization continues in the background.
func (s *TradeService) Open(ctx context.Context, req engine.OpenRequest) (Result, error) {
	req.Coin = normalizeCoin(req.Coin)
	if req.StrategyID <= 0 {
		err := fmt.Errorf("trade_service: open %s: %w", req.Coin, domain.ErrNoActiveStrategy)
		return failed(err), err
	}
	unlock, err := s.lease(ctx, req.UserID, req.Coin)
	if err != nil {
		return failed(err), err
	}

	sub, err := s.engine.SubmitOpen(ctx, req)
	if err != nil {
		unlock()
		s.failure(ctx, domain.ExecutionOpen, req.UserID, req.Coin, err)
		return failed(err), err
	}

	if s.cfg.SyncFinalize {
		defer unlock()
		return s.finalizeOpen(ctx, sub)
	}

	s.background(ctx, unlock, func(ctx context.Context) {
		_, _ = s.finalizeOpen(ctx, sub)
	})
	return Result{
		Success:           true,
		Message:           "entry orders placed, finalizing",
		NeedsFinalization: true,
		ExecutionID:       sub.ExecutionID,
		DomesticOrderID:   sub.DomesticOrderID,
		ForeignOrderID:    sub.ForeignOrderID,
	}, nil
}

func (s *TradeService) finalizeOpen(ctx context.Context, sub engine.OpenSubmission) (Result, error) {
	res, err := s.engine.FinalizeOpen(ctx, sub)
	if err != nil {
		s.failure(ctx, domain.ExecutionOpen, sub.UserID, sub.Coin, err)
		return failed(err), err
	}

	pos := res.Position
	s.publish(ctx, notify.EventPositionOpened, pos, map[string]any{
		"entry_rate": pos.EntryRate,
		"kr_volume":  pos.KrVolume,
		"kr_funds":   pos.KrFunds,
		"fr_volume":  pos.FrVolume,
		"leverage":   pos.Leverage,
	})
	title, msg := notify.PositionOpened(pos)
	s.alert(ctx, notify.EventPositionOpened, title, msg)

	return Result{
		Success:         true,
		Message:         "position opened",
		ExecutionID:     sub.ExecutionID,
		DomesticOrderID: sub.DomesticOrderID,
		ForeignOrderID:  sub.ForeignOrderID,
		Position:        &pos,
	}, nil
}

// Close submits an exit of every active position of the user and coin.
// Finalization follows the same sync or background rule as Open; the lease
// is held until it completes.
func (s *TradeService) Close(ctx context.Context, req engine.CloseRequest) (Result, error) {
	req.Coin = normalizeCoin(req.Coin)
	unlock, err := s.lease(ctx, req.UserID, req.Coin)
	if err != nil {
		return failed(err), err
	}

	sub, err := s.engine.SubmitClose(ctx, req)
	if err != nil {
		unlock()
		s.failure(ctx, domain.ExecutionClose, req.UserID, req.Coin, err)
		return failed(err), err
	}

	if s.cfg.SyncFinalize {
		defer unlock()
		return s.finalizeClose(ctx, sub)
	}

	s.background(ctx, unlock, func(ctx context.Context) {
		_, _ = s.finalizeClose(ctx, sub)
	})
	st := sub.Settlement
	return Result{
		Success:           true,
		Message:           "exit orders placed, finalizing",
		NeedsFinalization: true,
		ExecutionID:       sub.ExecutionID,
		DomesticOrderID:   sub.DomesticOrderID,
		ForeignOrderID:    sub.ForeignOrderID,
		Settlement:        &st,
	}, nil
}

func (s *TradeService) finalizeClose(ctx context.Context, sub engine.CloseSubmission) (Result, error) {
	res, err := s.engine.FinalizeClose(ctx, sub)
	if err != nil {
		s.failure(ctx, domain.ExecutionClose, sub.UserID, sub.Coin, err)
		return failed(err), err
	}

	pos := res.Position
	s.publish(ctx, notify.EventPositionClosed, pos, map[string]any{
		"profit":          res.Profit,
		"profit_rate":     res.ProfitRate,
		"positions_count": res.Settlement.PositionsCount,
		"cross_rate":      res.CrossRate.Value,
		"rate_source":     string(res.CrossRate.Source),
	})
	title, msg := notify.PositionClosed(pos)
	s.alert(ctx, notify.EventPositionClosed, title, msg)

	st := res.Settlement
	profit, rate := res.Profit, res.ProfitRate
	return Result{
		Success:         true,
		Message:         "position closed",
		ExecutionID:     sub.ExecutionID,
		DomesticOrderID: sub.DomesticOrderID,
		ForeignOrderID:  sub.ForeignOrderID,
		Settlement:      &st,
		Position:        &pos,
		Profit:          &profit,
		ProfitRate:      &rate,
	}, nil
}

// Settlement reports the aggregate of the active positions without trading.
func (s *TradeService) Settlement(ctx context.Context, userID int64, coin string) (Result, error) {
	st, _, err := s.engine.Settlement(ctx, userID, normalizeCoin(coin))
	if err != nil {
		return failed(err), err
	}
	return Result{
		Success:    true,
		Message:    fmt.Sprintf("%d active position(s)", st.PositionsCount),
		Settlement: &st,
	}, nil
}

// Pending lists executions that neither persisted nor failed cleanly. Each
// one may have left an order on a venue and needs a manual check.
func (s *TradeService) Pending(ctx context.Context) ([]domain.Execution, error) {
	execs, err := s.journal.ListIncomplete(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list incomplete executions: %w", err)
	}
	return execs, nil
}

// Wait blocks until every background finalization has returned.
func (s *TradeService) Wait() {
	s.wg.Wait()
}

func (s *TradeService) lease(ctx context.Context, userID int64, coin string) (func(), error) {
	key := fmt.Sprintf("position:%d:%s", userID, coin)
	unlock, err := s.locks.Acquire(ctx, key, s.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("trade_service: lease %s: %w", key, err)
	}
	return unlock, nil
}

// background runs fn detached from the caller's cancellation and releases
// the lease once fn returns.
func (s *TradeService) background(ctx context.Context, unlock func(), fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unlock()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
		defer cancel()
		fn(fctx)
	}()
}

// failure logs an orchestration error. Partial executions are also written
// to the audit log and sent to operators because an order may be live on
// one venue only.
func (s *TradeService) failure(ctx context.Context, kind domain.ExecutionKind, userID int64, coin string, err error) {
	s.logger.ErrorContext(ctx, "position lifecycle failed",
		slog.String("kind", string(kind)),
		slog.Int64("user_id", userID),
		slog.String("coin", coin),
		slog.String("error", err.Error()),
	)

	var perr *domain.PartialExecutionError
	if !errors.As(err, &perr) {
		return
	}
	if auditErr := s.audit.Log(ctx, string(notify.EventPartialExecution), map[string]any{
		"kind":         string(perr.Kind),
		"stage":        string(perr.Stage),
		"execution_id": perr.ExecutionID,
		"user_id":      userID,
		"coin":         coin,
		"kr_order_id":  perr.DomesticOrderID,
		"fr_order_id":  perr.ForeignOrderID,
		"error":        perr.Err.Error(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", auditErr.Error()))
	}
	title, msg := notify.PartialExecution(userID, coin, perr)
	s.alert(ctx, notify.EventPartialExecution, title, msg)
}

// publish emits a position event on the bus channel and stream and writes
// the matching audit entry. Failures are logged only.
func (s *TradeService) publish(ctx context.Context, event notify.Event, pos domain.Position, extra map[string]any) {
	detail := map[string]any{
		"position_id": pos.ID,
		"user_id":     pos.UserID,
		"strategy_id": pos.StrategyID,
		"coin":        pos.Coin,
		"kr_exchange": pos.KrExchange.String(),
		"fr_exchange": pos.FrExchange.String(),
		"kr_order_id": pos.KrOrderID,
		"fr_order_id": pos.FrOrderID,
	}
	for k, v := range extra {
		detail[k] = v
	}

	evt, err := json.Marshal(map[string]any{
		"event":     string(event),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"position":  detail,
	})
	if err == nil {
		if pubErr := s.bus.Publish(ctx, PositionChannel, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("event", string(event)),
				slog.String("error", pubErr.Error()),
			)
		}
		if appendErr := s.bus.StreamAppend(ctx, PositionChannel, evt); appendErr != nil {
			s.logger.WarnContext(ctx, "stream append failed",
				slog.String("event", string(event)),
				slog.String("error", appendErr.Error()),
			)
		}
	}

	if auditErr := s.audit.Log(ctx, string(event), detail); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", string(event)),
			slog.String("error", auditErr.Error()),
		)
	}
}

func (s *TradeService) alert(ctx context.Context, event notify.Event, title, msg string) {
	if err := s.notifier.Notify(ctx, event, title, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", string(event)),
			slog.String("error", err.Error()),
		)
	}
}

func normalizeCoin(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin))
}
