package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrLockHeld         = errors.New("lock already held")
	ErrNoActivePosition = errors.New("no active position")
	ErrNoActiveStrategy = errors.New("no active strategy")
	ErrUnsupported      = errors.New("capability not supported by exchange")

	// Entry/exit structural failures. None of these are retried.
	ErrOrderNoData        = errors.New("order query returned no data")
	ErrLotSizeUnavailable = errors.New("lot size unavailable")
	ErrVolumeTooSmall     = errors.New("rounded volume is not positive")
	ErrLeverageRejected   = errors.New("leverage rejected")

	// Finalization failures after the retry budget is spent.
	ErrDomesticOrderUnavailable = errors.New("domestic order unavailable")
	ErrForeignOrderUnavailable  = errors.New("foreign order unavailable")
	ErrForeignPnLUnavailable    = errors.New("foreign pnl unavailable")

	ErrUnsupportedExchange = errors.New("unsupported exchange")
	ErrRateUnavailable     = errors.New("cross rate unavailable")
)

// PartialExecutionError reports a failure that happened after at least one
// leg was already placed on an exchange. Placed legs are never unwound
// automatically; the caller has to reconcile them by hand.
type PartialExecutionError struct {
	Kind            ExecutionKind
	Stage           ExecutionStage
	ExecutionID     string
	DomesticOrderID string
	ForeignOrderID  string
	Err             error
}

func (e *PartialExecutionError) Error() string {
	verb := "entered"
	if e.Kind == ExecutionClose {
		verb = "closed"
	}
	return fmt.Sprintf("position may be partially %s (stage %s, kr_order=%q, fr_order=%q), verify manually: %v",
		verb, e.Stage, e.DomesticOrderID, e.ForeignOrderID, e.Err)
}

func (e *PartialExecutionError) Unwrap() error { return e.Err }
