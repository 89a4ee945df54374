package domain

import "time"

// ExecutionKind distinguishes entry orchestrations from exits.
type ExecutionKind string

const (
	ExecutionOpen  ExecutionKind = "open"
	ExecutionClose ExecutionKind = "close"
)

// ExecutionStage is the last step an orchestration completed.
type ExecutionStage string

const (
	StageStarted           ExecutionStage = "STARTED"
	StageDomesticPlaced    ExecutionStage = "DOMESTIC_PLACED"
	StageDomesticConfirmed ExecutionStage = "DOMESTIC_CONFIRMED"
	StageForeignPlaced     ExecutionStage = "FOREIGN_PLACED"
	StageForeignConfirmed  ExecutionStage = "FOREIGN_CONFIRMED"
	StagePersisted         ExecutionStage = "PERSISTED"
	StageFailed            ExecutionStage = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s ExecutionStage) Terminal() bool {
	return s == StagePersisted || s == StageFailed
}

// Execution is the journal entry for one entry or exit orchestration. A row
// that is not terminal after a crash marks legs that may need manual review.
type Execution struct {
	ID         string
	Kind       ExecutionKind
	UserID     int64
	StrategyID int64
	Coin       string
	KrExchange ExchangeID
	FrExchange ExchangeID
	Stage      ExecutionStage
	KrOrderID  string
	FrOrderID  string
	Error      string
	StartedAt  time.Time
	UpdatedAt  time.Time
}
