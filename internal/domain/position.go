package domain

import "time"

// PositionStatus tracks whether a position row is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position is one ledger row for a two-leg trade. OPEN rows record an entry;
// a close writes a separate CLOSED row rather than mutating the open ones.
type Position struct {
	ID         string         `json:"id"`
	UserID     int64          `json:"user_id"`
	StrategyID int64          `json:"strategy_id"`
	Coin       string         `json:"coin_symbol"`
	Status     PositionStatus `json:"status"`
	EntryTime  time.Time      `json:"entry_time"`
	ExitTime   *time.Time     `json:"exit_time,omitempty"`

	// Domestic leg (local currency).
	KrExchange ExchangeID `json:"kr_exchange"`
	KrOrderID  string     `json:"kr_order_id"`
	KrPrice    float64    `json:"kr_price"`
	KrVolume   float64    `json:"kr_volume"`
	KrFunds    float64    `json:"kr_funds"`
	KrFee      float64    `json:"kr_fee"`

	// Foreign leg (stablecoin).
	FrExchange      ExchangeID `json:"fr_exchange"`
	FrOrderID       string     `json:"fr_order_id"`
	FrPrice         float64    `json:"fr_price"`
	FrOriginalPrice float64    `json:"fr_original_price"`
	FrVolume        float64    `json:"fr_volume"`
	FrFunds         float64    `json:"fr_funds"`
	FrFee           float64    `json:"fr_fee"`
	FrSlippage      float64    `json:"fr_slippage"`
	Leverage        int        `json:"leverage"`

	EntryRate  float64  `json:"entry_rate"`
	ExitRate   *float64 `json:"exit_rate,omitempty"`
	CrossRate  *float64 `json:"cross_rate,omitempty"`
	Profit     *float64 `json:"profit,omitempty"`
	ProfitRate *float64 `json:"profit_rate,omitempty"`
}

// PositionSettlement aggregates the active OPEN rows of one user and coin.
// It is computed right before a close and never persisted.
type PositionSettlement struct {
	Coin           string  `json:"coin"`
	AvgEntryRate   float64 `json:"avg_entry_rate"`
	TotalKrVolume  float64 `json:"total_kr_volume"`
	TotalKrFunds   float64 `json:"total_kr_funds"`
	TotalFrFunds   float64 `json:"total_fr_funds"`
	PositionsCount int     `json:"positions_count"`
}

// ActivePositions applies the active-window rule to all ledger rows of a
// single user and coin: an OPEN row is active only when its entry time is
// strictly after the latest exit time among the CLOSED rows.
func ActivePositions(rows []Position) []Position {
	var lastExit time.Time
	for _, p := range rows {
		if p.Status != PositionStatusClosed || p.ExitTime == nil {
			continue
		}
		if p.ExitTime.After(lastExit) {
			lastExit = *p.ExitTime
		}
	}

	var active []Position
	for _, p := range rows {
		if p.Status != PositionStatusOpen {
			continue
		}
		if !lastExit.IsZero() && !p.EntryTime.After(lastExit) {
			continue
		}
		active = append(active, p)
	}
	return active
}
