package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderRequest is an order intent handed to an exchange adapter.
type OrderRequest struct {
	Symbol string
	Type   OrderType
	Side   OrderSide

	// Amount is the base-asset quantity, or the local-currency funds to spend
	// when QuoteAmount is set (domestic market buys).
	Amount      float64
	QuoteAmount bool

	// Price is only used for limit orders.
	Price float64

	ReduceOnly bool
	// CloseEntirePosition asks the venue to flatten the whole open position
	// for Symbol. Amount is ignored when set.
	CloseEntirePosition bool
}

// OrderDetail is an exchange's view of a placed order.
type OrderDetail struct {
	ID        string
	Symbol    string
	Price     float64 // average fill price
	Amount    float64 // base quantity requested
	Filled    float64 // base quantity filled
	Funds     float64 // quote value of the fill
	Fee       float64
	Timestamp time.Time
}

// Settled reports whether the exchange has populated the fill fields. Order
// endpoints are eventually consistent and may answer with zeros for a while
// after a market order is accepted.
func (o OrderDetail) Settled() bool {
	return o.Amount > 0 && o.Filled > 0
}

// ClosedPnL is a foreign venue's realized profit report for a closing order.
type ClosedPnL struct {
	AvgExitPrice float64
	TotalVolume  float64
	TotalPnL     float64
	CloseFee     float64
	OrderPrice   float64
}

// Settled reports whether the report carries data. A report with zero PnL,
// zero exit price and zero volume has not been computed by the venue yet.
func (p ClosedPnL) Settled() bool {
	return !(p.TotalPnL == 0 && p.AvgExitPrice == 0 && p.TotalVolume == 0)
}

// LeverageStatus is the outcome of a set-leverage request.
type LeverageStatus string

const (
	LeverageSet         LeverageStatus = "set"
	LeverageNotModified LeverageStatus = "not_modified"
	LeverageRejected    LeverageStatus = "rejected"
)
