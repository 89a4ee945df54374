package domain

import (
	"fmt"
	"strings"
)

// Market tells which side of the arbitrage an exchange trades on.
type Market string

const (
	MarketDomestic Market = "domestic" // local-currency spot venue
	MarketForeign  Market = "foreign"  // stablecoin-margined derivatives venue
)

// ExchangeID is the closed set of venues the engine knows about.
type ExchangeID string

const (
	ExchangeUpbit   ExchangeID = "upbit"
	ExchangeBithumb ExchangeID = "bithumb"
	ExchangeBinance ExchangeID = "binance"
	ExchangeBybit   ExchangeID = "bybit"
	ExchangeOKX     ExchangeID = "okx"
)

var exchangeMarkets = map[ExchangeID]Market{
	ExchangeUpbit:   MarketDomestic,
	ExchangeBithumb: MarketDomestic,
	ExchangeBinance: MarketForeign,
	ExchangeBybit:   MarketForeign,
	ExchangeOKX:     MarketForeign,
}

// ParseExchangeID normalises s and checks it against the known venue set.
func ParseExchangeID(s string) (ExchangeID, error) {
	id := ExchangeID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := exchangeMarkets[id]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExchange, s)
	}
	return id, nil
}

// Market returns the side the venue trades on. Unknown ids return "".
func (id ExchangeID) Market() Market {
	return exchangeMarkets[id]
}

// Valid reports whether id is part of the known venue set.
func (id ExchangeID) Valid() bool {
	_, ok := exchangeMarkets[id]
	return ok
}

func (id ExchangeID) String() string { return string(id) }
