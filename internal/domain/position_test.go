package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_JSONUsesColumnNames(t *testing.T) {
	rate := 1400.0
	pos := Position{
		ID:         "42",
		UserID:     1,
		StrategyID: 7,
		Coin:       "BTC",
		Status:     PositionStatusOpen,
		EntryTime:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		KrExchange: ExchangeUpbit,
		KrOrderID:  "kr-1",
		FrExchange: ExchangeBybit,
		FrOrderID:  "fr-1",
		Leverage:   1,
		EntryRate:  1380,
		CrossRate:  &rate,
	}

	data, err := json.Marshal(pos)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	for _, key := range []string{
		"id", "user_id", "strategy_id", "coin_symbol", "status", "entry_time",
		"kr_exchange", "kr_order_id", "kr_price", "kr_volume", "kr_funds", "kr_fee",
		"fr_exchange", "fr_order_id", "fr_price", "fr_original_price", "fr_volume",
		"fr_funds", "fr_fee", "fr_slippage", "leverage", "entry_rate", "cross_rate",
	} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "KrOrderID")
	assert.NotContains(t, fields, "exit_time", "nil pointers are omitted")
	assert.NotContains(t, fields, "profit")

	assert.Equal(t, "kr-1", fields["kr_order_id"])
	assert.Equal(t, "OPEN", fields["status"])
	assert.Equal(t, 1400.0, fields["cross_rate"])
}
