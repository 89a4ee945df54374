package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/fixedpoint"
)

// Aggregate folds active OPEN positions into a settlement. It returns
// domain.ErrNoActivePosition for an empty set.
func Aggregate(coin string, positions []domain.Position) (domain.PositionSettlement, error) {
	if len(positions) == 0 {
		return domain.PositionSettlement{}, domain.ErrNoActivePosition
	}

	krVolumes := make([]float64, 0, len(positions))
	krFunds := make([]float64, 0, len(positions))
	frFunds := make([]float64, 0, len(positions))
	rates := make([]float64, 0, len(positions))
	for _, p := range positions {
		krVolumes = append(krVolumes, p.KrVolume)
		krFunds = append(krFunds, p.KrFunds)
		frFunds = append(frFunds, p.FrFunds)
		rates = append(rates, p.EntryRate)
	}

	return domain.PositionSettlement{
		Coin:           coin,
		AvgEntryRate:   fixedpoint.WeightedAverage(rates, krFunds, fixedpoint.CurrencyDecimals),
		TotalKrVolume:  fixedpoint.Sum(krVolumes, fixedpoint.VolumeDecimals),
		TotalKrFunds:   fixedpoint.Sum(krFunds, fixedpoint.CurrencyDecimals),
		TotalFrFunds:   fixedpoint.Sum(frFunds, fixedpoint.PriceDecimals),
		PositionsCount: len(positions),
	}, nil
}

// Settlement computes the settlement of a user's active positions in coin
// and returns the rows it was built from.
func (e *Engine) Settlement(ctx context.Context, userID int64, coin string) (domain.PositionSettlement, []domain.Position, error) {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	positions, err := e.ledger.ActivePositions(ctx, userID, coin)
	if err != nil {
		return domain.PositionSettlement{}, nil, fmt.Errorf("engine: active positions: %w", err)
	}
	s, err := Aggregate(coin, positions)
	if err != nil {
		return domain.PositionSettlement{}, nil, err
	}
	return s, positions, nil
}
