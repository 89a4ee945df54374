package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/fixedpoint"
)

// UserStats is an in-memory domain.UserStatsStore.
type UserStats struct {
	mu       sync.Mutex
	deployed map[int64]float64
}

// NewUserStats creates an empty store.
func NewUserStats() *UserStats {
	return &UserStats{deployed: make(map[int64]float64)}
}

func (s *UserStats) AddDeployedCapital(_ context.Context, userID int64, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployed[userID] = fixedpoint.Add(s.deployed[userID], delta, fixedpoint.CurrencyDecimals)
	return nil
}

func (s *UserStats) DeployedCapital(_ context.Context, userID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deployed[userID], nil
}

// StrategyStats is an in-memory domain.StrategyStatsStore.
type StrategyStats struct {
	mu    sync.Mutex
	stats map[int64]domain.StrategyStats
}

// NewStrategyStats creates an empty store.
func NewStrategyStats() *StrategyStats {
	return &StrategyStats{stats: make(map[int64]domain.StrategyStats)}
}

func (s *StrategyStats) RecordClose(_ context.Context, strategyID int64, profit, profitRate float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats[strategyID]
	st.StrategyID = strategyID
	st.Trades++
	if profit > 0 {
		st.Wins++
	} else {
		st.Losses++
	}
	st.TotalProfit = fixedpoint.Add(st.TotalProfit, profit, fixedpoint.CurrencyDecimals)
	st.SumProfitRate = fixedpoint.Add(st.SumProfitRate, profitRate, fixedpoint.PercentDecimals)
	st.LastExitAt = at
	s.stats[strategyID] = st
	return nil
}

func (s *StrategyStats) Get(_ context.Context, strategyID int64) (domain.StrategyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[strategyID]
	if !ok {
		return domain.StrategyStats{}, domain.ErrNotFound
	}
	return st, nil
}

var (
	_ domain.UserStatsStore     = (*UserStats)(nil)
	_ domain.StrategyStatsStore = (*StrategyStats)(nil)
)
