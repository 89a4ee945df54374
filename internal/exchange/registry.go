package exchange

import (
	"fmt"
	"sort"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// Registry maps venue ids to adapters. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	traders map[domain.ExchangeID]Trader
}

// NewRegistry indexes traders by their id. Unknown or duplicate ids are
// rejected.
func NewRegistry(traders ...Trader) (*Registry, error) {
	r := &Registry{traders: make(map[domain.ExchangeID]Trader, len(traders))}
	for _, t := range traders {
		id := t.ID()
		if !id.Valid() {
			return nil, fmt.Errorf("exchange: registry: %w: %q", domain.ErrUnsupportedExchange, id)
		}
		if _, dup := r.traders[id]; dup {
			return nil, fmt.Errorf("exchange: registry: duplicate adapter for %s", id)
		}
		r.traders[id] = t
	}
	return r, nil
}

// Get returns the adapter registered for id.
func (r *Registry) Get(id domain.ExchangeID) (Trader, error) {
	t, ok := r.traders[id]
	if !ok {
		return nil, fmt.Errorf("exchange: %w: %s not configured", domain.ErrUnsupportedExchange, id)
	}
	return t, nil
}

// Pair is a domestic/foreign adapter pair for one arbitrage route.
type Pair struct {
	Domestic Trader
	Foreign  Trader
}

// Pair resolves and validates a route: kr must be a domestic venue and fr a
// foreign one.
func (r *Registry) Pair(kr, fr domain.ExchangeID) (Pair, error) {
	if kr.Market() != domain.MarketDomestic {
		return Pair{}, fmt.Errorf("exchange: %w: %q is not a domestic venue", domain.ErrUnsupportedExchange, kr)
	}
	if fr.Market() != domain.MarketForeign {
		return Pair{}, fmt.Errorf("exchange: %w: %q is not a foreign venue", domain.ErrUnsupportedExchange, fr)
	}
	d, err := r.Get(kr)
	if err != nil {
		return Pair{}, err
	}
	f, err := r.Get(fr)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Domestic: d, Foreign: f}, nil
}

// IDs lists the registered venues in sorted order.
func (r *Registry) IDs() []domain.ExchangeID {
	ids := make([]domain.ExchangeID, 0, len(r.traders))
	for id := range r.traders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
