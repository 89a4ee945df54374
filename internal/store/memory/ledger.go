// Package memory provides in-process implementations of the domain stores.
// They back paper mode and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// Ledger is an in-memory domain.PositionLedger.
type Ledger struct {
	mu   sync.RWMutex
	seq  int64
	rows []domain.Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// InsertOpen appends an OPEN row.
func (l *Ledger) InsertOpen(_ context.Context, pos domain.Position) error {
	pos.Status = domain.PositionStatusOpen
	pos.ExitTime = nil
	return l.insert(pos)
}

// InsertClosed appends a CLOSED row.
func (l *Ledger) InsertClosed(_ context.Context, pos domain.Position) error {
	pos.Status = domain.PositionStatusClosed
	if pos.ExitTime == nil {
		t := pos.EntryTime
		pos.ExitTime = &t
	}
	return l.insert(pos)
}

// insert rejects a second row of the same status for the same order pair,
// matching the unique index of the SQL ledger. Rows without order ids are
// never considered duplicates.
func (l *Ledger) insert(pos domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.rows {
		if pos.KrOrderID == "" && pos.FrOrderID == "" {
			break
		}
		if r.Status == pos.Status &&
			r.KrExchange == pos.KrExchange && r.KrOrderID == pos.KrOrderID &&
			r.FrExchange == pos.FrExchange && r.FrOrderID == pos.FrOrderID {
			return fmt.Errorf("memory: insert %s position %s/%s: %w", pos.Status, pos.KrOrderID, pos.FrOrderID, domain.ErrAlreadyExists)
		}
	}
	l.seq++
	if pos.ID == "" {
		pos.ID = strconv.FormatInt(l.seq, 10)
	}
	l.rows = append(l.rows, pos)
	return nil
}

// ActivePositions returns the OPEN rows inside the active window, oldest
// first.
func (l *Ledger) ActivePositions(_ context.Context, userID int64, coin string) ([]domain.Position, error) {
	l.mu.RLock()
	var rows []domain.Position
	for _, p := range l.rows {
		if p.UserID == userID && p.Coin == coin {
			rows = append(rows, p)
		}
	}
	l.mu.RUnlock()

	active := domain.ActivePositions(rows)
	sort.SliceStable(active, func(i, j int) bool { return active[i].EntryTime.Before(active[j].EntryTime) })
	return active, nil
}

// ListClosed returns CLOSED rows ordered by exit time.
func (l *Ledger) ListClosed(_ context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	l.mu.RLock()
	var out []domain.Position
	for _, p := range l.rows {
		if p.Status != domain.PositionStatusClosed || p.ExitTime == nil {
			continue
		}
		if opts.Since != nil && p.ExitTime.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !p.ExitTime.Before(*opts.Until) {
			continue
		}
		out = append(out, p)
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ExitTime.Before(*out[j].ExitTime) })
	return paginate(out, opts), nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

var _ domain.PositionLedger = (*Ledger)(nil)
