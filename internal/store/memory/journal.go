package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// Journal is an in-memory domain.ExecutionJournal.
type Journal struct {
	mu    sync.RWMutex
	execs map[string]domain.Execution
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{execs: make(map[string]domain.Execution)}
}

func (j *Journal) Save(_ context.Context, exec domain.Execution) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if prev, ok := j.execs[exec.ID]; ok && exec.StartedAt.IsZero() {
		exec.StartedAt = prev.StartedAt
	}
	j.execs[exec.ID] = exec
	return nil
}

func (j *Journal) GetByID(_ context.Context, id string) (domain.Execution, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	exec, ok := j.execs[id]
	if !ok {
		return domain.Execution{}, domain.ErrNotFound
	}
	return exec, nil
}

func (j *Journal) ListIncomplete(_ context.Context) ([]domain.Execution, error) {
	j.mu.RLock()
	var out []domain.Execution
	for _, e := range j.execs {
		if !e.Stage.Terminal() {
			out = append(out, e)
		}
	}
	j.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.Before(out[b].StartedAt) })
	return out, nil
}

var _ domain.ExecutionJournal = (*Journal)(nil)
