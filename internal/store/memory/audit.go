package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// AuditLog is an in-memory domain.AuditStore.
type AuditLog struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{
		ID:        int64(len(a.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (a *AuditLog) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.RLock()
	out := make([]domain.AuditEntry, 0, len(a.entries))
	for i := len(a.entries) - 1; i >= 0; i-- {
		out = append(out, a.entries[i])
	}
	a.mu.RUnlock()
	return paginate(out, opts), nil
}

var _ domain.AuditStore = (*AuditLog)(nil)
