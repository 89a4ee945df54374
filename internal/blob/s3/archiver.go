package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	archivePageSize  = 500
)

// ClosedPositionLister is the slice of the ledger the archiver reads.
type ClosedPositionLister interface {
	ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error)
}

// existenceChecker is implemented by writers that can tell whether an object
// is already stored. Archives are never overwritten when it is available.
type existenceChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// PositionArchiver exports CLOSED ledger rows as JSONL. Rows are left in the
// ledger; pruning is a separate step once the archive has been verified.
type PositionArchiver struct {
	writer domain.BlobWriter
	ledger ClosedPositionLister
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates a PositionArchiver.
func NewArchiver(writer domain.BlobWriter, ledger ClosedPositionLister, audit domain.AuditStore, logger *slog.Logger) *PositionArchiver {
	return &PositionArchiver{
		writer: writer,
		ledger: ledger,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchivePositions uploads every CLOSED row that exited before the cutoff to
// positions/YYYY/MM/YYYY-MM-DD.jsonl and returns the number of rows written.
func (a *PositionArchiver) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	var rows []archivedPosition
	for offset := 0; ; offset += archivePageSize {
		page, err := a.ledger.ListClosed(ctx, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
			Until:  &before,
		})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
		}
		for _, p := range page {
			rows = append(rows, toArchived(p))
		}
		if len(page) < archivePageSize {
			break
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	path, err := a.freePath(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions: %w", err)
	}

	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	count := int64(len(rows))
	a.logger.InfoContext(ctx, "positions archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int("bytes", len(buf)),
	)

	if err := a.audit.Log(ctx, "archive.positions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.UTC().Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive positions audit log: %w", err)
	}
	return count, nil
}

// freePath picks the archive key for the cutoff, adding a numeric suffix
// when an earlier run already used the day's key.
func (a *PositionArchiver) freePath(ctx context.Context, before time.Time) (string, error) {
	base := archivePath(before)
	checker, ok := a.writer.(existenceChecker)
	if !ok {
		return base + ".jsonl", nil
	}
	for i := 0; i < 100; i++ {
		path := base + ".jsonl"
		if i > 0 {
			path = fmt.Sprintf("%s-%d.jsonl", base, i)
		}
		exists, err := checker.Exists(ctx, path)
		if err != nil {
			return "", err
		}
		if !exists {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free archive key under %s", base)
}

// archivePath returns the key without extension, e.g.
//
//	positions/2026/10/2026-10-19
func archivePath(before time.Time) string {
	t := before.UTC()
	return fmt.Sprintf("positions/%s/%s", t.Format("2006/01"), t.Format("2006-01-02"))
}

type archivedPosition struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"user_id"`
	StrategyID int64      `json:"strategy_id"`
	Coin       string     `json:"coin"`
	Status     string     `json:"status"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   *time.Time `json:"exit_time,omitempty"`

	KrExchange string  `json:"kr_exchange"`
	KrOrderID  string  `json:"kr_order_id"`
	KrPrice    float64 `json:"kr_price"`
	KrVolume   float64 `json:"kr_volume"`
	KrFunds    float64 `json:"kr_funds"`
	KrFee      float64 `json:"kr_fee"`

	FrExchange      string  `json:"fr_exchange"`
	FrOrderID       string  `json:"fr_order_id"`
	FrPrice         float64 `json:"fr_price"`
	FrOriginalPrice float64 `json:"fr_original_price"`
	FrVolume        float64 `json:"fr_volume"`
	FrFunds         float64 `json:"fr_funds"`
	FrFee           float64 `json:"fr_fee"`
	FrSlippage      float64 `json:"fr_slippage"`
	Leverage        int     `json:"leverage"`

	EntryRate  float64  `json:"entry_rate"`
	ExitRate   *float64 `json:"exit_rate,omitempty"`
	CrossRate  *float64 `json:"cross_rate,omitempty"`
	Profit     *float64 `json:"profit,omitempty"`
	ProfitRate *float64 `json:"profit_rate,omitempty"`
}

func toArchived(p domain.Position) archivedPosition {
	return archivedPosition{
		ID:              p.ID,
		UserID:          p.UserID,
		StrategyID:      p.StrategyID,
		Coin:            p.Coin,
		Status:          string(p.Status),
		EntryTime:       p.EntryTime,
		ExitTime:        p.ExitTime,
		KrExchange:      p.KrExchange.String(),
		KrOrderID:       p.KrOrderID,
		KrPrice:         p.KrPrice,
		KrVolume:        p.KrVolume,
		KrFunds:         p.KrFunds,
		KrFee:           p.KrFee,
		FrExchange:      p.FrExchange.String(),
		FrOrderID:       p.FrOrderID,
		FrPrice:         p.FrPrice,
		FrOriginalPrice: p.FrOriginalPrice,
		FrVolume:        p.FrVolume,
		FrFunds:         p.FrFunds,
		FrFee:           p.FrFee,
		FrSlippage:      p.FrSlippage,
		Leverage:        p.Leverage,
		EntryRate:       p.EntryRate,
		ExitRate:        p.ExitRate,
		CrossRate:       p.CrossRate,
		Profit:          p.Profit,
		ProfitRate:      p.ProfitRate,
	}
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*PositionArchiver)(nil)
