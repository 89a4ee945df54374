package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
	"github.com/Juhan1212/karbit-sub001/internal/store/memory"
)

type fakeWriter struct {
	objects   map[string][]byte
	multipart int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{objects: make(map[string][]byte)}
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

func (w *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	w.multipart++
	return w.Put(ctx, path, data, jsonlContentType)
}

func (w *fakeWriter) Exists(_ context.Context, path string) (bool, error) {
	_, ok := w.objects[path]
	return ok, nil
}

func closedAt(t time.Time, coin string) domain.Position {
	profit := 1000.0
	return domain.Position{
		UserID:     7,
		StrategyID: 3,
		Coin:       coin,
		EntryTime:  t,
		ExitTime:   &t,
		KrExchange: domain.ExchangeUpbit,
		FrExchange: domain.ExchangeBybit,
		Profit:     &profit,
	}
}

func TestArchivePositions(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	ledger := memory.NewLedger()
	require.NoError(t, ledger.InsertOpen(ctx, domain.Position{UserID: 7, Coin: "BTC", EntryTime: cutoff.Add(-time.Hour)}))
	require.NoError(t, ledger.InsertClosed(ctx, closedAt(cutoff.Add(-2*time.Hour), "BTC")))
	require.NoError(t, ledger.InsertClosed(ctx, closedAt(cutoff.Add(-time.Minute), "ETH")))
	require.NoError(t, ledger.InsertClosed(ctx, closedAt(cutoff, "XRP")))

	w := newFakeWriter()
	audit := memory.NewAuditLog()
	a := NewArchiver(w, ledger, audit, slog.New(slog.DiscardHandler))

	n, err := a.ArchivePositions(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	body, ok := w.objects["positions/2026/10/2026-10-19.jsonl"]
	require.True(t, ok)

	var coins []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var rec archivedPosition
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		assert.Equal(t, "CLOSED", rec.Status)
		assert.Equal(t, "upbit", rec.KrExchange)
		coins = append(coins, rec.Coin)
	}
	assert.Equal(t, []string{"BTC", "ETH"}, coins)
	assert.Zero(t, w.multipart)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.positions", entries[0].Event)
	assert.Equal(t, int64(2), entries[0].Detail["count"])
}

func TestArchivePositionsDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	ledger := memory.NewLedger()
	require.NoError(t, ledger.InsertClosed(ctx, closedAt(cutoff.Add(-time.Hour), "BTC")))

	w := newFakeWriter()
	a := NewArchiver(w, ledger, memory.NewAuditLog(), slog.New(slog.DiscardHandler))

	_, err := a.ArchivePositions(ctx, cutoff)
	require.NoError(t, err)
	_, err = a.ArchivePositions(ctx, cutoff)
	require.NoError(t, err)

	assert.Contains(t, w.objects, "positions/2026/10/2026-10-19.jsonl")
	assert.Contains(t, w.objects, "positions/2026/10/2026-10-19-1.jsonl")
}

func TestArchivePositionsEmpty(t *testing.T) {
	w := newFakeWriter()
	audit := memory.NewAuditLog()
	a := NewArchiver(w, memory.NewLedger(), audit, slog.New(slog.DiscardHandler))

	n, err := a.ArchivePositions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)

	entries, err := audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}
