package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juhan1212/karbit-sub001/internal/config"
	"github.com/Juhan1212/karbit-sub001/internal/service"
)

func paperConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Engine.ConfirmDelay.Duration = 0
	cfg.Engine.OpenFinalizeDelay.Duration = 0
	cfg.Engine.CloseFinalizeDelay.Duration = 0
	cfg.Exchanges.RequestsPerSecond = 0
	require.NoError(t, cfg.Validate())
	return &cfg
}

func run(t *testing.T, cfg *config.Config, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	a := New(cfg, slog.New(slog.DiscardHandler))
	var out bytes.Buffer
	a.SetOutput(&out)
	err := a.Run(context.Background(), args)
	a.Close()
	return &out, err
}

func TestRunCycle(t *testing.T) {
	out, err := run(t, paperConfig(t), "cycle", "-coin", "btc", "-seed", "2000000")
	require.NoError(t, err)

	var got map[string]service.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))

	assert.True(t, got["open"].Success)
	assert.True(t, got["open"].NeedsFinalization)
	require.NotNil(t, got["settlement"].Settlement)
	assert.Equal(t, 1, got["settlement"].Settlement.PositionsCount)
	assert.Greater(t, got["settlement"].Settlement.TotalKrFunds, 0.0)
	assert.True(t, got["close"].Success)
	assert.NotEmpty(t, got["close"].ForeignOrderID)
}

func TestRunSettlementWithoutPositions(t *testing.T) {
	out, err := run(t, paperConfig(t), "settlement", "-coin", "BTC, eth")
	require.NoError(t, err)

	var got map[string]service.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Contains(t, got, "BTC")
	assert.Contains(t, got, "ETH")
	assert.False(t, got["BTC"].Success)
}

func TestRunRateUsesDomesticVenue(t *testing.T) {
	out, err := run(t, paperConfig(t), "rate")
	require.NoError(t, err)

	var q struct {
		Value  float64
		Source string
		At     time.Time
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &q))
	assert.Equal(t, 1400.0, q.Value)
	assert.Equal(t, "live", q.Source)
}

func TestRunUsageErrors(t *testing.T) {
	cfg := paperConfig(t)

	_, err := run(t, cfg)
	assert.ErrorIs(t, err, ErrUsage)

	_, err = run(t, cfg, "trade")
	assert.ErrorIs(t, err, ErrUsage)

	_, err = run(t, cfg, "settlement")
	assert.ErrorIs(t, err, ErrUsage)

	_, err = run(t, cfg, "open", "-seed", "nope")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRunArchiveNeedsBucket(t *testing.T) {
	_, err := run(t, paperConfig(t), "archive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3.bucket is not configured")
}

func TestRunPendingIsEmpty(t *testing.T) {
	out, err := run(t, paperConfig(t), "pending")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out.String())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServeLifecycleOverHTTP(t *testing.T) {
	cfg := paperConfig(t)
	cfg.Engine.SyncFinalize = true
	cfg.Server.APIKey = "test-key"
	addr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	a := New(cfg, slog.New(slog.DiscardHandler))
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, []string{"serve", "-addr", addr}) }()
	defer a.Close()

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	call := func(method, path, body string) (int, service.Result) {
		req, err := http.NewRequest(method, base+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-API-Key", "test-key")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var res service.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		return resp.StatusCode, res
	}

	status, opened := call(http.MethodPost, "/api/positions/open", `{"coin":"BTC","seed":1000000}`)
	require.Equal(t, http.StatusOK, status, opened.Message)
	require.NotNil(t, opened.Position)

	status, settled := call(http.MethodGet, "/api/positions/settlement?coin=BTC", "")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, settled.Settlement)
	assert.Equal(t, 1, settled.Settlement.PositionsCount)

	status, closed := call(http.MethodPost, "/api/positions/close", `{"coin":"BTC"}`)
	require.Equal(t, http.StatusOK, status, closed.Message)
	assert.True(t, closed.Success)

	status, _ = call(http.MethodGet, "/api/positions/settlement?coin=BTC", "")
	assert.Equal(t, http.StatusNotFound, status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("serve did not stop")
	}
}
