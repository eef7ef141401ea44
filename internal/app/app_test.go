package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/platform/paper"
	"github.com/alanyoungcy/arbengine/internal/platform/rest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const testCatalog = `
instruments:
  - venue: alpha
    base: ETH
    quote: BTC
    price_scale: 6
    quantity_scale: 3
    fee: "0.001"
  - venue: beta
    base: ETH
    quote: BTC
    price_scale: 6
    quantity_scale: 3
    fee: "0.001"
`

// depthServer serves a fixed public order book.
func depthServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/depth" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "ETH_BTC", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func paperConfig(t *testing.T) *config.Config {
	t.Helper()
	alpha := depthServer(t, `{"symbol":"ETH_BTC","asks":[["0.05","2"],["0.0502","3"],["0.06","100"]],"bids":[["0.04","100"]]}`)
	beta := depthServer(t, `{"symbol":"ETH_BTC","asks":[["0.06","100"]],"bids":[["0.051","1"],["0.0505","4"],["0.04","100"]]}`)

	cfg := config.Defaults()
	cfg.Mode = "paper"
	cfg.Venues = []config.VenueConfig{
		{Name: "alpha", BaseURL: alpha.URL, PaperBalances: map[string]string{"btc": "10"}},
		{Name: "beta", BaseURL: beta.URL, PaperBalances: map[string]string{"ETH": "10"}},
	}
	cfg.Cycles = []config.CycleConfig{{
		Name: "eth-hedge", Kind: "hedge",
		Instruments: []string{"alpha:ETH_BTC", "beta:ETH_BTC"},
	}}
	return &cfg
}

func buildDefs(t *testing.T, cfg *config.Config) []domain.CycleDefinition {
	t.Helper()
	cat, err := config.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	defs, err := config.Build(cfg, cat)
	require.NoError(t, err)
	return defs
}

func TestPaperMode_TradesAgainstPublicDepth(t *testing.T) {
	ctx := context.Background()
	cfg := paperConfig(t)
	a := New(cfg, testLogger())

	deps, cleanup, err := Wire(ctx, cfg, a.logger)
	require.NoError(t, err)
	defer cleanup()

	defs := buildDefs(t, cfg)
	venues, runners, err := a.buildVenues(defs, deps)
	require.NoError(t, err)
	assert.Empty(t, runners, "paper venues run no streams")
	require.Len(t, venues, 2)
	assert.IsType(t, &paper.Exchange{}, venues["alpha"])

	engines := a.buildEngines(defs, venues, deps)
	require.Len(t, engines, 1)
	require.NoError(t, engines[0].Tick(ctx))

	execs, err := deps.Executions.ListRecent(ctx, "eth-hedge", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, domain.OutcomePlaced, execs[0].Outcome)

	rows, err := deps.Orders.Find(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	audit, err := deps.Audit.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, audit, "engine events reach the audit log")
}

func TestWire_RedisBackedDependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := paperConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Balances)
	assert.NotNil(t, deps.Ladders)
	assert.NotNil(t, deps.Limiter)
	assert.NotNil(t, deps.Locks)
	assert.NotNil(t, deps.Bus)
	assert.Nil(t, deps.Blob)
	assert.Nil(t, deps.Notifier, "no senders configured")
	require.Contains(t, deps.Health, "redis")
	assert.NoError(t, deps.Health["redis"](context.Background()))
}

func TestBuildVenues_Live(t *testing.T) {
	cfg := paperConfig(t)
	cfg.Mode = "live"
	cfg.Venues[0].APIKey, cfg.Venues[0].APISecret = "ak", "as"
	cfg.Venues[1].APIKey, cfg.Venues[1].APISecret = "bk", "bs"
	cfg.Venues[1].WSURL = "ws://127.0.0.1:1/ws"

	a := New(cfg, testLogger())
	deps, cleanup, err := Wire(context.Background(), cfg, a.logger)
	require.NoError(t, err)
	defer cleanup()

	venues, runners, err := a.buildVenues(buildDefs(t, cfg), deps)
	require.NoError(t, err)
	assert.IsType(t, &rest.Client{}, venues["alpha"])
	assert.Len(t, runners, 1, "only beta streams depth")
}

func TestBuildVenues_BadPaperBalance(t *testing.T) {
	cfg := paperConfig(t)
	cfg.Venues[0].PaperBalances = map[string]string{"BTC": "lots"}
	a := New(cfg, testLogger())
	deps, cleanup, err := Wire(context.Background(), cfg, a.logger)
	require.NoError(t, err)
	defer cleanup()

	_, _, err = a.buildVenues(buildDefs(t, cfg), deps)
	require.ErrorContains(t, err, "paper balance BTC")
}

func TestRun_RejectsUnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "monitor"
	err := New(&cfg, testLogger()).Run(context.Background())
	require.ErrorContains(t, err, "unsupported mode")
}

func TestArchiveMode_RequiresBlob(t *testing.T) {
	cfg := paperConfig(t)
	a := New(cfg, testLogger())
	deps, cleanup, err := Wire(context.Background(), cfg, a.logger)
	require.NoError(t, err)
	defer cleanup()

	require.ErrorContains(t, a.ArchiveMode(context.Background(), deps), "blob storage")
}
