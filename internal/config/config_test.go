package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

const sampleTOML = `
mode = "live"
log_level = "debug"
instruments_file = "instruments.yaml"

[engine]
cadence = "50ms"
staleness = "750ms"
sync_orders_every = 20

[[venues]]
name = "alpha"
base_url = "https://alpha.example"
api_key = "ak"
api_secret = "as"

[[venues]]
name = "beta"
base_url = "https://beta.example"
ws_url = "wss://beta.example/ws"
api_key = "bk"

[[cycles]]
name = "eth-hedge"
kind = "hedge"
instruments = ["alpha:ETH_BTC", "beta:ETH_BTC"]
max_quantity = "5"

[postgres]
enabled = true
`

const sampleCatalog = `
instruments:
  - venue: alpha
    base: eth
    quote: btc
    price_scale: 6
    quantity_scale: 3
    fee: "0.001"
  - venue: beta
    base: ETH
    quote: BTC
    price_scale: 5
    quantity_scale: 2
    fee: "0.002"
    sell_fee: "0.0015"
  - venue: alpha
    base: BTC
    quote: USDT
    price_scale: 2
    quantity_scale: 5
  - venue: alpha
    base: ETH
    quote: USDT
    price_scale: 2
    quantity_scale: 4
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_MergesDefaultsAndEnv(t *testing.T) {
	t.Setenv("ARBENGINE_VENUE_BETA_API_SECRET", "from-env")
	t.Setenv("ARBENGINE_ENGINE_FAILURE_BACKOFF", "2s")
	t.Setenv("ARBENGINE_NOTIFY_EVENTS", "tick_failed, cycle_placed,")

	cfg, err := Load(writeFile(t, "arbengine.toml", sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.Engine.Cadence.Duration)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.Staleness.Duration)
	assert.Equal(t, 2*time.Second, cfg.Engine.FailureBackoff.Duration)
	assert.Equal(t, 20, cfg.Engine.SyncOrdersEvery)
	assert.Equal(t, 2000, cfg.Engine.SyncBalanceEvery, "untouched fields keep defaults")
	assert.Equal(t, 5432, cfg.Postgres.Port)

	beta, ok := cfg.Venue("beta")
	require.True(t, ok)
	assert.Equal(t, "from-env", beta.APISecret)
	assert.Equal(t, []string{"tick_failed", "cycle_placed"}, cfg.Notify.Events)

	require.NoError(t, cfg.Validate())
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(writeFile(t, "bad.toml", "mode = "))
	require.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"
	cfg.LogLevel = "loud"
	cfg.Engine.MaxPlanOrders = 0
	cfg.Engine.UseLock = true
	cfg.Venues = []VenueConfig{{Name: "alpha", EncryptedSecretPath: "/tmp/x"}}
	cfg.Cycles = []CycleConfig{
		{Name: "c1", Kind: "square", Instruments: []string{"gamma:ETH_BTC", "nonsense"}},
		{Name: "c1", Kind: "hedge", MinQuantity: "-1"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown log_level "loud"`,
		"engine: max_plan_orders must be >= 1",
		"engine: use_lock requires redis.enabled",
		`cycles.c1: unknown kind "square"`,
		`unconfigured venue "gamma"`,
		"want venue:BASE_QUOTE",
		"cycles.c1: duplicate name",
		"min_quantity must be a non-negative decimal",
		"venues.alpha: base_url is required",
		"venues.alpha: secret_password is required",
		"postgres: live mode requires postgres.enabled",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_ModesDiffer(t *testing.T) {
	paper := Defaults()
	paper.Cycles = []CycleConfig{{Name: "tri", Kind: "triangle", Instruments: []string{"sim:BTC_USDT", "sim:ETH_BTC", "sim:ETH_USDT"}}}
	require.NoError(t, paper.Validate(), "paper mode needs no venue credentials")

	archive := Defaults()
	archive.Mode = "archive"
	archive.S3.Bucket = ""
	err := archive.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")
	assert.NotContains(t, err.Error(), "cycles:")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Venues = []VenueConfig{{Name: "alpha", APIKey: "ak", APISecret: "as", PaperBalances: map[string]string{"BTC": "1"}}}
	cfg.Postgres.Password = "pw"
	cfg.Notify.TelegramToken = "tg"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Venues[0].APIKey)
	assert.Equal(t, "***", red.Venues[0].APISecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Empty(t, red.Redis.Password, "empty secrets stay empty")

	red.Venues[0].PaperBalances["BTC"] = "9"
	assert.Equal(t, "ak", cfg.Venues[0].APIKey)
	assert.Equal(t, "1", cfg.Venues[0].PaperBalances["BTC"])
}

func TestVenueSecret(t *testing.T) {
	blob, err := crypto.EncryptSecret("venue-secret", "hunter2")
	require.NoError(t, err)
	path := writeFile(t, "alpha.secret", string(blob))

	got, err := VenueSecret(VenueConfig{Name: "alpha", EncryptedSecretPath: path, SecretPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "venue-secret", got)

	got, err = VenueSecret(VenueConfig{Name: "alpha", APISecret: "raw", EncryptedSecretPath: path})
	require.NoError(t, err)
	assert.Equal(t, "raw", got, "raw secret wins")

	_, err = VenueSecret(VenueConfig{Name: "alpha", EncryptedSecretPath: path, SecretPassword: "wrong"})
	require.Error(t, err)

	got, err = VenueSecret(VenueConfig{Name: "alpha"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, cat, 4)

	a, err := cat.Lookup("alpha:eth_btc")
	require.NoError(t, err)
	assert.Equal(t, "ETH", a.Base)
	assert.Equal(t, int32(6), a.PriceScale)
	assert.Equal(t, "0.001", a.BuyFee.String())

	b, err := cat.Lookup("beta:ETH_BTC")
	require.NoError(t, err)
	assert.Equal(t, "0.002", b.BuyFee.String())
	assert.Equal(t, "0.0015", b.SellFee.String())

	_, err = cat.Lookup("gamma:ETH_BTC")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, []string{"alpha", "beta"}, cat.Venues())
}

func TestParseCatalog_Rejects(t *testing.T) {
	tests := map[string]string{
		"duplicate": `
instruments:
  - {venue: a, base: ETH, quote: BTC}
  - {venue: a, base: eth, quote: btc}`,
		"fee out of range": `
instruments:
  - {venue: a, base: ETH, quote: BTC, fee: "1.5"}`,
		"same currency": `
instruments:
  - {venue: a, base: ETH, quote: ETH}`,
		"bad yaml": `instruments: [`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestBuild(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	cfg := Defaults()
	cfg.Cycles = []CycleConfig{
		{Name: "eth-hedge", Kind: "hedge", Instruments: []string{"alpha:ETH_BTC", "beta:ETH_BTC"}, MinQuantity: "0.01", MaxQuantity: "5"},
		{Name: "tri", Kind: "triangle", Instruments: []string{"alpha:BTC_USDT", "alpha:ETH_BTC", "alpha:ETH_USDT"}, Directions: []string{"clockwise"}},
	}
	defs, err := Build(&cfg, cat)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, domain.DirectionsFor(domain.CycleHedge), defs[0].Directions)
	assert.Equal(t, "5", defs[0].MaxQuantity.String())
	assert.Equal(t, []domain.Direction{domain.DirectionClockwise}, defs[1].Directions)
	assert.Equal(t, "beta", defs[0].Instruments[1].Venue)
}

func TestBuild_ReportsEveryCycle(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	cfg := Defaults()
	cfg.Cycles = []CycleConfig{
		{Name: "same-venue", Kind: "hedge", Instruments: []string{"alpha:ETH_BTC", "alpha:ETH_BTC"}},
		{Name: "bad-tri", Kind: "triangle", Instruments: []string{"alpha:ETH_BTC", "alpha:BTC_USDT", "alpha:ETH_USDT"}},
		{Name: "missing", Kind: "hedge", Instruments: []string{"alpha:ETH_BTC", "gamma:ETH_BTC"}},
	}
	_, err = Build(&cfg, cat)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCycle)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "same-venue")
	assert.Contains(t, err.Error(), "bad-tri")
}
