// Package config defines the engine's configuration, its defaults and
// validation, and resolves configured cycles against the instrument catalog.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBENGINE_* environment
// variables.
type Config struct {
	Engine          EngineConfig   `toml:"engine"`
	Cycles          []CycleConfig  `toml:"cycles"`
	Venues          []VenueConfig  `toml:"venues"`
	InstrumentsFile string         `toml:"instruments_file"`
	Postgres        PostgresConfig `toml:"postgres"`
	Redis           RedisConfig    `toml:"redis"`
	S3              S3Config       `toml:"s3"`
	Archive         ArchiveConfig  `toml:"archive"`
	Server          ServerConfig   `toml:"server"`
	Notify          NotifyConfig   `toml:"notify"`
	Mode            string         `toml:"mode"`
	LogLevel        string         `toml:"log_level"`
}

// EngineConfig tunes every cycle's scheduler loop.
type EngineConfig struct {
	Cadence          duration `toml:"cadence"`
	FailureBackoff   duration `toml:"failure_backoff"`
	Staleness        duration `toml:"staleness"`
	SyncBalanceEvery int      `toml:"sync_balance_every"`
	SyncOrdersEvery  int      `toml:"sync_orders_every"`
	MaxPlanOrders    int      `toml:"max_plan_orders"`
	// UseLock takes a per-cycle Redis lock each tick so only one process
	// trades a cycle.
	UseLock bool     `toml:"use_lock"`
	LockTTL duration `toml:"lock_ttl"`
	// PollLimit bounds order-status polls per venue per PollWindow.
	PollLimit  int      `toml:"poll_limit"`
	PollWindow duration `toml:"poll_window"`
	// ReplanCanceled re-enters the unfilled part of a canceled leg as a
	// fresh plan.
	ReplanCanceled bool `toml:"replan_canceled"`
	// CancelStaleAfter withdraws live legs older than this; zero disables.
	CancelStaleAfter duration `toml:"cancel_stale_after"`
}

// CycleConfig is one [[cycles]] entry. Instruments are catalog keys of the
// form "venue:BASE_QUOTE"; hedge cycles list two, triangles three in
// (B_A, C_B, C_A) order.
type CycleConfig struct {
	Name        string   `toml:"name"`
	Kind        string   `toml:"kind"`
	Instruments []string `toml:"instruments"`
	// Directions defaults to every direction the kind supports.
	Directions  []string `toml:"directions"`
	MinQuantity string   `toml:"min_quantity"`
	MaxQuantity string   `toml:"max_quantity"`
}

// VenueConfig is one [[venues]] entry.
type VenueConfig struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
	// WSURL enables the websocket depth stream when set.
	WSURL               string   `toml:"ws_url"`
	APIKey              string   `toml:"api_key"`
	APISecret           string   `toml:"api_secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password"`
	Timeout             duration `toml:"timeout"`
	DepthLimit          int      `toml:"depth_limit"`
	// PaperBalances seeds the simulated venue in paper mode.
	PaperBalances map[string]string `toml:"paper_balances"`
}

// PostgresConfig holds PostgreSQL connection parameters. When disabled the
// engine keeps orders in memory, which loses recovery across restarts.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	Prefix     string   `toml:"prefix"`
	LadderTTL  duration `toml:"ladder_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the terminal-order archiver.
type ArchiveConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// ServerConfig holds ops HTTP server parameters.
type ServerConfig struct {
	Enabled    bool     `toml:"enabled"`
	Port       int      `toml:"port"`
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Prefix            string   `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the engine's stock values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Cadence:          duration{10 * time.Millisecond},
			FailureBackoff:   duration{5 * time.Second},
			Staleness:        duration{time.Second},
			SyncBalanceEvery: 2000,
			SyncOrdersEvery:  200,
			MaxPlanOrders:    5,
			LockTTL:          duration{10 * time.Second},
			PollLimit:        10,
			PollWindow:       duration{time.Second},
		},
		InstrumentsFile: "instruments.yaml",
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Prefix:     "arb:",
			LadderTTL:  duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbengine-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{RetentionDays: 30},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8000,
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{
				string(domain.EventCyclePlaced),
				string(domain.EventCyclePartial),
				string(domain.EventTickFailed),
			},
			Prefix: "arbengine",
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":    true,
	"paper":   true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Venue returns the venue configuration called name.
func (c *Config) Venue(name string) (VenueConfig, bool) {
	for _, v := range c.Venues {
		if v.Name == name {
			return v, true
		}
	}
	return VenueConfig{}, false
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found. Cycle shapes are checked
// by Build once the catalog is loaded.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	e := c.Engine
	if e.Cadence.Duration <= 0 {
		errs = append(errs, "engine: cadence must be > 0")
	}
	if e.FailureBackoff.Duration <= 0 {
		errs = append(errs, "engine: failure_backoff must be > 0")
	}
	if e.Staleness.Duration <= 0 {
		errs = append(errs, "engine: staleness must be > 0")
	}
	if e.SyncBalanceEvery < 1 {
		errs = append(errs, "engine: sync_balance_every must be >= 1")
	}
	if e.SyncOrdersEvery < 1 {
		errs = append(errs, "engine: sync_orders_every must be >= 1")
	}
	if e.MaxPlanOrders < 1 {
		errs = append(errs, "engine: max_plan_orders must be >= 1")
	}
	if e.UseLock && !c.Redis.Enabled {
		errs = append(errs, "engine: use_lock requires redis.enabled")
	}
	if e.CancelStaleAfter.Duration < 0 {
		errs = append(errs, "engine: cancel_stale_after must be >= 0")
	}

	// Cycles
	if mode != "archive" {
		if len(c.Cycles) == 0 {
			errs = append(errs, "cycles: at least one [[cycles]] entry is required")
		}
		if c.InstrumentsFile == "" {
			errs = append(errs, "instruments_file must not be empty")
		}
	}
	seen := map[string]bool{}
	for i, cy := range c.Cycles {
		label := fmt.Sprintf("cycles[%d]", i)
		if cy.Name == "" {
			errs = append(errs, label+": name must not be empty")
		} else {
			label = "cycles." + cy.Name
			if seen[cy.Name] {
				errs = append(errs, label+": duplicate name")
			}
			seen[cy.Name] = true
		}
		kind := domain.CycleKind(cy.Kind)
		if kind != domain.CycleHedge && kind != domain.CycleTriangle {
			errs = append(errs, fmt.Sprintf("%s: unknown kind %q (valid: hedge, triangle)", label, cy.Kind))
		}
		for _, key := range cy.Instruments {
			venue, _, _, err := domain.ParseInstrumentKey(key)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", label, err))
				continue
			}
			if _, ok := c.Venue(venue); !ok && mode == "live" {
				errs = append(errs, fmt.Sprintf("%s: instrument %s names unconfigured venue %q", label, key, venue))
			}
		}
		for _, q := range []struct{ name, v string }{{"min_quantity", cy.MinQuantity}, {"max_quantity", cy.MaxQuantity}} {
			if q.v == "" {
				continue
			}
			if d, err := decimal.NewFromString(q.v); err != nil || d.IsNegative() {
				errs = append(errs, fmt.Sprintf("%s: %s must be a non-negative decimal, got %q", label, q.name, q.v))
			}
		}
	}

	// Venues
	names := map[string]bool{}
	for i, v := range c.Venues {
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: name must not be empty", i))
			continue
		}
		if names[v.Name] {
			errs = append(errs, "venues."+v.Name+": duplicate name")
		}
		names[v.Name] = true
		if mode == "live" {
			if v.BaseURL == "" {
				errs = append(errs, "venues."+v.Name+": base_url is required for live mode")
			}
			if v.APIKey == "" {
				errs = append(errs, "venues."+v.Name+": api_key is required for live mode")
			}
			if v.APISecret == "" && v.EncryptedSecretPath == "" {
				errs = append(errs, "venues."+v.Name+": either api_secret or encrypted_secret_path must be set for live mode")
			}
		}
		if v.EncryptedSecretPath != "" && v.SecretPassword == "" {
			errs = append(errs, "venues."+v.Name+": secret_password is required when encrypted_secret_path is set")
		}
		for cur, amt := range v.PaperBalances {
			if d, err := decimal.NewFromString(amt); err != nil || d.IsNegative() {
				errs = append(errs, fmt.Sprintf("venues.%s: paper_balances.%s must be a non-negative decimal", v.Name, cur))
			}
		}
	}

	// Postgres
	pg := c.Postgres
	if pg.Enabled || mode == "archive" {
		if strings.TrimSpace(pg.DSN) == "" {
			if pg.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if pg.Port <= 0 || pg.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", pg.Port))
			}
			if pg.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if pg.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if pg.PoolMinConns < 0 || pg.PoolMinConns > pg.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}
	if mode == "live" && !pg.Enabled {
		errs = append(errs, "postgres: live mode requires postgres.enabled for restart recovery")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 and archive
	if mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
