package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARBENGINE_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose ARBENGINE_* variable is set and
// non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.Cadence, "ARBENGINE_ENGINE_CADENCE")
	setDuration(&cfg.Engine.FailureBackoff, "ARBENGINE_ENGINE_FAILURE_BACKOFF")
	setDuration(&cfg.Engine.Staleness, "ARBENGINE_ENGINE_STALENESS")
	setInt(&cfg.Engine.SyncBalanceEvery, "ARBENGINE_ENGINE_SYNC_BALANCE_EVERY")
	setInt(&cfg.Engine.SyncOrdersEvery, "ARBENGINE_ENGINE_SYNC_ORDERS_EVERY")
	setInt(&cfg.Engine.MaxPlanOrders, "ARBENGINE_ENGINE_MAX_PLAN_ORDERS")
	setBool(&cfg.Engine.UseLock, "ARBENGINE_ENGINE_USE_LOCK")
	setDuration(&cfg.Engine.LockTTL, "ARBENGINE_ENGINE_LOCK_TTL")
	setInt(&cfg.Engine.PollLimit, "ARBENGINE_ENGINE_POLL_LIMIT")
	setDuration(&cfg.Engine.PollWindow, "ARBENGINE_ENGINE_POLL_WINDOW")
	setBool(&cfg.Engine.ReplanCanceled, "ARBENGINE_ENGINE_REPLAN_CANCELED")
	setDuration(&cfg.Engine.CancelStaleAfter, "ARBENGINE_ENGINE_CANCEL_STALE_AFTER")

	setStr(&cfg.InstrumentsFile, "ARBENGINE_INSTRUMENTS_FILE")

	// ── Venues ── ARBENGINE_VENUE_<NAME>_API_KEY and friends.
	for i := range cfg.Venues {
		v := &cfg.Venues[i]
		p := EnvPrefix + "VENUE_" + envName(v.Name) + "_"
		setStr(&v.BaseURL, p+"BASE_URL")
		setStr(&v.WSURL, p+"WS_URL")
		setStr(&v.APIKey, p+"API_KEY")
		setStr(&v.APISecret, p+"API_SECRET")
		setStr(&v.EncryptedSecretPath, p+"ENCRYPTED_SECRET_PATH")
		setStr(&v.SecretPassword, p+"SECRET_PASSWORD")
	}

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBENGINE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBENGINE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBENGINE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Prefix, "ARBENGINE_REDIS_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBENGINE_S3_FORCE_PATH_STYLE")

	setInt(&cfg.Archive.RetentionDays, "ARBENGINE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBENGINE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ARBENGINE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBENGINE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARBENGINE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBENGINE_NOTIFY_EVENTS")
	setStr(&cfg.Notify.Prefix, "ARBENGINE_NOTIFY_PREFIX")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBENGINE_MODE")
	setStr(&cfg.LogLevel, "ARBENGINE_LOG_LEVEL")
}

// envName upper-cases a venue name and maps anything outside [A-Z0-9] to _.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			return r
		default:
			return '_'
		}
	}, name)
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
