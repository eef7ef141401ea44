package config

import (
	"fmt"

	"github.com/alanyoungcy/arbengine/internal/crypto"
)

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging the active
// configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Venues = make([]VenueConfig, len(cfg.Venues))
	for i, v := range cfg.Venues {
		redact(&v.APIKey)
		redact(&v.APISecret)
		redact(&v.SecretPassword)
		if v.PaperBalances != nil {
			b := make(map[string]string, len(v.PaperBalances))
			for k, amt := range v.PaperBalances {
				b[k] = amt
			}
			v.PaperBalances = b
		}
		out.Venues[i] = v
	}
	if cfg.Cycles != nil {
		out.Cycles = make([]CycleConfig, len(cfg.Cycles))
		copy(out.Cycles, cfg.Cycles)
	}

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	return out
}

// VenueSecret resolves v's API secret, decrypting the envelope at
// EncryptedSecretPath when one is configured.
func VenueSecret(v VenueConfig) (string, error) {
	src := crypto.SecretSource{
		Raw:           v.APISecret,
		EncryptedPath: v.EncryptedSecretPath,
		Password:      v.SecretPassword,
	}
	if !src.Configured() {
		return "", nil
	}
	secret, err := crypto.LoadSecret(src)
	if err != nil {
		return "", fmt.Errorf("config: venue %s secret: %w", v.Name, err)
	}
	return secret, nil
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
