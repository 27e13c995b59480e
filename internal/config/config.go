// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the Discord
// credentials, the replay and attachment tuning knobs, logging, the optional
// ops server, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultWebhookName is the marker name of the impersonation webhook.
const DefaultWebhookName = "MVT_MIGRATOR"

// DiscordConfig holds the bot credentials and the guild/role it serves.
type DiscordConfig struct {
	Token   string // DISCORD_TOKEN
	GuildID string // DISCORD_GUILD_ID (snowflake)
	RoleID  string // DISCORD_ROLE_ID (snowflake), required to run /mv
}

// MigrationConfig tunes history paging, replay pacing and attachment re-hosting.
type MigrationConfig struct {
	WebhookName           string        // marker name looked up before creating a webhook
	PageSize              int           // messages per history page, 1..100
	ReplayRPS             float64       // replay posts per second (0 = unlimited)
	ReplayBurst           int           // replay burst size (>= 1)
	AttachmentConcurrency int           // parallel attachment fetches per message
	AttachmentMaxBytes    int64         // per-file re-hosting cap
	AttachmentTimeout     time.Duration // per-fetch timeout
}

// OpsConfig controls the optional ops HTTP server (health, metrics, journal).
type OpsConfig struct {
	Enabled   bool
	Port      string
	GinMode   string  // debug|release|test
	RateRPS   float64 // per-client requests per second
	RateBurst int
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "mvthread")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application. It is built
// once at startup and passed by value to the components that need it.
type Config struct {
	Discord   DiscordConfig
	Migration MigrationConfig

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	Ops  OpsConfig
	OTEL OTELConfig
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Discord: DiscordConfig{
			Token:   strings.TrimSpace(getenv("DISCORD_TOKEN", "")),
			GuildID: strings.TrimSpace(getenv("DISCORD_GUILD_ID", "")),
			RoleID:  strings.TrimSpace(getenv("DISCORD_ROLE_ID", "")),
		},
		Migration: MigrationConfig{
			WebhookName:           strings.TrimSpace(getenv("WEBHOOK_NAME", DefaultWebhookName)),
			PageSize:              getint("HISTORY_PAGE_SIZE", 100),
			ReplayRPS:             getfloat("REPLAY_RPS", 2.0),
			ReplayBurst:           getint("REPLAY_BURST", 5),
			AttachmentConcurrency: getint("ATTACHMENT_CONCURRENCY", 4),
			AttachmentMaxBytes:    int64(getint("ATTACHMENT_MAX_BYTES", 25<<20)),
			AttachmentTimeout:     getdur("ATTACHMENT_TIMEOUT", 30*time.Second),
		},

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		Ops: OpsConfig{
			Enabled:   getbool("OPS_ENABLED", false),
			Port:      getenv("OPS_PORT", "9090"),
			GinMode:   strings.ToLower(getenv("GIN_MODE", "release")),
			RateRPS:   getfloat("OPS_RATE_RPS", 5),
			RateBurst: getint("OPS_RATE_BURST", 10),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "mvthread"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.Ops.GinMode {
	case "debug", "release", "test":
	default:
		cfg.Ops.GinMode = "release"
	}
	cfg.Discord.Token = strings.TrimPrefix(cfg.Discord.Token, "Bot ")

	// --- validation ---
	if cfg.Discord.Token == "" {
		return cfg, errors.New("DISCORD_TOKEN must not be empty")
	}
	if !isSnowflake(cfg.Discord.GuildID) {
		return cfg, errors.New("DISCORD_GUILD_ID must be a valid snowflake id")
	}
	if !isSnowflake(cfg.Discord.RoleID) {
		return cfg, errors.New("DISCORD_ROLE_ID must be a valid snowflake id")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if cfg.Migration.WebhookName == "" {
		return cfg, errors.New("WEBHOOK_NAME must not be empty")
	}
	if cfg.Migration.PageSize < 1 || cfg.Migration.PageSize > 100 {
		return cfg, errors.New("HISTORY_PAGE_SIZE must be between 1 and 100")
	}
	if cfg.Migration.ReplayRPS < 0 {
		return cfg, errors.New("REPLAY_RPS must be >= 0")
	}
	if cfg.Migration.ReplayBurst < 1 {
		return cfg, errors.New("REPLAY_BURST must be >= 1")
	}
	if cfg.Migration.AttachmentConcurrency < 1 {
		return cfg, errors.New("ATTACHMENT_CONCURRENCY must be >= 1")
	}
	if cfg.Migration.AttachmentMaxBytes <= 0 {
		return cfg, errors.New("ATTACHMENT_MAX_BYTES must be > 0")
	}
	if cfg.Migration.AttachmentTimeout <= 0 {
		return cfg, errors.New("ATTACHMENT_TIMEOUT must be a positive duration")
	}
	if cfg.Ops.Enabled && strings.TrimSpace(cfg.Ops.Port) == "" {
		return cfg, errors.New("OPS_PORT must not be empty when OPS_ENABLED is set")
	}
	if cfg.Ops.RateRPS <= 0 || cfg.Ops.RateBurst < 1 {
		return cfg, errors.New("OPS_RATE_RPS must be > 0 and OPS_RATE_BURST >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// isSnowflake reports whether s is a positive Discord snowflake id.
func isSnowflake(s string) bool {
	if s == "" {
		return false
	}
	id, err := snowflake.ParseString(s)
	return err == nil && id > 0
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
