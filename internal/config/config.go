// Package config defines the global configuration structure for the herald
// notification service. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"
)

// Config is the top-level configuration struct for the herald service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"herald"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Dedup     DedupConfig
	Scheduler SchedulerConfig
	Channels  ChannelsConfig

	// RegistryFile is the path to the declarative YAML registry describing
	// templates, notification definitions, and scheduled sources.
	RegistryFile string `envconfig:"REGISTRY_FILE" default:"registry.yaml" validate:"required"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// MaxBatchSize caps how many event payloads one realtime ingest call
	// may carry.
	MaxBatchSize int `envconfig:"MAX_BATCH_SIZE" default:"100" validate:"min=1"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// DedupConfig holds deduplication policy parameters.
type DedupConfig struct {
	// Window is the trailing interval during which identical rendered content
	// is suppressed.
	Window time.Duration `envconfig:"DEDUP_WINDOW" default:"24h" validate:"gt=0"`
	// Retention controls how long dedup records are kept before the
	// maintenance job prunes them. Must be at least the window.
	Retention time.Duration `envconfig:"DEDUP_RETENTION" default:"720h" validate:"gt=0"`
}

// SchedulerConfig holds cron scheduler parameters.
type SchedulerConfig struct {
	// Tick is the granularity at which cron expressions are evaluated.
	Tick time.Duration `envconfig:"SCHEDULER_TICK" default:"1m" validate:"gt=0"`
	// Timezone is the location cron expressions are evaluated in.
	Timezone string `envconfig:"SCHEDULER_TZ" default:"UTC"`
	// MaintenanceCron prunes expired dedup records. Empty disables pruning.
	MaintenanceCron string `envconfig:"MAINTENANCE_CRON" default:"0 3 * * *"`
}

// ChannelsConfig holds the configuration of the built-in delivery channels.
type ChannelsConfig struct {
	// EmailOutputDir is where the file-backed email channel writes one
	// artifact per delivery.
	EmailOutputDir string `envconfig:"EMAIL_OUTPUT_DIR" default:"outputs/email"`
	// EmailFromAddr is the From header written into email artifacts.
	EmailFromAddr string `envconfig:"EMAIL_FROM_ADDR" default:"noreply@herald.local"`
	// SlackDefaultChannel is used when an event carries no slack_channel.
	SlackDefaultChannel string `envconfig:"SLACK_DEFAULT_CHANNEL" default:"#notifications"`
	// WebhookTimeout bounds a single webhook POST.
	WebhookTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
}
