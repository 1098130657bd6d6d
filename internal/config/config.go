// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config is the complete process configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Dispatch   DispatchConfig   `koanf:"dispatch"`
	Kinds      KindsConfig      `koanf:"kinds"`
	Webhook    WebhookConfig    `koanf:"webhook"`
	Auth       AuthConfig       `koanf:"auth"`
	Stats      StatsConfig      `koanf:"stats"`
	Cleaner    CleanerConfig    `koanf:"cleaner"`
	DeadLetter DeadLetterConfig `koanf:"deadletter"`
	NATS       NATSConfig       `koanf:"nats"`
	Admin      AdminConfig      `koanf:"admin"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	MaxBodyBytes int64         `koanf:"max_body_bytes" validate:"min=1024"`

	// RateLimitRequests per RateLimitWindow per client IP on the ingress
	// route. Zero disables the limiter.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig configures the storage layer and the writer pool.
type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=duckdb postgres sqlite"`
	Path   string `koanf:"path"`
	DSN    string `koanf:"dsn"`

	// Threads is the number of writer workers.
	Threads int `koanf:"threads" validate:"min=1,max=64"`

	// BatchSize is how many sightings accumulate per dispatch worker before
	// they are queued as one upsert.
	BatchSize int `koanf:"batch_size" validate:"min=1"`

	// ChunkSize bounds the rows in one multi-row INSERT.
	ChunkSize      int           `koanf:"chunk_size" validate:"min=1,max=5000"`
	MaxRetries     int           `koanf:"max_retries" validate:"min=0,max=10"`
	RetryDelay     time.Duration `koanf:"retry_delay"`
	QueueCapacity  int           `koanf:"queue_capacity" validate:"min=1"`
	BacklogWarning int           `koanf:"backlog_warning" validate:"min=1"`
}

// DispatchConfig configures intake and normalization.
type DispatchConfig struct {
	Threads           int           `koanf:"threads" validate:"min=1,max=256"`
	IntakeCapacity    int           `koanf:"intake_capacity" validate:"min=1"`
	StrictSchema      bool          `koanf:"strict_schema"`
	BatchIdleFlush    time.Duration `koanf:"batch_idle_flush"`
	WarningThreshold  int           `koanf:"warning_threshold" validate:"min=1"`
	ThresholdLifetime time.Duration `koanf:"threshold_lifetime"`
}

// KindsConfig holds per-kind storage switches and the sighting ignore list.
type KindsConfig struct {
	NoPokemon     bool  `koanf:"no_pokemon"`
	NoPokestops   bool  `koanf:"no_pokestops"`
	NoGyms        bool  `koanf:"no_gyms"`
	NoGymDetail   bool  `koanf:"no_gymdetail"`
	NoRaids       bool  `koanf:"no_raids"`
	NoWeather     bool  `koanf:"no_weather"`
	IgnorePokemon []int `koanf:"ignore_pokemon"`
}

// WebhookConfig configures the delivery path.
type WebhookConfig struct {
	URLs              []string      `koanf:"urls" validate:"dive,webhook_url"`
	Retries           int           `koanf:"retries" validate:"min=0,max=10"`
	BackoffFactor     float64       `koanf:"backoff_factor" validate:"gte=0"`
	Threads           int           `koanf:"threads" validate:"min=1,max=64"`
	Concurrency       int           `koanf:"concurrency" validate:"min=1"`
	EndpointBacklog   int           `koanf:"endpoint_backlog" validate:"min=0"`
	Timeout           time.Duration `koanf:"timeout"`
	LFUSize           int           `koanf:"lfu_size" validate:"min=1"`
	FrameInterval     time.Duration `koanf:"frame_interval"`
	QueueCapacity     int           `koanf:"queue_capacity" validate:"min=1"`
	WarningThreshold  int           `koanf:"warning_threshold" validate:"min=1"`
	ThresholdLifetime time.Duration `koanf:"threshold_lifetime"`
	Breaker           bool          `koanf:"breaker"`
	RateLimit         float64       `koanf:"rate_limit" validate:"gte=0"`
	UserAgent         string        `koanf:"user_agent"`

	// LiveFeed streams delivered frames to websocket clients on /ws.
	LiveFeed bool `koanf:"live_feed"`
}

// AuthConfig configures the token gate.
type AuthConfig struct {
	ReloadInterval time.Duration `koanf:"reload_interval"`
	TokensFile     string        `koanf:"tokens_file"`
}

// StatsConfig configures the periodic runtime report.
type StatsConfig struct {
	// IntervalMinutes between reports. Zero disables reporting.
	IntervalMinutes int `koanf:"interval_minutes" validate:"min=0"`
}

// Interval returns the report interval, zero when disabled.
func (s StatsConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// CleanerConfig configures the periodic database sweep.
type CleanerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	Interval     time.Duration `koanf:"interval"`
	PurgeHours   int           `koanf:"purge_hours" validate:"min=0"`
}

// DeadLetterConfig configures the failed-write archive.
type DeadLetterConfig struct {
	Enabled bool          `koanf:"enabled"`
	Path    string        `koanf:"path"`
	TTL     time.Duration `koanf:"ttl"`
}

// NATSConfig configures the optional event bus.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	Embedded      bool   `koanf:"embedded"`
	EmbeddedHost  string `koanf:"embedded_host"`
	EmbeddedPort  int    `koanf:"embedded_port" validate:"min=0,max=65535"`
	SubjectPrefix string `koanf:"subject_prefix" validate:"required"`
	Encoding      string `koanf:"encoding" validate:"oneof=json msgpack"`
}

// AdminConfig configures the admin API. An empty JWTSecret disables it.
type AdminConfig struct {
	JWTSecret         string   `koanf:"jwt_secret"`
	CORSOrigins       []string `koanf:"cors_origins"`
	RateLimitRequests int      `koanf:"rate_limit_requests" validate:"min=1"`
}

// Enabled reports whether the admin routes are mounted.
func (a AdminConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig tunes the suture restart policy.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// DeliveryEnabled reports whether any delivery sink is configured. When it
// is false the Delivery Queue is never created.
func (c *Config) DeliveryEnabled() bool {
	return len(c.Webhook.URLs) > 0 || c.NATS.Enabled || c.Webhook.LiveFeed
}

// Load reads configuration from path (or the default search paths when
// path is empty), the environment, and built-in defaults.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithKoanf(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
