// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when no explicit path is given.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/whrelay/config.yaml",
	"/etc/whrelay/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              5001,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			MaxBodyBytes:      8 << 20,
			RateLimitRequests: 0,
			RateLimitWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Driver:         "duckdb",
			Path:           "whrelay.duckdb",
			Threads:        2,
			BatchSize:      1,
			ChunkSize:      500,
			MaxRetries:     3,
			RetryDelay:     time.Second,
			QueueCapacity:  1000,
			BacklogWarning: 50,
		},
		Dispatch: DispatchConfig{
			Threads:           3,
			IntakeCapacity:    1000,
			BatchIdleFlush:    time.Second,
			WarningThreshold:  500,
			ThresholdLifetime: 5 * time.Second,
		},
		Webhook: WebhookConfig{
			Retries:           3,
			BackoffFactor:     0.25,
			Threads:           1,
			Concurrency:       25,
			EndpointBacklog:   100,
			Timeout:           time.Second,
			LFUSize:           2500,
			FrameInterval:     500 * time.Millisecond,
			QueueCapacity:     5000,
			WarningThreshold:  100,
			ThresholdLifetime: 5 * time.Second,
			Breaker:           true,
			UserAgent:         "whrelay/1.0",
		},
		Auth: AuthConfig{
			ReloadInterval: 30 * time.Second,
		},
		Cleaner: CleanerConfig{
			Enabled:      true,
			InitialDelay: 15 * time.Second,
			Interval:     60 * time.Second,
		},
		DeadLetter: DeadLetterConfig{
			Enabled: false,
			Path:    "deadletter",
			TTL:     72 * time.Hour,
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			EmbeddedHost:  "127.0.0.1",
			EmbeddedPort:  4222,
			SubjectPrefix: "whrelay",
			Encoding:      "json",
		},
		Admin: AdminConfig{
			CORSOrigins:       []string{},
			RateLimitRequests: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf layers defaults, the config file and the environment, then
// validates the result. An empty path falls back to findConfigFile.
func LoadWithKoanf(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"webhook.urls",
	"kinds.ignore_pokemon",
	"admin.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment names to koanf paths. The
// WHSRV_ names follow the flag names operators already use.
var envMappings = map[string]string{
	"whsrv_host":                "server.host",
	"whsrv_port":                "server.port",
	"whsrv_max_body_bytes":      "server.max_body_bytes",
	"whsrv_rate_limit_requests": "server.rate_limit_requests",
	"whsrv_rate_limit_window":   "server.rate_limit_window",

	"whsrv_db_driver":       "database.driver",
	"whsrv_db_path":         "database.path",
	"whsrv_db_dsn":          "database.dsn",
	"whsrv_db_threads":      "database.threads",
	"whsrv_pokemon_inserts": "database.batch_size",
	"whsrv_db_chunk_size":   "database.chunk_size",
	"whsrv_db_max_retries":  "database.max_retries",
	"whsrv_db_retry_delay":  "database.retry_delay",

	"whsrv_process_threads":  "dispatch.threads",
	"whsrv_intake_capacity":  "dispatch.intake_capacity",
	"whsrv_strict_schema":    "dispatch.strict_schema",
	"whsrv_batch_idle_flush": "dispatch.batch_idle_flush",
	"whsrv_intake_warning":   "dispatch.warning_threshold",

	"whsrv_no_pokemon":     "kinds.no_pokemon",
	"whsrv_no_pokestops":   "kinds.no_pokestops",
	"whsrv_no_gyms":        "kinds.no_gyms",
	"whsrv_no_gymdetail":   "kinds.no_gymdetail",
	"whsrv_no_raids":       "kinds.no_raids",
	"whsrv_no_weather":     "kinds.no_weather",
	"whsrv_ignore_pokemon": "kinds.ignore_pokemon",

	"whsrv_webhook":            "webhook.urls",
	"whsrv_wh_retries":         "webhook.retries",
	"whsrv_wh_backoff_factor":  "webhook.backoff_factor",
	"whsrv_wh_threads":         "webhook.threads",
	"whsrv_wh_concurrency":     "webhook.concurrency",
	"whsrv_wh_backlog":         "webhook.endpoint_backlog",
	"whsrv_wh_timeout":         "webhook.timeout",
	"whsrv_wh_lfu_size":        "webhook.lfu_size",
	"whsrv_wh_frame_interval":  "webhook.frame_interval",
	"whsrv_wh_queue_capacity":  "webhook.queue_capacity",
	"whsrv_wh_breaker":         "webhook.breaker",
	"whsrv_wh_rate_limit":      "webhook.rate_limit",
	"whsrv_wh_live_feed":       "webhook.live_feed",
	"whsrv_auth_reload":        "auth.reload_interval",
	"whsrv_tokens_file":        "auth.tokens_file",
	"whsrv_runtime_statistics": "stats.interval_minutes",
	"whsrv_purge_data":         "cleaner.purge_hours",
	"whsrv_cleaner_enabled":    "cleaner.enabled",

	"whsrv_deadletter_enabled": "deadletter.enabled",
	"whsrv_deadletter_path":    "deadletter.path",
	"whsrv_deadletter_ttl":     "deadletter.ttl",

	"whsrv_nats_enabled":  "nats.enabled",
	"whsrv_nats_url":      "nats.url",
	"whsrv_nats_embedded": "nats.embedded",
	"whsrv_nats_port":     "nats.embedded_port",
	"whsrv_nats_subject":  "nats.subject_prefix",
	"whsrv_nats_encoding": "nats.encoding",

	"whsrv_admin_jwt_secret":   "admin.jwt_secret",
	"whsrv_admin_cors_origins": "admin.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc returns "" for unmapped names so koanf ignores them.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
