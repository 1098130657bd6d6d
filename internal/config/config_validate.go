// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package config

import (
	"fmt"

	"github.com/tomtom215/whrelay/internal/validation"
)

// Validate checks struct tags first, then rules that span several fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateDeadLetter(); err != nil {
		return err
	}
	return c.validateAdmin()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when database.driver=postgres")
		}
	default:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required when database.driver=%s", c.Database.Driver)
		}
	}
	if c.Database.RetryDelay < 0 {
		return fmt.Errorf("database.retry_delay must not be negative")
	}
	return nil
}

func (c *Config) validateDispatch() error {
	if c.Dispatch.ThresholdLifetime <= 0 {
		return fmt.Errorf("dispatch.threshold_lifetime must be positive, got %v", c.Dispatch.ThresholdLifetime)
	}
	return nil
}

func (c *Config) validateWebhook() error {
	w := c.Webhook
	if w.FrameInterval <= 0 {
		return fmt.Errorf("webhook.frame_interval must be positive, got %v", w.FrameInterval)
	}
	if w.Timeout <= 0 {
		return fmt.Errorf("webhook.timeout must be positive, got %v", w.Timeout)
	}
	if w.ThresholdLifetime <= 0 {
		return fmt.Errorf("webhook.threshold_lifetime must be positive, got %v", w.ThresholdLifetime)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required unless nats.embedded=true")
	}
	return nil
}

func (c *Config) validateDeadLetter() error {
	if c.DeadLetter.Enabled && c.DeadLetter.Path == "" {
		return fmt.Errorf("deadletter.path is required when deadletter.enabled=true")
	}
	return nil
}

func (c *Config) validateAdmin() error {
	if c.Admin.JWTSecret != "" && len(c.Admin.JWTSecret) < 32 {
		return fmt.Errorf("admin.jwt_secret must be at least 32 characters")
	}
	return nil
}
