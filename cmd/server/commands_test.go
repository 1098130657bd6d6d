// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n" +
		"  driver: sqlite\n" +
		"  path: " + filepath.Join(dir, "whrelay.db") + "\n" +
		"logging:\n" +
		"  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokensCommands(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t)

	out, err := execute(t, "tokens", "generate", "east", "--config", cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	token := strings.TrimSpace(out)
	if len(token) != 32 {
		t.Fatalf("token = %q, want 32 chars", token)
	}

	out, err = execute(t, "tokens", "generate", "east", "--config", cfg)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if !strings.Contains(out, "already has a token: "+token) {
		t.Errorf("second generate output = %q", out)
	}

	out, err = execute(t, "tokens", "list", "--config", cfg)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "east") || !strings.Contains(out, token) {
		t.Errorf("list output = %q, want east and its token", out)
	}

	if _, err := execute(t, "tokens", "revoke", token, "--config", cfg); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := execute(t, "tokens", "revoke", token, "--config", cfg); err == nil {
		t.Error("second revoke succeeded, want not found")
	}
}

func TestDBClearRequiresConfirmation(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t)
	if _, err := execute(t, "db", "clear", "--config", cfg); err == nil {
		t.Fatal("clear without --yes succeeded")
	}
	out, err := execute(t, "db", "clear", "--yes", "--config", cfg)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if strings.TrimSpace(out) != "cleared" {
		t.Errorf("output = %q, want cleared", out)
	}
}

func TestDeadLetterListNeedsArchive(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t)
	if _, err := execute(t, "deadletter", "list", "--config", cfg); err == nil {
		t.Error("list succeeded with the archive disabled")
	}
}
