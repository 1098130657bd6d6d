// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package auth

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := GenerateToken()
		if err != nil {
			t.Fatal(err)
		}
		if len(tok) != TokenLength {
			t.Fatalf("len = %d, want %d", len(tok), TokenLength)
		}
		if strings.Trim(tok, tokenAlphabet) != "" {
			t.Fatalf("token %q has non-alphanumeric characters", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestJWTManager(t *testing.T) {
	t.Parallel()

	if _, err := NewJWTManager("", time.Hour); err != ErrNoSecret {
		t.Fatalf("empty secret err = %v", err)
	}

	m, err := NewJWTManager(strings.Repeat("s", 32), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := m.GenerateToken("operator")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := m.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "operator" {
		t.Errorf("Subject = %q", claims.Subject)
	}

	other, _ := NewJWTManager(strings.Repeat("x", 32), time.Hour)
	if _, err := other.ValidateToken(tok); err == nil {
		t.Error("token signed with another secret should be rejected")
	}
	if _, err := m.ValidateToken("not.a.jwt"); err == nil {
		t.Error("garbage should be rejected")
	}

	expired, _ := NewJWTManager(strings.Repeat("s", 32), time.Nanosecond)
	old, _ := expired.GenerateToken("operator")
	time.Sleep(5 * time.Millisecond)
	if _, err := m.ValidateToken(old); err == nil {
		t.Error("expired token should be rejected")
	}
}
