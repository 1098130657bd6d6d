// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/whrelay/internal/records"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    []records.Kind
		wantErr error
	}{
		{"single", `{"type":"pokemon","message":{"encounter_id":"1"}}`, []records.Kind{"pokemon"}, nil},
		{"array keeps order", `[{"type":"gym","message":{}},{"type":"raid","message":{}}]`, []records.Kind{"gym", "raid"}, nil},
		{"leading whitespace", "\n  [ ]", nil, nil},
		{"empty", "   ", nil, ErrEmptyBody},
		{"truncated", `{"type":"pokemon","message":{`, nil, ErrMalformed},
		{"scalar", `42`, nil, ErrMalformed},
	}
	d, err := NewDecoder(false)
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			envs, err := d.Decode([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(envs) != len(tt.want) {
				t.Fatalf("got %d envelopes, want %d", len(envs), len(tt.want))
			}
			for i, k := range tt.want {
				if envs[i].Type != k {
					t.Errorf("envs[%d].Type = %s, want %s", i, envs[i].Type, k)
				}
			}
		})
	}
}

func TestDecodeKeepsLargeIntegers(t *testing.T) {
	t.Parallel()

	d, _ := NewDecoder(false)
	envs, err := d.Decode([]byte(`{"type":"weather","message":{"s2_cell_id":9749607573628157952}}`))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := envs[0].Message["s2_cell_id"].(json.Number)
	if !ok || got.String() != "9749607573628157952" {
		t.Errorf("s2_cell_id = %#v, want exact json.Number", envs[0].Message["s2_cell_id"])
	}
}

func TestStrictDecoder(t *testing.T) {
	t.Parallel()

	d, err := NewDecoder(true)
	if err != nil {
		t.Fatalf("NewDecoder(strict): %v", err)
	}
	if !d.strict() {
		t.Fatal("decoder should be strict")
	}

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"valid object", `{"type":"gym","message":{"gym_id":"a"}}`, nil},
		{"valid array", `[{"type":"gym","message":{}}]`, nil},
		{"missing message", `{"type":"gym"}`, ErrSchema},
		{"message not object", `{"type":"gym","message":[1]}`, ErrSchema},
		{"empty type", `[{"type":"","message":{}}]`, ErrSchema},
		{"not json", `{type:gym}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := d.Decode([]byte(tt.body))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
