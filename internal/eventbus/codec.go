// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package eventbus

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tomtom215/whrelay/internal/delivery"
)

const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Codec encodes one frame entry into a message payload.
type Codec interface {
	ContentType() string
	Encode(entry delivery.FrameEntry) ([]byte, error)
}

// NewCodec returns the codec for encoding ("json" when empty).
func NewCodec(encoding string) (Codec, error) {
	switch encoding {
	case "", EncodingJSON:
		return jsonCodec{}, nil
	case EncodingMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("eventbus: unknown encoding %q", encoding)
	}
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(entry delivery.FrameEntry) ([]byte, error) {
	return json.Marshal(entry)
}

type msgpackCodec struct{}

func (msgpackCodec) ContentType() string { return "application/msgpack" }

func (msgpackCodec) Encode(entry delivery.FrameEntry) ([]byte, error) {
	return msgpack.Marshal(map[string]any{
		"type":    string(entry.Type),
		"message": plain(map[string]any(entry.Message)),
	})
}

// plain replaces json.Number values with int64 or float64 so msgpack
// writes numbers instead of strings.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
