// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package dispatch

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tomtom215/whrelay/internal/records"
)

//go:embed envelope.schema.json
var envelopeSchema []byte

const envelopeSchemaURL = "https://github.com/tomtom215/whrelay/envelope.schema.json"

// Body is one accepted ingress request body.
type Body struct {
	Data     []byte
	Source   string
	Received time.Time
}

// Envelope is one typed message.
type Envelope struct {
	Type    records.Kind   `json:"type"`
	Message records.Record `json:"message"`
}

// Decoder parses request bodies into envelopes. Numbers are kept as
// json.Number so 64-bit ids survive unchanged.
type Decoder struct {
	schema *jsonschema.Schema
}

// NewDecoder creates a decoder. When strict is set every body is checked
// against the embedded envelope schema before decoding.
func NewDecoder(strict bool) (*Decoder, error) {
	d := &Decoder{}
	if !strict {
		return d, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("parse envelope schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add envelope schema: %w", err)
	}
	d.schema, err = c.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return d, nil
}

// strict reports whether schema validation is on.
func (d *Decoder) strict() bool {
	return d.schema != nil
}

// Decode parses data as one envelope or an array of envelopes, in order.
func (d *Decoder) Decode(data []byte) ([]Envelope, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}

	if d.schema != nil {
		inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if err := d.schema.Validate(inst); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchema, err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	switch data[0] {
	case '[':
		var envs []Envelope
		if err := dec.Decode(&envs); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return envs, nil
	case '{':
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return []Envelope{env}, nil
	default:
		return nil, fmt.Errorf("%w: expected object or array", ErrMalformed)
	}
}
