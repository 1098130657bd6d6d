// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package records

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrMissingIdentity is returned when a record lacks a primary key column.
var ErrMissingIdentity = errors.New("records: identity field missing")

// ColumnType is the storage type of a column.
type ColumnType int

const (
	TypeInt ColumnType = iota
	TypeBigInt
	TypeFloat
	TypeBool
	TypeText
	TypeTime
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeText:
		return "text"
	case TypeTime:
		return "time"
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// DefaultFunc computes the value of a column absent from a record.
type DefaultFunc func(now time.Time) any

// Now is the "current time" default.
func Now(now time.Time) any { return now }

// Const returns a default that always yields v.
func Const(v any) DefaultFunc {
	return func(time.Time) any { return v }
}

// Column is one persisted column.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Default  DefaultFunc

	// Since is the schema version that introduced the column.
	Since int
}

// IdentitySeparator joins the parts of a composite identity.
const IdentitySeparator = "|"

// Schema describes one kind.
type Schema struct {
	Kind  Kind
	Table string

	// Identity is the primary key, in order.
	Identity []string
	Columns  []Column

	// Since is the schema version that introduced the table.
	Since int

	// DeliveryIdentity lists the fields that name the entity on the delivery
	// path. The first one present wins. Empty means the kind is never
	// cached for dedup.
	DeliveryIdentity []string

	// Significant lists the fields compared by the deduper. Volatile
	// bookkeeping fields are left out on purpose.
	Significant []string
}

// Column returns the column named name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the persisted column names sorted.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	sort.Strings(names)
	return names
}

// Project returns a copy of rec holding only persisted columns.
func (s *Schema) Project(rec Record) Record {
	out := make(Record, len(s.Columns))
	for _, c := range s.Columns {
		if v, ok := rec[c.Name]; ok {
			out[c.Name] = v
		}
	}
	return out
}

// ApplyDefaults fills every persisted column missing from rec with its
// default, or nil when it has none. A null in a NOT NULL column that has a
// default is replaced by the default as well.
func (s *Schema) ApplyDefaults(rec Record, now time.Time) {
	for _, c := range s.Columns {
		if v, ok := rec[c.Name]; ok && (v != nil || c.Nullable || c.Default == nil) {
			continue
		}
		if c.Default != nil {
			rec[c.Name] = c.Default(now)
		} else {
			rec[c.Name] = nil
		}
	}
}

// Coerce converts every persisted value in rec to its column type in place.
func (s *Schema) Coerce(rec Record) error {
	for _, c := range s.Columns {
		v, ok := rec[c.Name]
		if !ok || v == nil {
			continue
		}
		cv, err := coerce(v, c.Type)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", s.Table, c.Name, err)
		}
		rec[c.Name] = cv
	}
	return nil
}

// Prepare projects, defaults and coerces rec for storage.
func (s *Schema) Prepare(rec Record, now time.Time) (Record, error) {
	out := s.Project(rec)
	s.ApplyDefaults(out, now)
	if err := s.Coerce(out); err != nil {
		return nil, err
	}
	if _, ok := s.IdentityOf(out); !ok {
		return nil, fmt.Errorf("%s: %w", s.Table, ErrMissingIdentity)
	}
	return out, nil
}

// IdentityOf returns the primary key of rec as one string. Composite keys
// are joined with IdentitySeparator. It reports false when any part is
// missing.
func (s *Schema) IdentityOf(rec Record) (string, bool) {
	return identity(rec, s.Identity)
}

// DeliveryKey returns the dedup key of rec, or false when the kind is not
// cached or rec carries none of the identity fields.
func (s *Schema) DeliveryKey(rec Record) (string, bool) {
	for _, f := range s.DeliveryIdentity {
		if v, ok := rec[f]; ok && v != nil {
			return formatKey(v), true
		}
	}
	return "", false
}

// SignificantEqual reports whether a and b agree on every significant
// field. A kind without significant fields never compares equal.
func (s *Schema) SignificantEqual(a, b Record) bool {
	if len(s.Significant) == 0 {
		return false
	}
	for _, f := range s.Significant {
		if !valuesEqual(a[f], b[f]) {
			return false
		}
	}
	return true
}

func identity(rec Record, fields []string) (string, bool) {
	if len(fields) == 0 {
		return "", false
	}
	if len(fields) == 1 {
		v, ok := rec[fields[0]]
		if !ok || v == nil {
			return "", false
		}
		return formatKey(v), true
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			return "", false
		}
		parts[i] = formatKey(v)
	}
	return strings.Join(parts, IdentitySeparator), true
}
