// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package records

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ErrBadValue is returned when a value cannot be converted to its column type.
var ErrBadValue = errors.New("records: value does not fit column type")

// Number returns v as a float64 when it is numeric.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// IsZero reports whether v is nil or a numeric zero.
func IsZero(v any) bool {
	if v == nil {
		return true
	}
	n, ok := Number(v)
	return ok && n == 0
}

// EpochSeconds converts a numeric epoch in seconds to UTC time.
func EpochSeconds(v any) (time.Time, bool) {
	n, ok := Number(v)
	if !ok {
		return time.Time{}, false
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// EpochMillis converts a numeric epoch in milliseconds to UTC time.
func EpochMillis(v any) (time.Time, bool) {
	n, ok := Number(v)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(n)).UTC(), true
}

func coerce(v any, t ColumnType) (any, error) {
	switch t {
	case TypeInt, TypeBigInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case json.Number:
			if i, err := x.Int64(); err == nil {
				return i, nil
			}
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			i, err := strconv.ParseInt(x, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q as %s", ErrBadValue, x, t)
			}
			return i, nil
		}
		if n, ok := Number(v); ok {
			return int64(n), nil
		}
	case TypeFloat:
		if n, ok := Number(v); ok {
			return n, nil
		}
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err == nil {
				return f, nil
			}
		}
	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err == nil {
				return b, nil
			}
		}
		if n, ok := Number(v); ok {
			return n != 0, nil
		}
	case TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
		return formatKey(v), nil
	case TypeTime:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, x)
			if err == nil {
				return ts.UTC(), nil
			}
		}
		if ts, ok := EpochSeconds(v); ok {
			return ts, nil
		}
	}
	return nil, fmt.Errorf("%w: %T as %s", ErrBadValue, v, t)
}

// formatKey renders an identity value. Whole floats print without an
// exponent so 1.2e+19 and 12000000000000000000 name the same entity.
func formatKey(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e21 {
			return strconv.FormatFloat(x, 'f', 0, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case json.Number:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if sa, ok := a.(json.Number); ok {
		if sb, ok := b.(json.Number); ok && sa == sb {
			return true
		}
	}
	if na, ok := Number(a); ok {
		nb, ok := Number(b)
		return ok && na == nb
	}
	return reflect.DeepEqual(a, b)
}
