// Package timeutil converts persisted timestamps into a single UTC representation.
//
// Stored documents carry timestamps written by several historical schema
// versions: zone-aware RFC 3339 strings, zone-naive ISO-8601 strings, Unix
// seconds, and (for in-process stores) time.Time values. Everything that reads
// a timestamp from a store passes it through Normalize once, at the boundary.
package timeutil

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// naiveLayouts are tried, in order, for strings without a zone designator. Naive values are UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// zonedLayouts are tried for strings that carry an offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999-0700",
}

// Normalize converts v to a UTC time. ok is false for nil, empty, or unparseable values.
func Normalize(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return Normalize(*t)
	case string:
		return parseString(t)
	case float64:
		return fromUnixSeconds(t)
	case int64:
		return time.Unix(t, 0).UTC(), true
	case int:
		return time.Unix(int64(t), 0).UTC(), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnixSeconds(f)
	default:
		return time.Time{}, false
	}
}

// NormalizeList converts every element of v (a []any or []time.Time) and drops unparseable entries.
func NormalizeList(v any) []time.Time {
	switch list := v.(type) {
	case []time.Time:
		out := make([]time.Time, 0, len(list))
		for _, t := range list {
			if n, ok := Normalize(t); ok {
				out = append(out, n)
			}
		}
		return out
	case []any:
		out := make([]time.Time, 0, len(list))
		for _, item := range list {
			if n, ok := Normalize(item); ok {
				out = append(out, n)
			}
		}
		return out
	case []string:
		out := make([]time.Time, 0, len(list))
		for _, s := range list {
			if n, ok := Normalize(s); ok {
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

// Format renders t in the canonical stored form (RFC 3339, UTC, nanosecond precision).
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fromUnixSeconds(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}
