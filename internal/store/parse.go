package store

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// textValue returns the string form of a loosely typed field. Absent keys,
// nulls, boolean false and numeric zero read as empty.
func textValue(fields Fields, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if !x {
			return ""
		}
	default:
		if f, err := cast.ToFloat64E(v); err == nil && (f == 0 || math.IsNaN(f)) {
			return ""
		}
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

// createOpen reports the initial open state of a new issue. Only an explicit
// boolean false closes it.
func createOpen(fields Fields) bool {
	b, ok := fields["open"].(bool)
	return !ok || b
}

// filterOpen parses the open query filter.
func filterOpen(v string) bool {
	switch v {
	case "", "0", "false":
		return false
	}
	return true
}

// updateOpen parses an open value sent in an update. It accepts a wider set
// of falsy values than filterOpen: boolean false, numeric zero and null.
func updateOpen(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return filterOpen(x)
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return f != 0
	}
	return true
}

// sameText compares two strings case-insensitively.
func sameText(a, b string) bool {
	return strings.ToLower(a) == strings.ToLower(b)
}

// sameInstant reports whether the date filter value denotes the same
// millisecond as unixMilli. An all-digit filter is an epoch-millisecond
// count; anything else is parsed as a date. Unparseable filters never match.
func sameInstant(filter string, unixMilli int64) bool {
	if ms, err := strconv.ParseInt(filter, 10, 64); err == nil {
		return ms == unixMilli
	}
	t, err := cast.ToTimeE(filter)
	if err != nil {
		return false
	}
	return t.UnixMilli() == unixMilli
}
