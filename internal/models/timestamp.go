package models

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 form used on the wire: UTC with
// millisecond precision, e.g. 2024-03-01T12:30:45.120Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a millisecond-precision instant.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to milliseconds and converts it to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

// Now returns the current instant as a Timestamp.
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// String formats the timestamp using TimestampLayout.
func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	*t = NewTimestamp(parsed)
	return nil
}
