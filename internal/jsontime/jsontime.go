// Package jsontime decodes request timestamps that may arrive either as full
// RFC 3339 instants or as bare calendar dates.
package jsontime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar-date form produced by HTML date inputs.
const DateLayout = "2006-01-02"

var layouts = []string{time.RFC3339Nano, DateLayout}

// Time is a time.Time whose JSON form may also be a calendar date. A calendar
// date decodes to midnight UTC. An empty string decodes to the zero time.
type Time struct {
	time.Time
}

// Of wraps t for use in an input struct.
func Of(t time.Time) *Time {
	return &Time{Time: t}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range layouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as RFC 3339 or %s", s, DateLayout)
}

// Ptr returns the UTC time, or nil when t is nil or zero.
func (t *Time) Ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
