// Package timeparse turns the timestamp shapes produced by the telemetry
// backends into comparable instants.
package timeparse

import "time"

// Instant is a point in time at millisecond resolution.
// The zero value is the invalid instant; it is never equal to a valid epoch zero.
type Instant struct {
	ms    int64
	valid bool
}

// Invalid is the sentinel for timestamps that could not be resolved.
var Invalid = Instant{}

// FromMillis returns a valid instant for the given epoch milliseconds.
func FromMillis(ms int64) Instant {
	return Instant{ms: ms, valid: true}
}

// FromTime converts t, treating the zero time as invalid.
func FromTime(t time.Time) Instant {
	if t.IsZero() {
		return Invalid
	}
	return FromMillis(t.UnixMilli())
}

// FromPtr restores an instant persisted as a nullable column.
func FromPtr(ms *int64) Instant {
	if ms == nil {
		return Invalid
	}
	return FromMillis(*ms)
}

// Valid reports whether the instant was resolved.
func (i Instant) Valid() bool { return i.valid }

// Millis returns epoch milliseconds. Only meaningful when Valid.
func (i Instant) Millis() int64 { return i.ms }

// Ptr returns the millisecond value for persistence, nil when invalid.
func (i Instant) Ptr() *int64 {
	if !i.valid {
		return nil
	}
	ms := i.ms
	return &ms
}

// Time returns the instant in UTC, or the zero time when invalid.
func (i Instant) Time() time.Time {
	if !i.valid {
		return time.Time{}
	}
	return time.UnixMilli(i.ms).UTC()
}

// In returns the instant in loc.
func (i Instant) In(loc *time.Location) time.Time {
	return i.Time().In(loc)
}

// Since reports whether the instant is valid and not before threshold.
func (i Instant) Since(threshold time.Time) bool {
	return i.valid && i.ms >= threshold.UnixMilli()
}
