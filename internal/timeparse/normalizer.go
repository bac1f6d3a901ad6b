package timeparse

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Dater is implemented by backend timestamp wrappers that can convert themselves.
type Dater interface {
	Time() time.Time
}

// FieldList is an ordered list of candidate time-bearing field names.
type FieldList []string

// HistoryFields are tried on per-sensor history records.
var HistoryFields = FieldList{"timestamp", "waktu", "createdAt", "created_at", "updatedAt", "updated_at"}

// AggregateFields are tried on the heterogeneous all-sensors collection.
var AggregateFields = FieldList{
	"timestamp", "waktu", "createdAt", "created_at", "updatedAt", "updated_at",
	"observedAt", "observed_at", "datetime", "date", "tanggal", "time", "jam",
}

// Epoch numbers below this magnitude are seconds, larger ones milliseconds.
const secondsCutoff = 1e11

// Numeric strings of nine or more digits are epochs.
var epochRe = regexp.MustCompile(`^\d{9,}(?:\.\d+)?$`)

// D/M/YYYY with an optional H:mm[:ss] part. Day always comes first.
var dayFirstRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:[ T,]+(\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	time.RFC1123Z,
	time.RFC1123,
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Normalizer parses timestamp values. Strings without a zone are read in its location.
type Normalizer struct {
	loc *time.Location
}

// New creates a Normalizer for loc. A nil loc means UTC.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Location returns the location used for zone-less input and display.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Parse resolves v into an instant, returning Invalid when it cannot.
func (n *Normalizer) Parse(v any) Instant {
	switch t := v.(type) {
	case nil:
		return Invalid
	case Instant:
		return t
	case time.Time:
		return FromTime(t)
	case *time.Time:
		if t == nil {
			return Invalid
		}
		return FromTime(*t)
	case Dater:
		return FromTime(t.Time())
	case string:
		return n.ParseString(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return fromEpoch(n)
		}
		f, err := t.Float64()
		if err != nil {
			return Invalid
		}
		return fromFloat(f)
	case float64:
		return fromFloat(t)
	case float32:
		return fromFloat(float64(t))
	case int:
		return fromEpoch(int64(t))
	case int64:
		return fromEpoch(t)
	case int32:
		return fromEpoch(int64(t))
	case map[string]any:
		return n.parseWrapper(t)
	}
	return Invalid
}

// ParseString handles ISO-8601, day-first D/M/YYYY and epoch number strings.
func (n *Normalizer) ParseString(s string) Instant {
	s = strings.TrimSpace(s)
	if s == "" {
		return Invalid
	}

	if epochRe.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Invalid
		}
		return fromFloat(f)
	}

	if m := dayFirstRe.FindStringSubmatch(s); m != nil {
		hh, mm, ss := "00", "00", "00"
		if m[4] != "" {
			hh, mm = m[4], m[5]
		}
		if m[6] != "" {
			ss = m[6]
		}
		padded := fmt.Sprintf("%s-%s-%sT%s:%s:%s", m[3], pad2(m[2]), pad2(m[1]), pad2(hh), mm, ss)
		t, err := time.ParseInLocation("2006-01-02T15:04:05", padded, n.loc)
		if err != nil {
			return Invalid
		}
		return FromTime(t)
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t)
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return FromTime(t)
		}
	}
	return Invalid
}

// Resolve parses the first non-empty candidate field and returns it together
// with the field name. Later candidates are never consulted once one is
// present, so a corrupt value yields Invalid rather than a fallback time.
func (n *Normalizer) Resolve(record map[string]any, fields FieldList) (Instant, string) {
	for _, f := range fields {
		v, ok := record[f]
		if !ok || isEmpty(v) {
			continue
		}
		return n.Parse(v), f
	}
	return Invalid, ""
}

// parseWrapper understands serialized backend timestamps such as
// {"seconds":..,"nanoseconds":..}, {"_seconds":..} and {"timestampValue":".."}.
func (n *Normalizer) parseWrapper(m map[string]any) Instant {
	if v, ok := m["timestampValue"]; ok {
		return n.Parse(v)
	}
	secs, ok := numberField(m, "seconds", "_seconds")
	if !ok {
		return Invalid
	}
	nanos, _ := numberField(m, "nanoseconds", "_nanoseconds", "nanos")
	return FromMillis(int64(secs)*1000 + int64(nanos)/1e6)
}

func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case int64:
			return float64(v), true
		case int:
			return float64(v), true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func fromFloat(f float64) Instant {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Invalid
	}
	if math.Abs(f) < secondsCutoff {
		return FromMillis(int64(math.Round(f * 1000)))
	}
	return FromMillis(int64(f))
}

func fromEpoch(n int64) Instant {
	if n > -secondsCutoff && n < secondsCutoff {
		return FromMillis(n * 1000)
	}
	return FromMillis(n)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
