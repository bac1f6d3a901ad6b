package sensor

import (
	"math"
	"strconv"
	"strings"
)

// Status is the qualitative classification of a reading.
type Status string

const (
	StatusLow     Status = "low"
	StatusNormal  Status = "normal"
	StatusHigh    Status = "high"
	StatusUnknown Status = "unknown" // non-numeric reading
)

// Classification is the display annotation of one reading.
type Classification struct {
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Range    Range   `json:"range"`
	Numeric  bool    `json:"numeric"`
}

// Progress positions v inside the range as a percentage clamped to [0,100].
func (r Range) Progress(v float64) float64 {
	if r.Max <= r.Min || math.IsNaN(v) {
		return 0
	}
	p := (v - r.Min) / (r.Max - r.Min) * 100
	return math.Max(0, math.Min(100, p))
}

// Status applies the cutoffs. They are independent of the display range.
func (t Thresholds) Status(v float64) Status {
	switch {
	case v < t.Low, t.LowInclusive && v == t.Low:
		return StatusLow
	case v > t.High:
		return StatusHigh
	default:
		return StatusNormal
	}
}

// Classify annotates a numeric reading of the given sensor.
func (c *Catalog) Classify(raw string, v float64) Classification {
	spec, _ := c.Spec(raw)
	if math.IsNaN(v) {
		return Classification{Status: StatusUnknown, Range: spec.Range}
	}
	return Classification{
		Status:   spec.Thresholds.Status(v),
		Progress: spec.Range.Progress(v),
		Range:    spec.Range,
		Numeric:  true,
	}
}

// ClassifyRaw annotates a reading as received. Non-numeric values get zero progress
// and the unknown status.
func (c *Catalog) ClassifyRaw(raw string, value string) Classification {
	v, ok := ParseValue(value)
	if !ok {
		spec, _ := c.Spec(raw)
		return Classification{Status: StatusUnknown, Range: spec.Range}
	}
	return c.Classify(raw, v)
}

// ParseValue reads a numeric value that may carry a trailing unit ("72%", "28.5 °C").
func ParseValue(value string) (float64, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, false
	}
	end := 0
	for end < len(s) {
		ch := s[end]
		if (ch >= '0' && ch <= '9') || ch == '.' || ch == 'e' || ch == 'E' ||
			((ch == '-' || ch == '+') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E')) {
			end++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
