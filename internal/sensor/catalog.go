// Package sensor describes the sensor types known to the farm and classifies readings.
package sensor

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"farm-telemetry-backend/internal/parse"
)

// Range is the operating range used to scale a reading into a progress bar.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultRange applies to sensors the catalog does not know.
var DefaultRange = Range{Min: 0, Max: 100}

// Thresholds are the alerting cutoffs. Readings below Low are low, above High are high.
// With LowInclusive a reading equal to Low is low as well.
type Thresholds struct {
	Low          float64
	High         float64
	LowInclusive bool
}

// OpenThresholds never classify a reading as low or high.
func OpenThresholds() Thresholds {
	return Thresholds{Low: math.Inf(-1), High: math.Inf(1)}
}

// Spec is the static description of one canonical sensor type.
type Spec struct {
	Key         string
	DisplayName string
	Unit        string
	Icon        string
	Color       string
	Range       Range
	Thresholds  Thresholds
}

// KeywordRule maps a slug containing all Keywords (as words) to Key.
type KeywordRule struct {
	Keywords []string
	Key      string
}

// Override replaces parts of a Spec from configuration.
type Override struct {
	Min  *float64
	Max  *float64
	Low  *float64
	High *float64
}

// Catalog resolves raw sensor identifiers to canonical keys and their specs.
// It is immutable after construction.
type Catalog struct {
	specs   map[string]Spec
	order   []string
	aliases map[string]string
	rules   []KeywordRule
}

// NewCatalog builds a catalog. Every spec key and display name is registered as an
// alias of itself; alias keys are slugged before registration.
func NewCatalog(specs []Spec, aliases map[string]string, rules []KeywordRule) (*Catalog, error) {
	c := &Catalog{
		specs:   make(map[string]Spec, len(specs)),
		aliases: make(map[string]string),
		rules:   append([]KeywordRule(nil), rules...),
	}

	for _, s := range specs {
		if s.Range.Max <= s.Range.Min {
			return nil, fmt.Errorf("sensor %q: range max must be greater than min", s.Key)
		}
		if _, dup := c.specs[s.Key]; dup {
			return nil, fmt.Errorf("sensor %q declared twice", s.Key)
		}
		c.specs[s.Key] = s
		c.order = append(c.order, s.Key)
		c.aliases[s.Key] = s.Key
		if slug, err := parse.SensorKey(s.DisplayName); err == nil {
			c.aliases[slug] = s.Key
		}
	}

	for raw, key := range aliases {
		if _, ok := c.specs[key]; !ok {
			return nil, fmt.Errorf("alias %q points to unknown sensor %q", raw, key)
		}
		slug, err := parse.SensorKey(raw)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", raw, err)
		}
		c.aliases[slug] = key
	}

	for _, r := range c.rules {
		if _, ok := c.specs[r.Key]; !ok {
			return nil, fmt.Errorf("keyword rule %v points to unknown sensor %q", r.Keywords, r.Key)
		}
	}
	return c, nil
}

// WithOverrides returns a copy of the catalog with extra aliases and spec overrides applied.
func (c *Catalog) WithOverrides(aliases map[string]string, overrides map[string]Override) (*Catalog, error) {
	specs := make([]Spec, 0, len(c.order))
	for _, key := range c.order {
		s := c.specs[key]
		if o, ok := overrides[key]; ok {
			if o.Min != nil {
				s.Range.Min = *o.Min
			}
			if o.Max != nil {
				s.Range.Max = *o.Max
			}
			if o.Low != nil {
				s.Thresholds.Low = *o.Low
			}
			if o.High != nil {
				s.Thresholds.High = *o.High
			}
		}
		specs = append(specs, s)
	}
	for key := range overrides {
		if _, ok := c.specs[key]; !ok {
			return nil, fmt.Errorf("override for unknown sensor %q", key)
		}
	}

	merged := make(map[string]string, len(c.aliases)+len(aliases))
	for slug, key := range c.aliases {
		merged[slug] = key
	}
	for raw, key := range aliases {
		merged[raw] = key
	}
	return NewCatalog(specs, merged, c.rules)
}

// Canonical resolves a raw identifier or display name to a canonical key.
// When nothing matches it returns the slug and false.
func (c *Catalog) Canonical(raw string) (string, bool) {
	slug, err := parse.SensorKey(raw)
	if err != nil {
		return "", false
	}
	if key, ok := c.aliases[slug]; ok {
		return key, true
	}

	words := make(map[string]bool)
	for _, w := range strings.Split(slug, "_") {
		words[w] = true
	}
	for _, r := range c.rules {
		if matchesAll(words, r.Keywords) {
			return r.Key, true
		}
	}
	return slug, false
}

// Spec returns the spec for a raw identifier. Unknown sensors get a generic spec
// with the default range and open thresholds.
func (c *Catalog) Spec(raw string) (Spec, bool) {
	key, ok := c.Canonical(raw)
	if ok {
		return c.specs[key], true
	}
	return Spec{
		Key:         key,
		DisplayName: TitleCase(key),
		Icon:        "📟",
		Color:       "#6b7280",
		Range:       DefaultRange,
		Thresholds:  OpenThresholds(),
	}, false
}

// Keys returns the canonical keys in declaration order.
func (c *Catalog) Keys() []string {
	return append([]string(nil), c.order...)
}

// DisplayName returns the human readable name for a raw identifier.
func (c *Catalog) DisplayName(raw string) string {
	s, _ := c.Spec(raw)
	return s.DisplayName
}

func matchesAll(words map[string]bool, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, k := range keywords {
		if !words[k] {
			return false
		}
	}
	return true
}

// TitleCase turns a snake_case, kebab-case or camelCase identifier into "Title Case".
func TitleCase(key string) string {
	var b strings.Builder
	var prev rune
	for i, r := range key {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prev = r
	}

	words := strings.FieldsFunc(b.String(), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
