package parse

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	camelRe    = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonWordRe  = regexp.MustCompile(`[^a-z0-9]+`)
	pathSepRe  = regexp.MustCompile(`[/\\]+`)
	suffixesRe = regexp.MustCompile(`_(history|latest|value)$`)
)

var pathSuffixes = map[string]bool{"history": true, "latest": true, "value": true}

// SensorKey reduces a raw sensor identifier to a lowercase snake_case slug.
// "Soil Moisture", "soil-moisture", "soilMoisture" and "sensor/soil_moisture"
// all become "soil_moisture". The slug is not yet canonical; aliases resolve that.
func SensorKey(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	// 1) keep the last path segment of topics and database paths
	if parts := pathSepRe.Split(s, -1); len(parts) > 1 {
		s = ""
		for i := len(parts) - 1; i >= 0; i-- {
			p := strings.TrimSpace(parts[i])
			if p == "" || (pathSuffixes[strings.ToLower(p)] && i > 0) {
				continue
			}
			s = p
			break
		}
	}

	// 2) split camelCase before lowering
	s = camelRe.ReplaceAllString(s, "${1}_${2}")
	s = strings.ToLower(s)

	// 3) collapse everything else into single underscores
	s = strings.Trim(nonWordRe.ReplaceAllString(s, "_"), "_")
	s = suffixesRe.ReplaceAllString(s, "")

	if s == "" {
		return "", fmt.Errorf("unable to parse sensor key from %q", raw)
	}
	return s, nil
}
