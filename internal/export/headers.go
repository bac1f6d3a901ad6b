package export

import (
	"strings"

	"farm-telemetry-backend/internal/sensor"
)

// fieldLabels are display names for common non-sensor fields of the aggregate collection.
var fieldLabels = map[string]string{
	"id":          "ID",
	"sensor":      "Sensor",
	"sensorname":  "Sensor",
	"sensor_name": "Sensor",
	"name":        "Name",
	"value":       "Value",
	"nilai":       "Value",
	"status":      "Status",
	"unit":        "Unit",
	"satuan":      "Unit",
	"deviceid":    "Device ID",
	"device_id":   "Device ID",
	"location":    "Location",
	"lokasi":      "Location",
}

// Beautify maps a raw field name to a column header. Known fields and sensor keys
// use their display names (with unit); anything else is title-cased.
func (e *Exporter) Beautify(field string) string {
	if label, ok := fieldLabels[strings.ToLower(field)]; ok {
		return label
	}
	if spec, ok := e.catalog.Spec(field); ok {
		if spec.Unit != "" {
			return spec.DisplayName + " (" + spec.Unit + ")"
		}
		return spec.DisplayName
	}
	return sensor.TitleCase(field)
}
