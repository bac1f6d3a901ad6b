package store

import (
	"farm-telemetry-backend/internal/sensor"
	"farm-telemetry-backend/internal/timeparse"
)

// SensorUpdate is the newest reading of one sensor after a snapshot was applied.
type SensorUpdate struct {
	Key         string
	DisplayName string
	Unit        string
	Value       string
	Status      sensor.Status
	ObservedAt  timeparse.Instant
}

// Transition is a status change of a sensor that subscribers should hear about.
type Transition struct {
	Key   string
	Label string
	Value string
	Unit  string
	From  sensor.Status
	To    sensor.Status
}

// Alerting reports whether a status is worth a notification.
func Alerting(s sensor.Status) bool {
	return s == sensor.StatusLow || s == sensor.StatusHigh
}
