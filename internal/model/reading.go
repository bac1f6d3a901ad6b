package model

import (
	"time"

	"farm-telemetry-backend/internal/timeparse"
)

// SensorReading is one record of a sensor's history partition.
// A snapshot is always replaced as a whole, never patched row by row.
type SensorReading struct {
	SensorKey  string         `gorm:"primaryKey;size:64" json:"sensorKey"`
	ID         string         `gorm:"primaryKey;size:128" json:"id"`
	Position   int            `gorm:"not null" json:"-"` // order in the upstream snapshot
	RawKey     string         `gorm:"size:128" json:"rawKey,omitempty"`
	RawValue   string         `gorm:"size:64" json:"value"`
	ObservedAt *int64         `gorm:"index" json:"-"` // epoch ms, NULL when no time field resolved
	TimeField  string         `gorm:"size:32" json:"-"`
	Fields     map[string]any `gorm:"serializer:json;type:text" json:"-"`
}

// Instant returns the resolved observation time.
func (r SensorReading) Instant() timeparse.Instant {
	return timeparse.FromPtr(r.ObservedAt)
}

// Identity is the record id inside its partition.
func (r SensorReading) Identity() string {
	return r.ID
}

// AggregateRecord is one document of the flat all-sensors collection.
// Its shape varies between producers, so the payload is kept as-is.
type AggregateRecord struct {
	ID         string         `gorm:"primaryKey;size:128" json:"id"`
	Position   int            `gorm:"not null" json:"-"`
	ObservedAt *int64         `gorm:"index" json:"-"`
	Fields     map[string]any `gorm:"serializer:json;type:text" json:"fields"`
	FetchedAt  time.Time      `gorm:"not null" json:"fetchedAt"`
}

// Instant returns the observation time resolved at ingest.
func (r AggregateRecord) Instant() timeparse.Instant {
	return timeparse.FromPtr(r.ObservedAt)
}

// Identity is the document id.
func (r AggregateRecord) Identity() string {
	return r.ID
}
