package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"farm-telemetry-backend/internal/history"
	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/sensor"
	"farm-telemetry-backend/internal/store"
	"farm-telemetry-backend/internal/timeparse"
)

// valueFields are tried in order to find the measured value of a history record.
var valueFields = []string{"value", "nilai", "val", "reading"}

// toReadings stamps each record of a sensor partition with its resolved instant.
func toReadings(norm *timeparse.Normalizer, key, partition string, recs []Record) []model.SensorReading {
	out := make([]model.SensorReading, 0, len(recs))
	for _, rec := range recs {
		at, field := norm.Resolve(rec.Fields, timeparse.HistoryFields)
		out = append(out, model.SensorReading{
			SensorKey:  key,
			ID:         rec.ID,
			RawKey:     partition,
			RawValue:   recordValue(rec.Fields, partition),
			ObservedAt: at.Ptr(),
			TimeField:  field,
			Fields:     rec.Fields,
		})
	}
	return out
}

// toAggregate stamps each document of the all-sensors collection using the wide
// field list.
func toAggregate(norm *timeparse.Normalizer, recs []Record, fetchedAt time.Time) []model.AggregateRecord {
	out := make([]model.AggregateRecord, 0, len(recs))
	for _, rec := range recs {
		at, _ := norm.Resolve(rec.Fields, timeparse.AggregateFields)
		out = append(out, model.AggregateRecord{
			ID:         rec.ID,
			ObservedAt: at.Ptr(),
			Fields:     rec.Fields,
			FetchedAt:  fetchedAt,
		})
	}
	return out
}

func recordValue(fields map[string]any, partition string) string {
	for _, f := range valueFields {
		if v, ok := fields[f]; ok && v != nil {
			return formatValue(v)
		}
	}
	if v, ok := fields[partition]; ok && v != nil {
		return formatValue(v)
	}
	return ""
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// Latest picks the newest reading with a valid instant, falling back to the last
// record in upstream order when none has one.
func Latest(readings []model.SensorReading) (model.SensorReading, bool) {
	if len(readings) == 0 {
		return model.SensorReading{}, false
	}
	sorted := history.Filter(readings, history.WindowAll, time.Time{})
	history.SortNewestFirst(sorted)
	if sorted[0].Instant().Valid() {
		return sorted[0], true
	}
	return readings[len(readings)-1], true
}

// statusUpdate classifies the newest reading for the dashboard table.
func statusUpdate(catalog *sensor.Catalog, key string, readings []model.SensorReading) (store.SensorUpdate, bool) {
	latest, ok := Latest(readings)
	if !ok {
		return store.SensorUpdate{}, false
	}
	spec, _ := catalog.Spec(key)
	return store.SensorUpdate{
		Key:         key,
		DisplayName: spec.DisplayName,
		Unit:        spec.Unit,
		Value:       latest.RawValue,
		Status:      catalog.ClassifyRaw(key, latest.RawValue).Status,
		ObservedAt:  latest.Instant(),
	}, true
}
