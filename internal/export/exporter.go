package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"farm-telemetry-backend/internal/history"
	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/sensor"
	"farm-telemetry-backend/internal/timeparse"
)

var (
	// ErrNoData means there was nothing to export at all.
	ErrNoData = errors.New("no data to export")
	// ErrNoDataInRange means data exists but the active window excludes all of it.
	ErrNoDataInRange = errors.New("no data in the selected time range")
)

const (
	dateLayout  = "02/01/2006"
	timeLayout  = "15:04:05"
	stampLayout = "2006-01-02"
	missing     = "-"
)

// FilteredHeaders are the columns of a single-sensor export.
var FilteredHeaders = []string{"Date", "Time", "Name", "Value", "Status"}

// File is a rendered spreadsheet ready to be downloaded.
type File struct {
	Name string
	Rows int
	Data []byte
}

// Exporter renders readings using the injected catalog and normalizer.
type Exporter struct {
	catalog *sensor.Catalog
	norm    *timeparse.Normalizer
}

// New creates an Exporter.
func New(catalog *sensor.Catalog, norm *timeparse.Normalizer) *Exporter {
	return &Exporter{catalog: catalog, norm: norm}
}

// Filtered writes exactly the given entries, which are expected to be the
// windowed and sorted output of the history view.
func (e *Exporter) Filtered(key string, entries []model.SensorReading, now time.Time) (*File, error) {
	if len(entries) == 0 {
		return nil, ErrNoData
	}

	wb := NewWorkbook()
	sheet := wb.AddSheet("Sensor History", FilteredHeaders)
	for _, r := range entries {
		date, clock := e.DateTime(r.Instant())
		name := r.RawKey
		if name == "" {
			name = r.SensorKey
		}
		status := e.catalog.ClassifyRaw(name, r.RawValue).Status
		sheet.Append(date, clock, e.catalog.DisplayName(name), r.RawValue, sensor.TitleCase(string(status)))
	}

	data, err := wb.Bytes()
	if err != nil {
		return nil, err
	}
	return &File{Name: FilteredFilename(key, now.In(e.norm.Location())), Rows: len(entries), Data: data}, nil
}

type resolved struct {
	rec   model.AggregateRecord
	at    timeparse.Instant
	field string // time field the instant was read from
}

func (r resolved) Instant() timeparse.Instant { return r.at }

// AllData writes the aggregate collection. Instants are re-resolved from the
// record fields with the wide candidate list, then the window is re-applied
// against now and the rows are sorted newest first.
func (e *Exporter) AllData(records []model.AggregateRecord, w history.Window, now time.Time) (*File, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	rows := make([]resolved, 0, len(records))
	for _, rec := range records {
		at, field := e.norm.Resolve(rec.Fields, timeparse.AggregateFields)
		rows = append(rows, resolved{rec: rec, at: at, field: field})
	}
	rows = history.Filter(rows, w, now)
	if len(rows) == 0 {
		return nil, ErrNoDataInRange
	}
	history.SortNewestFirst(rows)

	fields := columns(rows)
	headers := make([]string, 0, len(fields)+2)
	headers = append(headers, "Date", "Time")
	for _, f := range fields {
		headers = append(headers, e.Beautify(f))
	}

	wb := NewWorkbook()
	sheet := wb.AddSheet("All Sensors", headers)
	for _, r := range rows {
		date, clock := e.DateTime(r.at)
		cells := make([]any, 0, len(headers))
		cells = append(cells, date, clock)
		for _, f := range fields {
			if f == r.field {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, cellValue(r.rec.Fields[f]))
		}
		sheet.Append(cells...)
	}

	data, err := wb.Bytes()
	if err != nil {
		return nil, err
	}
	return &File{Name: AllDataFilename(w, now.In(e.norm.Location())), Rows: len(rows), Data: data}, nil
}

// DateTime formats an instant as the Date and Time cells, "-" for both when
// the instant is invalid.
func (e *Exporter) DateTime(at timeparse.Instant) (string, string) {
	if !at.Valid() {
		return missing, missing
	}
	t := at.In(e.norm.Location())
	return t.Format(dateLayout), t.Format(timeLayout)
}

// FilteredFilename is sensor-history_<key>_<YYYY-MM-DD>.xlsx.
func FilteredFilename(key string, now time.Time) string {
	return fmt.Sprintf("sensor-history_%s_%s.xlsx", key, now.Format(stampLayout))
}

// AllDataFilename is all-sensors_<YYYY-MM-DD>.xlsx with a _<window> suffix for
// bounded windows.
func AllDataFilename(w history.Window, now time.Time) string {
	if w.Bounded() {
		return fmt.Sprintf("all-sensors_%s_%s.xlsx", now.Format(stampLayout), w)
	}
	return fmt.Sprintf("all-sensors_%s.xlsx", now.Format(stampLayout))
}

var leadingFields = []string{"sensor", "sensorName", "sensor_name", "name", "value", "status", "unit"}

// columns collects every field present on any row except the one that row's
// instant was read from. Identity-like fields lead in a fixed order, the rest
// follow alphabetically.
func columns(rows []resolved) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		for f := range r.rec.Fields {
			if f != r.field {
				seen[f] = true
			}
		}
	}

	out := make([]string, 0, len(seen))
	for _, f := range leadingFields {
		if seen[f] {
			out = append(out, f)
			delete(seen, f)
		}
	}
	rest := make([]string, 0, len(seen))
	for f := range seen {
		rest = append(rest, f)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool, float64, float32, int, int64, int32:
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
