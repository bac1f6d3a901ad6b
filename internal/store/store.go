package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/sensor"
)

const insertBatchSize = 200

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	ReplaceHistory(ctx context.Context, key string, readings []model.SensorReading) error
	History(ctx context.Context, key string) ([]model.SensorReading, error)
	HistoryKeys(ctx context.Context) ([]string, error)
	ReplaceAggregate(ctx context.Context, records []model.AggregateRecord) error
	Aggregate(ctx context.Context) ([]model.AggregateRecord, error)
	UpdateSensorStatus(ctx context.Context, now time.Time, updates []SensorUpdate) ([]Transition, error)
	Sensors(ctx context.Context) ([]model.Sensor, error)
	SetMarker(ctx context.Context, name string, at int64, now time.Time) error
	Marker(ctx context.Context, name string) (int64, bool, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ReplaceHistory swaps the stored snapshot of one sensor for readings, keeping
// their order in Position.
func (s *gormStore) ReplaceHistory(ctx context.Context, key string, readings []model.SensorReading) error {
	rows := make([]model.SensorReading, len(readings))
	for i, r := range readings {
		r.SensorKey = key
		r.Position = i
		rows[i] = r
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sensor_key = ?", key).Delete(&model.SensorReading{}).Error; err != nil {
			return fmt.Errorf("failed to clear history of %s: %w", key, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to store history of %s: %w", key, err)
		}
		return nil
	})
}

// History returns the stored snapshot of one sensor in upstream order.
func (s *gormStore) History(ctx context.Context, key string) ([]model.SensorReading, error) {
	var readings []model.SensorReading
	if err := s.db.WithContext(ctx).
		Where("sensor_key = ?", key).
		Order("position").
		Find(&readings).Error; err != nil {
		return nil, err
	}
	return readings, nil
}

// HistoryKeys lists the sensors that have a stored snapshot.
func (s *gormStore) HistoryKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.WithContext(ctx).
		Model(&model.SensorReading{}).
		Distinct().
		Order("sensor_key").
		Pluck("sensor_key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// ReplaceAggregate swaps the stored all-sensors collection.
func (s *gormStore) ReplaceAggregate(ctx context.Context, records []model.AggregateRecord) error {
	rows := make([]model.AggregateRecord, len(records))
	for i, r := range records {
		r.Position = i
		rows[i] = r
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.AggregateRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear aggregate records: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to store aggregate records: %w", err)
		}
		return nil
	})
}

// Aggregate returns the stored all-sensors collection in upstream order.
func (s *gormStore) Aggregate(ctx context.Context) ([]model.AggregateRecord, error) {
	var records []model.AggregateRecord
	if err := s.db.WithContext(ctx).Order("position").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateSensorStatus upserts the dashboard state and returns the sensors whose
// status moved into low or high. Sensors seen for the first time never alert.
func (s *gormStore) UpdateSensorStatus(ctx context.Context, now time.Time, updates []SensorUpdate) ([]Transition, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	existing, err := s.fetchSensors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sensors: %w", err)
	}

	var transitions []Transition
	rows := make([]model.Sensor, 0, len(updates))
	for _, u := range updates {
		rows = append(rows, model.Sensor{
			Key:         u.Key,
			DisplayName: u.DisplayName,
			Unit:        u.Unit,
			LastValue:   u.Value,
			LastStatus:  string(u.Status),
			ObservedAt:  u.ObservedAt.Ptr(),
			UpdatedAt:   now,
		})

		old, ok := existing[u.Key]
		if !ok {
			continue
		}
		from := sensor.Status(old.LastStatus)
		if from != u.Status && Alerting(u.Status) {
			transitions = append(transitions, Transition{
				Key:   u.Key,
				Label: u.DisplayName,
				Value: u.Value,
				Unit:  u.Unit,
				From:  from,
				To:    u.Status,
			})
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "unit", "last_value", "last_status", "observed_at", "updated_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert sensors: %w", err)
	}
	return transitions, nil
}

// Sensors returns the dashboard state of every known sensor.
func (s *gormStore) Sensors(ctx context.Context) ([]model.Sensor, error) {
	var sensors []model.Sensor
	if err := s.db.WithContext(ctx).Order("key").Find(&sensors).Error; err != nil {
		return nil, err
	}
	return sensors, nil
}

func (s *gormStore) fetchSensors(ctx context.Context) (map[string]model.Sensor, error) {
	var sensors []model.Sensor
	if err := s.db.WithContext(ctx).Find(&sensors).Error; err != nil {
		return nil, err
	}
	sensorMap := make(map[string]model.Sensor, len(sensors))
	for _, m := range sensors {
		sensorMap[m.Key] = m
	}
	return sensorMap, nil
}

// SetMarker records at under name, replacing any earlier value.
func (s *gormStore) SetMarker(ctx context.Context, name string, at int64, now time.Time) error {
	row := model.SystemMarker{Name: name, At: at, UpdatedAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to set marker %s: %w", name, err)
	}
	return nil
}

// Marker returns the instant recorded under name.
func (s *gormStore) Marker(ctx context.Context, name string) (int64, bool, error) {
	var rows []model.SystemMarker
	if err := s.db.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&rows).Error; err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].At, true, nil
}
