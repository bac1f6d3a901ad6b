package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"farm-telemetry-backend/config"
	"farm-telemetry-backend/internal/history"
	"farm-telemetry-backend/internal/metrics"
	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/sensor"
	"farm-telemetry-backend/internal/store"
	"farm-telemetry-backend/internal/timeparse"
)

// aggregateKey is the cache slot of the all-sensors collection.
const aggregateKey = "all"

// Dispatcher receives status transitions that should be pushed to subscribers.
type Dispatcher interface {
	Dispatch(t store.Transition)
}

// Service keeps the reading caches, the database and the dashboard state in step
// with the upstream database.
type Service struct {
	cfg       config.TelemetryConfig
	fetcher   Fetcher
	store     store.Store
	catalog   *sensor.Catalog
	norm      *timeparse.Normalizer
	readings  *history.Cache[model.SensorReading]
	aggregate *history.Cache[model.AggregateRecord]
	alerts    Dispatcher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time

	partitions map[string]string // canonical key -> upstream partition name
	order      []string

	// applyMu keeps database writes in the same order as cache installs.
	applyMu sync.Mutex
}

// NewService creates a telemetry service. alerts and m may be nil.
func NewService(cfg config.TelemetryConfig, fetcher Fetcher, s store.Store, catalog *sensor.Catalog,
	norm *timeparse.Normalizer, alerts Dispatcher, m *metrics.Metrics, log *zap.Logger) *Service {
	svc := &Service{
		cfg:        cfg,
		fetcher:    fetcher,
		store:      s,
		catalog:    catalog,
		norm:       norm,
		readings:   history.NewCache[model.SensorReading](),
		aggregate:  history.NewCache[model.AggregateRecord](),
		alerts:     alerts,
		metrics:    m,
		log:        log,
		now:        time.Now,
		partitions: make(map[string]string),
	}
	for _, raw := range cfg.Sensors {
		key, _ := catalog.Canonical(raw)
		if key == "" {
			continue
		}
		if _, dup := svc.partitions[key]; dup {
			log.Warn("sensor partition maps to an already configured sensor", zap.String("partition", raw), zap.String("sensor", key))
			continue
		}
		svc.partitions[key] = raw
		svc.order = append(svc.order, key)
	}
	return svc
}

// Sensors returns the configured canonical keys in configuration order.
func (s *Service) Sensors() []string {
	return append([]string(nil), s.order...)
}

// Partition returns the upstream partition of a canonical key.
func (s *Service) Partition(key string) (string, bool) {
	p, ok := s.partitions[key]
	return p, ok
}

// Snapshot returns the cached history of a canonical key.
func (s *Service) Snapshot(key string) ([]model.SensorReading, time.Time, bool) {
	return s.readings.Get(key)
}

// Aggregate returns the cached all-sensors collection.
func (s *Service) Aggregate() ([]model.AggregateRecord, time.Time, bool) {
	return s.aggregate.Get(aggregateKey)
}

// Warm fills the caches from the database so data is served while the
// upstream is unreachable.
func (s *Service) Warm(ctx context.Context) error {
	keys, err := s.store.HistoryKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored histories: %w", err)
	}
	for _, key := range keys {
		readings, err := s.store.History(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to load history of %s: %w", key, err)
		}
		s.readings.Replace(key, readings, s.now())
	}

	records, err := s.store.Aggregate(ctx)
	if err != nil {
		return fmt.Errorf("failed to load aggregate records: %w", err)
	}
	if len(records) > 0 {
		s.aggregate.Replace(aggregateKey, records, s.now())
	}
	s.log.Info("reading cache warmed", zap.Int("sensors", len(keys)), zap.Int("aggregate_records", len(records)))
	return nil
}

// Run polls every configured sensor on the configured interval. The aggregate
// collection is fetched once at start, and again on its own interval when one is set.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("telemetry polling is disabled, not starting")
		return
	}
	s.log.Info("starting telemetry service", zap.Int("sensors", len(s.order)), zap.Duration("interval", s.cfg.Interval))

	s.logSync(s.SyncOnce(ctx))
	s.logSync(s.RefreshAggregate(ctx))

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	var aggregateTick <-chan time.Time
	if s.cfg.AggregateInterval > 0 {
		ticker := time.NewTicker(s.cfg.AggregateInterval)
		defer ticker.Stop()
		aggregateTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("telemetry service shutting down")
			return
		case <-timer.C:
			s.logSync(s.SyncOnce(ctx))
			timer.Reset(s.cfg.Interval)
		case <-aggregateTick:
			s.logSync(s.RefreshAggregate(ctx))
		}
	}
}

func (s *Service) logSync(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("telemetry sync incomplete", zap.Error(err))
	}
}

// SyncOnce fetches every configured sensor once. A failing sensor does not stop
// the others; all failures are returned joined.
func (s *Service) SyncOnce(ctx context.Context) error {
	var errs []error
	for _, key := range s.order {
		if err := s.SyncSensor(ctx, key); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}

// SyncSensor fetches the partition of one canonical key and applies it. The
// cache token is taken before the request so a delivery that arrives meanwhile wins.
func (s *Service) SyncSensor(ctx context.Context, key string) error {
	partition, ok := s.partitions[key]
	if !ok {
		partition = key
	}

	tok := s.readings.Begin(key)
	start := time.Now()
	recs, err := s.fetcher.SensorHistory(ctx, partition)
	s.metrics.ObserveFetch("history", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("sensor %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.apply(ctx, key, tok, toReadings(s.norm, key, partition, recs))
}

// Deliver applies a full snapshot pushed for a raw sensor name.
func (s *Service) Deliver(ctx context.Context, raw string, payload []byte) error {
	key, _ := s.catalog.Canonical(raw)
	if key == "" {
		return fmt.Errorf("cannot derive a sensor key from %q", raw)
	}
	recs, err := DecodeRecords(payload)
	if err != nil {
		return fmt.Errorf("sensor %s: %w", key, err)
	}
	partition := raw
	if p, ok := s.partitions[key]; ok {
		partition = p
	}
	tok := s.readings.Begin(key)
	return s.apply(ctx, key, tok, toReadings(s.norm, key, partition, recs))
}

func (s *Service) apply(ctx context.Context, key string, tok history.Token, readings []model.SensorReading) error {
	readings = history.Dedup(readings)

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if !s.readings.Apply(key, tok, readings, s.now()) {
		s.metrics.StaleDropped(key)
		s.log.Debug("discarded superseded snapshot", zap.String("sensor", key))
		return nil
	}
	s.metrics.SnapshotApplied(key, len(readings))

	if err := s.store.ReplaceHistory(ctx, key, readings); err != nil {
		return fmt.Errorf("sensor %s: %w", key, err)
	}

	update, ok := statusUpdate(s.catalog, key, readings)
	if !ok {
		return nil
	}
	transitions, err := s.store.UpdateSensorStatus(ctx, s.now(), []store.SensorUpdate{update})
	if err != nil {
		return fmt.Errorf("sensor %s: %w", key, err)
	}
	for _, t := range transitions {
		s.metrics.Alert(t.Key, string(t.To))
		if s.alerts != nil {
			s.log.Info("sensor status changed", zap.String("sensor", t.Key), zap.String("from", string(t.From)), zap.String("to", string(t.To)))
			s.alerts.Dispatch(t)
		}
	}
	return nil
}

// RefreshAggregate fetches the all-sensors collection and replaces the cached one.
func (s *Service) RefreshAggregate(ctx context.Context) error {
	tok := s.aggregate.Begin(aggregateKey)
	start := time.Now()
	recs, err := s.fetcher.AllSensors(ctx)
	s.metrics.ObserveFetch("aggregate", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now()
	records := history.Dedup(toAggregate(s.norm, recs, now))

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if !s.aggregate.Apply(aggregateKey, tok, records, now) {
		s.metrics.StaleDropped(aggregateKey)
		return nil
	}
	s.metrics.SnapshotApplied(aggregateKey, len(records))
	if err := s.store.ReplaceAggregate(ctx, records); err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	return nil
}
