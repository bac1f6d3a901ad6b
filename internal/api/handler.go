package api

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"farm-telemetry-backend/internal/export"
	"farm-telemetry-backend/internal/inference"
	"farm-telemetry-backend/internal/metrics"
	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/sensor"
	"farm-telemetry-backend/internal/store"
	"farm-telemetry-backend/internal/timeparse"
)

// Telemetry is the reading source the handlers serve from.
type Telemetry interface {
	Sensors() []string
	Snapshot(key string) ([]model.SensorReading, time.Time, bool)
	Aggregate() ([]model.AggregateRecord, time.Time, bool)
	RefreshAggregate(ctx context.Context) error
}

// Deps are the collaborators of the API handlers.
type Deps struct {
	Store       store.Store
	WebPush     *webpush.Options
	Telemetry   Telemetry
	Catalog     *sensor.Catalog
	Exporter    *export.Exporter
	Diseases    *inference.Client
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	Normalizer  *timeparse.Normalizer
	PageSize    int
	NoticeAfter time.Duration
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store       store.Store
	webpush     *webpush.Options
	telemetry   Telemetry
	catalog     *sensor.Catalog
	exporter    *export.Exporter
	diseases    *inference.Client
	metrics     *metrics.Metrics
	log         *zap.Logger
	norm        *timeparse.Normalizer
	pageSize    int
	noticeAfter time.Duration
	now         func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	norm := d.Normalizer
	if norm == nil {
		norm = timeparse.New(nil)
	}
	noticeAfter := d.NoticeAfter
	if noticeAfter <= 0 {
		noticeAfter = 4 * time.Second
	}
	return &Handler{
		store:       d.Store,
		webpush:     d.WebPush,
		telemetry:   d.Telemetry,
		catalog:     d.Catalog,
		exporter:    d.Exporter,
		diseases:    d.Diseases,
		metrics:     d.Metrics,
		log:         log,
		norm:        norm,
		pageSize:    d.PageSize,
		noticeAfter: noticeAfter,
		now:         time.Now,
	}
}
