package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"farm-telemetry-backend/internal/export"
	"farm-telemetry-backend/internal/inference"
	"farm-telemetry-backend/internal/metrics"
	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/sensor"
	"farm-telemetry-backend/internal/store"
	"farm-telemetry-backend/internal/telemetry"
	"farm-telemetry-backend/internal/timeparse"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2025, 8, 5, 18, 0, 0, 0, time.UTC)

type fakeTelemetry struct {
	sensors    []string
	snapshots  map[string][]model.SensorReading
	aggregate  []model.AggregateRecord
	hasAgg     bool
	refreshErr error
	refreshed  int
}

func (f *fakeTelemetry) Sensors() []string { return f.sensors }

func (f *fakeTelemetry) Snapshot(key string) ([]model.SensorReading, time.Time, bool) {
	r, ok := f.snapshots[key]
	return r, now, ok
}

func (f *fakeTelemetry) Aggregate() ([]model.AggregateRecord, time.Time, bool) {
	return f.aggregate, now, f.hasAgg
}

func (f *fakeTelemetry) RefreshAggregate(ctx context.Context) error {
	f.refreshed++
	return f.refreshErr
}

func at(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}

func moistureHistory() []model.SensorReading {
	return []model.SensorReading{
		{SensorKey: "soil_moisture", ID: "old", RawValue: "35", ObservedAt: at(now.Add(-25 * time.Hour))},
		{SensorKey: "soil_moisture", ID: "undated", RawValue: "err"},
		{SensorKey: "soil_moisture", ID: "recent", RawValue: "72", ObservedAt: at(now.Add(-23 * time.Hour)), TimeField: "timestamp"},
		{SensorKey: "soil_moisture", ID: "now", RawValue: "50", ObservedAt: at(now), TimeField: "timestamp"},
	}
}

type testEnv struct {
	router    *gin.Engine
	handler   *Handler
	telemetry *fakeTelemetry
	store     store.Store
	metrics   *metrics.Metrics
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(&model.SensorReading{}, &model.AggregateRecord{}, &model.Sensor{}, &model.PushSubscription{}, &model.SystemMarker{}))
	return store.NewGormStore(gdb)
}

func newTestEnv(t *testing.T, push *webpush.Options) *testEnv {
	t.Helper()
	catalog := sensor.DefaultCatalog()
	norm := timeparse.New(time.UTC)
	tel := &fakeTelemetry{
		sensors:   []string{"soil_moisture", "air_temperature"},
		snapshots: map[string][]model.SensorReading{"soil_moisture": moistureHistory()},
	}
	m := metrics.New()
	s := newTestStore(t)

	h := NewHandler(Deps{
		Store:     s,
		WebPush:   push,
		Telemetry: tel,
		Catalog:   catalog,
		Exporter:  export.New(catalog, norm),
		Diseases:  inference.NewClient("", time.Second, inference.DefaultTable(), zap.NewNop()),
		Metrics:   m,
		Logger:    zap.NewNop(),
		PageSize:  8,
	})
	h.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := NewRouter(ctx, h, RouterOptions{RateLimit: rate.Inf, RateBurst: 1})
	return &testEnv{router: r, handler: h, telemetry: tel, store: s, metrics: m}
}

func (e *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func noticeOf(t *testing.T, w *httptest.ResponseRecorder) Notice {
	return decode[noticeResponse](t, w).Notice
}

func TestGetSensors(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/sensors", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[struct {
		Sensors []sensorCard `json:"sensors"`
	}](t, w)
	require.Len(t, resp.Sensors, 2)

	moisture := resp.Sensors[0]
	assert.Equal(t, "soil_moisture", moisture.Key)
	assert.Equal(t, "Soil Moisture", moisture.Name)
	assert.Equal(t, "50", moisture.Value)
	assert.Equal(t, sensor.StatusNormal, moisture.Status)
	assert.Equal(t, 50.0, moisture.Progress)
	assert.Equal(t, "05/08/2025", moisture.Date)
	assert.Equal(t, "18:00:00", moisture.Time)
	assert.Equal(t, 4, moisture.Records)

	temp := resp.Sensors[1]
	assert.Equal(t, "air_temperature", temp.Key)
	assert.Equal(t, sensor.StatusUnknown, temp.Status)
	assert.Equal(t, "-", temp.Date)
	assert.Nil(t, temp.ObservedAt)
}

func historyIDs(r historyResponse) []string {
	ids := []string{}
	for _, e := range r.Items {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestGetSensorHistory(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("one day window", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/sensors/soil_moisture/history?window=1d", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[historyResponse](t, w)
		assert.Equal(t, []string{"now", "recent"}, historyIDs(resp))
		assert.Equal(t, 2, resp.Total)
		assert.Equal(t, 1, resp.TotalPages)
		assert.Equal(t, 72.0, resp.Items[1].Progress)
	})

	t.Run("undated readings last", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/sensors/soil_moisture/history?page_size=2&page=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[historyResponse](t, w)
		assert.Equal(t, []string{"old", "undated"}, historyIDs(resp))
		assert.Equal(t, 2, resp.TotalPages)
		assert.Equal(t, "-", resp.Items[1].Date)
		assert.Equal(t, sensor.StatusUnknown, resp.Items[1].Status)
	})

	t.Run("page clamped to the window", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/sensors/soil_moisture/history?window=1d&page=9&page_size=1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[historyResponse](t, w)
		assert.Equal(t, 2, resp.Page.Page)
		assert.Equal(t, []string{"recent"}, historyIDs(resp))
	})

	t.Run("alias resolves", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/sensors/kelembaban_tanah/history", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "soil_moisture", decode[historyResponse](t, w).Sensor)
	})

	t.Run("configured sensor without data", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/sensors/suhu_udara/history", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[historyResponse](t, w)
		assert.Empty(t, resp.Items)
		assert.Equal(t, 1, resp.TotalPages)
	})

	testCases := []struct {
		target string
		status int
	}{
		{"/api/sensors/soil_moisture/history?window=2w", http.StatusBadRequest},
		{"/api/sensors/soil_moisture/history?page=0", http.StatusBadRequest},
		{"/api/sensors/soil_moisture/history?page_size=abc", http.StatusBadRequest},
		{"/api/sensors/mystery_box/history", http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.target, func(t *testing.T) {
			w := env.do(http.MethodGet, tc.target, nil)
			assert.Equal(t, tc.status, w.Code)
			n := noticeOf(t, w)
			assert.Equal(t, LevelError, n.Level)
			assert.Equal(t, int64(4000), n.DismissAfterMs)
		})
	}
}

func TestExportSensorHistory(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/sensors/soil_moisture/history/export?window=1d", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sensor-history_soil_moisture_2025-08-05.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", w.Header().Get("X-Export-Rows"))
	assert.NotEmpty(t, w.Body.Bytes())

	w = env.do(http.MethodGet, "/api/sensors/suhu_udara/history/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	n := noticeOf(t, w)
	assert.Equal(t, LevelWarning, n.Level)
	assert.Equal(t, "No data to export.", n.Message)
}

func TestAggregate(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/aggregate/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No data to export.", noticeOf(t, w).Message)

	w = env.do(http.MethodGet, "/api/aggregate?refresh=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[aggregateResponse](t, w).Records)
	assert.Equal(t, 1, env.telemetry.refreshed)

	env.telemetry.refreshErr = fmt.Errorf("%w: timeout", telemetry.ErrUpstream)
	w = env.do(http.MethodGet, "/api/aggregate?refresh=true", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code, "refresh failing without any cached copy")

	env.telemetry.hasAgg = true
	env.telemetry.aggregate = []model.AggregateRecord{
		{ID: "a", ObservedAt: at(now.Add(-10 * 24 * time.Hour)), Fields: map[string]any{"sensor": "ph", "value": 6.1, "tanggal": "26/07/2025"}},
		{ID: "b", Fields: map[string]any{"sensor": "ec", "value": 1200}},
		{ID: "c", ObservedAt: at(now.Add(-time.Hour)), Fields: map[string]any{"sensor": "ph", "value": 6.4, "timestamp": "05/08/2025 17:00:00"}},
	}

	w = env.do(http.MethodGet, "/api/aggregate?window=7d&refresh=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[aggregateResponse](t, w)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "c", resp.Records[0].ID)
	require.NotNil(t, resp.Notice)
	assert.Equal(t, LevelWarning, resp.Notice.Level)

	env.telemetry.refreshErr = nil
	w = env.do(http.MethodGet, "/api/aggregate", nil)
	resp = decode[aggregateResponse](t, w)
	assert.Nil(t, resp.Notice)
	require.Len(t, resp.Records, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{resp.Records[0].ID, resp.Records[1].ID, resp.Records[2].ID})

	w = env.do(http.MethodGet, "/api/aggregate/export?window=7d", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="all-sensors_2025-08-05_7d.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", w.Header().Get("X-Export-Rows"))

	env.telemetry.aggregate = env.telemetry.aggregate[:2]
	w = env.do(http.MethodGet, "/api/aggregate/export?window=1d", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No data in the selected time range.", noticeOf(t, w).Message)

	metricsBody := env.do(http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, metricsBody, `exports_total{kind="all",result="empty_range"} 1`)
	assert.Contains(t, metricsBody, `exports_total{kind="all",result="ok"} 1`)
}

func TestDiseases(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/diseases", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[map[string]any](t, w)
	assert.Equal(t, inference.MethodStatic, list["method"])
	assert.Len(t, list["diseases"], 5)

	w = env.do(http.MethodGet, "/api/diseases/leaf_curl", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[map[string]any](t, w)
	assert.Equal(t, "leaf_curl", detail["disease"])
	assert.Contains(t, detail, "treatment_schedule")

	w = env.do(http.MethodGet, "/api/diseases/root_rot", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSystemAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/system/timestamp", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"timestamp":%d,"formatted":"2025-08-05T18:00:00.000Z"}`, now.UnixMilli()), w.Body.String())

	w = env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sensors":2}`, w.Body.String())
}

func TestPostSystemTimestamp(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/system/timestamp", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Timestamp int64  `json:"timestamp"`
		Formatted string `json:"formatted"`
		Notice    Notice `json:"notice"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, now.UnixMilli(), resp.Timestamp)
	assert.Equal(t, LevelSuccess, resp.Notice.Level)

	marked := time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		body any
	}{
		{"day first string", map[string]any{"timestamp": "05/08/2025 10:00:00"}},
		{"epoch millis", map[string]any{"timestamp": marked.UnixMilli()}},
		{"epoch seconds", map[string]any{"timestamp": marked.Unix()}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/system/timestamp", tc.body)
			require.Equal(t, http.StatusOK, w.Code)
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, marked.UnixMilli(), resp.Timestamp)
			assert.Equal(t, "2025-08-05T10:00:00.000Z", resp.Formatted)
		})
	}

	w = env.do(http.MethodGet, "/api/system/timestamp", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"timestamp":%d,"formatted":"2025-08-05T18:00:00.000Z","lastUpdate":%d}`,
		now.UnixMilli(), marked.UnixMilli()), w.Body.String())

	w = env.do(http.MethodPost, "/api/system/timestamp", map[string]any{"timestamp": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"level":"error"`)
}
