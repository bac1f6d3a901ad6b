package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"farm-telemetry-backend/config"
	"farm-telemetry-backend/internal/api"
	"farm-telemetry-backend/internal/db"
	"farm-telemetry-backend/internal/export"
	"farm-telemetry-backend/internal/inference"
	"farm-telemetry-backend/internal/metrics"
	"farm-telemetry-backend/internal/sensor"
	"farm-telemetry-backend/internal/store"
	"farm-telemetry-backend/internal/telemetry"
	"farm-telemetry-backend/internal/timeparse"
)

// TestSensorPipeline polls a fake upstream, serves the history through the API,
// then keeps serving it from the warmed cache after the upstream goes down.
func TestSensorPipeline(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	now := time.Now().In(jakarta).Truncate(time.Second)
	stamp := func(d time.Duration) string { return now.Add(-d).Format("02/01/2006 15:04:05") }

	var down atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/sensors/kelembaban_tanah.json":
			fmt.Fprintf(w, `{"-N1":{"value":"35","timestamp":%q},"-N2":{"value":"72","timestamp":%q},"-N3":{"value":"50","timestamp":%q},"-N4":{"value":"err"}}`,
				stamp(25*time.Hour), stamp(23*time.Hour), stamp(0))
		case "/sensors/suhu_udara.json":
			fmt.Fprintf(w, `[{"suhu_udara":28.5,"waktu":%q}]`, now.Add(-time.Hour).UTC().Format(time.RFC3339))
		case "/sensors_all.json":
			fmt.Fprintf(w, `{"a":{"sensor":"ph","value":6.2,"tanggal":%q},"b":{"sensor":"ec","value":1100}}`, stamp(2*time.Hour))
		default:
			w.Write([]byte(`null`))
		}
	}))
	defer upstream.Close()

	gormDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(gormDB))

	cfg := config.TelemetryConfig{
		Enabled:  true,
		Interval: time.Hour,
		Sensors:  []string{"kelembaban_tanah", "suhu_udara"},
	}
	catalog := sensor.DefaultCatalog()
	norm := timeparse.New(jakarta)
	appStore := store.NewGormStore(gormDB)
	client := telemetry.NewClient(upstream.URL, "sensors", "sensors_all", "", time.Second)
	m := metrics.New()
	svc := telemetry.NewService(cfg, client, appStore, catalog, norm, nil, m, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.SyncOnce(ctx))
	require.NoError(t, svc.RefreshAggregate(ctx))

	handler := api.NewHandler(api.Deps{
		Store:     appStore,
		Telemetry: svc,
		Catalog:   catalog,
		Exporter:  export.New(catalog, norm),
		Diseases:  inference.NewClient("", time.Second, inference.DefaultTable(), zap.NewNop()),
		Metrics:   m,
		Logger:    zap.NewNop(),
		PageSize:  8,
	})
	router := api.NewRouter(ctx, handler, api.RouterOptions{RateLimit: rate.Inf, RateBurst: 1})

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	// history, one day window
	w := get("/api/sensors/soil_moisture/history?window=1d")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		Total int `json:"total"`
		Items []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Equal(t, 2, page.Total)
	assert.Equal(t, "-N3", page.Items[0].ID)
	assert.Equal(t, "-N2", page.Items[1].ID)

	// export of the whole unbounded history
	w = get("/api/sensors/soil_moisture/history/export")
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	rows, err := f.GetRows(f.GetSheetList()[0])
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Date", "Time", "Name", "Value", "Status"}, rows[0])
	assert.Equal(t, now.Format("15:04:05"), rows[1][1])
	assert.Equal(t, []string{"-", "-", "Soil Moisture", "err", "Unknown"}, rows[4])

	// dashboard status table
	sensors, err := appStore.Sensors(ctx)
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, "air_temperature", sensors[0].Key)
	assert.Equal(t, "28.5", sensors[0].LastValue)
	assert.Equal(t, "normal", sensors[0].LastStatus)

	// restart with the upstream down: warmed cache still serves
	down.Store(true)
	restarted := telemetry.NewService(cfg, client, appStore, catalog, norm, nil, nil, zap.NewNop())
	require.NoError(t, restarted.Warm(ctx))
	assert.ErrorIs(t, restarted.SyncOnce(ctx), telemetry.ErrUpstream)

	readings, _, ok := restarted.Snapshot("soil_moisture")
	require.True(t, ok)
	assert.Len(t, readings, 4)
	records, _, ok := restarted.Aggregate()
	require.True(t, ok)
	assert.Len(t, records, 2)
}
