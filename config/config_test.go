package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farm-telemetry-backend/internal/sensor"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 5, cfg.Server.CacheTTLSeconds)
	assert.Equal(t, 60*time.Second, cfg.Telemetry.Interval)
	assert.Zero(t, cfg.Telemetry.AggregateInterval)
	assert.Equal(t, "sensors", cfg.Telemetry.HistoryPath)
	assert.Equal(t, time.UTC, cfg.Telemetry.Location())
	assert.Equal(t, 8, cfg.Export.PageSize)
	assert.Equal(t, 4*time.Second, cfg.Export.NoticeAfter)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, "farm/sensors", cfg.Realtime.TopicPrefix)
	assert.NotEmpty(t, cfg.Database.DSN)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.True(t, cfg.Telemetry.Enabled)
	assert.Len(t, cfg.Telemetry.Sensors, 12)
	assert.Equal(t, "Asia/Jakarta", cfg.Telemetry.Location().String())

	c, err := cfg.Sensors.Catalog(sensor.DefaultCatalog())
	require.NoError(t, err)
	key, ok := c.Canonical("soil_humidity")
	assert.True(t, ok)
	assert.Equal(t, "soil_moisture", key)

	ec, _ := c.Spec("soil_ec")
	assert.Equal(t, 5000.0, ec.Range.Max)
	assert.Equal(t, sensor.StatusHigh, c.Classify("radiation", 6).Status)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := map[string]string{
		"bad timezone":       "telemetry:\n  timezone: Mars/Olympus\n",
		"telemetry no url":   "telemetry:\n  enabled: true\n",
		"realtime no broker": "realtime:\n  enabled: true\n",
		"qos out of range":   "realtime:\n  qos: 3\n",
		"malformed yaml":     "server: [\n",
	}
	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSensorsConfig_Overrides(t *testing.T) {
	low := 30.0
	s := SensorsConfig{Overrides: map[string]SensorOverride{"soil_moisture": {Low: &low}}}

	c, err := s.Catalog(sensor.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, sensor.StatusNormal, c.Classify("soil_moisture", 35).Status)

	_, err = SensorsConfig{Overrides: map[string]SensorOverride{"nope": {}}}.Catalog(sensor.DefaultCatalog())
	assert.Error(t, err)
}
