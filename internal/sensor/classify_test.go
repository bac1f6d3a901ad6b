package sensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_SoilMoistureLow(t *testing.T) {
	c := DefaultCatalog()

	got := c.Classify("kelembaban_tanah", 35)
	assert.Equal(t, StatusLow, got.Status)
	assert.InDelta(t, 35.0, got.Progress, 1e-9)
	assert.Equal(t, Range{Min: 0, Max: 100}, got.Range)
	assert.True(t, got.Numeric)
}

func TestClassify_AliasesShareThresholds(t *testing.T) {
	c := DefaultCatalog()

	for _, raw := range []string{"kelembaban_tanah", "soil_moisture", "soilMoisture", "Soil Moisture", "sensor/kelembaban_tanah"} {
		key, ok := c.Canonical(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, "soil_moisture", key, raw)
	}
}

func TestClassify_PerSensorThresholds(t *testing.T) {
	c := DefaultCatalog()

	testCases := []struct {
		name     string
		key      string
		value    float64
		status   Status
		progress float64
	}{
		{"soil moisture normal", "soil_moisture", 65, StatusNormal, 65},
		{"soil ph acidic", "ph_tanah", 5.2, StatusLow, 5.2 / 14 * 100},
		{"soil ph neutral", "soil_ph", 6.8, StatusNormal, 6.8 / 14 * 100},
		{"soil ph alkaline", "Soil pH", 8, StatusHigh, 8.0 / 14 * 100},
		{"hot air", "suhu_udara", 34, StatusHigh, 68},
		{"cold soil", "suhu_tanah", 15, StatusLow, 30},
		{"dry air", "dht_humidity", 45, StatusLow, 45},
		{"strong wind", "kecepatan_angin", 22, StatusHigh, 88},
		{"calm wind", "wind_speed", 0, StatusNormal, 0},
		{"heavy rain", "curah_hujan", 30, StatusHigh, 20},
		{"light rain", "rainfall", 2, StatusLow, 2.0 / 150 * 100},
		{"rain at the low cutoff", "rainfall", 5, StatusLow, 5.0 / 150 * 100},
		{"moderate rain", "rainfall", 5.5, StatusNormal, 5.5 / 150 * 100},
		{"rain at the high cutoff", "rainfall", 10, StatusNormal, 10.0 / 150 * 100},
		{"radiation at cutoff", "radiation", 5, StatusNormal, 5.0 / 1200 * 100},
		{"radiation above cutoff", "radiation", 6, StatusHigh, 6.0 / 1200 * 100},
		{"radiation clamps above range", "radiasi", 1500, StatusHigh, 100},
		{"nitrogen has no thresholds", "nitrogen", 500, StatusNormal, 100},
		{"ec below range clamps to zero", "ec_tanah", -10, StatusNormal, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.key, tc.value)
			assert.Equal(t, tc.status, got.Status)
			assert.InDelta(t, tc.progress, got.Progress, 1e-9)
		})
	}
}

func TestClassify_StatusAndProgressAreIndependent(t *testing.T) {
	c, err := DefaultCatalog().WithOverrides(nil, map[string]Override{
		"soil_moisture": {Max: ptr(50)},
	})
	require.NoError(t, err)

	got := c.Classify("soil_moisture", 35)
	assert.Equal(t, StatusLow, got.Status, "threshold must not follow the display range")
	assert.InDelta(t, 70.0, got.Progress, 1e-9)
}

func TestClassify_UnknownKeyIsTotal(t *testing.T) {
	c := DefaultCatalog()

	for _, key := range []string{"", "co2", "???", "totally unknown sensor", "中文"} {
		for _, v := range []float64{-1e9, -1, 0, 42, 1e9, math.MaxFloat64} {
			got := c.Classify(key, v)
			assert.Equal(t, StatusNormal, got.Status)
			assert.Equal(t, DefaultRange, got.Range)
			assert.GreaterOrEqual(t, got.Progress, 0.0)
			assert.LessOrEqual(t, got.Progress, 100.0)
		}
	}
	assert.InDelta(t, 42.0, c.Classify("co2", 42).Progress, 1e-9)
}

func TestClassifyRaw(t *testing.T) {
	c := DefaultCatalog()

	got := c.ClassifyRaw("kelembaban_tanah", "72%")
	assert.Equal(t, StatusNormal, got.Status)
	assert.InDelta(t, 72.0, got.Progress, 1e-9)

	for _, raw := range []string{"", "Loading...", "n/a", "NaN"} {
		got := c.ClassifyRaw("kelembaban_tanah", raw)
		assert.Equal(t, StatusUnknown, got.Status, raw)
		assert.Zero(t, got.Progress)
		assert.False(t, got.Numeric)
	}
}

func TestParseValue(t *testing.T) {
	testCases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"42", 42, true},
		{" 28.5 °C", 28.5, true},
		{"-3.25", -3.25, true},
		{"1e3", 1000, true},
		{"72%", 72, true},
		{"abc", 0, false},
		{"", 0, false},
		{"-", 0, false},
	}
	for _, tc := range testCases {
		got, ok := ParseValue(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.InDelta(t, tc.want, got, 1e-9, tc.raw)
	}
}

func TestCanonical_KeywordRules(t *testing.T) {
	c := DefaultCatalog()

	testCases := map[string]string{
		"Soil Moisture Sensor 2":     "soil_moisture",
		"kelembaban tanah kebun":     "soil_moisture",
		"DHT22 Humidity":             "air_humidity",
		"Greenhouse Air Temperature": "air_temperature",
		"ec soil probe":              "soil_ec",
		"Rainfall Gauge":             "rainfall",
	}
	for raw, want := range testCases {
		key, ok := c.Canonical(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, key, raw)
	}

	key, ok := c.Canonical("co2_level")
	assert.False(t, ok)
	assert.Equal(t, "co2_level", key)
}

func TestNewCatalog_Validation(t *testing.T) {
	_, err := NewCatalog([]Spec{{Key: "a", Range: Range{Min: 1, Max: 1}}}, nil, nil)
	assert.Error(t, err)

	_, err = NewCatalog(DefaultSpecs(), map[string]string{"foo": "missing"}, nil)
	assert.Error(t, err)

	_, err = DefaultCatalog().WithOverrides(nil, map[string]Override{"missing": {}})
	assert.Error(t, err)

	c, err := DefaultCatalog().WithOverrides(map[string]string{"Moisture Tanah A": "soil_moisture"}, nil)
	require.NoError(t, err)
	key, ok := c.Canonical("moisture-tanah-a")
	assert.True(t, ok)
	assert.Equal(t, "soil_moisture", key)
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Soil Moisture", TitleCase("soil_moisture"))
	assert.Equal(t, "Raw Value", TitleCase("rawValue"))
	assert.Equal(t, "Device Id", TitleCase("device-id"))
	assert.Equal(t, "", TitleCase(""))
}

func ptr(v float64) *float64 { return &v }
