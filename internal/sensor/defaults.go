package sensor

import "math"

var inf = math.Inf(1)

// DefaultSpecs returns the sensor types installed on the farm.
// Ranges drive progress bars; thresholds drive status and alerts.
func DefaultSpecs() []Spec {
	return []Spec{
		{Key: "soil_moisture", DisplayName: "Soil Moisture", Unit: "%", Icon: "💧", Color: "#16a34a",
			Range: Range{0, 100}, Thresholds: Thresholds{Low: 40, High: inf}},
		{Key: "soil_temperature", DisplayName: "Soil Temperature", Unit: "°C", Icon: "🌡️", Color: "#ef4444",
			Range: Range{0, 50}, Thresholds: Thresholds{Low: 20, High: 30}},
		{Key: "air_temperature", DisplayName: "Air Temperature", Unit: "°C", Icon: "🔥", Color: "#f97316",
			Range: Range{0, 50}, Thresholds: Thresholds{Low: 20, High: 30}},
		{Key: "air_humidity", DisplayName: "Air Humidity", Unit: "%RH", Icon: "💧", Color: "#06b6d4",
			Range: Range{0, 100}, Thresholds: Thresholds{Low: 60, High: inf}},
		{Key: "rainfall", DisplayName: "Rainfall", Unit: "mm", Icon: "🌧️", Color: "#2563eb",
			Range: Range{0, 150}, Thresholds: Thresholds{Low: 5, High: 10, LowInclusive: true}},
		{Key: "wind_speed", DisplayName: "Wind Speed", Unit: "m/s", Icon: "💨", Color: "#60a5fa",
			Range: Range{0, 25}, Thresholds: Thresholds{Low: -inf, High: 20}},
		{Key: "soil_ph", DisplayName: "Soil pH", Unit: "", Icon: "🧪", Color: "#9333ea",
			Range: Range{0, 14}, Thresholds: Thresholds{Low: 6, High: 7.5}},
		{Key: "radiation", DisplayName: "Radiation", Unit: "W/m²", Icon: "☀️", Color: "#facc15",
			Range: Range{0, 1200}, Thresholds: Thresholds{Low: -inf, High: 5}},
		{Key: "nitrogen", DisplayName: "Nitrogen", Unit: "mg/kg", Icon: "🌱", Color: "#3b82f6",
			Range: Range{0, 200}, Thresholds: OpenThresholds()},
		{Key: "phosphorus", DisplayName: "Phosphorus", Unit: "mg/kg", Icon: "🌱", Color: "#8b5cf6",
			Range: Range{0, 60}, Thresholds: OpenThresholds()},
		{Key: "potassium", DisplayName: "Potassium", Unit: "mg/kg", Icon: "🌱", Color: "#f59e0b",
			Range: Range{0, 300}, Thresholds: OpenThresholds()},
		{Key: "soil_ec", DisplayName: "Soil EC", Unit: "μS/cm", Icon: "⚡", Color: "#22d3ee",
			Range: Range{0, 4000}, Thresholds: OpenThresholds()},
	}
}

// DefaultAliases maps every spelling seen from the field producers to a canonical key.
// Both the Indonesian and the English producer conventions are kept; neither is
// treated as authoritative.
func DefaultAliases() map[string]string {
	return map[string]string{
		"kelembaban_tanah": "soil_moisture",
		"suhu_tanah":       "soil_temperature",
		"temperature":      "soil_temperature",
		"suhu_udara":       "air_temperature",
		"suhu":             "air_temperature",
		"dht_temperature":  "air_temperature",
		"kelembaban_udara": "air_humidity",
		"kelembaban":       "air_humidity",
		"dht_humidity":     "air_humidity",
		"humidity":         "air_humidity",
		"curah_hujan":      "rainfall",
		"kecepatan_angin":  "wind_speed",
		"ph_tanah":         "soil_ph",
		"ph":               "soil_ph",
		"radiasi":          "radiation",
		"solar_radiation":  "radiation",
		"fosfor":           "phosphorus",
		"kalium":           "potassium",
		"ec_tanah":         "soil_ec",
		"ec":               "soil_ec",
	}
}

// DefaultRules match free-form names that no alias covers. Order matters.
func DefaultRules() []KeywordRule {
	return []KeywordRule{
		{Keywords: []string{"soil", "moisture"}, Key: "soil_moisture"},
		{Keywords: []string{"kelembaban", "tanah"}, Key: "soil_moisture"},
		{Keywords: []string{"ec", "soil"}, Key: "soil_ec"},
		{Keywords: []string{"ec", "tanah"}, Key: "soil_ec"},
		{Keywords: []string{"soil", "ph"}, Key: "soil_ph"},
		{Keywords: []string{"ph", "tanah"}, Key: "soil_ph"},
		{Keywords: []string{"radiation"}, Key: "radiation"},
		{Keywords: []string{"radiasi"}, Key: "radiation"},
		{Keywords: []string{"soil", "temperature"}, Key: "soil_temperature"},
		{Keywords: []string{"suhu", "tanah"}, Key: "soil_temperature"},
		{Keywords: []string{"air", "temperature"}, Key: "air_temperature"},
		{Keywords: []string{"suhu"}, Key: "air_temperature"},
		{Keywords: []string{"air", "humidity"}, Key: "air_humidity"},
		{Keywords: []string{"moisture"}, Key: "soil_moisture"},
		{Keywords: []string{"humidity"}, Key: "air_humidity"},
		{Keywords: []string{"kelembaban"}, Key: "air_humidity"},
		{Keywords: []string{"wind", "speed"}, Key: "wind_speed"},
		{Keywords: []string{"angin"}, Key: "wind_speed"},
		{Keywords: []string{"rainfall"}, Key: "rainfall"},
		{Keywords: []string{"hujan"}, Key: "rainfall"},
		{Keywords: []string{"nitrogen"}, Key: "nitrogen"},
		{Keywords: []string{"phosphorus"}, Key: "phosphorus"},
		{Keywords: []string{"potassium"}, Key: "potassium"},
	}
}

// DefaultCatalog builds the catalog from the defaults above.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultSpecs(), DefaultAliases(), DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}
