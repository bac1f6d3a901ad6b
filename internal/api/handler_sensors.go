package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"farm-telemetry-backend/internal/sensor"
	"farm-telemetry-backend/internal/telemetry"
)

// sensorCard is the newest state of one sensor on the dashboard.
type sensorCard struct {
	Key        string        `json:"key"`
	Name       string        `json:"name"`
	Unit       string        `json:"unit"`
	Icon       string        `json:"icon"`
	Color      string        `json:"color"`
	Value      string        `json:"value"`
	Status     sensor.Status `json:"status"`
	Progress   float64       `json:"progress"`
	Range      sensor.Range  `json:"range"`
	ObservedAt *int64        `json:"observedAt"`
	Date       string        `json:"date"`
	Time       string        `json:"time"`
	Records    int           `json:"records"`
	FetchedAt  *int64        `json:"fetchedAt"`
}

// GetSensors returns one card per configured sensor. Sensors without data yet
// are listed with the unknown status.
func (h *Handler) GetSensors(c *gin.Context) {
	keys := h.telemetry.Sensors()
	cards := make([]sensorCard, 0, len(keys))
	for _, key := range keys {
		spec, _ := h.catalog.Spec(key)
		card := sensorCard{
			Key:    key,
			Name:   spec.DisplayName,
			Unit:   spec.Unit,
			Icon:   spec.Icon,
			Color:  spec.Color,
			Status: sensor.StatusUnknown,
			Range:  spec.Range,
			Date:   "-",
			Time:   "-",
		}

		readings, fetchedAt, ok := h.telemetry.Snapshot(key)
		if ok {
			ms := fetchedAt.UnixMilli()
			card.FetchedAt = &ms
			card.Records = len(readings)
		}
		if latest, found := telemetry.Latest(readings); found {
			cls := h.catalog.ClassifyRaw(key, latest.RawValue)
			card.Value = latest.RawValue
			card.Status = cls.Status
			card.Progress = cls.Progress
			card.ObservedAt = latest.ObservedAt
			card.Date, card.Time = h.exporter.DateTime(latest.Instant())
		}
		cards = append(cards, card)
	}
	c.JSON(http.StatusOK, gin.H{"sensors": cards})
}
