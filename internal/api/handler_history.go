package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"

	"farm-telemetry-backend/internal/history"
	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/sensor"
)

const maxPageSize = 500

// readingEntry is one row of the history grid.
type readingEntry struct {
	ID         string        `json:"id"`
	Value      string        `json:"value"`
	Status     sensor.Status `json:"status"`
	Progress   float64       `json:"progress"`
	ObservedAt *int64        `json:"observedAt"`
	Date       string        `json:"date"`
	Time       string        `json:"time"`
	TimeField  string        `json:"timeField,omitempty"`
}

type historyResponse struct {
	Sensor  string           `json:"sensor"`
	Name    string           `json:"name"`
	Window  history.Window   `json:"window"`
	Windows []history.Window `json:"windows"`
	history.Page[readingEntry]
}

// GetSensorHistory returns one page of a sensor's history, newest first, for
// the requested window. The page is clamped to the pages the window yields.
func (h *Handler) GetSensorHistory(c *gin.Context) {
	key, readings, ok := h.sensorReadings(c)
	if !ok {
		return
	}
	w, ok := h.windowParam(c)
	if !ok {
		return
	}
	page, ok := h.intParam(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := h.intParam(c, "page_size", h.pageSize)
	if !ok {
		return
	}

	v := history.NewView(min(pageSize, maxPageSize))
	v.SetWindow(w)
	v.SetPage(page)
	p := history.Select(readings, v, h.now())

	entries := make([]readingEntry, 0, len(p.Items))
	for _, r := range p.Items {
		entries = append(entries, h.entry(key, r))
	}

	c.JSON(http.StatusOK, historyResponse{
		Sensor:  key,
		Name:    h.catalog.DisplayName(key),
		Window:  v.Window,
		Windows: history.Windows(),
		Page: history.Page[readingEntry]{
			Items:      entries,
			Page:       p.Page,
			PageSize:   p.PageSize,
			TotalPages: p.TotalPages,
			Total:      p.Total,
		},
	})
}

func (h *Handler) entry(key string, r model.SensorReading) readingEntry {
	cls := h.catalog.ClassifyRaw(key, r.RawValue)
	date, clock := h.exporter.DateTime(r.Instant())
	return readingEntry{
		ID:         r.ID,
		Value:      r.RawValue,
		Status:     cls.Status,
		Progress:   cls.Progress,
		ObservedAt: r.ObservedAt,
		Date:       date,
		Time:       clock,
		TimeField:  r.TimeField,
	}
}

// sensorReadings resolves the :key parameter to a canonical key and its cached
// history. Configured sensors without data yield an empty history.
func (h *Handler) sensorReadings(c *gin.Context) (string, []model.SensorReading, bool) {
	key, known := h.catalog.Canonical(c.Param("key"))
	if key == "" {
		h.respondNotice(c, http.StatusBadRequest, LevelError, "Invalid sensor key.")
		return "", nil, false
	}
	readings, _, ok := h.telemetry.Snapshot(key)
	if ok {
		return key, readings, true
	}
	if known || slices.Contains(h.telemetry.Sensors(), key) {
		return key, nil, true
	}
	h.respondNotice(c, http.StatusNotFound, LevelError, fmt.Sprintf("Unknown sensor %q.", c.Param("key")))
	return "", nil, false
}

func (h *Handler) windowParam(c *gin.Context) (history.Window, bool) {
	w, err := history.ParseWindow(c.Query("window"))
	if err != nil {
		if errors.Is(err, history.ErrInvalidWindow) {
			h.respondNotice(c, http.StatusBadRequest, LevelError, "Time range must be one of all, 1d, 3d or 7d.")
			return "", false
		}
		h.respondNotice(c, http.StatusInternalServerError, LevelError, err.Error())
		return "", false
	}
	return w, true
}

func (h *Handler) intParam(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.respondNotice(c, http.StatusBadRequest, LevelError, fmt.Sprintf("%s must be a positive integer.", name))
		return 0, false
	}
	return n, true
}
