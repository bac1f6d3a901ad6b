package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"farm-telemetry-backend/internal/history"
	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/telemetry"
)

type aggregateEntry struct {
	ID         string         `json:"id"`
	ObservedAt *int64         `json:"observedAt"`
	Date       string         `json:"date"`
	Time       string         `json:"time"`
	Fields     map[string]any `json:"fields"`
}

type aggregateResponse struct {
	Window    history.Window   `json:"window"`
	FetchedAt *int64           `json:"fetchedAt"`
	Total     int              `json:"total"`
	Records   []aggregateEntry `json:"records"`
	Notice    *Notice          `json:"notice,omitempty"`
}

// GetAggregate returns the all-sensors collection for the window, newest first.
// With refresh=true the collection is fetched again first; when that fails the
// cached copy is served with a warning.
func (h *Handler) GetAggregate(c *gin.Context) {
	w, ok := h.windowParam(c)
	if !ok {
		return
	}

	var notice *Notice
	if c.Query("refresh") == "true" {
		if err := h.telemetry.RefreshAggregate(c.Request.Context()); err != nil {
			h.log.Warn("aggregate refresh failed", zap.Error(err))
			if _, _, cached := h.telemetry.Aggregate(); !cached {
				status := http.StatusInternalServerError
				if errors.Is(err, telemetry.ErrUpstream) {
					status = http.StatusBadGateway
				}
				h.respondNotice(c, status, LevelError, "Sensor data is unavailable right now.")
				return
			}
			n := h.newNotice(LevelWarning, "Could not refresh sensor data, showing the last copy.")
			notice = &n
		}
	}

	records, fetchedAt, ok := h.telemetry.Aggregate()
	resp := aggregateResponse{Window: w, Records: []aggregateEntry{}, Notice: notice}
	if ok {
		ms := fetchedAt.UnixMilli()
		resp.FetchedAt = &ms
	}

	selected := history.Filter(records, w, h.now())
	history.SortNewestFirst(selected)
	resp.Total = len(selected)
	for _, r := range selected {
		resp.Records = append(resp.Records, h.aggregateEntry(r))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) aggregateEntry(r model.AggregateRecord) aggregateEntry {
	date, clock := h.exporter.DateTime(r.Instant())
	return aggregateEntry{
		ID:         r.ID,
		ObservedAt: r.ObservedAt,
		Date:       date,
		Time:       clock,
		Fields:     r.Fields,
	}
}
