package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"farm-telemetry-backend/internal/timeparse"
)

const (
	lastUpdateMarker = "last_update"
	isoMillis        = "2006-01-02T15:04:05.000Z07:00"
)

type markTimestampRequest struct {
	Timestamp any `json:"timestamp"`
}

// GetSystemTimestamp returns the server clock and, once one was recorded, the
// last update marker.
func (h *Handler) GetSystemTimestamp(c *gin.Context) {
	now := h.now()
	resp := gin.H{
		"timestamp": now.UnixMilli(),
		"formatted": now.UTC().Format(isoMillis),
	}

	last, ok, err := h.store.Marker(c.Request.Context(), lastUpdateMarker)
	if err != nil {
		h.log.Error("failed to read last update marker", zap.Error(err))
	} else if ok {
		resp["lastUpdate"] = last
	}
	c.JSON(http.StatusOK, resp)
}

// PostSystemTimestamp records the last update marker. The body may carry a
// timestamp in any shape the normalizer understands; without one the server
// clock is used.
func (h *Handler) PostSystemTimestamp(c *gin.Context) {
	at := timeparse.FromTime(h.now())

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respondNotice(c, http.StatusBadRequest, LevelError, "Failed to read request body.")
		return
	}
	if len(body) > 0 {
		var req markTimestampRequest
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		// a body that is not JSON falls back to the server clock
		if err := dec.Decode(&req); err == nil && req.Timestamp != nil {
			parsed := h.norm.Parse(req.Timestamp)
			if !parsed.Valid() {
				h.respondNotice(c, http.StatusBadRequest, LevelError, "Timestamp is not a recognizable date.")
				return
			}
			at = parsed
		}
	}

	if err := h.store.SetMarker(c.Request.Context(), lastUpdateMarker, at.Millis(), h.now()); err != nil {
		h.log.Error("failed to record last update marker", zap.Error(err))
		h.respondNotice(c, http.StatusInternalServerError, LevelError, "Failed to update system timestamp.")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": at.Millis(),
		"formatted": at.Time().Format(isoMillis),
		"notice":    h.newNotice(LevelSuccess, "System timestamp updated."),
	})
}

// Healthz reports liveness and whether the database answers.
func (h *Handler) Healthz(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sensors": len(h.telemetry.Sensors())})
}
