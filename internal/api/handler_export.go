package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"farm-telemetry-backend/internal/export"
	"farm-telemetry-backend/internal/history"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Export kinds used in metrics and logs.
const (
	exportFiltered = "filtered"
	exportAll      = "all"
)

// ExportSensorHistory downloads the whole windowed history of one sensor, not
// just the current page.
func (h *Handler) ExportSensorHistory(c *gin.Context) {
	key, readings, ok := h.sensorReadings(c)
	if !ok {
		return
	}
	w, ok := h.windowParam(c)
	if !ok {
		return
	}

	now := h.now()
	entries := history.Filter(readings, w, now)
	history.SortNewestFirst(entries)

	file, err := h.exporter.Filtered(key, entries, now)
	h.sendExport(c, exportFiltered, file, err)
}

// ExportAggregate downloads the all-sensors collection for the window.
func (h *Handler) ExportAggregate(c *gin.Context) {
	w, ok := h.windowParam(c)
	if !ok {
		return
	}
	records, _, _ := h.telemetry.Aggregate()

	file, err := h.exporter.AllData(records, w, h.now())
	h.sendExport(c, exportAll, file, err)
}

// sendExport writes the workbook, or a notice when there was nothing to write.
// Empty exports are warnings, not failures.
func (h *Handler) sendExport(c *gin.Context, kind string, file *export.File, err error) {
	switch {
	case errors.Is(err, export.ErrNoData):
		h.metrics.Export(kind, "empty")
		c.JSON(http.StatusOK, noticeResponse{Notice: h.newNotice(LevelWarning, "No data to export.")})
		return
	case errors.Is(err, export.ErrNoDataInRange):
		h.metrics.Export(kind, "empty_range")
		c.JSON(http.StatusOK, noticeResponse{Notice: h.newNotice(LevelWarning, "No data in the selected time range.")})
		return
	case err != nil:
		h.metrics.Export(kind, "error")
		h.log.Error("failed to build export", zap.String("kind", kind), zap.Error(err))
		h.respondNotice(c, http.StatusInternalServerError, LevelError, "Export failed.")
		return
	}

	h.metrics.Export(kind, "ok")
	h.log.Info("export generated", zap.String("kind", kind), zap.String("file", file.Name), zap.Int("rows", file.Rows))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Name))
	c.Header("X-Export-Rows", strconv.Itoa(file.Rows))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, xlsxContentType, file.Data)
}
