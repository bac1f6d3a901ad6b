package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"farm-telemetry-backend/internal/inference"
)

// GetDiseases lists the diseases the inference service knows about.
func (h *Handler) GetDiseases(c *gin.Context) {
	list, err := h.diseases.Diseases(c.Request.Context())
	if err != nil {
		h.log.Error("failed to list diseases", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get disease information"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"method":    list.Method,
		"diseases":  list.Diseases,
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// GetDisease returns the solution, treatment schedule and cost estimate of one disease.
func (h *Handler) GetDisease(c *gin.Context) {
	d, err := h.diseases.Disease(c.Request.Context(), c.Param("disease"))
	if err != nil {
		if errors.Is(err, inference.ErrUnknownDisease) {
			c.JSON(http.StatusNotFound, gin.H{"error": "disease not found"})
			return
		}
		h.log.Error("failed to get disease", zap.String("disease", c.Param("disease")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get disease solution"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"method":             d.Method,
		"disease":            d.Disease,
		"solution":           d.Solution,
		"treatment_schedule": d.TreatmentSchedule,
		"cost_estimation":    d.CostEstimation,
		"timestamp":          h.now().UTC().Format(time.RFC3339Nano),
	})
}
