package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/sensor"
)

type putSubscriptionRequest struct {
	Endpoint          string   `json:"endpoint" binding:"required"`
	P256DH            string   `json:"p256dh" binding:"required"`
	Auth              string   `json:"auth" binding:"required"`
	SubscribedSensors []string `json:"subscribed_sensors"`
}

// PutSubscription creates or replaces a subscription and the sensors it follows.
// Sensor names are canonicalized; sensors not seen yet get a placeholder row so
// the subscription survives until their first reading arrives.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sensors, err := h.subscribedSensors(req.SubscribedSensors)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscription := model.PushSubscription{
		Endpoint:  req.Endpoint,
		P256DH:    req.P256DH,
		Auth:      req.Auth,
		CreatedAt: h.now(),
	}

	err = h.store.DB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Omit(clause.Associations).Create(&subscription).Error; err != nil {
			return err
		}

		if len(sensors) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&sensors).Error; err != nil {
				return err
			}
		}

		return tx.Model(&subscription).Association("Sensors").Replace(sensorPtrs(sensors))
	})
	if err != nil {
		h.log.Error("failed to store subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusCreated)
}

func (h *Handler) subscribedSensors(raw []string) ([]model.Sensor, error) {
	seen := make(map[string]bool, len(raw))
	sensors := make([]model.Sensor, 0, len(raw))
	for _, name := range raw {
		key, _ := h.catalog.Canonical(name)
		if key == "" {
			return nil, fmt.Errorf("invalid sensor %q", name)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		spec, _ := h.catalog.Spec(key)
		sensors = append(sensors, model.Sensor{
			Key:         key,
			DisplayName: spec.DisplayName,
			Unit:        spec.Unit,
			LastStatus:  string(sensor.StatusUnknown),
			UpdatedAt:   h.now(),
		})
	}
	return sensors, nil
}

func sensorPtrs(sensors []model.Sensor) []*model.Sensor {
	out := make([]*model.Sensor, len(sensors))
	for i := range sensors {
		out[i] = &sensors[i]
	}
	return out
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes a subscription and its sensor mappings.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := model.PushSubscription{Endpoint: req.Endpoint}
	if err := h.store.DB().WithContext(c.Request.Context()).Select("Sensors").Delete(&sub).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns a query value without URL decoding. Push endpoints are
// stored exactly as the browser reported them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription returns the sensor keys a subscription follows.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	var subscription model.PushSubscription
	err := h.store.DB().WithContext(c.Request.Context()).
		Preload("Sensors", func(db *gorm.DB) *gorm.DB { return db.Order("key") }).
		First(&subscription, "endpoint = ?", raw).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	keys := make([]string, len(subscription.Sensors))
	for i, s := range subscription.Sensors {
		keys[i] = s.Key
	}

	c.JSON(http.StatusOK, gin.H{
		"subscribed_sensors": keys,
		"created_at":         subscription.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// GetVAPIDPublicKey returns the VAPID public key browsers subscribe with.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
