// Package notification pushes sensor status alerts to browser subscriptions.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"farm-telemetry-backend/internal/model"
	"farm-telemetry-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Payload is the JSON body delivered to the service worker.
type Payload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Sensor string `json:"sensor"`
	Status string `json:"status"`
	Value  string `json:"value"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan store.Transition
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan store.Transition, size*16),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log.Named("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.With(zap.Int("worker", id))
	log.Debug("worker started")
	for {
		select {
		case t := <-wp.jobs:
			log.Debug("processing transition", zap.String("sensor", t.Key), zap.String("status", string(t.To)))
			wp.sendNotificationsForSensor(ctx, t)
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Dispatch queues a transition. When the queue is full the alert is dropped
// so snapshot application never waits on push delivery.
func (wp *WorkerPool) Dispatch(t store.Transition) {
	select {
	case wp.jobs <- t:
	default:
		wp.log.Warn("notification queue full, dropping alert", zap.String("sensor", t.Key), zap.String("status", string(t.To)))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan store.Transition {
	return wp.jobs
}

// NewPayload renders the alert for one transition.
func NewPayload(t store.Transition) Payload {
	label := t.Label
	if label == "" {
		label = t.Key
	}
	value := t.Value
	if t.Unit != "" && value != "" {
		value = strings.TrimSpace(value + " " + t.Unit)
	}
	return Payload{
		Title:  fmt.Sprintf("%s is %s", label, t.To),
		Body:   fmt.Sprintf("%s reading is now %s (was %s).", label, value, t.From),
		Sensor: t.Key,
		Status: string(t.To),
		Value:  t.Value,
	}
}

func (wp *WorkerPool) sendNotificationsForSensor(ctx context.Context, t store.Transition) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_sensor_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.sensor_key = ?", t.Key).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", zap.String("sensor", t.Key), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(NewPayload(t))
	if err != nil {
		wp.log.Error("failed to encode notification", zap.String("sensor", t.Key), zap.Error(err))
		return
	}

	wp.log.Info("sending notifications", zap.String("sensor", t.Key), zap.Int("subscriptions", len(subscriptions)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.WithContext(ctx).Select("Sensors").Delete(&sub).Error; err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
