package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"farm-telemetry-backend/config"
)

// NewMQTTClient builds an unconnected client for the configured broker.
func NewMQTTClient(cfg config.RealtimeConfig) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	return mqtt.NewClient(opts)
}

// Realtime receives full history snapshots pushed on <prefix>/<sensor>/history.
type Realtime struct {
	client mqtt.Client
	prefix string
	qos    byte
	svc    *Service
	log    *zap.Logger
}

// NewRealtime wires an MQTT client to the service.
func NewRealtime(client mqtt.Client, cfg config.RealtimeConfig, svc *Service, log *zap.Logger) *Realtime {
	return &Realtime{
		client: client,
		prefix: strings.Trim(cfg.TopicPrefix, "/"),
		qos:    cfg.QoS,
		svc:    svc,
		log:    log,
	}
}

// Topic is the subscription filter.
func (r *Realtime) Topic() string {
	return r.prefix + "/+/history"
}

// Start connects and subscribes. The connection is closed when ctx is done.
func (r *Realtime) Start(ctx context.Context) error {
	if token := r.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		r.handle(ctx, msg.Topic(), msg.Payload())
	}
	if token := r.client.Subscribe(r.Topic(), r.qos, handler); token.Wait() && token.Error() != nil {
		r.client.Disconnect(250)
		return fmt.Errorf("failed to subscribe to topic %s: %w", r.Topic(), token.Error())
	}
	r.log.Info("subscribed to realtime snapshots", zap.String("topic", r.Topic()))

	go func() {
		<-ctx.Done()
		r.client.Unsubscribe(r.Topic()).WaitTimeout(time.Second)
		r.client.Disconnect(250)
		r.log.Info("realtime subscription closed")
	}()
	return nil
}

func (r *Realtime) handle(ctx context.Context, topic string, payload []byte) {
	raw, ok := SensorFromTopic(r.prefix, topic)
	if !ok {
		r.log.Warn("ignoring message on unexpected topic", zap.String("topic", topic))
		return
	}
	if err := r.svc.Deliver(ctx, raw, payload); err != nil {
		r.log.Error("failed to apply realtime snapshot", zap.String("topic", topic), zap.Error(err))
	}
}

// SensorFromTopic extracts the sensor segment of <prefix>/<sensor>/history.
func SensorFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, strings.Trim(prefix, "/")+"/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/history")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
