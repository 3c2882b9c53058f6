// Package mqtt feeds device telemetry published over MQTT into the pipeline.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"sanatrack/safety-engine/internal/config"
	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/pipeline"
)

// devicePayload is what trackers publish. EntityID may be omitted when the
// topic carries it (devices/<entity_id>/telemetry).
type devicePayload struct {
	EntityID string  `json:"entity_id"`
	Ts       int64   `json:"ts"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Battery  int     `json:"battery"`
	Online   *bool   `json:"online"`
}

// DecodeSample turns one device message into a sample. Ts is unix seconds;
// a missing online flag means online.
func DecodeSample(topic string, payload []byte) (domain.TelemetrySample, error) {
	var p devicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.TelemetrySample{}, fmt.Errorf("%w: %v", domain.ErrInvalidSample, err)
	}
	if p.EntityID == "" {
		p.EntityID = entityFromTopic(topic)
	}
	online := true
	if p.Online != nil {
		online = *p.Online
	}
	var ts time.Time
	if p.Ts > 0 {
		ts = time.Unix(p.Ts, 0).UTC()
	}
	s := domain.TelemetrySample{
		EntityID:   p.EntityID,
		Timestamp:  ts,
		Location:   domain.Coordinate{Lat: p.Lat, Lng: p.Lng},
		BatteryPct: p.Battery,
		Online:     online,
	}
	return s, s.Validate()
}

func entityFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 3 && parts[0] == "devices" && parts[2] == "telemetry" {
		return parts[1]
	}
	return ""
}

// Ingester is the part of the pipeline the subscriber needs.
type Ingester interface {
	Ingest(ctx context.Context, sample domain.TelemetrySample) (*pipeline.IngestResult, error)
}

type Subscriber struct {
	client paho.Client
	topic  string
	qos    byte
	sink   Ingester
	logger *zap.Logger
}

func NewSubscriber(cfg *config.Config, sink Ingester, logger *zap.Logger) (*Subscriber, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	s := &Subscriber{topic: cfg.MQTTTopic, qos: cfg.MQTTQoS, sink: sink, logger: logger}
	// Resubscribe after every reconnect; clean sessions drop subscriptions.
	opts.SetOnConnectHandler(func(c paho.Client) {
		if token := c.Subscribe(s.topic, s.qos, s.onMessage); token.Wait() && token.Error() != nil {
			logger.Error("MQTT subscribe failed", zap.String("topic", s.topic), zap.Error(token.Error()))
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	s.client = paho.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return s, nil
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	if err := s.Handle(context.Background(), msg.Topic(), msg.Payload()); err != nil {
		s.logger.Warn("Dropped device message", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}

// Handle decodes and ingests one message. Out-of-order samples are
// expected after reconnects and are not reported as errors.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) error {
	sample, err := DecodeSample(topic, payload)
	if err != nil {
		return err
	}
	if _, err := s.sink.Ingest(ctx, sample); err != nil {
		if errors.Is(err, domain.ErrOutOfOrder) {
			s.logger.Debug("Late device sample ignored", zap.String("entity_id", sample.EntityID))
			return nil
		}
		return err
	}
	return nil
}

func (s *Subscriber) Close() {
	s.client.Disconnect(250)
}
