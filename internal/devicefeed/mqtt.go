package devicefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// DefaultMQTTTopic matches ecogrid/sites/{siteId}/devices/{deviceId}/telemetry/{type}.
	DefaultMQTTTopic = "ecogrid/sites/+/devices/+/telemetry/+"

	mqttTokenTimeout = 10 * time.Second
	mqttQoS          = 1
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// mqttClient is the subset of mqtt.Client the source needs.
type mqttClient interface {
	Connect() mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSource subscribes to per-device telemetry topics. Site id, device id
// and device type missing from a payload are taken from the topic.
type MQTTSource struct {
	topic  string
	client mqttClient
	logger *slog.Logger
}

func NewMQTTSource(cfg MQTTConfig) (*MQTTSource, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt broker is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "ecogrid-gateway"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true)
	return newMQTTSource(cfg.Topic, mqtt.NewClient(opts)), nil
}

func newMQTTSource(topic string, client mqttClient) *MQTTSource {
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTTSource{
		topic:  topic,
		client: client,
		logger: slog.With("component", "devicefeed", "source", "mqtt", "topic", topic),
	}
}

// Run connects, subscribes and blocks until ctx is cancelled.
func (s *MQTTSource) Run(ctx context.Context, sink Sink) error {
	if err := wait(s.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer s.client.Disconnect(250)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		ev, err := decodeMQTT(msg.Topic(), msg.Payload())
		if err != nil {
			sink.Malformed(msg.Payload(), err)
			return
		}
		sink.Apply(ev)
	}
	if err := wait(s.client.Subscribe(s.topic, mqttQoS, handler)); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", s.topic, err)
	}
	s.logger.Info("[DeviceFeed] MQTT subscription active")

	<-ctx.Done()
	if err := wait(s.client.Unsubscribe(s.topic)); err != nil {
		s.logger.Warn("[DeviceFeed] MQTT unsubscribe failed", "error", err)
	}
	s.logger.Info("[DeviceFeed] MQTT subscription stopped")
	return ctx.Err()
}

func wait(tok mqtt.Token) error {
	if !tok.WaitTimeout(mqttTokenTimeout) {
		return errors.New("timed out waiting for broker")
	}
	return tok.Error()
}

// decodeMQTT parses payload and fills identity fields from a topic of the
// form ecogrid/sites/{siteId}/devices/{deviceId}/telemetry/{type}.
func decodeMQTT(topic string, payload []byte) (Event, error) {
	var ev Event
	if err := decodeEvent(payload, &ev); err != nil {
		return Event{}, err
	}
	// Devices that publish bare readings carry no envelope.
	if len(ev.Telemetry) == 0 {
		ev.Telemetry = append(json.RawMessage(nil), payload...)
	}

	parts := strings.Split(topic, "/")
	if len(parts) == 7 && parts[1] == "sites" && parts[3] == "devices" && parts[5] == "telemetry" {
		if ev.SiteID == 0 {
			ev.SiteID, _ = strconv.ParseInt(parts[2], 10, 64)
		}
		if ev.DeviceID == 0 {
			ev.DeviceID, _ = strconv.ParseInt(parts[4], 10, 64)
		}
		if ev.DeviceType == "" {
			ev.DeviceType = parts[6]
		}
	}
	if err := validate(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
