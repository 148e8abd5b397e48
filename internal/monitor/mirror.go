// Package monitor mirrors bus traffic to an MQTT broker for shore-side
// monitoring and accepts operator commands from it.
//
// Topics, below <prefix>/<vessel_id>:
//
//	sensor/<tag>  sensor readings (QoS 0)
//	state         mode transitions
//	ack           command acknowledgements
//	status        link and data health
//	command       inbound operator commands
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"usv-kernel/internal/bus"
	"usv-kernel/internal/config"
	"usv-kernel/internal/observability"
	"usv-kernel/internal/telemetry"
)

// Client is the part of the paho client the mirror uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// Subscriber is the part of the bus the mirror listens on.
type Subscriber interface {
	Subscribe(kind bus.Kind, name string, h bus.Handler)
}

// Publisher receives inbound commands.
type Publisher interface {
	Publish(bus.Payload)
}

const (
	publishTimeout = 2 * time.Second
	commandSource  = "mqtt"
)

// Mirror bridges the bus and the broker.
type Mirror struct {
	client Client
	base   string
	qos    byte
	pub    Publisher
	log    *slog.Logger
	newID  func() string

	dropped atomic.Uint64
}

// New builds a mirror around an already created client.
func New(c Client, cfg config.Monitor, vesselID string, pub Publisher, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "usv"
	}
	return &Mirror{
		client: c,
		base:   prefix + "/" + vesselID,
		qos:    cfg.QoS,
		pub:    pub,
		log:    logger.With("component", "monitor"),
		newID:  uuid.NewString,
	}
}

// Start connects to the configured broker and returns the running mirror.
// The command topic is (re)subscribed on every connect. The broker may be
// unreachable at boot; paho keeps retrying in the background.
func Start(ctx context.Context, cfg config.Monitor, vesselID string, pub Publisher, logger *slog.Logger) (*Mirror, error) {
	m := New(nil, cfg, vesselID, pub, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		m.log.Info("connected to broker", "broker", cfg.Broker)
		if err := m.SubscribeCommands(); err != nil {
			m.log.Error("command subscription failed", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warn("broker connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	m.client = client
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
		}
	case <-time.After(5 * time.Second):
		m.log.Warn("broker not reachable yet, retrying in background", "broker", cfg.Broker)
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	return m, nil
}

// Topic returns the full topic for suffix.
func (m *Mirror) Topic(suffix string) string { return m.base + "/" + suffix }

// Dropped reports how many messages were not sent while disconnected.
func (m *Mirror) Dropped() uint64 { return m.dropped.Load() }

// Attach subscribes the mirror to the bus events it forwards.
func (m *Mirror) Attach(sub Subscriber) {
	sub.Subscribe(bus.SensorUpdate, "mqtt", m.onSensor)
	sub.Subscribe(bus.StateChange, "mqtt", m.onEvent("state"))
	sub.Subscribe(bus.CommandAck, "mqtt", m.onEvent("ack"))
	sub.Subscribe(bus.Status, "mqtt", m.onEvent("status"))
}

func (m *Mirror) onSensor(_ context.Context, ev bus.Event) error {
	p, ok := ev.Payload.(bus.SensorUpdateEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T", ev.Payload)
	}
	row := telemetry.NewSensorRow("", p.Reading)
	body, err := json.Marshal(struct {
		Values    map[string]float64 `json:"values"`
		Timestamp time.Time          `json:"ts"`
	}{row.Values, row.Timestamp})
	if err != nil {
		return err
	}
	// readings are superseded quickly, so fire and forget
	return m.publish(m.Topic("sensor/"+strings.ToLower(string(row.Sensor))), 0, false, body)
}

type envelope struct {
	Event any       `json:"event"`
	At    time.Time `json:"at"`
}

func (m *Mirror) onEvent(suffix string) bus.Handler {
	return func(_ context.Context, ev bus.Event) error {
		body, err := json.Marshal(envelope{Event: ev.Payload, At: ev.At})
		if err != nil {
			return err
		}
		// retain the latest state so a new monitor sees the current mode
		return m.publish(m.Topic(suffix), m.qos, suffix == "state", body)
	}
}

func (m *Mirror) publish(topic string, qos byte, retained bool, body []byte) error {
	if m.client == nil || !m.client.IsConnected() {
		m.dropped.Add(1)
		return nil
	}
	token := m.client.Publish(topic, qos, retained, body)
	if qos == 0 {
		return nil
	}
	if !token.WaitTimeout(publishTimeout) {
		observability.SinkErrors.WithLabelValues("mqtt").Inc()
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		observability.SinkErrors.WithLabelValues("mqtt").Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// SubscribeCommands subscribes to the command topic.
func (m *Mirror) SubscribeCommands() error {
	topic := m.Topic("command")
	token := m.client.Subscribe(topic, m.qos, m.handleCommand)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	m.log.Info("subscribed", "topic", topic)
	return nil
}

func (m *Mirror) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := m.ParseCommand(msg.Payload())
	if err != nil {
		m.log.Warn("rejected command message", "topic", msg.Topic(), "error", err)
		m.pub.Publish(bus.CommandAckEvent{ID: cmd.ID, Name: cmd.Name, Reason: err.Error()})
		return
	}
	m.log.Info("command received", "id", cmd.ID, "name", cmd.Name)
	m.pub.Publish(cmd)
}

// ParseCommand decodes an inbound command payload.
func (m *Mirror) ParseCommand(payload []byte) (bus.CommandEvent, error) {
	return bus.DecodeCommand(payload, commandSource, m.newID)
}

// Close disconnects from the broker.
func (m *Mirror) Close() {
	if m.client != nil {
		m.client.Disconnect(250)
	}
}
