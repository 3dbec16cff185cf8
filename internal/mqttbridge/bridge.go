// Package mqttbridge mirrors the control protocol over MQTT: messages on the
// update topic are applied like TCP lines, and button events are published
// to the event topic.
package mqttbridge

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/whisplay/whisplayd/internal/config"
	"github.com/whisplay/whisplayd/internal/control"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Handler runs one control message; see control.Handler.
type Handler interface {
	Handle(line []byte) [][]byte
}

// Bridge connects one MQTT client to the control handler.
type Bridge struct {
	cfg     config.MQTTConfig
	handler Handler
	log     *log.Logger

	mu        sync.RWMutex
	client    mqtt.Client
	connected bool

	// publish is replaced in tests.
	publish func(topic string, payload []byte) error
}

// New returns a bridge. Nothing connects until Connect.
func New(cfg config.MQTTConfig, h Handler, logger *log.Logger) *Bridge {
	b := &Bridge{cfg: cfg, handler: h, log: logger}
	b.publish = b.clientPublish
	return b
}

// Connect dials the broker and subscribes to the update topic. The
// subscription is renewed on every reconnect.
func (b *Bridge) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(b.cfg.Broker))
	opts.SetClientID(b.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		b.setConnected(true)
		b.log.Info("mqtt connected", "broker", b.cfg.Broker, "client_id", b.cfg.ClientID)
		tok := c.Subscribe(b.cfg.UpdateTopic, b.cfg.QoS, b.onMessage)
		if tok.WaitTimeout(connectTimeout) && tok.Error() != nil {
			b.log.Error("mqtt subscribe failed", "topic", b.cfg.UpdateTopic, "err", tok.Error())
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.setConnected(false)
		b.log.Warn("mqtt connection lost, reconnecting", "err", err)
	}

	client := mqtt.NewClient(opts)
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	b.log.Info("connecting to mqtt broker", "broker", b.cfg.Broker)
	tok := client.Connect()
	select {
	case <-tok.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connect %s: timeout", b.cfg.Broker)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, err)
	}
	return nil
}

// brokerURL adds the tcp scheme to a bare host:port.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func (b *Bridge) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	b.handle(msg.Payload())
}

// handle applies payload. Error replies are logged; response records are
// published to the event topic.
func (b *Bridge) handle(payload []byte) {
	for _, reply := range b.handler.Handle(bytes.TrimSpace(payload)) {
		switch {
		case bytes.Equal(reply, []byte("OK")):
		case bytes.HasPrefix(reply, []byte("ERROR")):
			b.log.Warn("mqtt update rejected", "reply", string(reply))
		default:
			if err := b.publish(b.cfg.EventTopic, reply); err != nil {
				b.log.Warn("failed to publish response", "err", err)
			}
		}
	}
}

// PublishEvent sends a button event to the event topic.
func (b *Bridge) PublishEvent(name string) {
	if err := b.publish(b.cfg.EventTopic, control.EventLine(name)); err != nil {
		b.log.Warn("failed to publish event", "event", name, "err", err)
	}
}

func (b *Bridge) clientPublish(topic string, payload []byte) error {
	b.mu.RLock()
	client, connected := b.client, b.connected
	b.mu.RUnlock()
	if client == nil || !connected {
		return fmt.Errorf("mqtt not connected")
	}
	tok := client.Publish(topic, b.cfg.QoS, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return tok.Error()
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.mu.Lock()
	client := b.client
	b.connected = false
	b.mu.Unlock()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		b.log.Info("mqtt disconnected")
	}
}
