package driver

import (
	"context"
	"fmt"

	"github.com/openexhibits/tessera-core/internal/component"
	"github.com/openexhibits/tessera-core/internal/infrastructure/mqtt"
)

// Publisher is the slice of the MQTT client the bridge driver needs.
type Publisher interface {
	PublishString(topic string, payload string, qos byte, retained bool) error
	IsConnected() bool
}

// MQTTBridge delivers commands over the broker for components whose
// control point subscribes to its own command topic, and activates DMX
// scenes for the lighting bridge.
//
// Commands publish at QoS 1, never retained: a command is an event, and
// replaying the last one to a freshly subscribed device would be wrong.
type MQTTBridge struct {
	pub    Publisher
	logger Logger
}

// NewMQTTBridge creates the bridge driver over a connected MQTT client.
func NewMQTTBridge(pub Publisher) *MQTTBridge {
	return &MQTTBridge{pub: pub, logger: noopLogger{}}
}

// SetLogger sets the driver's logger.
func (b *MQTTBridge) SetLogger(logger Logger) { b.logger = logger }

// Send publishes a command to the component's own command topic.
// Implements the registry's CommandSender; a returned error makes the
// registry fall back to the pull queue.
func (b *MQTTBridge) Send(ctx context.Context, c *component.Component, command string) error {
	if !b.pub.IsConnected() {
		return fmt.Errorf("sending %q to %s: broker not connected", command, c.ID)
	}

	topic := mqtt.Topics{}.Command(string(c.Kind), c.ID)
	if err := b.pub.PublishString(topic, command, 1, false); err != nil {
		return fmt.Errorf("sending %q to %s: %w", command, c.ID, err)
	}

	b.logger.Debug("command sent over broker", "id", c.ID, "topic", topic, "command", command)
	return nil
}

// PublishScene activates a lighting scene on the DMX bridge. Implements
// the schedule engine's ScenePublisher.
func (b *MQTTBridge) PublishScene(ctx context.Context, scene string) error {
	if !b.pub.IsConnected() {
		return fmt.Errorf("activating scene %q: broker not connected", scene)
	}

	topic := mqtt.Topics{}.SceneActivate(scene)
	if err := b.pub.PublishString(topic, scene, 1, false); err != nil {
		return fmt.Errorf("activating scene %q: %w", scene, err)
	}

	b.logger.Info("dmx scene activated", "scene", scene)
	return nil
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
