package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openexhibits/tessera-core/internal/component"
	"github.com/openexhibits/tessera-core/internal/infrastructure/mqtt"
)

// Subscriber is the slice of the MQTT client the listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Fleet is the registry surface the listener feeds. IngestHeartbeat
// drains the component's command queue; Get resolves the kind needed to
// address the device's command topic.
type Fleet interface {
	IngestHeartbeat(ctx context.Context, hb component.Heartbeat) (*component.HeartbeatReply, error)
	Get(id string) (*component.Component, error)
}

// MQTTListener ingests heartbeats from broker-attached components.
//
// Devices with no HTTP stack (DMX bridges, embedded players) publish
// heartbeat JSON to tessera/heartbeat/<id>. The listener feeds each one
// through the same registry path as the HTTP endpoint, then pushes any
// drained commands back out on the device's own command topic: a
// broker-attached device has no pull channel to collect them from, so
// the at-most-once drain completes over the broker instead.
type MQTTListener struct {
	sub    Subscriber
	pub    Publisher
	fleet  Fleet
	logger Logger
}

// NewMQTTListener creates the listener over a connected MQTT client.
func NewMQTTListener(sub Subscriber, pub Publisher, fleet Fleet) *MQTTListener {
	return &MQTTListener{sub: sub, pub: pub, fleet: fleet, logger: noopLogger{}}
}

// SetLogger sets the listener's logger.
func (l *MQTTListener) SetLogger(logger Logger) { l.logger = logger }

// Start subscribes to the broker heartbeat topics. Paho restores the
// subscription across reconnects, so one call covers the process
// lifetime.
func (l *MQTTListener) Start() error {
	if err := l.sub.Subscribe(mqtt.Topics{}.AllHeartbeats(), 1, l.onHeartbeat); err != nil {
		return fmt.Errorf("subscribing to broker heartbeats: %w", err)
	}
	l.logger.Info("broker heartbeat listener started", "topic", mqtt.Topics{}.AllHeartbeats())
	return nil
}

// Stop drops the heartbeat subscription.
func (l *MQTTListener) Stop() error {
	return l.sub.Unsubscribe(mqtt.Topics{}.AllHeartbeats())
}

// onHeartbeat handles one inbound broker heartbeat. A payload naming no
// identity falls back to the trailing topic segment, so a minimal bridge
// can publish "{}" to its own topic and still register.
func (l *MQTTListener) onHeartbeat(topic string, payload []byte) error {
	var hb component.Heartbeat
	if err := json.Unmarshal(payload, &hb); err != nil {
		return fmt.Errorf("decoding heartbeat on %s: %w", topic, err)
	}
	if hb.UUID == "" && hb.ID == "" {
		hb.ID = idFromTopic(topic)
	}

	reply, err := l.fleet.IngestHeartbeat(context.Background(), hb)
	if err != nil {
		return fmt.Errorf("ingesting broker heartbeat on %s: %w", topic, err)
	}

	if len(reply.Commands) == 0 {
		return nil
	}
	c, err := l.fleet.Get(reply.ID)
	if err != nil {
		return fmt.Errorf("resolving %s for command delivery: %w", reply.ID, err)
	}
	cmdTopic := mqtt.Topics{}.Command(string(c.Kind), c.ID)
	for _, command := range reply.Commands {
		if err := l.pub.PublishString(cmdTopic, command, 1, false); err != nil {
			// The drain already happened; a lost publish is a lost
			// command, same contract as a dropped HTTP response body.
			l.logger.Warn("delivering drained command failed",
				"id", c.ID, "command", command, "error", err)
		}
	}
	return nil
}

// idFromTopic extracts the component id from tessera/heartbeat/<id>.
func idFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
