package mqtt

import (
	"fmt"
)

// maxPayloadSize caps a single publish at 1MB, in line with common
// broker defaults. Tessera payloads are commands and small JSON blobs;
// anything larger is a caller bug.
const maxPayloadSize = 1 << 20

// Publish sends a payload to a topic and waits for the broker ack (or
// the publish timeout, whichever comes first).
//
// Retained messages should be reserved for state topics like the system
// status mirror: the broker hands them to every late subscriber, which
// is exactly wrong for commands and events.
//
//	topic := mqtt.Topics{}.Command("projector", "proj-east")
//	err := client.Publish(topic, []byte("power_on"), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the configured default
// QoS. For state topics whose latest value should greet new subscribers.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
