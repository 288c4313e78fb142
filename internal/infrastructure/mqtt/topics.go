package mqtt

import "fmt"

// Topic prefixes for the tessera broker namespace.
//
// The flat scheme is tessera/{category}/{kind}/{id}: every device that
// subscribes for push delivery watches exactly one command topic, and
// wildcard subscribers (dashboards, bridge debuggers) can watch a whole
// category with a single filter.
const (
	// TopicPrefix is the base for all tessera topics.
	TopicPrefix = "tessera"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tessera/system"
)

// Topics provides builders for tessera MQTT topics. Using these helpers
// keeps topic naming consistent across the codebase.
type Topics struct{}

// Command returns the push-delivery command topic for one component.
//
// Example: tessera/command/projector/proj-east
func (Topics) Command(kind, id string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, kind, id)
}

// Status returns the retained status mirror topic for one component.
//
// Example: tessera/status/kiosk-1
func (Topics) Status(id string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, id)
}

// Heartbeat returns the inbound heartbeat topic for one broker-attached
// component. Devices without an HTTP stack (DMX bridges, embedded
// players) push their liveness here instead of POSTing /heartbeat.
//
// Example: tessera/heartbeat/bridge-dmx-1
func (Topics) Heartbeat(id string) string {
	return fmt.Sprintf("%s/heartbeat/%s", TopicPrefix, id)
}

// AllHeartbeats returns a pattern matching every inbound heartbeat topic.
//
// Pattern: tessera/heartbeat/+
func (Topics) AllHeartbeats() string {
	return fmt.Sprintf("%s/heartbeat/+", TopicPrefix)
}

// SceneActivate returns the activation topic for a DMX lighting scene.
//
// Example: tessera/scene/gallery-dim/activate
func (Topics) SceneActivate(scene string) string {
	return fmt.Sprintf("%s/scene/%s/activate", TopicPrefix, scene)
}

// SystemStatus returns the orchestrator's own status topic, used for the
// online/offline announcements and the broker's last-will message.
//
// Example: tessera/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching every component command topic.
//
// Pattern: tessera/command/+/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefix)
}

// AllStatus returns a pattern matching every component status mirror.
//
// Pattern: tessera/status/+
func (Topics) AllStatus() string {
	return fmt.Sprintf("%s/status/+", TopicPrefix)
}

// AllTopics returns a pattern matching all tessera topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: tessera/#
func (Topics) AllTopics() string {
	return "tessera/#"
}
