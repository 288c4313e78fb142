package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHeartbeatTelemetry records the free-form telemetry a component
// reported with one heartbeat (cpu load, frame rate, temperature -
// whatever the exhibit app chooses to send).
//
// The write is non-blocking; data is batched and sent asynchronously.
// Implements the registry's TelemetrySink.
func (c *Client) WriteHeartbeatTelemetry(componentID string, telemetry map[string]float64) {
	if !c.IsConnected() || len(telemetry) == 0 {
		return
	}

	fields := make(map[string]interface{}, len(telemetry))
	for k, v := range telemetry {
		fields[k] = v
	}

	point := write.NewPoint(
		"heartbeat_telemetry",
		map[string]string{
			"component_id": componentID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLatency records one round-trip latency sample for a component.
// Implements the health poller's LatencySink.
func (c *Client) WriteLatency(componentID string, ms float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"latency",
		map[string]string{
			"component_id": componentID,
		},
		map[string]interface{}{
			"rtt_ms": ms,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteStatusTransition records one status change for a component.
// Querying these gives uptime and flap-rate views per exhibit.
// Implements the registry's StatusRecorder.
func (c *Client) WriteStatusTransition(componentID, from, to string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"status_transitions",
		map[string]string{
			"component_id": componentID,
			"to":           to,
		},
		map[string]interface{}{
			"from": from,
			// A constant field so `count()` works without touching tags.
			"transitions": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
