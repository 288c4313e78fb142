// Package driver holds the protocol adapters that carry commands and
// probes to physical devices: the MQTT bridge sender for push-capable
// components, the wake-on-LAN magic packet sender, the ICMP latency
// prober, and the PJLink projector prober.
//
// Drivers translate between the registry's protocol-neutral operations
// and device bytes. The registry never sees a topic, socket, or packet;
// drivers never touch registry state — they receive a component snapshot
// and return a result or error.
package driver
