// Package mqtt provides MQTT client connectivity for the tessera
// orchestrator.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the push path of the fleet: components that cannot be reached
// by the pull queue in time (DMX bridges, projectors behind a gateway,
// anything that subscribes to its own command topic) get commands over
// the broker, while kiosks keep using the heartbeat pull queue. The
// broker also carries lighting scene activations for the schedule
// engine.
//
//	tessera core ↔ MQTT broker ↔ subscribing devices / bridges
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Push a command to one device
//	topic := mqtt.Topics{}.Command("projector", "proj-east")
//	client.PublishString(topic, "power_on", 1, false)
package mqtt
