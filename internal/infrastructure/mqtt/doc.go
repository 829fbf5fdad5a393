// Package mqtt provides the gateway's MQTT publisher.
//
// This package manages:
//   - Connection to a Mosquitto broker with auto-reconnect
//   - Publishing terminal probe results and operation events
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// The gateway only publishes. Other Gray Logic services subscribe to
// graylogic/access/terminal/+/health for terminal reachability and to
// graylogic/access/terminal/+/event/# for the live operation stream.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Comm keys are never published; endpoints are host:port only
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	id := mqtt.Topics{}.TerminalID("192.168.1.201", 4370)
//	err = client.PublishJSON(mqtt.Topics{}.TerminalHealth(id), msg, true)
package mqtt
