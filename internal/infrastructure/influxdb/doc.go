// Package influxdb records terminal probe outcomes in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes and health monitoring. Every health and
// status probe becomes one point in the terminal_probe measurement:
//
//	terminal_probe,endpoint=192.168.1.201:4370,operation=health,outcome=success,transport=udp latency_ms=12.4,attempts=2i
//
// Dashboards use it to chart terminal reachability and how often the
// secondary transport is needed.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteProbeMetric(influxdb.ProbeMetric{...})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; batch errors
// are delivered to the SetOnError callback.
package influxdb
