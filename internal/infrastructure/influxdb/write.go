package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementProbe is the measurement name for probe points.
const MeasurementProbe = "terminal_probe"

// ProbeMetric is one health or status probe of a terminal.
type ProbeMetric struct {
	// Endpoint is host:port. Comm keys never reach the metrics store.
	Endpoint  string
	Operation string

	// Transport is the transport that answered; empty when both failed.
	Transport string

	OK       bool
	Latency  time.Duration
	Attempts int
	At       time.Time
}

// NewProbePoint builds the point written for m.
//
// Tags: endpoint, operation, outcome (success|failure) and, when a
// transport answered, transport. Fields: latency_ms, attempts.
func NewProbePoint(m ProbeMetric) *write.Point {
	outcome := "failure"
	if m.OK {
		outcome = "success"
	}
	tags := map[string]string{
		"endpoint":  m.Endpoint,
		"operation": m.Operation,
		"outcome":   outcome,
	}
	if m.Transport != "" {
		tags["transport"] = m.Transport
	}

	at := m.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		MeasurementProbe,
		tags,
		map[string]interface{}{
			"latency_ms": float64(m.Latency.Microseconds()) / 1000,
			"attempts":   m.Attempts,
		},
		at,
	)
}

// WriteProbeMetric queues a probe point. The write is non-blocking; data
// is batched and sent asynchronously. It is a no-op when disconnected.
func (c *Client) WriteProbeMetric(m ProbeMetric) {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewProbePoint(m))
	c.queued.Add(1)
}
