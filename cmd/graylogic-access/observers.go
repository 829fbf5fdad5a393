package main

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// jsonPublisher is the part of *mqtt.Client the event publisher needs.
type jsonPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// mqttPublisher publishes terminal events and probe results to MQTT.
type mqttPublisher struct {
	client jsonPublisher
	topics mqtt.Topics
}

func newMQTTPublisher(client jsonPublisher) *mqttPublisher {
	return &mqttPublisher{client: client}
}

// PublishOperation sends one event per mutating operation, not retained.
func (p *mqttPublisher) PublishOperation(_ context.Context, rec terminal.OperationRecord) error {
	id := p.topics.TerminalID(rec.Endpoint.Host, rec.Endpoint.Port)
	return p.client.PublishJSON(p.topics.TerminalEvent(id, rec.Action), eventMessage(rec), false)
}

// PublishProbe replaces the retained health message of the terminal.
func (p *mqttPublisher) PublishProbe(_ context.Context, rep terminal.ProbeReport) error {
	id := p.topics.TerminalID(rep.Endpoint.Host, rep.Endpoint.Port)
	return p.client.PublishJSON(p.topics.TerminalHealth(id), healthMessage(rep), true)
}

func eventMessage(rec terminal.OperationRecord) mqtt.EventMessage {
	entry := audit.FromOperation(rec, "mqtt")
	return mqtt.EventMessage{
		Action:    entry.Action,
		Endpoint:  entry.Endpoint,
		Target:    entry.Target,
		Transport: entry.Transport,
		Outcome:   entry.Outcome,
		Error:     entry.Error,
		Actor:     entry.Actor,
		Details:   entry.Details,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
	}
}

func healthMessage(rep terminal.ProbeReport) mqtt.HealthMessage {
	msg := mqtt.HealthMessage{
		Endpoint:  rep.Endpoint.Address(),
		Operation: rep.Operation,
		OK:        rep.OK,
		Transport: string(rep.Transport),
		LatencyMS: float64(rep.ConnectLatency.Microseconds()) / 1000,
		Attempts:  rep.Attempts,
		Timestamp: rep.At.UTC().Format(time.RFC3339),
	}
	if rep.Err != nil {
		msg.Error = rep.Err.Error()
	}
	return msg
}

// probeWriter is the part of *influxdb.Client the recorder needs.
type probeWriter interface {
	WriteProbeMetric(m influxdb.ProbeMetric)
}

// influxRecorder turns probe reports into terminal_probe points.
type influxRecorder struct {
	client probeWriter
}

func newInfluxRecorder(client probeWriter) *influxRecorder {
	return &influxRecorder{client: client}
}

// RecordProbe queues the point; batch errors surface via SetOnError.
func (r *influxRecorder) RecordProbe(_ context.Context, rep terminal.ProbeReport) error {
	r.client.WriteProbeMetric(probeMetric(rep))
	return nil
}

func probeMetric(rep terminal.ProbeReport) influxdb.ProbeMetric {
	return influxdb.ProbeMetric{
		Endpoint:  rep.Endpoint.Address(),
		Operation: rep.Operation,
		Transport: string(rep.Transport),
		OK:        rep.OK,
		Latency:   rep.ConnectLatency,
		Attempts:  rep.Attempts,
		At:        rep.At,
	}
}
