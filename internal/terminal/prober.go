package terminal

import (
	"context"
	"time"
)

// Prober runs an operation over a primary transport and, if that fails
// for any reason, exactly once more over a secondary transport.
type Prober struct {
	driver    Driver
	primary   Transport
	secondary Transport
	logger    Logger
}

// NewProber creates a Prober. Empty transports default to tcp then udp.
func NewProber(d Driver, primary, secondary Transport, logger Logger) *Prober {
	if primary == "" {
		primary = TransportTCP
	}
	if secondary == "" {
		secondary = TransportUDP
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Prober{driver: d, primary: primary, secondary: secondary, logger: logger}
}

// Transports returns the primary and secondary transports.
func (p *Prober) Transports() (primary, secondary Transport) {
	return p.primary, p.secondary
}

// ProbeResult is the outcome of a successful probe.
type ProbeResult[T any] struct {
	Value T

	// Transport is the transport that succeeded.
	Transport Transport

	// ConnectLatency covers the successful dial only.
	ConnectLatency time.Duration

	// Attempts is 1 if the primary succeeded and 2 otherwise.
	Attempts int
}

// Probe runs op against ep over the primary transport, falling back once
// to the secondary. The attempts are sequential; the transport in ep is
// ignored. When both fail the error is an *AggregateError carrying both
// failures.
func Probe[T any](ctx context.Context, p *Prober, ep Endpoint, op Operation[T], opts ...SessionOption) (ProbeResult[T], error) {
	cfg := newSessionConfig(opts)
	if _, ok := cfg.logger.(nopLogger); ok {
		cfg.logger = p.logger
	}

	v, latency, err := runSession(ctx, p.driver, ep.WithTransport(p.primary), op, cfg)
	if err == nil {
		return ProbeResult[T]{Value: v, Transport: p.primary, ConnectLatency: latency, Attempts: 1}, nil
	}
	if KindOf(err) == KindInvalid {
		return ProbeResult[T]{}, err
	}

	p.logger.Debug("primary transport failed, trying secondary",
		"op", cfg.op,
		"endpoint", ep.Address(),
		"primary", p.primary,
		"secondary", p.secondary,
		"error", err,
	)

	v, latency, err2 := runSession(ctx, p.driver, ep.WithTransport(p.secondary), op, cfg)
	if err2 == nil {
		return ProbeResult[T]{Value: v, Transport: p.secondary, ConnectLatency: latency, Attempts: 2}, nil
	}

	return ProbeResult[T]{Attempts: 2}, &AggregateError{
		PrimaryTransport:   p.primary,
		Primary:            err,
		SecondaryTransport: p.secondary,
		Secondary:          err2,
	}
}
