package terminal

import (
	"context"
	"time"
)

// Operation is work done on an open session.
type Operation[T any] func(ctx context.Context, s Session) (T, error)

// SessionOption configures WithSession and Probe.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	op     string
	logger Logger
}

// Named sets the operation name used in errors and log entries.
func Named(op string) SessionOption {
	return func(c *sessionConfig) { c.op = op }
}

// Logged sets the logger used to report release failures.
func Logged(l Logger) SessionOption {
	return func(c *sessionConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func newSessionConfig(opts []SessionOption) sessionConfig {
	c := sessionConfig{op: "session", logger: nopLogger{}}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// WithSession opens a session to ep, runs op on it, and closes it.
//
// The session is released exactly once on every exit path, including a
// panic in op, which is re-raised after release. ep.Timeout bounds the
// whole call. There are no retries.
//
// Errors are *Error values. Dial failures are KindConnectivity unless the
// driver tagged them otherwise; op failures are KindOperation unless
// tagged. A release failure after op succeeded is logged and does not
// change the result.
func WithSession[T any](ctx context.Context, d Driver, ep Endpoint, op Operation[T], opts ...SessionOption) (T, error) {
	v, _, err := runSession(ctx, d, ep, op, newSessionConfig(opts))
	return v, err
}

// runSession is WithSession that also reports how long the dial took.
func runSession[T any](ctx context.Context, d Driver, ep Endpoint, op Operation[T], cfg sessionConfig) (result T, connectLatency time.Duration, err error) {
	var zero T

	if err := ep.Validate(); err != nil {
		return zero, 0, wrap(cfg.op, ep.Transport, KindInvalid, err)
	}

	if ep.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
	}

	start := time.Now()
	sess, err := d.Dial(ctx, ep)
	if err != nil {
		return zero, 0, wrap(cfg.op, ep.Transport, KindConnectivity, err)
	}
	if sess == nil {
		return zero, 0, wrap(cfg.op, ep.Transport, KindConnectivity, ErrUnreachable)
	}
	connectLatency = time.Since(start)

	defer func() {
		if cerr := sess.Disconnect(); cerr != nil {
			cfg.logger.Warn("terminal disconnect failed",
				"op", cfg.op,
				"endpoint", ep.String(),
				"error", cerr,
			)
		}
	}()

	result, err = op(ctx, sess)
	if err != nil {
		return zero, connectLatency, wrap(cfg.op, ep.Transport, KindOperation, err)
	}
	return result, connectLatency, nil
}
