package terminal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a terminal failure. The HTTP layer maps kinds to status
// codes; nothing below it deals in status codes.
type Kind int

const (
	// KindOperation is a failure reported by the terminal while running an
	// operation on an open session.
	KindOperation Kind = iota

	// KindConnectivity means the terminal could not be reached or the
	// session broke or timed out.
	KindConnectivity

	// KindAuth means the terminal rejected the comm key.
	KindAuth

	// KindNotFound means the addressed record does not exist on the terminal.
	KindNotFound

	// KindUnsupported means the terminal or gateway does not offer the capability.
	KindUnsupported

	// KindInvalid means the request itself is malformed.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindOperation:
		return "operation"
	case KindConnectivity:
		return "connectivity"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors. Drivers return or wrap these to tag a failure; the
// session wrapper turns them into the matching Kind.
var (
	ErrNotFound    = errors.New("terminal: not found")
	ErrUnsupported = errors.New("terminal: not supported")
	ErrAuthFailed  = errors.New("terminal: unauthenticated")
	ErrUnreachable = errors.New("terminal: unreachable")

	// ErrSessionClosed is returned by drivers for calls on a released session.
	ErrSessionClosed = errors.New("terminal: session closed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindUnsupported:
		return ErrUnsupported
	case KindAuth:
		return ErrAuthFailed
	case KindConnectivity:
		return ErrUnreachable
	default:
		return nil
	}
}

// Error is a classified terminal failure.
type Error struct {
	Kind      Kind
	Op        string
	Transport Transport
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Transport != "" {
			b.WriteString(" over ")
			b.WriteString(string(e.Transport))
		}
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match any KindNotFound error, and
// likewise for the other tagged kinds.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of err. Untagged errors are KindOperation.
// For an AggregateError the primary attempt's kind wins.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return classify(err, KindOperation)
}

// AggregateError reports that both transports failed.
type AggregateError struct {
	PrimaryTransport   Transport
	Primary            error
	SecondaryTransport Transport
	Secondary          error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("%s failed: %v; %s failed: %v",
		e.PrimaryTransport, e.Primary, e.SecondaryTransport, e.Secondary)
}

func (e *AggregateError) Unwrap() []error {
	return []error{e.Primary, e.Secondary}
}

// classify tags an untagged error using the sentinels and well-known
// network failures, falling back to def.
func classify(err error, def Kind) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrAuthFailed):
		return KindAuth
	case errors.Is(err, ErrUnreachable),
		errors.Is(err, ErrSessionClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindConnectivity
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}
	return def
}

// wrap attaches op and transport to err. An error that is already an
// *Error keeps its kind; missing op and transport are filled in.
func wrap(op string, t Transport, def Kind, err error) error {
	var te *Error
	if errors.As(err, &te) {
		out := *te
		if out.Op == "" {
			out.Op = op
		}
		if out.Transport == "" {
			out.Transport = t
		}
		return &out
	}
	return &Error{Kind: classify(err, def), Op: op, Transport: t, Err: err}
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func invalidf(op, format string, args ...any) *Error {
	return newError(KindInvalid, op, format, args...)
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(op, format string, args ...any) error {
	return newError(KindNotFound, op, format, args...)
}

// Invalidf builds a KindInvalid error. It is used by callers validating
// request input before any session is opened.
func Invalidf(op, format string, args ...any) error {
	return invalidf(op, format, args...)
}
