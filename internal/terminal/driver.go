package terminal

import (
	"context"
	"time"
)

// Driver opens sessions to terminals.
//
// Dial must honour ctx cancellation. A comm key rejection should be
// reported as (or wrap) ErrAuthFailed so it can be told apart from an
// unreachable terminal.
type Driver interface {
	Dial(ctx context.Context, ep Endpoint) (Session, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, ep Endpoint) (Session, error)

// Dial calls f.
func (f DriverFunc) Dial(ctx context.Context, ep Endpoint) (Session, error) {
	return f(ctx, ep)
}

// Session is an open connection to one terminal. It belongs to the call
// that opened it and is not safe for concurrent use.
//
// Methods return ErrUnsupported (or a wrapped form) for capabilities the
// terminal lacks and ErrNotFound for absent records.
type Session interface {
	// Users returns every user record stored on the terminal.
	Users(ctx context.Context) ([]RawUser, error)

	// SetUser creates the user or overwrites the record with the same UID.
	SetUser(ctx context.Context, u RawUser) error

	// DeleteUser removes the user with the given UID.
	DeleteUser(ctx context.Context, uid int) error

	// Attendance returns every stored attendance punch.
	Attendance(ctx context.Context) ([]RawAttendance, error)

	Time(ctx context.Context) (time.Time, error)
	SetTime(ctx context.Context, t time.Time) error
	NetworkParams(ctx context.Context) (NetworkParams, error)
	ReadSizes(ctx context.Context) (MemoryUsage, error)

	// Info reads a single identity field.
	Info(ctx context.Context, field InfoField) (string, error)

	// Unlock releases the door relay for d.
	Unlock(ctx context.Context, d time.Duration) error

	// TestVoice plays the prompt with the given index.
	TestVoice(ctx context.Context, index int) error

	Restart(ctx context.Context) error

	// Disconnect releases the session. It is called exactly once.
	Disconnect() error
}

// Logger is the logging interface used by this package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
