package audit

import (
	"context"
	"maps"
	"sync"

	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// writerChanSize is the buffer size for the async audit channel.
// Entries beyond this are dropped to avoid back-pressure on requests.
const writerChanSize = 256

// Logger is the logging interface used by Writer.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Writer implements terminal.Auditor by queueing entries and writing them
// serially from one goroutine. Writes are best-effort: a full queue drops
// the entry with a warning.
type Writer struct {
	repo   Repository
	logger Logger
	source string
	ch     chan *AuditLog

	done chan struct{}
	once sync.Once
}

// NewWriter creates a Writer. Call Run to start draining.
func NewWriter(repo Repository, logger Logger, source string) *Writer {
	if source == "" {
		source = "api"
	}
	return &Writer{
		repo:   repo,
		logger: logger,
		source: source,
		ch:     make(chan *AuditLog, writerChanSize),
		done:   make(chan struct{}),
	}
}

// FromOperation converts an operation record into an audit entry. The
// details map is copied; rec is not modified.
func FromOperation(rec terminal.OperationRecord, source string) *AuditLog {
	entry := &AuditLog{
		Action:    rec.Action,
		Endpoint:  rec.Endpoint.String(),
		Target:    rec.Target,
		Transport: string(rec.Transport),
		Outcome:   OutcomeSuccess,
		Actor:     rec.Actor,
		Source:    source,
		Details:   maps.Clone(rec.Details),
		CreatedAt: rec.At.UTC(),
	}
	if rec.Err != nil {
		entry.Outcome = OutcomeFailure
		entry.Error = rec.Err.Error()
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["kind"] = terminal.KindOf(rec.Err).String()
	}
	return entry
}

// RecordOperation enqueues rec. It never blocks and never fails; drops
// are logged.
func (w *Writer) RecordOperation(_ context.Context, rec terminal.OperationRecord) error {
	entry := FromOperation(rec, w.source)
	select {
	case w.ch <- entry:
	default:
		w.logger.Warn("audit channel full, dropping entry",
			"action", entry.Action,
			"endpoint", entry.Endpoint,
		)
	}
	return nil
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left and returns.
func (w *Writer) Run(ctx context.Context) {
	defer w.once.Do(func() { close(w.done) })
	for {
		select {
		case entry := <-w.ch:
			w.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-w.ch:
					w.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Done is closed when Run has returned.
func (w *Writer) Done() <-chan struct{} { return w.done }

func (w *Writer) write(entry *AuditLog) {
	if err := w.repo.Create(context.Background(), entry); err != nil {
		w.logger.Error("audit log write failed",
			"action", entry.Action,
			"endpoint", entry.Endpoint,
			"error", err,
		)
	}
}
