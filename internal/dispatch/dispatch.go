// Package dispatch defines the outbound message contract shared by the
// scheduler, the HTTP API and the MCP tools.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/replybot/internal/storage"
)

// ErrNoRecipient is reported when a send has nowhere to go.
var ErrNoRecipient = errors.New("dispatch: no recipient")

// Result is the outcome of a single send. A failed send is a value, not a
// panic; callers inspect OK and carry on.
type Result struct {
	OK  bool
	Err error
	// ID is the transport's identifier for the delivered message, if any.
	ID string
}

// Delivered returns a successful Result.
func Delivered(id string) Result { return Result{OK: true, ID: id} }

// Failed returns an unsuccessful Result carrying err.
func Failed(err error) Result { return Result{Err: err} }

// Sender delivers text to a recipient.
type Sender interface {
	Send(ctx context.Context, recipient, text string) Result
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, recipient, text string) Result

func (f SenderFunc) Send(ctx context.Context, recipient, text string) Result {
	return f(ctx, recipient, text)
}

type originKey struct{}

// WithOrigin tags ctx with the component that initiated a send, such as
// "trigger:morning". Recorders read it back with OriginFrom.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin stored by WithOrigin, or "manual".
func OriginFrom(ctx context.Context) string {
	if v, ok := ctx.Value(originKey{}).(string); ok && v != "" {
		return v
	}
	return "manual"
}

// LogSender writes messages to the log instead of delivering them. It is
// the sender used when no transport is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (l LogSender) Send(ctx context.Context, recipient, text string) Result {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("outbound message", "origin", OriginFrom(ctx), "recipient", recipient, "text", text)
	return Delivered("")
}

// DispatchStore persists dispatch records.
type DispatchStore interface {
	SaveDispatch(d storage.Dispatch) error
}

// Recorder wraps a Sender and writes every attempt to a DispatchStore.
// Failing to record is logged and does not change the Result.
type Recorder struct {
	next   Sender
	store  DispatchStore
	now    func() time.Time
	logger *slog.Logger
}

// NewRecorder returns a Recorder over next. A nil now uses time.Now.
func NewRecorder(next Sender, store DispatchStore, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{next: next, store: store, now: now, logger: slog.Default()}
}

func (r *Recorder) Send(ctx context.Context, recipient, text string) Result {
	var res Result
	if recipient == "" {
		res = Failed(ErrNoRecipient)
	} else {
		res = r.next.Send(ctx, recipient, text)
	}

	rec := storage.Dispatch{
		ID:         uuid.New().String(),
		CreatedAt:  r.now(),
		Origin:     OriginFrom(ctx),
		Recipient:  recipient,
		Text:       text,
		Status:     "sent",
		ExternalID: res.ID,
	}
	if !res.OK {
		rec.Status = "failed"
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
	}
	if err := r.store.SaveDispatch(rec); err != nil {
		r.logger.Warn("failed to record dispatch", "origin", rec.Origin, "error", err)
	}
	return res
}
