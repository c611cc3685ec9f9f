// Package journal records the lifecycle of orders as they move through the
// scheduler: submitted, started, finished (or failed), dispatched.
//
// Events are stamped with a per-session sequence number from an atomic
// clock, never wall-clock time, so a journal sorts deterministically even
// when events are emitted from several worker goroutines at once. The At
// field is informational only.
package journal

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/roach88/mvvplatform/internal/order"
)

// Kind distinguishes lifecycle events.
type Kind string

const (
	KindSubmitted  Kind = "submitted"
	KindStarted    Kind = "started"
	KindFinished   Kind = "finished"
	KindFailed     Kind = "failed"
	KindDispatched Kind = "dispatched"
	KindDiscarded  Kind = "discarded"
)

// NoWorker marks events that did not happen on a pool worker
// (submission, dispatch, synchronous orders run by the manager).
const NoWorker = -1

// Event is one journal entry.
type Event struct {
	Seq     int64     `json:"seq"`
	Session string    `json:"session"`
	OrderID int64     `json:"order_id"`
	Class   string    `json:"class"`
	Kind    Kind      `json:"kind"`
	Worker  int       `json:"worker"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Recorder persists events.
//
// Implementations must be safe for concurrent use: workers record from
// their own goroutines. Record must not block for long; it sits on the
// scheduling path.
type Recorder interface {
	Record(ev Event)
}

// Reader reads a recorded session back in seq order.
type Reader interface {
	ReadSession(ctx context.Context, session string) ([]Event, error)
	Sessions(ctx context.Context) ([]string, error)
}

// Store is a durable journal backend.
type Store interface {
	Recorder
	Reader
	io.Closer
}

// Log stamps events for one session and forwards them to a Recorder.
//
// A nil *Log is valid and records nothing, so components can take an
// optional journal without nil checks at every call site.
type Log struct {
	rec     Recorder
	session string
	seq     atomic.Int64
	now     func() time.Time
}

// NewLog creates a Log for session writing to rec.
func NewLog(rec Recorder, session string) *Log {
	return &Log{rec: rec, session: session, now: time.Now}
}

// Session returns the session token, or "" for a nil Log.
func (l *Log) Session() string {
	if l == nil {
		return ""
	}
	return l.session
}

// Emit records a lifecycle event for o.
// For finished orders carrying an error the kind is promoted to KindFailed.
func (l *Log) Emit(kind Kind, o *order.Order, worker int) {
	if l == nil || l.rec == nil {
		return
	}

	ev := Event{
		Seq:     l.seq.Add(1),
		Session: l.session,
		OrderID: o.ID(),
		Class:   o.Class().String(),
		Kind:    kind,
		Worker:  worker,
		At:      l.now(),
	}
	if res := o.Result(); res != nil && res.Err != nil {
		ev.Err = res.Err.Error()
		if kind == KindFinished {
			ev.Kind = KindFailed
		}
	}
	l.rec.Record(ev)
}

// Count returns the number of events emitted so far.
func (l *Log) Count() int64 {
	if l == nil {
		return 0
	}
	return l.seq.Load()
}
