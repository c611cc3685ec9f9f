package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/mvvplatform/internal/journal"
)

// WriteEvent inserts a journal event.
// Uses ON CONFLICT DO NOTHING for idempotency: an event with an existing
// (session, seq) is silently ignored.
//
// The session row is created on first use.
func (s *Store) WriteEvent(ctx context.Context, ev journal.Event) error {
	if err := s.ensureSession(ctx, ev); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(session, seq, order_id, class, kind, worker, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.Session,
		ev.Seq,
		ev.OrderID,
		ev.Class,
		string(ev.Kind),
		ev.Worker,
		ev.Err,
		ev.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return nil
}

// Record implements journal.Recorder.
// Write failures are logged, not returned: the scheduler never stalls on
// the journal.
func (s *Store) Record(ev journal.Event) {
	if err := s.WriteEvent(context.Background(), ev); err != nil {
		slog.Error("journal write failed",
			"session", ev.Session,
			"seq", ev.Seq,
			"order_id", ev.OrderID,
			"error", err)
	}
}

func (s *Store) ensureSession(ctx context.Context, ev journal.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions[ev.Session] {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, started_at)
		VALUES (?, ?)
		ON CONFLICT(token) DO NOTHING
	`, ev.Session, ev.At.UnixNano())
	if err != nil {
		return fmt.Errorf("insert session %q: %w", ev.Session, err)
	}
	s.sessions[ev.Session] = true
	return nil
}
