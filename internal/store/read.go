package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/mvvplatform/internal/journal"
)

// ReadSession returns all events for a session ordered by seq.
// Returns an empty slice (not nil) if the session has no events.
func (s *Store) ReadSession(ctx context.Context, session string) ([]journal.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, order_id, class, kind, worker, error, at
		FROM events
		WHERE session = ?
		ORDER BY seq ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ReadOrder returns the events of one order within a session, ordered by seq.
func (s *Store) ReadOrder(ctx context.Context, session string, orderID int64) ([]journal.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, order_id, class, kind, worker, error, at
		FROM events
		WHERE session = ? AND order_id = ?
		ORDER BY seq ASC
	`, session, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Sessions returns every session token, oldest first.
// UUIDv7 tokens sort by creation time, so token order breaks ties.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token FROM sessions
		ORDER BY started_at ASC, token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func scanEvents(rows *sql.Rows) ([]journal.Event, error) {
	events := []journal.Event{}
	for rows.Next() {
		var (
			ev   journal.Event
			kind string
			at   int64
		)
		if err := rows.Scan(&ev.Session, &ev.Seq, &ev.OrderID, &ev.Class, &kind, &ev.Worker, &ev.Err, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = journal.Kind(kind)
		ev.At = time.Unix(0, at)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
