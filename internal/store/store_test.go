package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mvvplatform/internal/journal"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func event(session string, seq, orderID int64, kind journal.Kind) journal.Event {
	return journal.Event{
		Seq:     seq,
		Session: session,
		OrderID: orderID,
		Class:   "LOAD",
		Kind:    kind,
		Worker:  journal.NoWorker,
		At:      time.Unix(1700000000, seq),
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"sessions", "events"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestWriteEvent_ReadSessionInSeqOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteEvent(ctx, event("s1", 3, 7, journal.KindFinished)))
	require.NoError(t, s.WriteEvent(ctx, event("s1", 1, 7, journal.KindSubmitted)))
	require.NoError(t, s.WriteEvent(ctx, event("s1", 2, 7, journal.KindStarted)))
	require.NoError(t, s.WriteEvent(ctx, event("s2", 1, 9, journal.KindSubmitted)))

	events, err := s.ReadSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []journal.Kind{journal.KindSubmitted, journal.KindStarted, journal.KindFinished},
		[]journal.Kind{events[0].Kind, events[1].Kind, events[2].Kind})
	assert.Equal(t, "LOAD", events[0].Class)
	assert.Equal(t, journal.NoWorker, events[0].Worker)
	assert.Equal(t, time.Unix(1700000000, 1).UnixNano(), events[0].At.UnixNano())
}

func TestWriteEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := event("s1", 1, 7, journal.KindSubmitted)
	require.NoError(t, s.WriteEvent(ctx, ev))
	require.NoError(t, s.WriteEvent(ctx, ev))

	events, err := s.ReadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestReadSession_Empty(t *testing.T) {
	s := createTestStore(t)

	events, err := s.ReadSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, events, "empty slice, not nil")
	assert.Empty(t, events)
}

func TestReadOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteEvent(ctx, event("s1", 1, 7, journal.KindSubmitted)))
	require.NoError(t, s.WriteEvent(ctx, event("s1", 2, 8, journal.KindSubmitted)))
	require.NoError(t, s.WriteEvent(ctx, event("s1", 3, 7, journal.KindFinished)))

	events, err := s.ReadOrder(ctx, "s1", 7)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)
}

func TestRecord_ThroughLog(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := journal.Recorder(s)
	rec.Record(event("b-session", 1, 1, journal.KindSubmitted))
	rec.Record(event("a-session", 1, 2, journal.KindSubmitted))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-session", "a-session"}, sessions, "sessions sort by start time")
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.WriteEvent(ctx, event("s1", 1, 7, journal.KindSubmitted)))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s2.WriteEvent(ctx, event("s1", 2, 7, journal.KindFinished)))
	events, err := s2.ReadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
