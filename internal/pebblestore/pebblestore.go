// Package pebblestore is a journal.Store backed by a Pebble LSM.
//
// Key layout:
//
//	session/<token>            -> [startedAt:8]
//	ev/<token>/<seq%020d>      -> encoded event
//
// Zero-padded sequence numbers make lexical key order equal seq order, so a
// bounded iterator over one session prefix reads events back in emission
// order.
package pebblestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/roach88/mvvplatform/internal/journal"
)

const (
	sessionPrefix = "session/"
	eventPrefix   = "ev/"
)

// Store is a journal.Store on Pebble.
type Store struct {
	db    *pebble.DB
	write *pebble.WriteOptions

	mu       sync.Mutex
	sessions map[string]bool
}

var _ journal.Store = (*Store)(nil)

// Option configures Open.
type Option func(*Store)

// WithSync controls whether every write is fsynced (default true).
func WithSync(sync bool) Option {
	return func(s *Store) {
		if sync {
			s.write = pebble.Sync
		} else {
			s.write = pebble.NoSync
		}
	}
}

// Open creates or opens a Pebble journal in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble journal %q: %w", dir, err)
	}
	s := &Store{
		db:       db,
		write:    pebble.Sync,
		sessions: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// WriteEvent stores ev under its session and seq. Rewriting the same
// (session, seq) overwrites with identical content.
func (s *Store) WriteEvent(ev journal.Event) error {
	if ev.Session == "" {
		return errors.New("write event: empty session")
	}
	rec, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("write event %s/%d: %w", ev.Session, ev.Seq, err)
	}
	if err := s.ensureSession(ev); err != nil {
		return err
	}
	if err := s.db.Set(eventKey(ev.Session, ev.Seq), rec, s.write); err != nil {
		return fmt.Errorf("write event %s/%d: %w", ev.Session, ev.Seq, err)
	}
	return nil
}

// Record implements journal.Recorder; failures are logged.
func (s *Store) Record(ev journal.Event) {
	if err := s.WriteEvent(ev); err != nil {
		slog.Error("journal write failed", "session", ev.Session, "seq", ev.Seq, "error", err)
	}
}

func (s *Store) ensureSession(ev journal.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions[ev.Session] {
		return nil
	}
	key := []byte(sessionPrefix + ev.Session)
	_, closer, err := s.db.Get(key)
	switch {
	case err == nil:
		closer.Close()
	case errors.Is(err, pebble.ErrNotFound):
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(ev.At.UnixNano()))
		if err := s.db.Set(key, buf, s.write); err != nil {
			return fmt.Errorf("write session %q: %w", ev.Session, err)
		}
	default:
		return fmt.Errorf("read session %q: %w", ev.Session, err)
	}
	s.sessions[ev.Session] = true
	return nil
}

// ReadSession returns the session's events in seq order.
func (s *Store) ReadSession(ctx context.Context, session string) ([]journal.Event, error) {
	prefix := []byte(eventPrefix + session + "/")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	events := []journal.Event{}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := decodeEvent(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		seq, err := parseSeq(iter.Key(), prefix)
		if err != nil {
			return nil, err
		}
		ev.Session = session
		ev.Seq = seq
		events = append(events, ev)
	}
	return events, iter.Error()
}

// Sessions returns every session token, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	prefix := []byte(sessionPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	type entry struct {
		token   string
		started uint64
	}
	var entries []entry
	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) != 8 {
			return nil, fmt.Errorf("invalid session record %s", iter.Key())
		}
		entries = append(entries, entry{
			token:   string(bytes.TrimPrefix(iter.Key(), prefix)),
			started: binary.BigEndian.Uint64(val),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].started < entries[j].started
	})
	tokens := make([]string, 0, len(entries))
	for _, e := range entries {
		tokens = append(tokens, e.token)
	}
	return tokens, nil
}

// -------------------- Encoding --------------------

// binary encoding:
// [orderID:8][worker:4][at:8][kindLen:1][kind][classLen:2][class][errLen:4][err]
// Fields longer than their length prefix are rejected.
func encodeEvent(ev journal.Event) ([]byte, error) {
	kind := string(ev.Kind)
	switch {
	case len(kind) > math.MaxUint8:
		return nil, fmt.Errorf("%w: kind is %d bytes", errFieldTooLong, len(kind))
	case len(ev.Class) > math.MaxUint16:
		return nil, fmt.Errorf("%w: class is %d bytes", errFieldTooLong, len(ev.Class))
	case uint64(len(ev.Err)) > math.MaxUint32:
		return nil, fmt.Errorf("%w: error is %d bytes", errFieldTooLong, len(ev.Err))
	}
	buf := make([]byte, 0, 8+4+8+1+len(kind)+2+len(ev.Class)+4+len(ev.Err))
	buf = binary.BigEndian.AppendUint64(buf, uint64(ev.OrderID))
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(ev.Worker)))
	buf = binary.BigEndian.AppendUint64(buf, uint64(ev.At.UnixNano()))
	buf = append(buf, byte(len(kind)))
	buf = append(buf, kind...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(ev.Class)))
	buf = append(buf, ev.Class...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(ev.Err)))
	buf = append(buf, ev.Err...)
	return buf, nil
}

var (
	errShortRecord  = errors.New("invalid event record length")
	errFieldTooLong = errors.New("event field too long")
)

func decodeEvent(b []byte) (journal.Event, error) {
	var ev journal.Event
	if len(b) < 8+4+8+1 {
		return ev, errShortRecord
	}
	ev.OrderID = int64(binary.BigEndian.Uint64(b[0:8]))
	ev.Worker = int(int32(binary.BigEndian.Uint32(b[8:12])))
	ev.At = time.Unix(0, int64(binary.BigEndian.Uint64(b[12:20])))
	b = b[20:]

	n := int(b[0])
	b = b[1:]
	if len(b) < n+2 {
		return ev, errShortRecord
	}
	ev.Kind = journal.Kind(b[:n])
	b = b[n:]

	n = int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < n+4 {
		return ev, errShortRecord
	}
	ev.Class = string(b[:n])
	b = b[n:]

	n = int(binary.BigEndian.Uint32(b[:4]))
	b = b[4:]
	if len(b) != n {
		return ev, errShortRecord
	}
	ev.Err = string(b)
	return ev, nil
}

// -------------------- Helpers --------------------

func eventKey(session string, seq int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", eventPrefix, session, seq))
}

func parseSeq(key, prefix []byte) (int64, error) {
	var seq int64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(key, prefix)), "%d", &seq)
	if err != nil {
		return 0, fmt.Errorf("parse key %s: %w", key, err)
	}
	return seq, nil
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
