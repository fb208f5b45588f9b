package store

import (
	"context"
	"fmt"

	"github.com/roach88/dirsync/internal/model"
)

// LoggedEvent is an event as recorded in the log.
type LoggedEvent struct {
	ID         string
	SessionID  string
	Event      model.Event
	Dispatched bool
	Seq        int64
}

// WriteEvent appends an event to the log.
// Uses ON CONFLICT(id) DO NOTHING: a redelivered event returns inserted=false.
func (s *Store) WriteEvent(ctx context.Context, sessionID string, ev model.Event) (id string, inserted bool, err error) {
	id, err = model.EventID(ev)
	if err != nil {
		return "", false, fmt.Errorf("write event: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, session_id, kind, item_id, version, dispatched, seq)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, sessionID, string(ev.Kind), ev.ItemID, ev.Version, s.clock.Next())
	if err != nil {
		return "", false, fmt.Errorf("write event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("write event: %w", err)
	}
	return id, n == 1, nil
}

// MarkEventDispatched records that every consumer has seen the event.
func (s *Store) MarkEventDispatched(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE events SET dispatched = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark event %s dispatched: %w", id, err)
	}
	return nil
}

// UndispatchedEvents returns logged events whose dispatch never completed,
// in seq order.
func (s *Store) UndispatchedEvents(ctx context.Context) ([]LoggedEvent, error) {
	return s.readEvents(ctx, `
		SELECT id, session_id, kind, item_id, version, dispatched, seq
		FROM events
		WHERE dispatched = 0
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
}

// ReadItemEvents returns the logged events of itemID in seq order.
func (s *Store) ReadItemEvents(ctx context.Context, itemID string) ([]LoggedEvent, error) {
	return s.readEvents(ctx, `
		SELECT id, session_id, kind, item_id, version, dispatched, seq
		FROM events
		WHERE item_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, itemID)
}

func (s *Store) readEvents(ctx context.Context, query string, args ...any) ([]LoggedEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []LoggedEvent{}
	for rows.Next() {
		var le LoggedEvent
		var kind string
		var dispatched int
		if err := rows.Scan(&le.ID, &le.SessionID, &kind, &le.Event.ItemID, &le.Event.Version, &dispatched, &le.Seq); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		le.Event.Kind = model.EventKind(kind)
		le.Dispatched = dispatched != 0
		out = append(out, le)
	}
	return out, rows.Err()
}
