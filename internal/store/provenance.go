package store

import (
	"context"
	"fmt"

	"github.com/roach88/dirsync/internal/model"
)

// AppendProvenance adds an entry to an item's audit trail.
func (s *Store) AppendProvenance(ctx context.Context, e model.ProvenanceEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provenance (item_id, session_id, action, message, seq)
		VALUES (?, ?, ?, ?, ?)
	`, e.ItemID, e.SessionID, e.Action, e.Message, s.clock.Next())
	if err != nil {
		return fmt.Errorf("append provenance for %s: %w", e.ItemID, err)
	}
	return nil
}

// ReadProvenance returns the audit trail of itemID in seq order.
// Returns an empty slice (not nil) when there is none.
func (s *Store) ReadProvenance(ctx context.Context, itemID string) ([]model.ProvenanceEntry, error) {
	return s.readProvenance(ctx, `
		SELECT id, item_id, session_id, action, message, seq
		FROM provenance
		WHERE item_id = ?
		ORDER BY seq ASC, id ASC
	`, itemID)
}

// ReadSessionProvenance returns every entry written by sessionID.
func (s *Store) ReadSessionProvenance(ctx context.Context, sessionID string) ([]model.ProvenanceEntry, error) {
	return s.readProvenance(ctx, `
		SELECT id, item_id, session_id, action, message, seq
		FROM provenance
		WHERE session_id = ?
		ORDER BY seq ASC, id ASC
	`, sessionID)
}

// ReadAllProvenance returns the full audit log in seq order.
func (s *Store) ReadAllProvenance(ctx context.Context) ([]model.ProvenanceEntry, error) {
	return s.readProvenance(ctx, `
		SELECT id, item_id, session_id, action, message, seq
		FROM provenance
		ORDER BY seq ASC, id ASC
	`)
}

func (s *Store) readProvenance(ctx context.Context, query string, args ...any) ([]model.ProvenanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	out := []model.ProvenanceEntry{}
	for rows.Next() {
		var e model.ProvenanceEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.SessionID, &e.Action, &e.Message, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
