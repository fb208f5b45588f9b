package store

import (
	"context"
	"fmt"

	"github.com/roach88/dirsync/internal/model"
)

// WriteDedupDecision records or updates the verdict on (item, duplicate, context).
func (s *Store) WriteDedupDecision(ctx context.Context, d model.DedupDecision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dedup_decisions (item_id, duplicate_id, context, status, note, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, duplicate_id, context)
		DO UPDATE SET status = excluded.status, note = excluded.note, seq = excluded.seq
	`, d.ItemID, d.DuplicateID, d.Context, string(d.Status), d.Note, s.clock.Next())
	if err != nil {
		return fmt.Errorf("write dedup decision %s/%s: %w", d.ItemID, d.DuplicateID, err)
	}
	return nil
}

// DedupDecisions returns the decisions recorded for itemID in context,
// optionally restricted to one status.
func (s *Store) DedupDecisions(ctx context.Context, itemID, dedupContext string, status model.DedupStatus) ([]model.DedupDecision, error) {
	query := `
		SELECT id, item_id, duplicate_id, context, status, note, seq
		FROM dedup_decisions
		WHERE item_id = ? AND context = ?`
	args := []any{itemID, dedupContext}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY seq ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dedup decisions of %s: %w", itemID, err)
	}
	defer rows.Close()

	out := []model.DedupDecision{}
	for rows.Next() {
		var d model.DedupDecision
		var st string
		if err := rows.Scan(&d.ID, &d.ItemID, &d.DuplicateID, &d.Context, &st, &d.Note, &d.Seq); err != nil {
			return nil, fmt.Errorf("scan dedup decision: %w", err)
		}
		d.Status = model.DedupStatus(st)
		out = append(out, d)
	}
	return out, rows.Err()
}
