package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/dirsync/internal/model"
)

const workflowColumns = `id, item_id, kind, state, scope, scope_target, parent_id, submitter, seq`

// InsertWorkflowItem stores a new workflow item. Fails if the item already
// has a non-terminal workflow item.
func (s *Store) InsertWorkflowItem(ctx context.Context, wfi *model.WorkflowItem) error {
	wfi.Seq = s.clock.Next()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_items (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, wfi.ID, wfi.ItemID, string(wfi.Kind), string(wfi.State), string(wfi.Scope.Kind),
		wfi.Scope.Target, wfi.ParentID, wfi.Submitter, wfi.Seq)
	if err != nil {
		return fmt.Errorf("insert workflow item %s: %w", wfi.ID, err)
	}
	return nil
}

// ReadWorkflowItem returns a workflow item by id.
func (s *Store) ReadWorkflowItem(ctx context.Context, id string) (*model.WorkflowItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflow_items WHERE id = ?`, id)
	wfi, err := scanWorkflowItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow item %s: %w", id, err)
	}
	return wfi, nil
}

// ActiveWorkflowItem returns the non-terminal workflow item of itemID.
// Returns ErrNotFound if the item is not in a workflow.
func (s *Store) ActiveWorkflowItem(ctx context.Context, itemID string) (*model.WorkflowItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+workflowColumns+`
		FROM workflow_items
		WHERE item_id = ? AND state NOT IN ('complete', 'cancelled')
	`, itemID)
	wfi, err := scanWorkflowItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read active workflow of %s: %w", itemID, err)
	}
	return wfi, nil
}

// LatestWorkflowItem returns the most recent workflow item of itemID,
// terminal or not.
func (s *Store) LatestWorkflowItem(ctx context.Context, itemID string) (*model.WorkflowItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+workflowColumns+`
		FROM workflow_items
		WHERE item_id = ?
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, itemID)
	wfi, err := scanWorkflowItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read latest workflow of %s: %w", itemID, err)
	}
	return wfi, nil
}

// ChildWorkflowItems returns the workflow items waited on by parentID.
func (s *Store) ChildWorkflowItems(ctx context.Context, parentID string) ([]*model.WorkflowItem, error) {
	return s.listWorkflowItems(ctx, `
		SELECT `+workflowColumns+`
		FROM workflow_items
		WHERE parent_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, parentID)
}

// ListWorkflowItems returns workflow items in state (all when empty).
func (s *Store) ListWorkflowItems(ctx context.Context, state model.WorkflowState) ([]*model.WorkflowItem, error) {
	if state == "" {
		return s.listWorkflowItems(ctx, `
			SELECT `+workflowColumns+` FROM workflow_items ORDER BY seq ASC, id COLLATE BINARY ASC`)
	}
	return s.listWorkflowItems(ctx, `
		SELECT `+workflowColumns+`
		FROM workflow_items
		WHERE state = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, string(state))
}

// TransitionWorkflowItem moves a workflow item from one state to another.
// Returns false without error when the stored state is no longer from,
// which makes redelivered transitions no-ops.
func (s *Store) TransitionWorkflowItem(ctx context.Context, id string, from, to model.WorkflowState) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_items SET state = ?, seq = ?
		WHERE id = ? AND state = ?
	`, string(to), s.clock.Next(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition workflow item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition workflow item %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *Store) listWorkflowItems(ctx context.Context, query string, args ...any) ([]*model.WorkflowItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflow items: %w", err)
	}
	defer rows.Close()

	out := []*model.WorkflowItem{}
	for rows.Next() {
		wfi, err := scanWorkflowItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow item: %w", err)
		}
		out = append(out, wfi)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflowItem(row rowScanner) (*model.WorkflowItem, error) {
	var wfi model.WorkflowItem
	var kind, state, scope string
	err := row.Scan(&wfi.ID, &wfi.ItemID, &kind, &state, &scope, &wfi.Scope.Target,
		&wfi.ParentID, &wfi.Submitter, &wfi.Seq)
	if err != nil {
		return nil, err
	}
	wfi.Kind = model.WorkflowKind(kind)
	wfi.State = model.WorkflowState(state)
	wfi.Scope.Kind = model.ScopeKind(scope)
	return &wfi, nil
}
