package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/dirsync/internal/model"
)

// UpsertRelationshipType registers a relationship type and returns its id.
// Uses ON CONFLICT DO NOTHING: registering the same 4-tuple twice is a no-op.
func (s *Store) UpsertRelationshipType(ctx context.Context, rt model.RelationshipType) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationship_types (left_type, right_type, leftward_name, rightward_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, rt.LeftType, rt.RightType, rt.LeftwardName, rt.RightwardName)
	if err != nil {
		return 0, fmt.Errorf("upsert relationship type: %w", err)
	}
	found, err := s.FindRelationshipType(ctx, rt.LeftType, rt.RightType, rt.LeftwardName, rt.RightwardName)
	if err != nil {
		return 0, err
	}
	return found.ID, nil
}

// FindRelationshipType looks a type up by its 4-tuple.
// Returns ErrNotFound if the type is not registered.
func (s *Store) FindRelationshipType(ctx context.Context, leftType, rightType, leftward, rightward string) (model.RelationshipType, error) {
	var rt model.RelationshipType
	err := s.db.QueryRowContext(ctx, `
		SELECT id, left_type, right_type, leftward_name, rightward_name
		FROM relationship_types
		WHERE left_type = ? AND right_type = ? AND leftward_name = ? AND rightward_name = ?
	`, leftType, rightType, leftward, rightward).Scan(
		&rt.ID, &rt.LeftType, &rt.RightType, &rt.LeftwardName, &rt.RightwardName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RelationshipType{}, ErrNotFound
	}
	if err != nil {
		return model.RelationshipType{}, fmt.Errorf("find relationship type: %w", err)
	}
	return rt, nil
}

// ListRelationshipTypes returns all registered types ordered by id.
func (s *Store) ListRelationshipTypes(ctx context.Context) ([]model.RelationshipType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, left_type, right_type, leftward_name, rightward_name
		FROM relationship_types
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query relationship types: %w", err)
	}
	defer rows.Close()

	out := []model.RelationshipType{}
	for rows.Next() {
		var rt model.RelationshipType
		if err := rows.Scan(&rt.ID, &rt.LeftType, &rt.RightType, &rt.LeftwardName, &rt.RightwardName); err != nil {
			return nil, fmt.Errorf("scan relationship type: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// InsertRelationship creates one edge left → right of the given type.
// Places are the next ordinal on each side for that type.
// No deduplication: inserting the same pair twice yields two edges.
func (s *Store) InsertRelationship(ctx context.Context, leftID, rightID string, typeID int64) (model.Relationship, error) {
	rel := model.Relationship{LeftID: leftID, RightID: rightID, TypeID: typeID}
	seq := s.clock.Next()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(left_place) + 1, 0) FROM relationships WHERE left_id = ? AND type_id = ?
		`, leftID, typeID).Scan(&rel.LeftPlace); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(right_place) + 1, 0) FROM relationships WHERE right_id = ? AND type_id = ?
		`, rightID, typeID).Scan(&rel.RightPlace); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO relationships (left_id, right_id, type_id, left_place, right_place, seq)
			VALUES (?, ?, ?, ?, ?, ?)
		`, leftID, rightID, typeID, rel.LeftPlace, rel.RightPlace, seq)
		if err != nil {
			return err
		}
		rel.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.Relationship{}, fmt.Errorf("insert relationship %s -> %s: %w", leftID, rightID, err)
	}
	return rel, nil
}

// RelationshipsByName returns the edges of itemID whose type carries the
// given leftward name. itemOnLeft selects which end itemID must be on.
// Results are ordered by the place on itemID's side.
func (s *Store) RelationshipsByName(ctx context.Context, itemID, leftward string, itemOnLeft bool) ([]model.Relationship, error) {
	query := `
		SELECT r.id, r.left_id, r.right_id, r.type_id, r.left_place, r.right_place
		FROM relationships r
		JOIN relationship_types t ON t.id = r.type_id
		WHERE r.left_id = ? AND t.leftward_name = ?
		ORDER BY r.left_place ASC, r.id ASC
	`
	if !itemOnLeft {
		query = `
		SELECT r.id, r.left_id, r.right_id, r.type_id, r.left_place, r.right_place
		FROM relationships r
		JOIN relationship_types t ON t.id = r.type_id
		WHERE r.right_id = ? AND t.leftward_name = ?
		ORDER BY r.right_place ASC, r.id ASC
	`
	}
	rels, err := s.queryRelationships(ctx, query, itemID, leftward)
	if err != nil {
		return nil, fmt.Errorf("relationships of %s (%s): %w", itemID, leftward, err)
	}
	return rels, nil
}

// RelationshipsOf returns every edge touching itemID on either side.
func (s *Store) RelationshipsOf(ctx context.Context, itemID string) ([]model.Relationship, error) {
	rels, err := s.queryRelationships(ctx, `
		SELECT id, left_id, right_id, type_id, left_place, right_place
		FROM relationships
		WHERE left_id = ? OR right_id = ?
		ORDER BY seq ASC, id ASC
	`, itemID, itemID)
	if err != nil {
		return nil, fmt.Errorf("relationships of %s: %w", itemID, err)
	}
	return rels, nil
}

// DeleteRelationship removes one edge.
func (s *Store) DeleteRelationship(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete relationship %d: %w", id, err)
	}
	return nil
}

func (s *Store) queryRelationships(ctx context.Context, query string, args ...any) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Relationship{}
	for rows.Next() {
		var r model.Relationship
		if err := rows.Scan(&r.ID, &r.LeftID, &r.RightID, &r.TypeID, &r.LeftPlace, &r.RightPlace); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
