package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dirsync/internal/model"
)

// UpsertCollection inserts a collection or renames an existing one.
func (s *Store) UpsertCollection(ctx context.Context, c model.CollectionDef) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (id, name, entity_type, scope)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, c.ID, c.Name, c.EntityType, c.Scope)
	if err != nil {
		return fmt.Errorf("upsert collection %s: %w", c.Name, err)
	}
	return nil
}

// CollectionFor returns the collection holding entityType within scope.
// Returns ErrNotFound if none is configured.
func (s *Store) CollectionFor(ctx context.Context, entityType, scope string) (model.CollectionDef, error) {
	var c model.CollectionDef
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, scope
		FROM collections
		WHERE entity_type = ? AND scope = ?
	`, entityType, scope).Scan(&c.ID, &c.Name, &c.EntityType, &c.Scope)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CollectionDef{}, ErrNotFound
	}
	if err != nil {
		return model.CollectionDef{}, fmt.Errorf("read collection for %s/%s: %w", entityType, scope, err)
	}
	return c, nil
}

// ListCollections returns all collections ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]model.CollectionDef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, entity_type, scope
		FROM collections
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	out := []model.CollectionDef{}
	for rows.Next() {
		var c model.CollectionDef
		if err := rows.Scan(&c.ID, &c.Name, &c.EntityType, &c.Scope); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertItem stores a new item with its metadata.
// The item's Version is set to 1 and Seq is stamped from the clock.
func (s *Store) InsertItem(ctx context.Context, it *model.Item) error {
	seq := s.clock.Next()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, entity_type, collection_id, owner, archived, withdrawn, version, seq)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		`, it.ID, it.EntityType, nullString(it.CollectionID), it.Owner,
			boolInt(it.Archived), boolInt(it.Withdrawn), seq)
		if err != nil {
			return err
		}
		return writeMetadata(ctx, tx, it.ID, it.Metadata)
	})
	if err != nil {
		return fmt.Errorf("insert item %s: %w", it.ID, err)
	}
	it.Version = 1
	it.Seq = seq
	return nil
}

// ReadItem returns the item with its metadata.
// Returns ErrNotFound if the item does not exist.
func (s *Store) ReadItem(ctx context.Context, id string) (*model.Item, error) {
	it := &model.Item{Metadata: model.Metadata{}}
	var collection sql.NullString
	var archived, withdrawn int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, collection_id, owner, archived, withdrawn, version, seq
		FROM items
		WHERE id = ?
	`, id).Scan(&it.ID, &it.EntityType, &collection, &it.Owner, &archived, &withdrawn, &it.Version, &it.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read item %s: %w", id, err)
	}
	it.CollectionID = collection.String
	it.Archived = archived != 0
	it.Withdrawn = withdrawn != 0

	rows, err := s.db.QueryContext(ctx, `
		SELECT field, value, authority, confidence
		FROM metadata
		WHERE item_id = ?
		ORDER BY field COLLATE BINARY ASC, place ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var field string
		var v model.MetadataValue
		if err := rows.Scan(&field, &v.Value, &v.Authority, &v.Confidence); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		it.Metadata.Add(field, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return it, nil
}

// UpdateItem persists the item's flags and replaces its metadata.
//
// The write only succeeds if the stored version still equals it.Version;
// otherwise ErrConflict is returned. On success it.Version is incremented.
func (s *Store) UpdateItem(ctx context.Context, it *model.Item) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE items
			SET collection_id = ?, owner = ?, archived = ?, withdrawn = ?, version = version + 1
			WHERE id = ? AND version = ?
		`, nullString(it.CollectionID), it.Owner, boolInt(it.Archived), boolInt(it.Withdrawn), it.ID, it.Version)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrConflict
		}
		return writeMetadata(ctx, tx, it.ID, it.Metadata)
	})
	if err != nil {
		return fmt.Errorf("update item %s: %w", it.ID, err)
	}
	it.Version++
	return nil
}

// DeleteItem removes an item and its metadata. Fails while any relationship
// still references the item.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItems returns items of entityType (all types when empty), ordered by seq.
func (s *Store) ListItems(ctx context.Context, entityType string) ([]*model.Item, error) {
	query := `SELECT id FROM items ORDER BY seq ASC, id COLLATE BINARY ASC`
	args := []any{}
	if entityType != "" {
		query = `SELECT id FROM items WHERE entity_type = ? ORDER BY seq ASC, id COLLATE BINARY ASC`
		args = append(args, entityType)
	}
	ids, err := s.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return s.readItems(ctx, ids)
}

// ItemsWithAuthority returns ids of items holding authority in one of fields.
func (s *Store) ItemsWithAuthority(ctx context.Context, authority string, fields []string) ([]string, error) {
	if len(fields) == 0 {
		return []string{}, nil
	}
	args := []any{authority}
	for _, f := range fields {
		args = append(args, f)
	}
	query := fmt.Sprintf(`
		SELECT i.id
		FROM items i
		WHERE EXISTS (
			SELECT 1 FROM metadata m
			WHERE m.item_id = i.id AND m.authority = ? AND m.field IN (%s)
		)
		ORDER BY i.seq ASC, i.id COLLATE BINARY ASC
	`, placeholders(len(fields)))
	ids, err := s.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("items with authority %s: %w", authority, err)
	}
	return ids, nil
}

func (s *Store) readItems(ctx context.Context, ids []string) ([]*model.Item, error) {
	out := make([]*model.Item, 0, len(ids))
	for _, id := range ids {
		it, err := s.ReadItem(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// queryIDs collects a single string column. Rows are closed before
// returning so callers can issue follow-up queries on the single connection.
func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func writeMetadata(ctx context.Context, tx *sql.Tx, itemID string, md model.Metadata) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear metadata: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metadata (item_id, field, place, value, authority, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare metadata insert: %w", err)
	}
	defer stmt.Close()

	for _, field := range md.Fields() {
		for place, v := range md[field] {
			if _, err := stmt.ExecContext(ctx, itemID, field, place, v.Value, v.Authority, v.Confidence); err != nil {
				return fmt.Errorf("insert metadata %s[%d]: %w", field, place, err)
			}
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
