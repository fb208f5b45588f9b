package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/dirsync/internal/model"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestItem inserts an item with a single dc.title value.
func createTestItem(t *testing.T, s *Store, id, entityType, title string) *model.Item {
	t.Helper()
	it := &model.Item{
		ID:         id,
		EntityType: entityType,
		Owner:      "researcher-1",
		Metadata:   model.Metadata{"dc.title": {model.V(title)}},
	}
	if err := s.InsertItem(context.Background(), it); err != nil {
		t.Fatalf("InsertItem(%s) failed: %v", id, err)
	}
	return it
}

// registerType registers a relationship type for kind between two entity types.
func registerType(t *testing.T, s *Store, kind model.RelationshipKind, leftType, rightType string) int64 {
	t.Helper()
	names := kind.Names()
	id, err := s.UpsertRelationshipType(context.Background(), model.RelationshipType{
		LeftType:      leftType,
		RightType:     rightType,
		LeftwardName:  names.Leftward,
		RightwardName: names.Rightward,
	})
	if err != nil {
		t.Fatalf("UpsertRelationshipType(%s) failed: %v", kind, err)
	}
	return id
}
