package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dirsync/internal/model"
)

func TestUpsertRelationshipType_Idempotent(t *testing.T) {
	s := createTestStore(t)

	id1 := registerType(t, s, model.KindShadowCopy, "Publication", "CvPublicationClone")
	id2 := registerType(t, s, model.KindShadowCopy, "Publication", "CvPublicationClone")
	assert.Equal(t, id1, id2)

	types, err := s.ListRelationshipTypes(context.Background())
	require.NoError(t, err)
	assert.Len(t, types, 1)
}

func TestFindRelationshipType_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.FindRelationshipType(context.Background(), "A", "B", "x", "y")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertRelationship_PlacesAndNoDedup(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestItem(t, s, "dir-1", "Publication", "A")
	createTestItem(t, s, "clone-1", "CvPublicationClone", "A")
	createTestItem(t, s, "clone-2", "CvPublicationClone", "A")
	typeID := registerType(t, s, model.KindOriginatedFrom, "Publication", "CvPublicationClone")

	r1, err := s.InsertRelationship(ctx, "dir-1", "clone-1", typeID)
	require.NoError(t, err)
	r2, err := s.InsertRelationship(ctx, "dir-1", "clone-2", typeID)
	require.NoError(t, err)
	r3, err := s.InsertRelationship(ctx, "dir-1", "clone-2", typeID)
	require.NoError(t, err)

	assert.Equal(t, 0, r1.LeftPlace)
	assert.Equal(t, 1, r2.LeftPlace)
	assert.Equal(t, 2, r3.LeftPlace)
	assert.Equal(t, 1, r3.RightPlace, "second edge onto clone-2")

	names := model.KindOriginatedFrom.Names()
	fromLeft, err := s.RelationshipsByName(ctx, "dir-1", names.Leftward, true)
	require.NoError(t, err)
	assert.Len(t, fromLeft, 3)

	fromRight, err := s.RelationshipsByName(ctx, "clone-1", names.Leftward, false)
	require.NoError(t, err)
	require.Len(t, fromRight, 1)
	assert.Equal(t, "dir-1", fromRight[0].LeftID)

	wrongSide, err := s.RelationshipsByName(ctx, "clone-1", names.Leftward, true)
	require.NoError(t, err)
	assert.Empty(t, wrongSide)

	all, err := s.RelationshipsOf(ctx, "clone-2")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
