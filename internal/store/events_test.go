package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dirsync/internal/model"
)

func TestWriteEvent_RedeliveryDetected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ev := model.Event{Kind: model.EventInstall, ItemID: "item-1", Version: 2}

	id, inserted, err := s.WriteEvent(ctx, "session-1", ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	id2, inserted, err := s.WriteEvent(ctx, "session-2", ev)
	require.NoError(t, err)
	assert.False(t, inserted, "same (item, kind, version) is a redelivery")
	assert.Equal(t, id, id2)

	pending, err := s.UndispatchedEvents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "session-1", pending[0].SessionID)
	assert.Equal(t, ev, pending[0].Event)

	require.NoError(t, s.MarkEventDispatched(ctx, id))
	pending, err = s.UndispatchedEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	logged, err := s.ReadItemEvents(ctx, "item-1")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.True(t, logged[0].Dispatched)
}

func TestProvenance_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, action := range []string{"submitted", "shadow_created", "approved"} {
		require.NoError(t, s.AppendProvenance(ctx, model.ProvenanceEntry{
			ItemID: "item-1", SessionID: "s1", Action: action, Message: action,
		}))
	}
	require.NoError(t, s.AppendProvenance(ctx, model.ProvenanceEntry{
		ItemID: "item-2", SessionID: "s2", Action: "submitted", Message: "other",
	}))

	entries, err := s.ReadProvenance(ctx, "item-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "submitted", entries[0].Action)
	assert.Equal(t, "approved", entries[2].Action)
	assert.Less(t, entries[0].Seq, entries[2].Seq)

	bySession, err := s.ReadSessionProvenance(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, bySession, 1)

	none, err := s.ReadProvenance(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestDedupDecisions_StatusUpdate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	d := model.DedupDecision{ItemID: "new-1", DuplicateID: "old-1",
		Context: model.DedupContextWorkflow, Status: model.DedupPending}

	require.NoError(t, s.WriteDedupDecision(ctx, d))
	verified, err := s.DedupDecisions(ctx, "new-1", model.DedupContextWorkflow, model.DedupVerified)
	require.NoError(t, err)
	assert.Empty(t, verified)

	d.Status = model.DedupVerified
	require.NoError(t, s.WriteDedupDecision(ctx, d))
	verified, err = s.DedupDecisions(ctx, "new-1", model.DedupContextWorkflow, model.DedupVerified)
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, "old-1", verified[0].DuplicateID)

	all, err := s.DedupDecisions(ctx, "new-1", model.DedupContextWorkflow, "")
	require.NoError(t, err)
	assert.Len(t, all, 1, "status update does not add a row")
}
