package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// echoConsumer re-emits an event for every item it handles, the shape of a
// consumer whose own writes would retrigger it.
type echoConsumer struct {
	name  string
	seen  []model.Event
	guard bool
}

func (c *echoConsumer) Name() string { return c.name }

func (c *echoConsumer) Consume(_ context.Context, sess *session.Session, ev model.Event) error {
	if c.guard && !sess.Claim(c.name, ev.ItemID) {
		return nil
	}
	c.seen = append(c.seen, ev)
	sess.Emit(model.Event{Kind: ev.Kind, ItemID: ev.ItemID, Version: ev.Version + 1})
	return nil
}

type failingConsumer struct{}

func (failingConsumer) Name() string { return "failing" }

func (failingConsumer) Consume(context.Context, *session.Session, model.Event) error {
	return model.NewConfigurationError("x", "no collection for %s", "Publication")
}

type recordingConsumer struct {
	got []model.Event
}

func (c *recordingConsumer) Name() string { return "recording" }

func (c *recordingConsumer) Consume(_ context.Context, _ *session.Session, ev model.Event) error {
	c.got = append(c.got, ev)
	return nil
}

func TestDispatch_ProcessedSetStopsReentry(t *testing.T) {
	s := openTestStore(t)
	echo := &echoConsumer{name: "echo", guard: true}
	e := New(s, []Consumer{echo}, NewSequenceGenerator("session"))

	err := e.Deliver(context.Background(), testEvent("item-1", 1))
	require.NoError(t, err)

	assert.Len(t, echo.seen, 1, "a consumer must handle an item once per session")

	logged, err := s.ReadItemEvents(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Len(t, logged, 2, "the echoed event is still logged and dispatched")
	for _, le := range logged {
		assert.True(t, le.Dispatched)
	}
}

func TestDispatch_ProcessedSetClearedBetweenSessions(t *testing.T) {
	s := openTestStore(t)
	echo := &echoConsumer{name: "echo", guard: true}
	e := New(s, []Consumer{echo}, NewSequenceGenerator("session"))

	require.NoError(t, e.Deliver(context.Background(), testEvent("item-1", 1)))
	require.NoError(t, e.Deliver(context.Background(), testEvent("item-1", 5)))

	assert.Len(t, echo.seen, 2, "a new batch may process the item again")
}

func TestDispatch_QuotaBoundsUnguardedCascade(t *testing.T) {
	s := openTestStore(t)
	echo := &echoConsumer{name: "echo", guard: false}
	e := New(s, []Consumer{echo}, NewSequenceGenerator("session"), WithMaxSteps(5))

	err := e.Deliver(context.Background(), testEvent("item-1", 1))
	require.Error(t, err)
	assert.True(t, IsStepsExceededError(err))
	assert.Len(t, echo.seen, 5)
}

func TestDispatch_RedeliverySkipped(t *testing.T) {
	s := openTestStore(t)
	rec := &recordingConsumer{}
	e := New(s, []Consumer{rec}, NewSequenceGenerator("session"))

	ev := testEvent("item-1", 3)
	require.NoError(t, e.Deliver(context.Background(), ev))
	require.NoError(t, e.Deliver(context.Background(), ev))

	assert.Len(t, rec.got, 1, "an already-logged event is not consumed twice")
}

func TestDispatch_ConsumerFailureDoesNotStopOthers(t *testing.T) {
	s := openTestStore(t)
	rec := &recordingConsumer{}
	e := New(s, []Consumer{failingConsumer{}, rec}, NewSequenceGenerator("session"))

	err := e.Deliver(context.Background(), testEvent("item-1", 1))
	require.Error(t, err)
	assert.True(t, IsConsumerError(err))
	assert.True(t, model.IsConfigurationError(err), "the cause stays reachable")
	assert.Len(t, rec.got, 1)

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "failing", re.Consumer)
}

func TestSubmit_DispatchesBufferedEvents(t *testing.T) {
	s := openTestStore(t)
	rec := &recordingConsumer{}
	e := New(s, []Consumer{rec}, NewFixedGenerator("session-a"))

	id, err := e.Submit(context.Background(), session.Actor{ID: "admin", Admin: true},
		func(_ context.Context, sess *session.Session) error {
			assert.True(t, sess.Actor.Admin)
			sess.Emit(testEvent("item-1", 1))
			sess.Emit(testEvent("item-2", 1))
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "session-a", id)
	require.Len(t, rec.got, 2)
	assert.Equal(t, "item-1", rec.got[0].ItemID)
	assert.Equal(t, "item-2", rec.got[1].ItemID)
}

func TestSubmit_ReturnsOperationError(t *testing.T) {
	s := openTestStore(t)
	rec := &recordingConsumer{}
	e := New(s, []Consumer{rec}, NewSequenceGenerator("session"))

	boom := errors.New("boom")
	_, err := e.Submit(context.Background(), session.Actor{ID: "u"},
		func(_ context.Context, sess *session.Session) error {
			sess.Emit(testEvent("item-1", 1))
			return boom
		})
	require.ErrorIs(t, err, boom)
	assert.Len(t, rec.got, 1, "events written before the failure are still dispatched")
}

func TestRecover_RedeliversUndispatched(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, inserted, err := s.WriteEvent(ctx, "crashed-session", testEvent("item-9", 2))
	require.NoError(t, err)
	require.True(t, inserted)

	rec := &recordingConsumer{}
	e := New(s, []Consumer{rec}, NewSequenceGenerator("session"))

	n, err := e.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, rec.got, 1)
	assert.Equal(t, "item-9", rec.got[0].ItemID)

	pending, err := s.UndispatchedEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRun_ProcessesEnqueuedEvents(t *testing.T) {
	s := openTestStore(t)
	rec := &recordingConsumer{}
	e := New(s, []Consumer{rec}, NewSequenceGenerator("session"))

	require.True(t, e.Enqueue(testEvent("item-1", 1)))
	require.True(t, e.Enqueue(testEvent("item-2", 1)))
	e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop closes the queue; Run drains what is already enqueued first.
	err := e.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, rec.got, 2)
	assert.False(t, e.Enqueue(testEvent("item-3", 1)))
}

func TestRun_ContextCancel(t *testing.T) {
	s := openTestStore(t)
	e := New(s, nil, NewSequenceGenerator("session"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
