package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dirsync/internal/correction"
	"github.com/roach88/dirsync/internal/dedup"
	"github.com/roach88/dirsync/internal/engine"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/testutil"
	"github.com/roach88/dirsync/internal/workflow"
)

const syncFlag = "perucris.sync.directorio"

var (
	researcher = session.Actor{ID: testutil.Researcher}
	reviewer   = session.Actor{ID: "reviewer", Admin: true}
)

type fixture struct {
	t    *testing.T
	ctx  context.Context
	deps Deps
	eng  *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := testutil.NewCatalog(t)
	r := relation.New(c)
	ce := correction.NewEngine(c, r)
	wf := workflow.New(c, r, ce, dedup.New(c.Store()), engine.NewSequenceGenerator("wf"))
	deps := Deps{Catalog: c, Resolver: r, Corrections: ce, Workflow: wf}
	return &fixture{
		t:    t,
		ctx:  context.Background(),
		deps: deps,
		eng:  engine.New(c.Store(), All(deps), engine.NewSequenceGenerator("session")),
	}
}

func (f *fixture) submit(actor session.Actor, fn func(ctx context.Context, sess *session.Session) error) {
	f.t.Helper()
	_, err := f.eng.Submit(f.ctx, actor, fn)
	require.NoError(f.t, err)
}

// create installs a CV entity as the researcher.
func (f *fixture) create(entityType string, md model.Metadata) *model.Item {
	f.t.Helper()
	var it *model.Item
	f.submit(researcher, func(ctx context.Context, sess *session.Session) error {
		it = testutil.CreateItem(f.t, f.deps.Catalog, sess, entityType, md)
		return nil
	})
	return it
}

// edit changes an item as actor.
func (f *fixture) edit(actor session.Actor, it *model.Item, change func(it *model.Item)) {
	f.t.Helper()
	f.submit(actor, func(ctx context.Context, sess *session.Session) error {
		cur, err := f.deps.Catalog.Get(ctx, it.ID)
		if err != nil {
			return err
		}
		change(cur)
		return f.deps.Catalog.Update(ctx, sess, cur)
	})
}

func (f *fixture) review(child *model.WorkflowItem, outcome workflow.Outcome) {
	f.t.Helper()
	f.submit(reviewer, func(ctx context.Context, sess *session.Session) error {
		_, err := f.deps.Workflow.Decide(ctx, sess, child.ID, outcome)
		return err
	})
}

func (f *fixture) lookup(id string) *model.Item {
	f.t.Helper()
	it, err := f.deps.Catalog.Lookup(f.ctx, id)
	require.NoError(f.t, err)
	return it
}

func (f *fixture) all(it *model.Item, l relation.Lookup) []*model.Item {
	f.t.Helper()
	got, err := f.deps.Resolver.FindAll(f.ctx, it, l)
	require.NoError(f.t, err)
	return got
}

func (f *fixture) find(it *model.Item, l relation.Lookup) *model.Item {
	f.t.Helper()
	got, err := f.deps.Resolver.Find(f.ctx, it, l)
	require.NoError(f.t, err)
	return got
}

// pendingReview returns the Directorio review waiting on the active
// workflow of it.
func (f *fixture) pendingReview(it *model.Item) *model.WorkflowItem {
	f.t.Helper()
	parent, err := f.deps.Workflow.ForItem(f.ctx, it.ID)
	require.NoError(f.t, err)
	require.NotNil(f.t, parent, "no active workflow for %s", it.ID)
	children, err := f.deps.Workflow.Children(f.ctx, parent)
	require.NoError(f.t, err)
	require.Len(f.t, children, 1)
	return children[0]
}

func synced(title string) model.Metadata {
	md := testutil.Titled(title)
	md.Set(syncFlag, []model.MetadataValue{model.V("true")})
	return md
}

// published creates a synced CV publication and approves its clone.
func (f *fixture) published(md model.Metadata) (cv, clone, shadow *model.Item) {
	f.t.Helper()
	cv = f.create("CvPublication", md)
	clone = f.find(cv, relation.Clone)
	require.NotNil(f.t, clone)
	f.review(f.pendingReview(clone), workflow.Outcome{Action: workflow.ActionApprove})
	clone = f.lookup(clone.ID)
	require.True(f.t, clone.Archived)
	shadow = f.find(clone, relation.ShadowCopy)
	require.NotNil(f.t, shadow)
	require.True(f.t, shadow.Archived)
	return cv, clone, shadow
}

func TestOutbound_SubmitsCloneForSyncedEntity(t *testing.T) {
	f := newFixture(t)
	cv := f.create("CvPublication", synced("Graphene"))

	clones := f.all(cv, relation.Clone)
	require.Len(t, clones, 1)
	clone := clones[0]
	assert.Equal(t, "CvPublicationClone", clone.EntityType)
	assert.False(t, clone.Archived)
	assert.Equal(t, "Graphene", clone.Title())
	assert.Equal(t, cv.Owner, clone.Owner)

	child := f.pendingReview(clone)
	assert.Equal(t, model.StateReview, child.State)
	assert.Equal(t, "Publication", f.lookup(child.ItemID).EntityType)
}

func TestOutbound_IgnoresEntityWithSyncOff(t *testing.T) {
	f := newFixture(t)
	cv := f.create("CvPublication", testutil.Titled("Private draft"))

	assert.Empty(t, f.all(cv, relation.Clone))
}

func TestOutbound_ExactlyOneClone(t *testing.T) {
	f := newFixture(t)
	cv := f.create("CvPublication", synced("v0"))
	first := f.find(cv, relation.Clone)
	require.NotNil(t, first)

	for _, title := range []string{"v1", "v2", "v3"} {
		f.edit(researcher, cv, func(it *model.Item) {
			it.Metadata.Set("dc.title", []model.MetadataValue{model.V(title)})
		})
	}

	clones := f.all(cv, relation.Clone)
	require.Len(t, clones, 1, "an outdated pending clone is replaced, never duplicated")
	assert.Equal(t, "v3", clones[0].Title())
	assert.Nil(t, f.lookup(first.ID), "stale clone deleted")

	active, err := f.deps.Workflow.List(f.ctx, model.StateWaitForConcytec)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	reviews, err := f.deps.Workflow.List(f.ctx, model.StateReview)
	require.NoError(t, err)
	assert.Len(t, reviews, 1, "stale shadow reviews cancelled")
}

func TestOutbound_CorrectionRoundTrip(t *testing.T) {
	f := newFixture(t)
	cv, clone, shadow := f.published(synced("Grafeno"))

	f.edit(researcher, cv, func(it *model.Item) {
		it.Metadata.Set("dc.title", []model.MetadataValue{model.V("Graphene")})
	})

	corrections := f.all(clone, relation.Corrections)
	require.Len(t, corrections, 1)
	assert.Equal(t, "Grafeno", f.lookup(clone.ID).Title(), "clone waits for review")

	f.review(f.pendingReview(corrections[0]), workflow.Outcome{Action: workflow.ActionApprove})

	assert.Equal(t, "Graphene", f.lookup(cv.ID).Title())
	assert.Equal(t, "Graphene", f.lookup(clone.ID).Title())
	assert.Equal(t, "Graphene", f.lookup(shadow.ID).Title())
	assert.Empty(t, f.all(clone, relation.Corrections))
}

func TestOutbound_NoChangeNoCorrection(t *testing.T) {
	f := newFixture(t)
	cv, clone, _ := f.published(synced("Same"))

	f.edit(researcher, cv, func(it *model.Item) {
		it.Metadata.Set("dc.date.accessioned", []model.MetadataValue{model.V("2026-01-01")})
	})

	assert.Empty(t, f.all(clone, relation.Corrections), "ignored fields do not trigger corrections")
}

func TestOutbound_WithdrawAndReinstate(t *testing.T) {
	f := newFixture(t)
	cv, clone, shadow := f.published(synced("A"))

	f.submit(researcher, func(ctx context.Context, sess *session.Session) error {
		cur, err := f.deps.Catalog.Get(ctx, cv.ID)
		if err != nil {
			return err
		}
		return f.deps.Catalog.Withdraw(ctx, sess, cur)
	})
	requests := f.all(clone, relation.WithdrawRequests)
	require.Len(t, requests, 1)

	f.edit(researcher, cv, func(it *model.Item) {
		it.Metadata.Set("dc.subject", []model.MetadataValue{model.V("x")})
	})
	assert.Len(t, f.all(clone, relation.WithdrawRequests), 1, "pending request not duplicated")

	f.review(f.pendingReview(requests[0]), workflow.Outcome{Action: workflow.ActionApprove})
	assert.True(t, f.lookup(clone.ID).Withdrawn)
	assert.True(t, f.lookup(shadow.ID).Withdrawn)
	assert.Empty(t, f.all(clone, relation.WithdrawRequests))

	f.submit(researcher, func(ctx context.Context, sess *session.Session) error {
		cur, err := f.deps.Catalog.Get(ctx, cv.ID)
		if err != nil {
			return err
		}
		return f.deps.Catalog.Reinstate(ctx, sess, cur)
	})
	reinstates := f.all(clone, relation.ReinstateRequests)
	require.Len(t, reinstates, 1)
	assert.Len(t, f.all(clone, relation.Corrections), 1, "the edit made while withdrawn is staged too")
	f.review(f.pendingReview(reinstates[0]), workflow.Outcome{Action: workflow.ActionApprove})

	assert.False(t, f.lookup(clone.ID).Withdrawn)
	assert.False(t, f.lookup(shadow.ID).Withdrawn)
}

// rejectCreation sends the pending review of clone back and confirms it.
func (f *fixture) rejectCreation(clone *model.Item) {
	f.t.Helper()
	child := f.pendingReview(clone)
	f.review(child, workflow.Outcome{Action: workflow.ActionReject, Reason: "not peer reviewed"})
	f.review(child, workflow.Outcome{Action: workflow.ActionReject})
	clone = f.lookup(clone.ID)
	require.True(f.t, clone.Withdrawn)
	require.Equal(f.t, model.FeedbackReject, model.FeedbackOf(clone))
}

func retitle(title string) func(it *model.Item) {
	return func(it *model.Item) {
		it.Metadata.Set("dc.title", []model.MetadataValue{model.V(title)})
	}
}

func TestOutbound_EditAfterRejectedCreationResubmits(t *testing.T) {
	f := newFixture(t)
	cv := f.create("CvPublication", synced("A"))
	rejectedClone := f.find(cv, relation.Clone)
	require.NotNil(t, rejectedClone)
	f.rejectCreation(rejectedClone)

	f.edit(researcher, cv, retitle("B"))
	f.edit(researcher, cv, retitle("C"))

	clones := f.all(cv, relation.Clone)
	require.Len(t, clones, 1)
	clone := clones[0]
	assert.NotEqual(t, rejectedClone.ID, clone.ID)
	assert.Equal(t, "C", clone.Title())
	assert.Empty(t, f.all(rejectedClone, relation.ReinstateRequests), "rejected content is not reinstated")
	assert.Empty(t, f.all(rejectedClone, relation.Corrections))

	old := f.lookup(rejectedClone.ID)
	require.NotNil(t, old, "rejected clone kept for audit")
	assert.True(t, old.Withdrawn)
	assert.Equal(t, "A", old.Title())

	f.review(f.pendingReview(clone), workflow.Outcome{Action: workflow.ActionApprove})

	clone = f.lookup(clone.ID)
	assert.True(t, clone.Archived)
	assert.False(t, clone.Withdrawn)
	shadow := f.find(clone, relation.ShadowCopy)
	require.NotNil(t, shadow)
	assert.Equal(t, "C", shadow.Title())
	assert.False(t, shadow.Withdrawn)
}

func TestOutbound_EditWhileReturnedReplacesSubmission(t *testing.T) {
	f := newFixture(t)
	cv := f.create("CvPublication", synced("A"))
	first := f.find(cv, relation.Clone)
	child := f.pendingReview(first)
	f.review(child, workflow.Outcome{Action: workflow.ActionReject, Reason: "typo in title"})
	require.Equal(t, "typo in title", f.lookup(first.ID).Metadata.First(model.FieldRejectReason))

	f.edit(researcher, cv, retitle("B"))

	assert.Nil(t, f.lookup(first.ID), "returned submission replaced")
	got, err := f.deps.Workflow.Get(f.ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, got.State)

	clone := f.find(cv, relation.Clone)
	require.NotNil(t, clone)
	assert.Equal(t, "B", clone.Title())
	assert.Equal(t, model.StateReview, f.pendingReview(clone).State)
}

func TestOutbound_WithdrawnEntityAfterRejectionStaysQuiet(t *testing.T) {
	f := newFixture(t)
	cv := f.create("CvPublication", synced("A"))
	rejectedClone := f.find(cv, relation.Clone)
	f.rejectCreation(rejectedClone)

	f.submit(researcher, func(ctx context.Context, sess *session.Session) error {
		cur, err := f.deps.Catalog.Get(ctx, cv.ID)
		if err != nil {
			return err
		}
		return f.deps.Catalog.Withdraw(ctx, sess, cur)
	})

	assert.Empty(t, f.all(rejectedClone, relation.WithdrawRequests))
	assert.Equal(t, rejectedClone.ID, f.find(cv, relation.Clone).ID)
}

func TestOutbound_EditAfterMergeRejectResubmits(t *testing.T) {
	f := newFixture(t)
	var existing *model.Item
	f.submit(reviewer, func(ctx context.Context, sess *session.Session) error {
		existing = testutil.CreateItem(t, f.deps.Catalog, sess, "Publication", testutil.Titled("Same Title"))
		return nil
	})
	cv := f.create("CvPublication", synced("Same Title"))
	rejectedClone := f.find(cv, relation.Clone)
	child := f.pendingReview(rejectedClone)
	require.NoError(t, dedup.New(f.deps.Catalog.Store()).Verify(f.ctx, child.ItemID, existing.ID, model.DedupContextWorkflow, ""))
	f.rejectCreation(rejectedClone)
	require.Equal(t, existing.ID, f.find(f.lookup(child.ItemID), relation.MergedInto).ID)

	f.edit(researcher, cv, retitle("Same Title, revised"))

	clone := f.find(cv, relation.Clone)
	require.NotNil(t, clone)
	assert.NotEqual(t, rejectedClone.ID, clone.ID)
	assert.Equal(t, "Same Title, revised", clone.Title())
	assert.False(t, f.lookup(existing.ID).Withdrawn, "the duplicate is not touched")

	// The duplicate still originates from the retired clone; its edits no
	// longer reach the CV entity.
	f.edit(reviewer, existing, retitle("Renamed upstream"))
	assert.Equal(t, "Same Title, revised", f.lookup(cv.ID).Title())
}

func TestInbound_PullsDirectorioChanges(t *testing.T) {
	f := newFixture(t)
	cv, clone, shadow := f.published(synced("Grafeno"))

	f.edit(reviewer, shadow, func(it *model.Item) {
		it.Metadata.Set("dc.title", []model.MetadataValue{model.V("Graphene")})
		it.Metadata.Set("dc.identifier.doi", []model.MetadataValue{model.V("10.1000/xyz")})
	})

	got := f.lookup(cv.ID)
	assert.Equal(t, "Graphene", got.Title())
	assert.Equal(t, "10.1000/xyz", got.Metadata.First("dc.identifier.doi"))
	assert.Equal(t, "Graphene", f.lookup(clone.ID).Title())
	assert.Empty(t, f.all(clone, relation.Corrections), "inbound updates do not bounce back out")
}

func TestInbound_FlaggedFieldsAreSuppressed(t *testing.T) {
	f := newFixture(t)
	md := synced("A")
	md.Set("perucris.flag.dc.subject", []model.MetadataValue{model.V("")})
	cv, clone, shadow := f.published(md)

	f.edit(reviewer, shadow, func(it *model.Item) {
		it.Metadata.Set("dc.subject", []model.MetadataValue{model.V("Physics")})
		it.Metadata.Set("dc.publisher", []model.MetadataValue{model.V("ACME")})
	})

	got := f.lookup(cv.ID)
	assert.False(t, got.Metadata.Has("dc.subject"), "flagged field left alone")
	assert.Equal(t, "ACME", got.Metadata.First("dc.publisher"))
	assert.False(t, f.lookup(clone.ID).Metadata.Has("dc.subject"))
}

func TestInbound_MissingCVEntityIsIllegalState(t *testing.T) {
	f := newFixture(t)
	sess := testutil.Admin("s1")
	c := f.deps.Catalog

	orphan := testutil.CreateItem(t, c, sess, "CvPublicationClone", testutil.Titled("A"))
	inst := testutil.CreateItem(t, c, sess, "Publication", testutil.Titled("A"))
	_, err := f.deps.Resolver.Create(f.ctx, sess, model.KindShadowCopy, inst, orphan)
	require.NoError(t, err)

	err = NewInbound(f.deps).Consume(f.ctx, session.System("s2"), model.Event{Kind: model.EventModify, ItemID: inst.ID, Version: 1})
	assert.True(t, model.IsIllegalStateError(err))
}

func TestFlagging_FlagsFieldsEmptiedOnCV(t *testing.T) {
	f := newFixture(t)
	md := synced("A")
	md.Set("dc.subject", []model.MetadataValue{model.V("Physics")})
	md.Set("dc.description", []model.MetadataValue{model.V("abstract")})
	md.Set("perucris.flag.dc.description", []model.MetadataValue{model.V("keep")})
	cv, _, shadow := f.published(md)

	f.edit(researcher, cv, func(it *model.Item) {
		it.Metadata.Clear("dc.subject")
		it.Metadata.Clear("dc.description")
	})

	got := f.lookup(cv.ID)
	assert.True(t, got.Metadata.Has("perucris.flag.dc.subject"))
	assert.Equal(t, "", got.Metadata.First("perucris.flag.dc.subject"))
	assert.Equal(t, "keep", got.Metadata.First("perucris.flag.dc.description"), "existing flags untouched")
	assert.Equal(t, "Physics", f.lookup(shadow.ID).Metadata.First("dc.subject"), "removal waits for review")
}

func TestGuard_ClaimsBeforeWork(t *testing.T) {
	f := newFixture(t)
	sess := testutil.Admin("s1")
	cv := testutil.CreateItem(t, f.deps.Catalog, sess, "CvPublication", synced("A"))

	out := NewOutbound(f.deps)
	sys := session.System("s2")
	ev := model.Event{Kind: model.EventInstall, ItemID: cv.ID, Version: cv.Version}
	require.NoError(t, out.Consume(f.ctx, sys, ev))
	require.NoError(t, out.Consume(f.ctx, sys, ev))

	assert.Len(t, f.all(cv, relation.Clone), 1)
	assert.True(t, sys.Processed("outbound", cv.ID))
	assert.False(t, sys.Elevated(), "privileges restored")
}

func TestGuard_SkipsUnarchivedAndMissingItems(t *testing.T) {
	f := newFixture(t)
	sess := testutil.Admin("s1")
	ws := testutil.CreateWorkspaceItem(t, f.deps.Catalog, sess, "CvPublication", synced("A"))

	out := NewOutbound(f.deps)
	sys := session.System("s2")
	require.NoError(t, out.Consume(f.ctx, sys, model.Event{Kind: model.EventModify, ItemID: ws.ID, Version: 1}))
	require.NoError(t, out.Consume(f.ctx, sys, model.Event{Kind: model.EventModify, ItemID: "missing", Version: 1}))

	assert.Empty(t, f.all(ws, relation.Clone))
	assert.False(t, sys.Processed("outbound", ws.ID), "skipped items are not claimed")
}

func TestProfile_PushesAllowListedFields(t *testing.T) {
	f := newFixture(t)
	md := testutil.Titled("Doe, Jane")
	md.Set("person.email", []model.MetadataValue{model.V("jane@old.example")})
	md.Set("person.biography", []model.MetadataValue{model.V("private notes")})
	person := f.create("CvPerson", md)

	clone := f.find(person, relation.Clone)
	require.NotNil(t, clone)
	assert.Equal(t, "CvPersonClone", clone.EntityType)
	assert.True(t, clone.Metadata.Has("person.email"))
	assert.False(t, clone.Metadata.Has("person.biography"), "only allow-listed fields leave the CV")

	f.review(f.pendingReview(clone), workflow.Outcome{Action: workflow.ActionApprove})
	clone = f.lookup(clone.ID)
	require.True(t, clone.Archived)

	f.edit(researcher, person, func(it *model.Item) {
		it.Metadata.Set("person.biography", []model.MetadataValue{model.V("still private")})
	})
	assert.Empty(t, f.all(clone, relation.Corrections), "non allow-listed edits stay local")

	f.edit(researcher, person, func(it *model.Item) {
		it.Metadata.Set("person.email", []model.MetadataValue{model.V("jane@new.example")})
	})
	first := f.all(clone, relation.Corrections)
	require.Len(t, first, 1)
	firstReview := f.pendingReview(first[0])

	f.edit(researcher, person, func(it *model.Item) {
		it.Metadata.Set("person.email", []model.MetadataValue{model.V("jane@newer.example")})
	})
	second := f.all(clone, relation.Corrections)
	require.Len(t, second, 1, "in-flight correction superseded")
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.Nil(t, f.lookup(first[0].ID))

	cancelled, err := f.deps.Workflow.Get(f.ctx, firstReview.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, cancelled.State)

	f.review(f.pendingReview(second[0]), workflow.Outcome{Action: workflow.ActionApprove})
	shadow := f.find(clone, relation.ShadowCopy)
	assert.Equal(t, "jane@newer.example", shadow.Metadata.First("person.email"))
	assert.False(t, shadow.Metadata.Has("person.biography"))
}

func TestProfile_DisplayNameAlwaysSynced(t *testing.T) {
	f := newFixture(t)
	c := NewProfile(f.deps)

	assert.False(t, f.deps.Catalog.Profile().InPersonAllowList(model.FieldTitle))
	assert.True(t, c.synced(model.FieldTitle))
	assert.True(t, c.synced("person.email"))
	assert.False(t, c.synced("person.biography"))
}

func TestAll_DispatchOrder(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"flagging", "outbound", "inbound", "profile"}, f.eng.Consumers())
}
