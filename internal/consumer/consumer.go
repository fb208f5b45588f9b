// Package consumer holds the synchronization consumers the engine
// dispatches item change events to.
//
//	flagging  CV entity edited: flag fields the researcher emptied
//	outbound  CV entity with its sync flag on: clone, correct, withdraw, reinstate
//	inbound   Directorio item changed: pull unflagged fields into the CV side
//	profile   CvPerson edited: push allow-listed fields as a correction
//
// Every consumer admits an event through a guard that claims the item in
// the session before any work, so a consumer handles an item at most once
// per session no matter how many events its own writes produce.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/correction"
	"github.com/roach88/dirsync/internal/engine"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/workflow"
)

// Deps are the services consumers write through.
type Deps struct {
	Catalog     *catalog.Catalog
	Resolver    *relation.Resolver
	Corrections *correction.Engine
	Workflow    *workflow.Machine
}

// All returns the consumers in dispatch order.
func All(d Deps) []engine.Consumer {
	return []engine.Consumer{
		NewFlagging(d),
		NewOutbound(d),
		NewInbound(d),
		NewProfile(d),
	}
}

// guard admits events for one consumer.
type guard struct {
	name    string
	catalog *catalog.Catalog
	accepts func(it *model.Item) bool
}

// admit returns the event's item, claimed for the consumer, or nil when
// the event is not for it: the item is gone, not archived, of another
// type, or already handled in this session.
func (g guard) admit(ctx context.Context, sess *session.Session, ev model.Event) (*model.Item, error) {
	it, err := g.catalog.Lookup(ctx, ev.ItemID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.name, err)
	}
	skip := ""
	switch {
	case it == nil:
		skip = "item gone"
	case !it.Archived:
		skip = "not archived"
	case !g.accepts(it):
		skip = "type not handled"
	case !sess.Claim(g.name, it.ID):
		skip = "already processed"
	}
	if skip != "" {
		slog.Debug("consumer skipped event",
			"consumer", g.name,
			"item_id", ev.ItemID,
			"kind", ev.Kind,
			"reason", skip,
		)
		return nil, nil
	}
	return it, nil
}

// cloner creates and refreshes the clones of CV entities.
type cloner struct {
	Deps
}

// submitClone copies cv into a new clone, links it and starts its workflow.
func (c cloner) submitClone(ctx context.Context, sess *session.Session, cv *model.Item, keep func(field string) bool) (*model.Item, error) {
	cloneType := model.CloneType(cv.EntityType)
	col, err := c.Catalog.Collection(ctx, cloneType, model.ScopeCV)
	if err != nil {
		return nil, err
	}
	p := c.Catalog.Profile()
	md := cv.Metadata.Without(func(field string) bool {
		return p.IsFlagField(field) || model.IsWorkflowField(field) || field == model.FieldProvenance || !keep(field)
	})
	clone, err := c.Catalog.Create(ctx, sess, catalog.NewItem{
		EntityType:   cloneType,
		CollectionID: col.ID,
		Owner:        cv.Owner,
		Metadata:     md,
	})
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", cv.ID, err)
	}
	if _, err := c.Resolver.Create(ctx, sess, model.KindClone, clone, cv); err != nil {
		return nil, err
	}
	if err := c.Catalog.Record(ctx, sess, cv.ID, "clone", "clone %s submitted", clone.ID); err != nil {
		return nil, err
	}
	slog.Info("clone submitted", "item_id", cv.ID, "clone", clone.ID, "type", cloneType)

	if _, err := c.Workflow.Start(ctx, sess, clone); err != nil {
		return clone, err
	}
	return clone, nil
}

// dropClone cancels the in-flight workflow of an unarchived clone and
// deletes it.
func (c cloner) dropClone(ctx context.Context, sess *session.Session, clone *model.Item) error {
	wfi, err := c.Workflow.ForItem(ctx, clone.ID)
	if err != nil {
		return err
	}
	if wfi != nil {
		if err := c.Workflow.Delete(ctx, sess, wfi); err != nil {
			return err
		}
	}
	stale, err := c.Catalog.Lookup(ctx, clone.ID)
	if err != nil || stale == nil {
		return err
	}
	return c.Corrections.Discard(ctx, sess, stale)
}

// rejected reports whether review turned clone's submission down. A clone
// withdrawn by request keeps the feedback of its approved creation.
func rejected(clone *model.Item) bool {
	return clone.Withdrawn && model.FeedbackOf(clone) == model.FeedbackReject
}

// retireClone unlinks a rejected clone from cv so a new submission can take
// its place. The clone itself stays for audit.
func (c cloner) retireClone(ctx context.Context, sess *session.Session, cv, clone *model.Item) error {
	edges, err := c.Resolver.Edges(ctx, cv, relation.Clone)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.LeftID != clone.ID {
			continue
		}
		if err := c.Resolver.Delete(ctx, sess, e); err != nil {
			return err
		}
	}
	slog.Info("rejected clone retired", "item_id", cv.ID, "clone", clone.ID)
	return c.Catalog.Record(ctx, sess, cv.ID, "clone", "rejected clone %s retired", clone.ID)
}

// submitCorrection stages ic against clone and starts its workflow.
func (c cloner) submitCorrection(ctx context.Context, sess *session.Session, clone *model.Item, ic model.ItemCorrection) (*model.Item, error) {
	corr, err := c.Corrections.CreateCorrectionItem(ctx, sess, clone, ic)
	if err != nil {
		return nil, err
	}
	slog.Info("correction submitted",
		"clone", clone.ID,
		"correction", corr.ID,
		"fields", ic.Fields(),
	)
	if _, err := c.Workflow.Start(ctx, sess, corr); err != nil {
		return corr, err
	}
	return corr, nil
}

func keepAll(string) bool { return true }
