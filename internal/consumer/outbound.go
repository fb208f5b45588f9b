package consumer

import (
	"context"
	"log/slog"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
)

// syncOn is the sync flag value that enables outbound sync.
const syncOn = "true"

// Outbound pushes CV entities with their sync flag on to the Directorio.
type Outbound struct {
	guard guard
	cloner
}

// NewOutbound creates the outbound consumer.
func NewOutbound(d Deps) *Outbound {
	return &Outbound{
		guard: guard{
			name:    "outbound",
			catalog: d.Catalog,
			accepts: func(it *model.Item) bool {
				return model.IsCVEntity(it.EntityType) && it.EntityType != model.PersonType && d.Catalog.Profile().Knows(it.EntityType)
			},
		},
		cloner: cloner{Deps: d},
	}
}

func (c *Outbound) Name() string { return c.guard.name }

func (c *Outbound) Consume(ctx context.Context, sess *session.Session, ev model.Event) error {
	cv, err := c.guard.admit(ctx, sess, ev)
	if err != nil || cv == nil {
		return err
	}
	if !c.syncEnabled(cv) {
		slog.Debug("outbound sync off", "item_id", cv.ID, "type", cv.EntityType)
		return nil
	}
	restore := sess.Elevate()
	defer restore()

	clone, err := c.Resolver.Find(ctx, cv, relation.Clone)
	if err != nil {
		return err
	}

	switch {
	case clone == nil:
		if cv.Withdrawn {
			return nil
		}
		_, err = c.submitClone(ctx, sess, cv, keepAll)
		return err

	case !clone.Archived:
		// The pending submission is outdated: replace it.
		if err := c.dropClone(ctx, sess, clone); err != nil {
			return err
		}
		if cv.Withdrawn {
			return nil
		}
		_, err = c.submitClone(ctx, sess, cv, keepAll)
		return err

	case rejected(clone):
		// Review turned the submission down; a live CV entity starts over.
		if cv.Withdrawn {
			return nil
		}
		if err := c.retireClone(ctx, sess, cv, clone); err != nil {
			return err
		}
		_, err = c.submitClone(ctx, sess, cv, keepAll)
		return err

	case cv.Withdrawn && !clone.Withdrawn:
		return c.request(ctx, sess, clone, model.KindWithdraw, relation.WithdrawRequests)

	case cv.Withdrawn:
		return nil

	case clone.Withdrawn:
		// Edits made while withdrawn still go through a correction.
		if err := c.request(ctx, sess, clone, model.KindReinstate, relation.ReinstateRequests); err != nil {
			return err
		}
	}

	ic := c.Corrections.Diff(clone, cv)
	if ic.Empty() {
		return nil
	}
	_, err = c.submitCorrection(ctx, sess, clone, ic)
	return err
}

func (c *Outbound) syncEnabled(cv *model.Item) bool {
	e, ok := c.Catalog.Profile().Entity(cv.EntityType)
	if !ok || e.SyncFlag == "" {
		return false
	}
	return cv.Metadata.First(e.SyncFlag) == syncOn
}

// request submits a withdraw or reinstate request for clone unless one is
// already pending.
func (c *Outbound) request(ctx context.Context, sess *session.Session, clone *model.Item, kind model.RelationshipKind, pending relation.Lookup) error {
	existing, err := c.Resolver.Find(ctx, clone, pending)
	if err != nil {
		return err
	}
	if existing != nil {
		slog.Debug("request already pending", "clone", clone.ID, "kind", kind, "request", existing.ID)
		return nil
	}

	req, err := c.Corrections.CreateWorkspaceItemAndRelationshipByItem(ctx, sess, clone, kind)
	if err != nil {
		return err
	}
	slog.Info("sync fired", "consumer", c.Name(), "item_id", clone.ID, "request", req.ID, "kind", kind)
	_, err = c.Workflow.Start(ctx, sess, req)
	return err
}
