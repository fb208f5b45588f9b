package app

import (
	"context"
	"fmt"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/workflow"
)

// NewItem describes an item a host creates.
type NewItem struct {
	EntityType string         `json:"entity_type" yaml:"entity_type"`
	Owner      string         `json:"owner,omitempty" yaml:"owner,omitempty"`
	Metadata   model.Metadata `json:"metadata" yaml:"metadata"`
	// Workspace leaves the item uninstalled; no event fires until Install.
	Workspace bool `json:"workspace,omitempty" yaml:"workspace,omitempty"`
}

// CreateItem stores an item in the collection its type belongs to and
// dispatches the resulting events.
func (a *App) CreateItem(ctx context.Context, actor session.Actor, n NewItem) (*model.Item, error) {
	if n.EntityType == "" {
		return nil, fmt.Errorf("create item: entity type required")
	}
	scope := model.ScopeCV
	if model.IsInstitutional(n.EntityType) {
		scope = model.ScopeDirectorio
	}
	col, err := a.Catalog.Collection(ctx, n.EntityType, scope)
	if err != nil {
		return nil, err
	}
	owner := n.Owner
	if owner == "" {
		owner = actor.ID
	}

	var it *model.Item
	_, err = a.Engine.Submit(ctx, actor, func(ctx context.Context, sess *session.Session) error {
		var err error
		it, err = a.Catalog.Create(ctx, sess, catalog.NewItem{
			EntityType:   n.EntityType,
			CollectionID: col.ID,
			Owner:        owner,
			Metadata:     n.Metadata,
			Archived:     !n.Workspace,
		})
		if err != nil {
			return err
		}
		return a.Catalog.Record(ctx, sess, it.ID, "create", "%s created by %s", n.EntityType, actor.ID)
	})
	if it == nil {
		return nil, err
	}
	return a.reload(ctx, it.ID, err)
}

// UpdateItem replaces the given fields on item id. A field mapped to no
// values is removed.
func (a *App) UpdateItem(ctx context.Context, actor session.Actor, id string, fields model.Metadata) (*model.Item, error) {
	_, err := a.Engine.Submit(ctx, actor, func(ctx context.Context, sess *session.Session) error {
		it, err := a.Catalog.Get(ctx, id)
		if err != nil {
			return err
		}
		for field, vals := range fields {
			it.Metadata.Set(field, vals)
		}
		return a.Catalog.Update(ctx, sess, it)
	})
	return a.reload(ctx, id, err)
}

// InstallItem archives a workspace item.
func (a *App) InstallItem(ctx context.Context, actor session.Actor, id string) (*model.Item, error) {
	return a.mutate(ctx, actor, id, a.Catalog.Install)
}

// WithdrawItem withdraws an archived item.
func (a *App) WithdrawItem(ctx context.Context, actor session.Actor, id string) (*model.Item, error) {
	return a.mutate(ctx, actor, id, a.Catalog.Withdraw)
}

// ReinstateItem reinstates a withdrawn item.
func (a *App) ReinstateItem(ctx context.Context, actor session.Actor, id string) (*model.Item, error) {
	return a.mutate(ctx, actor, id, a.Catalog.Reinstate)
}

func (a *App) mutate(ctx context.Context, actor session.Actor, id string, op func(context.Context, *session.Session, *model.Item) error) (*model.Item, error) {
	_, err := a.Engine.Submit(ctx, actor, func(ctx context.Context, sess *session.Session) error {
		it, err := a.Catalog.Get(ctx, id)
		if err != nil {
			return err
		}
		return op(ctx, sess, it)
	})
	return a.reload(ctx, id, err)
}

// Fire delivers a host event for an existing item at its current version.
func (a *App) Fire(ctx context.Context, id string, kind model.EventKind) error {
	it, err := a.Catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	return a.Engine.Deliver(ctx, model.Event{Kind: kind, ItemID: it.ID, Version: it.Version})
}

// Decide applies a review outcome to workflow item id.
func (a *App) Decide(ctx context.Context, actor session.Actor, id string, outcome workflow.Outcome) (*model.WorkflowItem, error) {
	var wfi *model.WorkflowItem
	_, err := a.Engine.Submit(ctx, actor, func(ctx context.Context, sess *session.Session) error {
		var err error
		wfi, err = a.Workflow.Decide(ctx, sess, id, outcome)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wfi, nil
}

// CancelWorkflow deletes workflow item id and its pending children.
func (a *App) CancelWorkflow(ctx context.Context, actor session.Actor, id string) error {
	_, err := a.Engine.Submit(ctx, actor, func(ctx context.Context, sess *session.Session) error {
		wfi, err := a.Workflow.Get(ctx, id)
		if err != nil {
			return err
		}
		return a.Workflow.Delete(ctx, sess, wfi)
	})
	return err
}

// Verdict is a reviewer's answer on a duplicate candidate.
type Verdict string

const (
	VerdictVerify Verdict = "verify"
	VerdictReject Verdict = "reject"
)

// JudgeDuplicate records a verdict on the candidate pair (itemID, duplicateID).
func (a *App) JudgeDuplicate(ctx context.Context, itemID, duplicateID string, v Verdict, note string) error {
	switch v {
	case VerdictVerify:
		return a.Dedup.Verify(ctx, itemID, duplicateID, model.DedupContextWorkflow, note)
	case VerdictReject:
		return a.Dedup.Reject(ctx, itemID, duplicateID, model.DedupContextWorkflow, note)
	default:
		return fmt.Errorf("unknown verdict %q", v)
	}
}

// Trace returns the provenance of itemID, or of every item when itemID is empty.
func (a *App) Trace(ctx context.Context, itemID string) ([]model.ProvenanceEntry, error) {
	if itemID == "" {
		return a.Store.ReadAllProvenance(ctx)
	}
	return a.Store.ReadProvenance(ctx, itemID)
}

// reload returns the current state of id alongside err, so callers see
// what was written even when a consumer failed afterwards.
func (a *App) reload(ctx context.Context, id string, err error) (*model.Item, error) {
	it, gerr := a.Catalog.Lookup(ctx, id)
	if gerr != nil && err == nil {
		err = gerr
	}
	return it, err
}
