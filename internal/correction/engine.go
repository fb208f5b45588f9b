package correction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
)

// Engine stages and applies corrections against the catalog.
type Engine struct {
	catalog  *catalog.Catalog
	resolver *relation.Resolver
}

// NewEngine creates an Engine.
func NewEngine(c *catalog.Catalog, r *relation.Resolver) *Engine {
	return &Engine{catalog: c, resolver: r}
}

// Diff returns the corrections that turn target into source.
func (e *Engine) Diff(target, source *model.Item) model.ItemCorrection {
	return Diff(e.catalog.Profile(), target.Metadata, source.Metadata)
}

// ApplyCorrectionsOnItem replaces the corrected fields of it and saves it.
// Nothing is written when it already carries the corrected values, so
// re-applying a correction emits no further change event.
func (e *Engine) ApplyCorrectionsOnItem(ctx context.Context, sess *session.Session, it *model.Item, ic model.ItemCorrection) error {
	if ic.Empty() || Applied(it.Metadata, ic) {
		return nil
	}
	it.Metadata = Apply(it.Metadata, ic)
	if err := e.catalog.Update(ctx, sess, it); err != nil {
		return fmt.Errorf("apply correction on %s: %w", it.ID, err)
	}
	slog.Debug("correction applied", "item", it.ID, "fields", ic.Fields())
	return nil
}

// CreateWorkspaceItemAndRelationshipByItem creates a pending copy of the
// archived item it and links it with an edge of kind (correction, withdraw
// or reinstate) pointing at it.
func (e *Engine) CreateWorkspaceItemAndRelationshipByItem(ctx context.Context, sess *session.Session, it *model.Item, kind model.RelationshipKind) (*model.Item, error) {
	switch kind {
	case model.KindCorrection, model.KindWithdraw, model.KindReinstate:
	default:
		return nil, fmt.Errorf("workspace item by %s: unsupported relationship kind", kind)
	}
	if !it.Archived {
		return nil, model.NewIllegalStateError(it.ID, "cannot request %s of an item that is not archived", kind)
	}

	ws, err := e.catalog.Create(ctx, sess, catalog.NewItem{
		EntityType:   it.EntityType,
		CollectionID: it.CollectionID,
		Owner:        it.Owner,
		Metadata:     it.Metadata.Without(model.IsWorkflowField),
	})
	if err != nil {
		return nil, fmt.Errorf("workspace item by %s of %s: %w", kind, it.ID, err)
	}
	if _, err := e.resolver.Create(ctx, sess, kind, ws, it); err != nil {
		return nil, err
	}
	slog.Debug("request item created", "kind", kind, "item", ws.ID, "target", it.ID)
	return ws, nil
}

// CreateCorrectionItem creates a correction item for it carrying ic.
func (e *Engine) CreateCorrectionItem(ctx context.Context, sess *session.Session, it *model.Item, ic model.ItemCorrection) (*model.Item, error) {
	ws, err := e.CreateWorkspaceItemAndRelationshipByItem(ctx, sess, it, model.KindCorrection)
	if err != nil {
		return nil, err
	}
	if err := e.ApplyCorrectionsOnItem(ctx, sess, ws, ic); err != nil {
		return nil, err
	}
	return ws, nil
}

// GetCorrectedItem returns the native item corr corrects, or nil.
func (e *Engine) GetCorrectedItem(ctx context.Context, corr *model.Item) (*model.Item, error) {
	return e.resolver.Find(ctx, corr, relation.CorrectedItem)
}

// ReplaceCorrectionItemWithNative folds an approved correction item into
// the native item it corrects and retires the correction item.
// Returns the updated native item.
func (e *Engine) ReplaceCorrectionItemWithNative(ctx context.Context, sess *session.Session, corr *model.Item) (*model.Item, error) {
	native, err := e.GetCorrectedItem(ctx, corr)
	if err != nil {
		return nil, err
	}
	if native == nil {
		return nil, model.NewIllegalStateError(corr.ID, "correction item corrects no item")
	}

	ic := e.Diff(native, corr)
	if err := e.ApplyCorrectionsOnItem(ctx, sess, native, ic); err != nil {
		return nil, err
	}
	if err := e.Discard(ctx, sess, corr); err != nil {
		return nil, err
	}
	slog.Info("correction folded into native item",
		"correction", corr.ID,
		"native", native.ID,
		"fields", ic.Fields(),
	)
	return native, nil
}

// Discard unlinks and deletes a pending request item.
func (e *Engine) Discard(ctx context.Context, sess *session.Session, it *model.Item) error {
	if err := e.resolver.Unlink(ctx, sess, it); err != nil {
		return fmt.Errorf("discard %s: %w", it.ID, err)
	}
	if err := e.catalog.Delete(ctx, sess, it); err != nil {
		return fmt.Errorf("discard %s: %w", it.ID, err)
	}
	return nil
}
