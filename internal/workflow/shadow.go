package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
)

// shadowCopy creates or locates the Directorio counterpart of a CV-side
// pending item and starts its review. The parent then waits.
func (m *Machine) shadowCopy(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem) (model.WorkflowState, error) {
	it, err := m.item(ctx, wfi)
	if err != nil {
		return "", err
	}

	switch wfi.Scope.Kind {
	case model.ScopeCreation:
		return m.shadowCreation(ctx, sess, wfi, it)
	case model.ScopeCorrection:
		return m.shadowCorrection(ctx, sess, wfi, it)
	case model.ScopeWithdraw, model.ScopeReinstate:
		return m.shadowRequest(ctx, sess, wfi, it)
	default:
		return "", model.NewIllegalStateError(it.ID, "unknown scope %q", wfi.Scope.Kind)
	}
}

// shadowCreation copies a new clone into a Directorio workspace item.
func (m *Machine) shadowCreation(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem, it *model.Item) (model.WorkflowState, error) {
	shadow, err := m.newShadow(ctx, sess, it, false)
	if err != nil {
		return "", err
	}
	if _, err := m.startChild(ctx, sess, wfi, shadow, model.Creation()); err != nil {
		return "", err
	}
	return model.StateWaitForConcytec, nil
}

// shadowCorrection mirrors a clone correction onto the clone's shadow.
func (m *Machine) shadowCorrection(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem, it *model.Item) (model.WorkflowState, error) {
	target, err := m.scopeTarget(ctx, wfi)
	if err != nil {
		return "", err
	}
	shadowTarget, err := m.resolver.Find(ctx, target, relation.ShadowCopy)
	if err != nil {
		return "", err
	}
	if shadowTarget == nil {
		// Clones installed before shadowing existed get their shadow now.
		if shadowTarget, err = m.newShadow(ctx, sess, target, true); err != nil {
			return "", err
		}
	}

	ic, err := m.translateCorrection(ctx, m.corrections.Diff(target, it))
	if err != nil {
		return "", err
	}
	sc, err := m.corrections.CreateCorrectionItem(ctx, sess, shadowTarget, ic)
	if err != nil {
		return "", err
	}
	if _, err := m.resolver.Create(ctx, sess, model.KindShadowCopy, sc, it); err != nil {
		return "", err
	}
	if err := m.catalog.Record(ctx, sess, it.ID, "shadow", "correction %s staged on %s", sc.ID, shadowTarget.ID); err != nil {
		return "", err
	}
	if _, err := m.startChild(ctx, sess, wfi, sc, model.Scope{Kind: model.ScopeCorrection, Target: shadowTarget.ID}); err != nil {
		return "", err
	}
	return model.StateWaitForConcytec, nil
}

// shadowRequest mirrors a withdraw or reinstate request. When the shadow
// is already in the requested state there is nothing to review and the
// request finalizes as approved.
func (m *Machine) shadowRequest(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem, it *model.Item) (model.WorkflowState, error) {
	target, err := m.scopeTarget(ctx, wfi)
	if err != nil {
		return "", err
	}
	shadowTarget, err := m.resolver.Find(ctx, target, relation.ShadowCopy)
	if err != nil {
		return "", err
	}

	withdraw := wfi.Scope.Kind == model.ScopeWithdraw
	if shadowTarget == nil || !shadowTarget.Archived || shadowTarget.Withdrawn == withdraw {
		slog.Info("nothing to review, request finalizes directly",
			"workflow", wfi.ID,
			"item", it.ID,
			"scope", wfi.Scope.String(),
		)
		if err := m.setFeedback(ctx, sess, it, model.FeedbackApprove, ""); err != nil {
			return "", err
		}
		return model.StateFinalize, nil
	}

	kind := model.KindWithdraw
	if !withdraw {
		kind = model.KindReinstate
	}
	sr, err := m.corrections.CreateWorkspaceItemAndRelationshipByItem(ctx, sess, shadowTarget, kind)
	if err != nil {
		return "", err
	}
	if _, err := m.resolver.Create(ctx, sess, model.KindShadowCopy, sr, it); err != nil {
		return "", err
	}
	if err := m.catalog.Record(ctx, sess, it.ID, "shadow", "%s request %s staged on %s", kind, sr.ID, shadowTarget.ID); err != nil {
		return "", err
	}
	if _, err := m.startChild(ctx, sess, wfi, sr, model.Scope{Kind: wfi.Scope.Kind, Target: shadowTarget.ID}); err != nil {
		return "", err
	}
	return model.StateWaitForConcytec, nil
}

// newShadow creates the Directorio copy of the CV-side item src, linked by
// a ShadowCopy edge. The collection is resolved before anything is
// written, so a missing collection leaves no partial state.
func (m *Machine) newShadow(ctx context.Context, sess *session.Session, src *model.Item, installed bool) (*model.Item, error) {
	entityType := model.Normalize(src.EntityType)
	col, err := m.catalog.Collection(ctx, entityType, model.ScopeDirectorio)
	if err != nil {
		return nil, fmt.Errorf("shadow of %s: %w", src.ID, err)
	}

	md, err := m.translateAuthorities(ctx, src.Metadata.Without(m.internalField))
	if err != nil {
		return nil, err
	}
	shadow, err := m.catalog.Create(ctx, sess, catalog.NewItem{
		EntityType:   entityType,
		CollectionID: col.ID,
		Metadata:     md,
		Archived:     installed,
	})
	if err != nil {
		return nil, fmt.Errorf("shadow of %s: %w", src.ID, err)
	}
	if _, err := m.resolver.Create(ctx, sess, model.KindShadowCopy, shadow, src); err != nil {
		return nil, err
	}
	if err := m.catalog.Record(ctx, sess, src.ID, "shadow", "shadow copy %s created in %s", shadow.ID, col.Name); err != nil {
		return nil, err
	}
	slog.Info("shadow copy created",
		"item", src.ID,
		"shadow", shadow.ID,
		"type", entityType,
		"installed", installed,
	)
	return shadow, nil
}

// internalField reports fields that never leave the CV side.
func (m *Machine) internalField(field string) bool {
	return m.catalog.Profile().IsFlagField(field) || model.IsWorkflowField(field) || field == model.FieldProvenance
}

// translateAuthorities points authorities that reference CV-side items at
// their Directorio counterparts. References whose counterpart does not
// exist yet become placeholders keyed by the pending clone (or the CV
// entity when it has no clone); finalize rewrites them.
func (m *Machine) translateAuthorities(ctx context.Context, md model.Metadata) (model.Metadata, error) {
	for _, field := range md.Fields() {
		vals := md[field]
		for i := range vals {
			auth := vals[i].Authority
			if auth == "" || isPlaceholder(auth) {
				continue
			}
			ref, err := m.catalog.Lookup(ctx, auth)
			if err != nil {
				return nil, err
			}
			if ref == nil || !model.IsCVSide(ref.EntityType) {
				continue
			}
			translated, err := m.counterpartAuthority(ctx, ref)
			if err != nil {
				return nil, err
			}
			vals[i].Authority = translated
		}
	}
	return md, nil
}

// translateCorrection translates the new values of ic.
func (m *Machine) translateCorrection(ctx context.Context, ic model.ItemCorrection) (model.ItemCorrection, error) {
	md := model.Metadata{}
	for _, c := range ic.Corrections {
		md.Set(c.Field, c.NewValues)
	}
	md, err := m.translateAuthorities(ctx, md)
	if err != nil {
		return ic, err
	}
	out := model.ItemCorrection{Corrections: make([]model.MetadataCorrection, 0, len(ic.Corrections))}
	for _, c := range ic.Corrections {
		c.NewValues = md.Values(c.Field)
		out.Corrections = append(out.Corrections, c)
	}
	return out, nil
}

func (m *Machine) counterpartAuthority(ctx context.Context, ref *model.Item) (string, error) {
	pending := ref
	if model.IsCVEntity(ref.EntityType) {
		clone, err := m.resolver.Find(ctx, ref, relation.Clone)
		if err != nil {
			return "", err
		}
		if clone == nil {
			return catalog.Placeholder(ref.ID), nil
		}
		pending = clone
	}
	shadow, err := m.resolver.Find(ctx, pending, relation.ShadowCopy)
	if err != nil {
		return "", err
	}
	if shadow != nil {
		return shadow.ID, nil
	}
	return catalog.Placeholder(pending.ID), nil
}

func isPlaceholder(auth string) bool {
	return strings.HasPrefix(auth, catalog.PlaceholderPrefix)
}

// startChild inserts the Directorio review of item on behalf of parent.
func (m *Machine) startChild(ctx context.Context, sess *session.Session, parent *model.WorkflowItem, item *model.Item, scope model.Scope) (*model.WorkflowItem, error) {
	child, err := m.insert(ctx, sess, item, model.WorkflowDirectorio, model.StateReview, scope, parent.ID)
	if err != nil {
		return nil, err
	}
	if err := m.detect(ctx, item, scope); err != nil {
		return nil, err
	}
	return child, nil
}

// scopeTarget loads the item the scope names.
func (m *Machine) scopeTarget(ctx context.Context, wfi *model.WorkflowItem) (*model.Item, error) {
	target, err := m.catalog.Lookup(ctx, wfi.Scope.Target)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, model.NewIllegalStateError(wfi.ItemID, "%s target %s no longer exists", wfi.Scope.Kind, wfi.Scope.Target)
	}
	return target, nil
}
