package workflow

import (
	"context"
	"log/slog"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
)

// finalize commits or rolls back the pending change according to the
// feedback on the item. No feedback reads as approval.
func (m *Machine) finalize(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem) (model.WorkflowState, error) {
	it, err := m.item(ctx, wfi)
	if err != nil {
		return "", err
	}
	if err := m.rewritePlaceholders(ctx, sess, wfi, it); err != nil {
		return "", err
	}
	if it, err = m.item(ctx, wfi); err != nil {
		return "", err
	}

	approved := model.FeedbackOf(it) != model.FeedbackReject

	if wfi.Kind == model.WorkflowDirectorio && wfi.Scope.Kind == model.ScopeCreation {
		dup, err := m.verifiedDuplicate(ctx, it)
		if err != nil {
			return "", err
		}
		if dup != nil {
			return m.finalizeMerge(ctx, sess, it, dup, approved)
		}
	}

	switch wfi.Scope.Kind {
	case model.ScopeCorrection:
		return m.finalizeCorrection(ctx, sess, it, approved)
	case model.ScopeWithdraw, model.ScopeReinstate:
		return m.finalizeRequest(ctx, sess, wfi, it, approved)
	default:
		return m.finalizeCreation(ctx, sess, it, approved)
	}
}

// rewritePlaceholders points placeholder authorities keyed by the CV-side
// pending item (and the CV entity it clones) at the institutional item.
func (m *Machine) rewritePlaceholders(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem, it *model.Item) error {
	origin, inst := it, it
	var err error
	if wfi.Kind == model.WorkflowCV {
		inst, err = m.resolver.Find(ctx, it, relation.ShadowCopy)
	} else {
		origin, err = m.resolver.Find(ctx, it, relation.CopiedItem)
	}
	if err != nil || origin == nil || inst == nil {
		return err
	}

	pending := []string{origin.ID}
	cloned, err := m.resolver.Find(ctx, origin, relation.ClonedItem)
	if err != nil {
		return err
	}
	if cloned != nil {
		pending = append(pending, cloned.ID)
	}

	fields := m.catalog.AuthorityFields(model.Normalize(it.EntityType))
	for _, id := range pending {
		n, err := m.catalog.RewriteAuthority(ctx, sess, catalog.Placeholder(id), inst.ID, fields)
		if err != nil {
			return err
		}
		if n > 0 {
			if err := m.catalog.Record(ctx, sess, inst.ID, "authority", "%d placeholder references to %s resolved", n, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// verifiedDuplicate returns the first live item a reviewer verified it
// duplicates, or nil. Pending and rejected candidates are ignored.
func (m *Machine) verifiedDuplicate(ctx context.Context, it *model.Item) (*model.Item, error) {
	decisions, err := m.dedup.VerifiedDecisions(ctx, it.ID, model.DedupContextWorkflow)
	if err != nil {
		return nil, err
	}
	for _, d := range decisions {
		dup, err := m.catalog.Lookup(ctx, d.DuplicateID)
		if err != nil {
			return nil, err
		}
		if dup != nil && dup.Archived && !dup.Withdrawn {
			return dup, nil
		}
	}
	return nil, nil
}

// finalizeMerge folds the duplicate into it on approval, or it into the
// duplicate on rejection. Either way the survivor inherits the loser's
// CV-side origins so inbound sync keeps reaching every clone.
func (m *Machine) finalizeMerge(ctx context.Context, sess *session.Session, it, dup *model.Item, approved bool) (model.WorkflowState, error) {
	if !approved {
		if err := m.catalog.Install(ctx, sess, it); err != nil {
			return "", err
		}
		if err := m.catalog.Withdraw(ctx, sess, it); err != nil {
			return "", err
		}
		if err := m.mergeInto(ctx, sess, it, dup); err != nil {
			return "", err
		}
		return model.StateCancelled, nil
	}

	if err := m.catalog.Withdraw(ctx, sess, dup); err != nil {
		return "", err
	}
	if err := m.mergeInto(ctx, sess, dup, it); err != nil {
		return "", err
	}
	if _, err := m.catalog.RewriteAuthority(ctx, sess, dup.ID, it.ID, m.catalog.AuthorityFields(model.Normalize(it.EntityType))); err != nil {
		return "", err
	}
	it, err := m.catalog.Get(ctx, it.ID)
	if err != nil {
		return "", err
	}
	if err := m.catalog.Install(ctx, sess, it); err != nil {
		return "", err
	}
	return model.StateComplete, nil
}

// mergeInto links loser into survivor and moves the loser's origins over.
func (m *Machine) mergeInto(ctx context.Context, sess *session.Session, loser, survivor *model.Item) error {
	if _, err := m.resolver.Create(ctx, sess, model.KindMerged, loser, survivor); err != nil {
		return err
	}

	edges, err := m.resolver.Edges(ctx, loser, relation.OriginatedFrom)
	if err != nil {
		return err
	}
	for _, e := range edges {
		clone, err := m.catalog.Lookup(ctx, e.RightID)
		if err != nil {
			return err
		}
		if clone != nil {
			if _, err := m.resolver.Create(ctx, sess, model.KindOriginatedFrom, survivor, clone); err != nil {
				return err
			}
		}
		if err := m.resolver.Delete(ctx, sess, e); err != nil {
			return err
		}
	}

	copied, err := m.resolver.Find(ctx, loser, relation.CopiedItem)
	if err != nil {
		return err
	}
	if copied != nil {
		if _, err := m.resolver.Create(ctx, sess, model.KindOriginatedFrom, survivor, copied); err != nil {
			return err
		}
	}

	slog.Info("items merged", "loser", loser.ID, "survivor", survivor.ID)
	if err := m.catalog.Record(ctx, sess, loser.ID, "merge", "merged into %s", survivor.ID); err != nil {
		return err
	}
	return m.catalog.Record(ctx, sess, survivor.ID, "merge", "absorbed %s", loser.ID)
}

func (m *Machine) finalizeCorrection(ctx context.Context, sess *session.Session, it *model.Item, approved bool) (model.WorkflowState, error) {
	if !approved {
		if err := m.corrections.Discard(ctx, sess, it); err != nil {
			return "", err
		}
		return model.StateCancelled, nil
	}
	native, err := m.corrections.ReplaceCorrectionItemWithNative(ctx, sess, it)
	if err != nil {
		return "", err
	}
	if err := m.catalog.Record(ctx, sess, native.ID, "correction", "correction %s applied", it.ID); err != nil {
		return "", err
	}
	return model.StateComplete, nil
}

// finalizeRequest applies an approved withdraw or reinstate to the scope
// target. The request item is discarded either way.
func (m *Machine) finalizeRequest(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem, it *model.Item, approved bool) (model.WorkflowState, error) {
	if approved {
		target, err := m.scopeTarget(ctx, wfi)
		if err != nil {
			return "", err
		}
		if wfi.Scope.Kind == model.ScopeWithdraw {
			err = m.catalog.Withdraw(ctx, sess, target)
		} else {
			err = m.catalog.Reinstate(ctx, sess, target)
		}
		if err != nil {
			return "", err
		}
		if err := m.catalog.Record(ctx, sess, target.ID, string(wfi.Scope.Kind), "%s via request %s", wfi.Scope.Kind, it.ID); err != nil {
			return "", err
		}
	}
	if err := m.corrections.Discard(ctx, sess, it); err != nil {
		return "", err
	}
	return model.StateCancelled, nil
}

// finalizeCreation installs a new item. A rejected creation is installed
// and then withdrawn.
func (m *Machine) finalizeCreation(ctx context.Context, sess *session.Session, it *model.Item, approved bool) (model.WorkflowState, error) {
	if err := m.catalog.Install(ctx, sess, it); err != nil {
		return "", err
	}
	if approved {
		if err := m.catalog.Record(ctx, sess, it.ID, "install", "installed"); err != nil {
			return "", err
		}
		return model.StateComplete, nil
	}
	if err := m.catalog.Withdraw(ctx, sess, it); err != nil {
		return "", err
	}
	if err := m.catalog.Record(ctx, sess, it.ID, "install", "installed and withdrawn after rejection"); err != nil {
		return "", err
	}
	return model.StateCancelled, nil
}
