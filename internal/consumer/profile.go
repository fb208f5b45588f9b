package consumer

import (
	"context"
	"log/slog"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
)

// Profile pushes the allow-listed fields of a researcher profile to the
// Directorio. A new correction supersedes any still under review.
type Profile struct {
	guard guard
	cloner
}

// NewProfile creates the profile consumer.
func NewProfile(d Deps) *Profile {
	return &Profile{
		guard: guard{
			name:    "profile",
			catalog: d.Catalog,
			accepts: func(it *model.Item) bool { return it.EntityType == model.PersonType },
		},
		cloner: cloner{Deps: d},
	}
}

func (c *Profile) Name() string { return c.guard.name }

func (c *Profile) Consume(ctx context.Context, sess *session.Session, ev model.Event) error {
	person, err := c.guard.admit(ctx, sess, ev)
	if err != nil || person == nil {
		return err
	}
	restore := sess.Elevate()
	defer restore()

	clone, err := c.Resolver.Find(ctx, person, relation.Clone)
	if err != nil {
		return err
	}
	if clone != nil && !clone.Archived {
		if err := c.dropClone(ctx, sess, clone); err != nil {
			return err
		}
		clone = nil
	}
	if clone == nil {
		_, err = c.submitClone(ctx, sess, person, c.synced)
		return err
	}

	ic := c.Corrections.Diff(clone, person).Filter(c.Catalog.Profile().InPersonAllowList)
	if ic.Empty() {
		return nil
	}
	if err := c.supersede(ctx, sess, clone); err != nil {
		return err
	}
	_, err = c.submitCorrection(ctx, sess, clone, ic)
	return err
}

// synced reports the person fields that leave the CV side: the display
// name plus the profile's allow-list.
func (c *Profile) synced(field string) bool {
	return field == model.FieldTitle || c.Catalog.Profile().InPersonAllowList(field)
}

// supersede cancels the in-flight corrections of clone along with the
// shadow reviews they wait on.
func (c *Profile) supersede(ctx context.Context, sess *session.Session, clone *model.Item) error {
	pending, err := c.Resolver.FindAll(ctx, clone, relation.Corrections)
	if err != nil {
		return err
	}
	for _, corr := range pending {
		wfi, err := c.Workflow.ForItem(ctx, corr.ID)
		if err != nil {
			return err
		}
		if wfi != nil {
			if err := c.Workflow.Delete(ctx, sess, wfi); err != nil {
				return err
			}
		}
		if still, err := c.Catalog.Lookup(ctx, corr.ID); err != nil {
			return err
		} else if still != nil {
			if err := c.Corrections.Discard(ctx, sess, still); err != nil {
				return err
			}
		}
		slog.Info("correction superseded", "clone", clone.ID, "correction", corr.ID)
	}
	return nil
}
