package consumer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/correction"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
)

// Inbound pulls Directorio changes into the CV clones an institutional
// item stems from and into the CV entities behind them. Fields the
// researcher flagged on the CV entity are left alone on both.
type Inbound struct {
	guard guard
	Deps
}

// NewInbound creates the inbound consumer.
func NewInbound(d Deps) *Inbound {
	return &Inbound{
		guard: guard{
			name:    "inbound",
			catalog: d.Catalog,
			accepts: func(it *model.Item) bool { return model.IsInstitutional(it.EntityType) },
		},
		Deps: d,
	}
}

func (c *Inbound) Name() string { return c.guard.name }

func (c *Inbound) Consume(ctx context.Context, sess *session.Session, ev model.Event) error {
	inst, err := c.guard.admit(ctx, sess, ev)
	if err != nil || inst == nil {
		return err
	}
	restore := sess.Elevate()
	defer restore()

	clones, err := c.clones(ctx, inst)
	if err != nil {
		return err
	}
	if len(clones) == 0 {
		return nil
	}

	source, err := c.localize(ctx, inst.Metadata)
	if err != nil {
		return err
	}
	for _, clone := range clones {
		cv, err := c.Resolver.Find(ctx, clone, relation.ClonedItem)
		if err != nil {
			return err
		}
		if cv == nil {
			if rejected(clone) {
				slog.Debug("retired clone skipped", "item_id", inst.ID, "clone", clone.ID)
				continue
			}
			return model.NewIllegalStateError(clone.ID, "clone of %s has no CV entity", inst.ID)
		}

		ic := InboundCorrection(c.Catalog.Profile(), cv, clone.Metadata, source)
		if ic.Empty() {
			continue
		}
		if err := c.Corrections.ApplyCorrectionsOnItem(ctx, sess, clone, ic); err != nil {
			return err
		}
		if err := c.Corrections.ApplyCorrectionsOnItem(ctx, sess, cv, ic); err != nil {
			return err
		}
		slog.Info("sync fired",
			"consumer", c.Name(),
			"item_id", inst.ID,
			"clone", clone.ID,
			"cv", cv.ID,
			"fields", ic.Fields(),
		)
		if err := c.Catalog.Record(ctx, sess, cv.ID, "inbound", "updated from %s: %v", inst.ID, ic.Fields()); err != nil {
			return err
		}
	}
	return nil
}

// clones returns the CV clones inst mirrors or originated from.
func (c *Inbound) clones(ctx context.Context, inst *model.Item) ([]*model.Item, error) {
	seen := map[string]bool{}
	out := []*model.Item{}
	for _, l := range []relation.Lookup{relation.CopiedItem, relation.OriginatedFrom} {
		found, err := c.Resolver.FindAll(ctx, inst, l)
		if err != nil {
			return nil, err
		}
		for _, it := range found {
			if seen[it.ID] || !model.IsClone(it.EntityType) {
				continue
			}
			seen[it.ID] = true
			out = append(out, it)
		}
	}
	return out, nil
}

// localize maps authorities that reference Directorio items (or placeholders
// for pending CV items) back to the CV entities behind them. References
// with no CV counterpart are kept.
func (c *Inbound) localize(ctx context.Context, md model.Metadata) (model.Metadata, error) {
	out := md.Clone()
	for _, field := range out.Fields() {
		vals := out[field]
		for i := range vals {
			auth := vals[i].Authority
			if auth == "" {
				continue
			}
			local, err := c.localAuthority(ctx, auth)
			if err != nil {
				return nil, err
			}
			vals[i].Authority = local
		}
	}
	return out, nil
}

func (c *Inbound) localAuthority(ctx context.Context, auth string) (string, error) {
	var pending *model.Item
	var err error
	if id, ok := strings.CutPrefix(auth, catalog.PlaceholderPrefix); ok {
		pending, err = c.Catalog.Lookup(ctx, id)
	} else {
		var ref *model.Item
		ref, err = c.Catalog.Lookup(ctx, auth)
		if err != nil || ref == nil || !model.IsInstitutional(ref.EntityType) {
			return auth, err
		}
		pending, err = c.Resolver.Find(ctx, ref, relation.CopiedItem)
	}
	if err != nil || pending == nil {
		return auth, err
	}
	if model.IsCVEntity(pending.EntityType) {
		return pending.ID, nil
	}
	cv, err := c.Resolver.Find(ctx, pending, relation.ClonedItem)
	if err != nil || cv == nil {
		return auth, err
	}
	return cv.ID, nil
}

// InboundCorrection is the correction that brings clone up to date with
// the Directorio metadata, minus the fields flagged on cv.
func InboundCorrection(p *model.Profile, cv *model.Item, clone, source model.Metadata) model.ItemCorrection {
	return correction.Diff(p, clone, source).Filter(func(field string) bool {
		return !p.IsFlagged(cv, field)
	})
}
