package consumer

import (
	"context"
	"log/slog"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/correction"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
)

// Flagging marks fields a researcher emptied on a CV entity while the
// Directorio copy still carries them, so inbound sync leaves them empty.
type Flagging struct {
	guard    guard
	catalog  *catalog.Catalog
	resolver *relation.Resolver
}

// NewFlagging creates the flagging consumer.
func NewFlagging(d Deps) *Flagging {
	return &Flagging{
		guard: guard{
			name:    "flagging",
			catalog: d.Catalog,
			accepts: func(it *model.Item) bool { return model.IsCVEntity(it.EntityType) },
		},
		catalog:  d.Catalog,
		resolver: d.Resolver,
	}
}

func (c *Flagging) Name() string { return c.guard.name }

func (c *Flagging) Consume(ctx context.Context, sess *session.Session, ev model.Event) error {
	cv, err := c.guard.admit(ctx, sess, ev)
	if err != nil || cv == nil {
		return err
	}
	restore := sess.Elevate()
	defer restore()

	clone, err := c.resolver.Find(ctx, cv, relation.Clone)
	if err != nil || clone == nil {
		return err
	}
	shadow, err := c.resolver.Find(ctx, clone, relation.ShadowCopy)
	if err != nil || shadow == nil {
		return err
	}

	added := FlagsToAdd(c.catalog.Profile(), cv.Metadata, shadow.Metadata)
	if len(added) == 0 {
		return nil
	}
	p := c.catalog.Profile()
	for _, field := range added {
		cv.Metadata.Set(p.FlagField(field), []model.MetadataValue{model.V("")})
	}
	if err := c.catalog.Update(ctx, sess, cv); err != nil {
		return err
	}
	slog.Info("sync fired", "consumer", c.Name(), "item_id", cv.ID, "flagged", added)
	return c.catalog.Record(ctx, sess, cv.ID, "flag", "protected %v from inbound sync", added)
}

// FlagsToAdd returns the fields the Directorio copy carries that the CV
// entity has no value for and that are not flagged yet.
func FlagsToAdd(p *model.Profile, cv, shadow model.Metadata) []string {
	ic := correction.Diff(p, cv, shadow)
	out := []string{}
	for _, mc := range ic.Corrections {
		if cv.Has(mc.Field) || cv.Has(p.FlagField(mc.Field)) {
			continue
		}
		out = append(out, mc.Field)
	}
	return out
}
