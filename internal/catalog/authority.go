package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
)

// PlaceholderPrefix marks an authority that will point at a Directorio item
// once it exists. The suffix is the id of the CV-side pending item.
const PlaceholderPrefix = "will be referenced::SHADOW::"

// Placeholder returns the placeholder authority for a pending item.
func Placeholder(pendingID string) string {
	return PlaceholderPrefix + pendingID
}

// AuthorityFields returns the fields that hold authorities pointing at
// entities of entityType (normalized).
func (c *Catalog) AuthorityFields(entityType string) []string {
	e, ok := c.profile.Entity(entityType)
	if !ok {
		return nil
	}
	return e.AuthorityFields
}

// RewriteAuthority replaces every authority equal to from with to, within
// fields, across all items. Rewritten values are marked accepted.
// Returns the number of items changed.
//
// Only the listed fields are scanned; references held in other fields are
// left untouched.
func (c *Catalog) RewriteAuthority(ctx context.Context, sess *session.Session, from, to string, fields []string) (int, error) {
	if from == "" || from == to || len(fields) == 0 {
		return 0, nil
	}
	ids, err := c.store.ItemsWithAuthority(ctx, from, fields)
	if err != nil {
		return 0, fmt.Errorf("rewrite authority: %w", err)
	}

	scanned := make(map[string]bool, len(fields))
	for _, f := range fields {
		scanned[f] = true
	}

	changed := 0
	for _, id := range ids {
		it, err := c.Get(ctx, id)
		if err != nil {
			return changed, fmt.Errorf("rewrite authority: %w", err)
		}
		touched := false
		for field, vals := range it.Metadata {
			if !scanned[field] {
				continue
			}
			for i := range vals {
				if vals[i].Authority == from {
					vals[i].Authority = to
					vals[i].Confidence = model.ConfidenceAccepted
					touched = true
				}
			}
		}
		if !touched {
			continue
		}
		if err := c.Update(ctx, sess, it); err != nil {
			return changed, fmt.Errorf("rewrite authority on %s: %w", id, err)
		}
		changed++
	}

	if changed > 0 {
		slog.Debug("authorities rewritten", "from", from, "to", to, "items", changed)
	}
	return changed, nil
}
