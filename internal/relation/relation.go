// Package relation resolves counterparts across the relationship graph.
//
// Every "find the X of this item" question is one Lookup: a relationship
// kind plus the side of the edge to return. An edge reads
// "left <leftward> right":
//
//	clone       clone          isCloneOfItem          cv entity
//	shadow      directorio     isShadowCopy           clone
//	correction  correction     isCorrectionOfItem     native
//	withdraw    request        isWithdrawOfItem       target
//	reinstate   request        isReinstatementOfItem  target
//	merged      loser          isMergedInItem         survivor
//	originated  directorio     isOriginatedFromInItem clone
package relation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/dirsync/internal/cache"
	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/store"
)

// Side selects an end of an edge.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Lookup names a counterpart: edges of Kind, returning the item on Side.
// The queried item is matched on the opposite side.
type Lookup struct {
	Kind model.RelationshipKind
	Side Side
}

func (l Lookup) String() string {
	return fmt.Sprintf("%s/%s", l.Kind, l.Side)
}

// Named lookups.
var (
	// Clone of a CV entity.
	Clone = Lookup{model.KindClone, Left}
	// ClonedItem is the CV entity a clone copies.
	ClonedItem = Lookup{model.KindClone, Right}
	// ShadowCopy is the Directorio item mirroring a CV-side item.
	ShadowCopy = Lookup{model.KindShadowCopy, Left}
	// CopiedItem is the CV-side item a Directorio item mirrors.
	CopiedItem = Lookup{model.KindShadowCopy, Right}
	// Corrections are the pending correction items of a native item.
	Corrections = Lookup{model.KindCorrection, Left}
	// CorrectedItem is the native item a correction item corrects.
	CorrectedItem = Lookup{model.KindCorrection, Right}
	// WithdrawRequests are the pending withdraw requests targeting an item.
	WithdrawRequests = Lookup{model.KindWithdraw, Left}
	// WithdrawnItem is the target of a withdraw request.
	WithdrawnItem = Lookup{model.KindWithdraw, Right}
	// ReinstateRequests are the pending reinstate requests targeting an item.
	ReinstateRequests = Lookup{model.KindReinstate, Left}
	// ReinstatedItem is the target of a reinstate request.
	ReinstatedItem = Lookup{model.KindReinstate, Right}
	// MergedInto is the survivor a merged item was folded into.
	MergedInto = Lookup{model.KindMerged, Right}
	// MergeOf are the items merged into a survivor.
	MergeOf = Lookup{model.KindMerged, Left}
	// OriginatedFrom are the CV-side clones a Directorio item originated from.
	OriginatedFrom = Lookup{model.KindOriginatedFrom, Right}
	// OriginOf are the Directorio items that originated from a clone.
	OriginOf = Lookup{model.KindOriginatedFrom, Left}
)

// named maps the snake_case lookup names used by scenarios and the CLI.
var named = map[string]Lookup{
	"clone":              Clone,
	"cloned_item":        ClonedItem,
	"shadow_copy":        ShadowCopy,
	"copied_item":        CopiedItem,
	"corrections":        Corrections,
	"corrected_item":     CorrectedItem,
	"withdraw_requests":  WithdrawRequests,
	"withdrawn_item":     WithdrawnItem,
	"reinstate_requests": ReinstateRequests,
	"reinstated_item":    ReinstatedItem,
	"merged_into":        MergedInto,
	"merge_of":           MergeOf,
	"originated_from":    OriginatedFrom,
	"origin_of":          OriginOf,
}

// ParseLookup returns the named lookup, e.g. "shadow_copy".
func ParseLookup(name string) (Lookup, error) {
	l, ok := named[name]
	if !ok {
		return Lookup{}, fmt.Errorf("unknown lookup %q", name)
	}
	return l, nil
}

// Resolver walks and edits the relationship graph.
type Resolver struct {
	catalog *catalog.Catalog
	types   *cache.Cache[model.RelationshipType]
}

// New creates a Resolver.
func New(c *catalog.Catalog) *Resolver {
	return &Resolver{
		catalog: c,
		types:   cache.New[model.RelationshipType]("relationship_types", cache.DefaultExpiration, cache.DefaultCleanupInterval),
	}
}

// Edges returns the edges of it matching l, ordered by place.
func (r *Resolver) Edges(ctx context.Context, it *model.Item, l Lookup) ([]model.Relationship, error) {
	// The queried item sits opposite the returned side.
	itemOnLeft := l.Side == Right
	return r.catalog.Store().RelationshipsByName(ctx, it.ID, l.Kind.Names().Leftward, itemOnLeft)
}

// FindAll returns every counterpart of it under l. Edges whose far item no
// longer exists are skipped.
func (r *Resolver) FindAll(ctx context.Context, it *model.Item, l Lookup) ([]*model.Item, error) {
	if it == nil {
		return []*model.Item{}, nil
	}
	rels, err := r.Edges(ctx, it, l)
	if err != nil {
		return nil, fmt.Errorf("find %s of %s: %w", l, it.ID, err)
	}

	out := make([]*model.Item, 0, len(rels))
	for _, rel := range rels {
		id := rel.LeftID
		if l.Side == Right {
			id = rel.RightID
		}
		other, err := r.catalog.Lookup(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("find %s of %s: %w", l, it.ID, err)
		}
		if other != nil {
			out = append(out, other)
		}
	}
	return out, nil
}

// Find returns the first counterpart of it under l, or nil when there is
// none. Absence is not an error.
func (r *Resolver) Find(ctx context.Context, it *model.Item, l Lookup) (*model.Item, error) {
	all, err := r.FindAll(ctx, it, l)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

// Create inserts one edge of kind from left to right. It does not check for
// an existing edge between the pair; callers keep edges 1:1 where needed.
// A missing relationship type is a configuration error.
func (r *Resolver) Create(ctx context.Context, sess *session.Session, kind model.RelationshipKind, left, right *model.Item) (model.Relationship, error) {
	if !sess.CanWrite(left) && !sess.CanWrite(right) {
		return model.Relationship{}, model.NewNotAuthorizedError(left.ID, sess.Actor.ID)
	}
	rt, err := r.relationshipType(ctx, kind, left.EntityType, right.EntityType)
	if err != nil {
		return model.Relationship{}, err
	}
	rel, err := r.catalog.Store().InsertRelationship(ctx, left.ID, right.ID, rt.ID)
	if err != nil {
		return model.Relationship{}, err
	}
	slog.Debug("relationship created",
		"kind", kind,
		"left", left.ID,
		"right", right.ID,
		"left_place", rel.LeftPlace,
		"right_place", rel.RightPlace,
	)
	return rel, nil
}

// Delete removes one edge.
func (r *Resolver) Delete(ctx context.Context, sess *session.Session, rel model.Relationship) error {
	if !sess.Elevated() && !sess.Actor.Admin {
		return model.NewNotAuthorizedError(rel.LeftID, sess.Actor.ID)
	}
	return r.catalog.Store().DeleteRelationship(ctx, rel.ID)
}

// Unlink removes every edge touching it, so it can be deleted.
func (r *Resolver) Unlink(ctx context.Context, sess *session.Session, it *model.Item) error {
	rels, err := r.catalog.Store().RelationshipsOf(ctx, it.ID)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if err := r.Delete(ctx, sess, rel); err != nil {
			return err
		}
	}
	return nil
}

// relationshipType finds the type of kind between two entity types.
func (r *Resolver) relationshipType(ctx context.Context, kind model.RelationshipKind, leftType, rightType string) (model.RelationshipType, error) {
	names := kind.Names()
	key := leftType + "|" + rightType + "|" + names.Leftward
	rt, err := r.types.GetOrLoad(key, func() (model.RelationshipType, error) {
		return r.catalog.Store().FindRelationshipType(ctx, leftType, rightType, names.Leftward, names.Rightward)
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.RelationshipType{}, model.NewConfigurationError("",
			"no %s relationship type between %s and %s", kind, leftType, rightType)
	}
	return rt, err
}
