// Package catalog is the item and metadata service the sync layer writes
// through. Every mutation checks the session's write rights and buffers the
// matching change event on the session.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/dirsync/internal/cache"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/store"
)

// IDGenerator produces item ids.
type IDGenerator interface {
	Generate() string
}

// Catalog wraps the store with authorization and event emission.
type Catalog struct {
	store       *store.Store
	profile     *model.Profile
	ids         IDGenerator
	collections *cache.Cache[model.CollectionDef]
}

// New creates a Catalog.
func New(s *store.Store, profile *model.Profile, ids IDGenerator) *Catalog {
	return &Catalog{
		store:       s,
		profile:     profile,
		ids:         ids,
		collections: cache.New[model.CollectionDef]("collections", cache.DefaultExpiration, cache.DefaultCleanupInterval),
	}
}

// Profile returns the sync profile.
func (c *Catalog) Profile() *model.Profile {
	return c.profile
}

// Store returns the underlying store.
func (c *Catalog) Store() *store.Store {
	return c.store
}

// Bootstrap seeds the profile's collections and relationship types.
// Safe to call on every start.
func (c *Catalog) Bootstrap(ctx context.Context) error {
	for _, col := range c.profile.Collections {
		if err := c.store.UpsertCollection(ctx, col); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	for _, rt := range c.profile.RelationshipTypes {
		if _, err := c.store.UpsertRelationshipType(ctx, rt); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	slog.Debug("catalog bootstrapped",
		"collections", len(c.profile.Collections),
		"relationship_types", len(c.profile.RelationshipTypes),
	)
	return nil
}

// Get returns the item or store.ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*model.Item, error) {
	return c.store.ReadItem(ctx, id)
}

// Lookup returns the item, or nil if it does not exist.
func (c *Catalog) Lookup(ctx context.Context, id string) (*model.Item, error) {
	it, err := c.store.ReadItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return it, err
}

// List returns items of entityType (all when empty).
func (c *Catalog) List(ctx context.Context, entityType string) ([]*model.Item, error) {
	return c.store.ListItems(ctx, entityType)
}

// NewItem describes an item to create.
type NewItem struct {
	EntityType   string
	CollectionID string
	Owner        string
	Metadata     model.Metadata
	// Archived creates the item already installed; an install event is emitted.
	Archived bool
}

// Create stores a new item. Workspace items (Archived=false) emit no event.
func (c *Catalog) Create(ctx context.Context, sess *session.Session, n NewItem) (*model.Item, error) {
	md := n.Metadata
	if md == nil {
		md = model.Metadata{}
	}
	it := &model.Item{
		ID:           c.ids.Generate(),
		EntityType:   n.EntityType,
		CollectionID: n.CollectionID,
		Owner:        n.Owner,
		Archived:     n.Archived,
		Metadata:     md.Clone(),
	}
	if !sess.CanWrite(it) {
		return nil, model.NewNotAuthorizedError(it.ID, sess.Actor.ID)
	}
	if err := c.store.InsertItem(ctx, it); err != nil {
		return nil, err
	}
	if it.Archived {
		sess.Emit(model.Event{Kind: model.EventInstall, ItemID: it.ID, Version: it.Version})
	}
	return it, nil
}

// Update persists metadata changes and emits a modify_metadata event.
func (c *Catalog) Update(ctx context.Context, sess *session.Session, it *model.Item) error {
	return c.save(ctx, sess, it, model.EventModifyMetadata)
}

// Install archives a workspace item. Installing an archived item is a no-op.
func (c *Catalog) Install(ctx context.Context, sess *session.Session, it *model.Item) error {
	if it.Archived {
		return nil
	}
	it.Archived = true
	return c.save(ctx, sess, it, model.EventInstall)
}

// Withdraw hides an archived item. Withdrawing twice is a no-op.
func (c *Catalog) Withdraw(ctx context.Context, sess *session.Session, it *model.Item) error {
	if it.Withdrawn {
		return nil
	}
	if !it.Archived {
		return model.NewIllegalStateError(it.ID, "cannot withdraw an item that is not archived")
	}
	it.Withdrawn = true
	return c.save(ctx, sess, it, model.EventModify)
}

// Reinstate restores a withdrawn item. Reinstating a live item is a no-op.
func (c *Catalog) Reinstate(ctx context.Context, sess *session.Session, it *model.Item) error {
	if !it.Withdrawn {
		return nil
	}
	it.Withdrawn = false
	return c.save(ctx, sess, it, model.EventModify)
}

// Delete removes an item. Fails while relationships still reference it.
func (c *Catalog) Delete(ctx context.Context, sess *session.Session, it *model.Item) error {
	if !sess.CanWrite(it) {
		return model.NewNotAuthorizedError(it.ID, sess.Actor.ID)
	}
	if err := c.store.DeleteItem(ctx, it.ID); err != nil {
		return fmt.Errorf("delete item %s: %w", it.ID, err)
	}
	return nil
}

func (c *Catalog) save(ctx context.Context, sess *session.Session, it *model.Item, kind model.EventKind) error {
	if !sess.CanWrite(it) {
		return model.NewNotAuthorizedError(it.ID, sess.Actor.ID)
	}
	if err := c.store.UpdateItem(ctx, it); err != nil {
		return err
	}
	sess.Emit(model.Event{Kind: kind, ItemID: it.ID, Version: it.Version})
	return nil
}

// Collection returns the collection for entityType in scope.
// A missing collection is a configuration error.
func (c *Catalog) Collection(ctx context.Context, entityType, scope string) (model.CollectionDef, error) {
	key := entityType + "|" + scope
	col, err := c.collections.GetOrLoad(key, func() (model.CollectionDef, error) {
		return c.store.CollectionFor(ctx, entityType, scope)
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.CollectionDef{}, model.NewConfigurationError("",
			"no %s collection configured for entity type %s", scope, entityType)
	}
	return col, err
}

// Record appends an audit entry for itemID.
func (c *Catalog) Record(ctx context.Context, sess *session.Session, itemID, action, format string, args ...any) error {
	return c.store.AppendProvenance(ctx, model.ProvenanceEntry{
		ItemID:    itemID,
		SessionID: sess.ID,
		Action:    action,
		Message:   fmt.Sprintf(format, args...),
	})
}
