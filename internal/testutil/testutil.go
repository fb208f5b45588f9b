// Package testutil provides fixtures shared by package tests: a temp-dir
// store bootstrapped with the default profile and item builders.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/compiler"
	"github.com/roach88/dirsync/internal/engine"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/store"
)

// Researcher is the owner of CV fixtures.
const Researcher = "researcher-1"

// OpenStore opens a fresh store under t.TempDir().
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "dirsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Profile returns the embedded default profile.
func Profile(t *testing.T) *model.Profile {
	t.Helper()
	p, err := compiler.DefaultProfile()
	require.NoError(t, err)
	return p
}

// NewCatalog returns a bootstrapped catalog over a fresh store. Item ids
// are "item-0001", "item-0002", ...
func NewCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return NewCatalogWithProfile(t, Profile(t))
}

// NewCatalogWithProfile is NewCatalog with a custom profile.
func NewCatalogWithProfile(t *testing.T, p *model.Profile) *catalog.Catalog {
	t.Helper()
	c := catalog.New(OpenStore(t), p, engine.NewSequenceGenerator("item"))
	require.NoError(t, c.Bootstrap(context.Background()))
	return c
}

// Admin returns an administrator session.
func Admin(id string) *session.Session {
	return session.New(id, session.Actor{ID: "admin", Admin: true})
}

// Titled returns metadata with a single dc.title value.
func Titled(title string) model.Metadata {
	return model.Metadata{"dc.title": {model.V(title)}}
}

// CreateItem stores an item of entityType in its collection, archived.
// Types the profile does not know are stored without a collection.
func CreateItem(t *testing.T, c *catalog.Catalog, sess *session.Session, entityType string, md model.Metadata) *model.Item {
	t.Helper()
	return createItem(t, c, sess, entityType, md, true)
}

// CreateWorkspaceItem stores an item of entityType without installing it.
func CreateWorkspaceItem(t *testing.T, c *catalog.Catalog, sess *session.Session, entityType string, md model.Metadata) *model.Item {
	t.Helper()
	return createItem(t, c, sess, entityType, md, false)
}

func createItem(t *testing.T, c *catalog.Catalog, sess *session.Session, entityType string, md model.Metadata, archived bool) *model.Item {
	t.Helper()
	scope := model.ScopeCV
	if model.IsInstitutional(entityType) {
		scope = model.ScopeDirectorio
	}
	collection := ""
	if c.Profile().Knows(entityType) {
		collection = compiler.CollectionID(entityType, scope)
	}
	it, err := c.Create(context.Background(), sess, catalog.NewItem{
		EntityType:   entityType,
		CollectionID: collection,
		Owner:        Researcher,
		Metadata:     md,
		Archived:     archived,
	})
	require.NoError(t, err)
	return it
}

// Reload reads it back from the catalog.
func Reload(t *testing.T, c *catalog.Catalog, it *model.Item) *model.Item {
	t.Helper()
	got, err := c.Get(context.Background(), it.ID)
	require.NoError(t, err)
	return got
}
