package model

import (
	"slices"
	"strings"
)

// Collection scopes.
const (
	ScopeCV         = "cv"
	ScopeDirectorio = "directorio"
)

// DefaultProtectedPrefix is the flag namespace when the profile sets none.
const DefaultProtectedPrefix = "perucris.flag"

// EntityProfile configures one institutional entity type.
type EntityProfile struct {
	// Name is the normalized type, e.g. "Publication".
	Name string `json:"name"`
	// SyncFlag is the CV entity field whose value "true" enables outbound sync.
	SyncFlag string `json:"sync_flag"`
	// AuthorityFields are the fields, on any item, whose authorities point at
	// entities of this type.
	AuthorityFields []string `json:"authority_fields"`
}

// CollectionDef declares a collection seeded at bootstrap.
type CollectionDef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
	Scope      string `json:"scope"`
}

// Profile is the compiled sync configuration.
type Profile struct {
	ProtectedPrefix   string             `json:"protected_prefix"`
	PersonSyncFields  []string           `json:"person_sync_fields"`
	OrderSensitive    []string           `json:"order_sensitive"`
	IgnoredFields     []string           `json:"ignored_fields"`
	Entities          []EntityProfile    `json:"entities"`
	Collections       []CollectionDef    `json:"collections"`
	RelationshipTypes []RelationshipType `json:"relationship_types"`
}

// Entity returns the profile of the normalized form of entityType.
func (p *Profile) Entity(entityType string) (EntityProfile, bool) {
	name := Normalize(entityType)
	for _, e := range p.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return EntityProfile{}, false
}

// Knows reports whether the normalized form of entityType is configured.
func (p *Profile) Knows(entityType string) bool {
	_, ok := p.Entity(entityType)
	return ok
}

// FlagField returns the protective flag field for field.
func (p *Profile) FlagField(field string) string {
	return p.prefix() + "." + field
}

// IsFlagField reports whether field lives in the protected namespace.
func (p *Profile) IsFlagField(field string) bool {
	return strings.HasPrefix(field, p.prefix()+".")
}

func (p *Profile) prefix() string {
	if p.ProtectedPrefix == "" {
		return DefaultProtectedPrefix
	}
	return p.ProtectedPrefix
}

// IsFlagged reports whether field is locally protected on it: the flag field
// exists and its first value is empty.
func (p *Profile) IsFlagged(it *Item, field string) bool {
	vals := it.Metadata[p.FlagField(field)]
	return len(vals) > 0 && vals[0].Value == ""
}

// IsIgnored reports whether field is excluded from diffs and copies.
func (p *Profile) IsIgnored(field string) bool {
	if p.IsFlagField(field) || IsWorkflowField(field) || field == FieldProvenance {
		return true
	}
	return slices.Contains(p.IgnoredFields, field)
}

// IsOrderSensitive reports whether value order matters for field.
func (p *Profile) IsOrderSensitive(field string) bool {
	return slices.Contains(p.OrderSensitive, field)
}

// InPersonAllowList reports whether field syncs from CvPerson profiles.
func (p *Profile) InPersonAllowList(field string) bool {
	return slices.Contains(p.PersonSyncFields, field)
}
