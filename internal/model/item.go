package model

import (
	"slices"
	"strings"
)

// Confidence values carried on metadata authorities.
const (
	ConfidenceUnset    = -1
	ConfidenceAccepted = 600
)

// MetadataValue is a single value of a repeatable metadata field.
type MetadataValue struct {
	Value      string `json:"value" yaml:"value"`
	Authority  string `json:"authority,omitempty" yaml:"authority,omitempty"`
	Confidence int    `json:"confidence" yaml:"confidence"`
}

// V builds an unauthorized metadata value.
func V(value string) MetadataValue {
	return MetadataValue{Value: value, Confidence: ConfidenceUnset}
}

// Metadata maps a field key ("schema.element.qualifier") to its ordered values.
// A field with no values is absent from the map.
type Metadata map[string][]MetadataValue

// Values returns a copy of the values of field.
func (m Metadata) Values(field string) []MetadataValue {
	return slices.Clone(m[field])
}

// First returns the first value of field, or "" when the field is absent.
func (m Metadata) First(field string) string {
	if vals := m[field]; len(vals) > 0 {
		return vals[0].Value
	}
	return ""
}

// Has reports whether field carries at least one value.
func (m Metadata) Has(field string) bool {
	return len(m[field]) > 0
}

// Set replaces all values of field. An empty slice removes the field.
func (m Metadata) Set(field string, vals []MetadataValue) {
	if len(vals) == 0 {
		delete(m, field)
		return
	}
	m[field] = slices.Clone(vals)
}

// Add appends a value to field.
func (m Metadata) Add(field string, val MetadataValue) {
	m[field] = append(m[field], val)
}

// Clear removes field.
func (m Metadata) Clear(field string) {
	delete(m, field)
}

// Fields returns the field keys in sorted order.
func (m Metadata) Fields() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Without returns a copy of m without the fields for which drop returns true.
func (m Metadata) Without(drop func(field string) bool) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		if drop(k) {
			continue
		}
		out[k] = slices.Clone(v)
	}
	return out
}

// Item is a catalog record: either a CV-side entity, its clone, or an
// institutional (Directorio) entity.
//
// Lifecycle: created in a workspace (Archived=false), installed
// (Archived=true), optionally withdrawn and reinstated. Withdrawn items stay
// archived.
type Item struct {
	ID           string   `json:"id"`
	EntityType   string   `json:"entity_type"`
	CollectionID string   `json:"collection_id,omitempty"`
	Owner        string   `json:"owner,omitempty"`
	Archived     bool     `json:"archived"`
	Withdrawn    bool     `json:"withdrawn"`
	Version      int64    `json:"version"`
	Seq          int64    `json:"seq"`
	Metadata     Metadata `json:"metadata"`
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	cp := *it
	cp.Metadata = it.Metadata.Clone()
	return &cp
}

// FieldTitle holds an item's name. For a CvPerson it is the display name,
// which always syncs to the Directorio whatever the person allow-list says.
const FieldTitle = "dc.title"

// Title returns dc.title, used in logs and provenance messages.
func (it *Item) Title() string {
	return it.Metadata.First(FieldTitle)
}

// Workflow bookkeeping fields written on items.
const (
	FieldConcytecFeedback = "perucris.workflow.concytecFeedback"
	FieldRejectReason     = "perucris.workflow.rejectReason"
	FieldProvenance       = "dc.description.provenance"

	workflowFieldPrefix = "perucris.workflow."
)

// IsWorkflowField reports whether field is internal workflow bookkeeping.
func IsWorkflowField(field string) bool {
	return strings.HasPrefix(field, workflowFieldPrefix)
}
