package model

import "slices"

// CorrectionOp describes the effect of a field correction.
type CorrectionOp string

const (
	OpAdd     CorrectionOp = "add"
	OpReplace CorrectionOp = "replace"
	OpRemove  CorrectionOp = "remove"
)

// MetadataCorrection is the field-level difference between two items.
// Applying it replaces all values of Field with NewValues.
type MetadataCorrection struct {
	Field     string          `json:"field"`
	Op        CorrectionOp    `json:"op"`
	OldValues []MetadataValue `json:"old_values,omitempty"`
	NewValues []MetadataValue `json:"new_values,omitempty"`
}

// ItemCorrection is an ordered list of field corrections, sorted by field.
// An empty correction means "no change".
type ItemCorrection struct {
	Corrections []MetadataCorrection `json:"corrections"`
}

// Empty reports whether there is nothing to correct.
func (c ItemCorrection) Empty() bool {
	return len(c.Corrections) == 0
}

// Fields returns the corrected field keys in order.
func (c ItemCorrection) Fields() []string {
	out := make([]string, 0, len(c.Corrections))
	for _, mc := range c.Corrections {
		out = append(out, mc.Field)
	}
	return out
}

// Get returns the correction for field.
func (c ItemCorrection) Get(field string) (MetadataCorrection, bool) {
	i := slices.IndexFunc(c.Corrections, func(mc MetadataCorrection) bool {
		return mc.Field == field
	})
	if i < 0 {
		return MetadataCorrection{}, false
	}
	return c.Corrections[i], true
}

// Filter keeps the corrections whose field satisfies keep.
func (c ItemCorrection) Filter(keep func(field string) bool) ItemCorrection {
	out := ItemCorrection{Corrections: make([]MetadataCorrection, 0, len(c.Corrections))}
	for _, mc := range c.Corrections {
		if keep(mc.Field) {
			out.Corrections = append(out.Corrections, mc)
		}
	}
	return out
}
