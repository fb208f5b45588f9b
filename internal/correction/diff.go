// Package correction computes and applies field-level differences between
// items, and manages the correction items that carry them through review.
package correction

import (
	"cmp"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/dirsync/internal/model"
)

// Diff returns the corrections that turn target's metadata into source's.
//
// Every field present on either side is compared, except fields the profile
// ignores. Values compare as NFC-normalized (value, authority) pairs;
// confidence is not compared. Order matters only for order-sensitive
// fields. A field present on one side only is a difference.
func Diff(p *model.Profile, target, source model.Metadata) model.ItemCorrection {
	fields := make(map[string]bool)
	for f := range target {
		fields[f] = true
	}
	for f := range source {
		fields[f] = true
	}

	keys := make([]string, 0, len(fields))
	for f := range fields {
		if !p.IsIgnored(f) {
			keys = append(keys, f)
		}
	}
	slices.Sort(keys)

	out := model.ItemCorrection{Corrections: []model.MetadataCorrection{}}
	for _, f := range keys {
		oldVals, newVals := target.Values(f), source.Values(f)
		if sameValues(oldVals, newVals, p.IsOrderSensitive(f)) {
			continue
		}
		out.Corrections = append(out.Corrections, model.MetadataCorrection{
			Field:     f,
			Op:        opFor(oldVals, newVals),
			OldValues: slices.Clone(oldVals),
			NewValues: slices.Clone(newVals),
		})
	}
	return out
}

// Apply returns md with every corrected field replaced by the correction's
// values. The input is not modified. Applying the same correction twice
// yields the same metadata as applying it once.
func Apply(md model.Metadata, ic model.ItemCorrection) model.Metadata {
	out := md.Clone()
	for _, mc := range ic.Corrections {
		out.Set(mc.Field, slices.Clone(mc.NewValues))
	}
	return out
}

// Applied reports whether md already carries every value of ic.
func Applied(md model.Metadata, ic model.ItemCorrection) bool {
	for _, mc := range ic.Corrections {
		if !sameValues(md.Values(mc.Field), mc.NewValues, true) {
			return false
		}
	}
	return true
}

func opFor(oldVals, newVals []model.MetadataValue) model.CorrectionOp {
	switch {
	case len(oldVals) == 0:
		return model.OpAdd
	case len(newVals) == 0:
		return model.OpRemove
	default:
		return model.OpReplace
	}
}

type valueKey struct {
	value     string
	authority string
}

func keyOf(v model.MetadataValue) valueKey {
	return valueKey{
		value:     norm.NFC.String(v.Value),
		authority: norm.NFC.String(v.Authority),
	}
}

func compareKeys(a, b valueKey) int {
	if c := cmp.Compare(a.value, b.value); c != 0 {
		return c
	}
	return cmp.Compare(a.authority, b.authority)
}

// sameValues compares two value lists as sequences when ordered, else as
// multisets.
func sameValues(a, b []model.MetadataValue, ordered bool) bool {
	if len(a) != len(b) {
		return false
	}
	ka := make([]valueKey, len(a))
	kb := make([]valueKey, len(b))
	for i := range a {
		ka[i] = keyOf(a[i])
		kb[i] = keyOf(b[i])
	}
	if !ordered {
		slices.SortFunc(ka, compareKeys)
		slices.SortFunc(kb, compareKeys)
	}
	return slices.Equal(ka, kb)
}
