package correction

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/roach88/dirsync/internal/model"
)

// Render formats a correction as one line per field with a word diff of the
// joined values: removed text as [-x-], added text as {+y+}.
func Render(ic model.ItemCorrection) string {
	if ic.Empty() {
		return "(no changes)"
	}

	dmp := diffmatchpatch.New()
	var b strings.Builder
	for i, mc := range ic.Corrections {
		if i > 0 {
			b.WriteByte('\n')
		}
		diffs := dmp.DiffMain(joinValues(mc.OldValues), joinValues(mc.NewValues), false)
		diffs = dmp.DiffCleanupSemantic(diffs)

		fmt.Fprintf(&b, "%s (%s): ", mc.Field, mc.Op)
		for _, d := range diffs {
			switch d.Type {
			case diffmatchpatch.DiffDelete:
				b.WriteString("[-" + d.Text + "-]")
			case diffmatchpatch.DiffInsert:
				b.WriteString("{+" + d.Text + "+}")
			default:
				b.WriteString(d.Text)
			}
		}
	}
	return b.String()
}

func joinValues(vals []model.MetadataValue) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		if v.Authority != "" {
			parts = append(parts, v.Value+" <"+v.Authority+">")
			continue
		}
		parts = append(parts, v.Value)
	}
	return strings.Join(parts, " | ")
}
