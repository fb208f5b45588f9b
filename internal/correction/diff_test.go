package correction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/dirsync/internal/model"
)

func testProfile() *model.Profile {
	return &model.Profile{
		ProtectedPrefix: "perucris.flag",
		OrderSensitive:  []string{"dc.contributor.author"},
		IgnoredFields:   []string{"dc.date.accessioned"},
	}
}

func TestDiff_TitleRoundTrip(t *testing.T) {
	p := testProfile()
	cv := model.Metadata{"dc.title": {model.V("A")}}
	counterpart := model.Metadata{"dc.title": {model.V("B")}}

	ic := Diff(p, cv, counterpart)
	require.Len(t, ic.Corrections, 1)
	mc := ic.Corrections[0]
	assert.Equal(t, "dc.title", mc.Field)
	assert.Equal(t, model.OpReplace, mc.Op)
	assert.Equal(t, []model.MetadataValue{model.V("B")}, mc.NewValues)
	assert.Equal(t, []model.MetadataValue{model.V("A")}, mc.OldValues)

	applied := Apply(cv, ic)
	assert.Equal(t, "B", applied.First("dc.title"))
	assert.Equal(t, "A", cv.First("dc.title"), "Apply does not modify its input")
}

func TestDiff_OneSidedFields(t *testing.T) {
	p := testProfile()
	target := model.Metadata{"dc.subject": {model.V("x")}}
	source := model.Metadata{"dc.language": {model.V("es")}}

	ic := Diff(p, target, source)
	assert.Equal(t, []string{"dc.language", "dc.subject"}, ic.Fields())

	lang, _ := ic.Get("dc.language")
	assert.Equal(t, model.OpAdd, lang.Op)
	subj, _ := ic.Get("dc.subject")
	assert.Equal(t, model.OpRemove, subj.Op)
	assert.Empty(t, subj.NewValues)

	applied := Apply(target, ic)
	assert.False(t, applied.Has("dc.subject"), "remove drops the field")
	assert.Equal(t, "es", applied.First("dc.language"))
}

func TestDiff_OrderSensitivity(t *testing.T) {
	p := testProfile()
	target := model.Metadata{
		"dc.subject":            {model.V("a"), model.V("b")},
		"dc.contributor.author": {model.V("Quispe"), model.V("Mamani")},
	}
	source := model.Metadata{
		"dc.subject":            {model.V("b"), model.V("a")},
		"dc.contributor.author": {model.V("Mamani"), model.V("Quispe")},
	}

	ic := Diff(p, target, source)
	assert.Equal(t, []string{"dc.contributor.author"}, ic.Fields())
}

func TestDiff_AuthorityAndNormalization(t *testing.T) {
	p := testProfile()

	// Same text in different normal forms is equal.
	target := model.Metadata{"dc.title": {model.V("Per\u00fa")}}
	source := model.Metadata{"dc.title": {model.V("Peru\u0301")}}
	assert.True(t, Diff(p, target, source).Empty())

	// Authority is part of the value; confidence is not.
	target = model.Metadata{"dc.contributor.author": {{Value: "Quispe", Authority: "a1", Confidence: 600}}}
	source = model.Metadata{"dc.contributor.author": {{Value: "Quispe", Authority: "a1", Confidence: -1}}}
	assert.True(t, Diff(p, target, source).Empty())

	source = model.Metadata{"dc.contributor.author": {{Value: "Quispe", Authority: "a2"}}}
	assert.Equal(t, []string{"dc.contributor.author"}, Diff(p, target, source).Fields())
}

func TestDiff_SkipsIgnoredFields(t *testing.T) {
	p := testProfile()
	target := model.Metadata{
		"perucris.flag.dc.title":    {model.V("")},
		model.FieldConcytecFeedback: {model.V("APPROVE")},
		model.FieldProvenance:       {model.V("submitted")},
		"dc.date.accessioned":       {model.V("2024")},
		"dc.title":                  {model.V("A")},
	}
	source := model.Metadata{"dc.title": {model.V("A")}}

	assert.True(t, Diff(p, target, source).Empty())
}

func TestApplied(t *testing.T) {
	p := testProfile()
	ic := Diff(p, model.Metadata{"dc.title": {model.V("A")}}, model.Metadata{"dc.title": {model.V("B")}})

	assert.False(t, Applied(model.Metadata{"dc.title": {model.V("A")}}, ic))
	assert.True(t, Applied(model.Metadata{"dc.title": {model.V("B")}}, ic))
	assert.True(t, Applied(model.Metadata{}, model.ItemCorrection{}))
}

func TestRender(t *testing.T) {
	p := testProfile()
	ic := Diff(p,
		model.Metadata{"dc.title": {model.V("Water quality in Lima")}},
		model.Metadata{"dc.title": {model.V("Water quality in Cusco")}, "dc.language": {model.V("es")}},
	)

	out := Render(ic)
	assert.Contains(t, out, "dc.language (add): {+es+}")
	assert.Contains(t, out, "dc.title (replace): Water quality in ")
	assert.Contains(t, out, "[-Lima-]")
	assert.Contains(t, out, "{+Cusco+}")

	assert.Equal(t, "(no changes)", Render(model.ItemCorrection{}))
}

// metadataGen draws small metadata maps over a fixed field and value
// alphabet so collisions between target and source are common.
func metadataGen() *rapid.Generator[model.Metadata] {
	return rapid.Custom(func(t *rapid.T) model.Metadata {
		fields := []string{"dc.title", "dc.subject", "dc.contributor.author", "perucris.flag.dc.title", "dc.date.accessioned"}
		md := model.Metadata{}
		for _, f := range fields {
			n := rapid.IntRange(0, 3).Draw(t, f+"#n")
			for i := 0; i < n; i++ {
				md.Add(f, model.MetadataValue{
					Value:      rapid.SampledFrom([]string{"a", "b", "c", "Per\u00fa", "Peru\u0301"}).Draw(t, f+"#v"),
					Authority:  rapid.SampledFrom([]string{"", "auth-1"}).Draw(t, f+"#a"),
					Confidence: model.ConfidenceUnset,
				})
			}
		}
		return md
	})
}

func TestApply_Idempotent(t *testing.T) {
	p := testProfile()
	rapid.Check(t, func(t *rapid.T) {
		target := metadataGen().Draw(t, "target")
		source := metadataGen().Draw(t, "source")
		ic := Diff(p, target, source)

		once := Apply(target, ic)
		twice := Apply(once, ic)
		if !assert.ObjectsAreEqual(once, twice) {
			t.Fatalf("applying twice changed metadata:\nonce:  %v\ntwice: %v", once, twice)
		}
		if !Applied(once, ic) {
			t.Fatalf("correction not reported as applied after Apply")
		}
	})
}

func TestDiff_ApplyConverges(t *testing.T) {
	p := testProfile()
	rapid.Check(t, func(t *rapid.T) {
		target := metadataGen().Draw(t, "target")
		source := metadataGen().Draw(t, "source")

		applied := Apply(target, Diff(p, target, source))
		if rest := Diff(p, applied, source); !rest.Empty() {
			t.Fatalf("diff after apply not empty: %v", rest.Fields())
		}
	})
}

func TestDiff_SelfIsEmpty(t *testing.T) {
	p := testProfile()
	rapid.Check(t, func(t *rapid.T) {
		md := metadataGen().Draw(t, "md")
		if ic := Diff(p, md, md.Clone()); !ic.Empty() {
			t.Fatalf("self diff not empty: %v", ic.Fields())
		}
	})
}
