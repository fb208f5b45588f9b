package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataSetAndClear(t *testing.T) {
	md := Metadata{}
	md.Set("dc.title", []MetadataValue{V("A")})
	md.Add("dc.subject", V("x"))
	md.Add("dc.subject", V("y"))

	assert.Equal(t, "A", md.First("dc.title"))
	assert.Equal(t, []string{"dc.subject", "dc.title"}, md.Fields())

	md.Set("dc.title", nil)
	assert.False(t, md.Has("dc.title"))

	md.Clear("dc.subject")
	assert.Empty(t, md)
}

func TestMetadataCloneIsDeep(t *testing.T) {
	md := Metadata{"dc.title": {V("A")}}
	cp := md.Clone()
	cp["dc.title"][0].Value = "B"

	assert.Equal(t, "A", md.First("dc.title"))
}

func TestProfileFlags(t *testing.T) {
	p := &Profile{}
	it := &Item{Metadata: Metadata{}}

	require.Equal(t, "perucris.flag.dc.title", p.FlagField("dc.title"))
	assert.False(t, p.IsFlagged(it, "dc.title"))

	it.Metadata.Add(p.FlagField("dc.title"), MetadataValue{})
	assert.True(t, p.IsFlagged(it, "dc.title"))
	assert.True(t, p.IsIgnored("perucris.flag.dc.title"))
	assert.True(t, p.IsIgnored(FieldConcytecFeedback))
	assert.False(t, p.IsIgnored("dc.title"))

	it.Metadata.Set(p.FlagField("dc.title"), []MetadataValue{V("keep")})
	assert.False(t, p.IsFlagged(it, "dc.title"), "a valued flag does not protect")
}

func TestProfileEntityLookupNormalizes(t *testing.T) {
	p := &Profile{Entities: []EntityProfile{{Name: "Publication", SyncFlag: "perucris.sync.publication"}}}

	e, ok := p.Entity("CvPublicationClone")
	require.True(t, ok)
	assert.Equal(t, "perucris.sync.publication", e.SyncFlag)
	assert.False(t, p.Knows("Patent"))
}
