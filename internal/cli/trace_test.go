package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dirsync/internal/model"
)

func TestTraceAllItems(t *testing.T) {
	db := tempDB(t)
	a, b := seed(t, db)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for all items")
	assert.Contains(t, out, a)
	assert.Contains(t, out, b)
	assert.Contains(t, out, "Entries:")
}

func TestTraceOneItemJSON(t *testing.T) {
	db := tempDB(t)
	a, _ := seed(t, db)

	out, err := execute(t, "trace", a, "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, a, resp.Data.ItemID)
	require.NotEmpty(t, resp.Data.Timeline)
	for _, e := range resp.Data.Timeline {
		assert.Equal(t, a, e.ItemID)
	}
	assert.Equal(t, len(resp.Data.Timeline), resp.Data.Stats.Entries)
}

func TestTraceActionFilterNoMatch(t *testing.T) {
	db := tempDB(t)
	seed(t, db)

	out, err := execute(t, "trace", "--db", db, "--action", "no-such-action")
	require.NoError(t, err)
	assert.Contains(t, out, "(no entries)")
}

func TestBuildTrace(t *testing.T) {
	entries := []model.ProvenanceEntry{
		{ItemID: "a", SessionID: "s1", Action: "clone", Seq: 1},
		{ItemID: "a", SessionID: "s1", Action: "shadow", Seq: 2},
		{ItemID: "b", SessionID: "s2", Action: "clone", Seq: 3},
	}

	all := buildTrace("", entries, "", "")
	assert.Equal(t, 3, all.Stats.Entries)
	assert.Equal(t, 2, all.Stats.Sessions)
	assert.Equal(t, map[string]int{"clone": 2, "shadow": 1}, all.Stats.Actions)

	clones := buildTrace("", entries, "clone", "")
	assert.Len(t, clones.Timeline, 2)

	s2 := buildTrace("", entries, "", "s2")
	require.Len(t, s2.Timeline, 1)
	assert.Equal(t, "b", s2.Timeline[0].ItemID)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	long := strings.Repeat("x", 40)
	assert.Equal(t, strings.Repeat("x", 16)+"...", truncateID(long))
}
