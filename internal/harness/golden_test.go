package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// To regenerate golden files:
//
//	go test ./internal/harness -run TestGoldenScenarios -update
func TestGoldenScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(p)
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario errors: %v", result.Errors)
			assert.NotEmpty(t, result.Trace)
		})
	}
}

func TestSnapshot_MarshalCanonical(t *testing.T) {
	snap := &Snapshot{
		Scenario: "tiny",
		Items: []SnapshotItem{
			{ID: "item-0001", Type: "OrgUnit", Title: "Faculty", Archived: true},
		},
		Workflows: []SnapshotWorkflow{},
		Edges: []SnapshotEdge{
			{Kind: "clone", Left: "item-0002", Right: "item-0001"},
		},
	}

	data, err := snap.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"edges":[{"kind":"clone","left":"item-0002","right":"item-0001"}],`+
			`"items":[{"archived":true,"id":"item-0001","title":"Faculty","type":"OrgUnit","withdrawn":false}],`+
			`"scenario":"tiny","workflows":[]}`,
		string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/creation_approve.yaml")
	require.NoError(t, err)

	first, err := Run(t.Context(), s)
	require.NoError(t, err)
	second, err := Run(t.Context(), s)
	require.NoError(t, err)

	a, err := first.Snapshot.MarshalCanonical()
	require.NoError(t, err)
	b, err := second.Snapshot.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
