package harness

import (
	"cmp"
	"context"
	"slices"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dirsync/internal/app"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
)

var edgeKinds = []model.RelationshipKind{
	model.KindClone,
	model.KindShadowCopy,
	model.KindCorrection,
	model.KindWithdraw,
	model.KindReinstate,
	model.KindMerged,
	model.KindOriginatedFrom,
}

// Snapshot is the final state of a scenario: items, workflow items and
// relationships, each sorted for deterministic comparison.
type Snapshot struct {
	Scenario  string             `json:"scenario"`
	Items     []SnapshotItem     `json:"items"`
	Workflows []SnapshotWorkflow `json:"workflows"`
	Edges     []SnapshotEdge     `json:"edges"`
}

type SnapshotItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Archived  bool   `json:"archived"`
	Withdrawn bool   `json:"withdrawn"`
}

type SnapshotWorkflow struct {
	ID    string `json:"id"`
	Item  string `json:"item"`
	Kind  string `json:"kind"`
	Scope string `json:"scope"`
	State string `json:"state"`
}

type SnapshotEdge struct {
	Kind  string `json:"kind"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// TakeSnapshot reads the final state of a.
func TakeSnapshot(ctx context.Context, a *app.App, name string) (*Snapshot, error) {
	snap := &Snapshot{Scenario: name, Items: []SnapshotItem{}, Workflows: []SnapshotWorkflow{}, Edges: []SnapshotEdge{}}

	items, err := a.Catalog.List(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	for _, it := range items {
		snap.Items = append(snap.Items, SnapshotItem{
			ID:        it.ID,
			Type:      it.EntityType,
			Title:     it.Title(),
			Archived:  it.Archived,
			Withdrawn: it.Withdrawn,
		})
		for _, kind := range edgeKinds {
			edges, err := a.Resolver.Edges(ctx, it, relation.Lookup{Kind: kind, Side: relation.Left})
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if seen[e.ID] {
					continue
				}
				seen[e.ID] = true
				snap.Edges = append(snap.Edges, SnapshotEdge{Kind: string(kind), Left: e.LeftID, Right: e.RightID})
			}
		}
	}

	wfis, err := a.Workflow.List(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, w := range wfis {
		snap.Workflows = append(snap.Workflows, SnapshotWorkflow{
			ID:    w.ID,
			Item:  w.ItemID,
			Kind:  string(w.Kind),
			Scope: string(w.Scope.Kind),
			State: string(w.State),
		})
	}

	slices.SortFunc(snap.Items, func(a, b SnapshotItem) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Workflows, func(a, b SnapshotWorkflow) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Edges, func(a, b SnapshotEdge) int {
		return cmp.Or(cmp.Compare(a.Left, b.Left), cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Right, b.Right))
	})
	return snap, nil
}

// toCanonicalMap converts the snapshot for model.MarshalCanonical, which
// only takes primitives, slices and maps.
func (s *Snapshot) toCanonicalMap() map[string]any {
	items := make([]any, len(s.Items))
	for i, it := range s.Items {
		items[i] = map[string]any{
			"id":        it.ID,
			"type":      it.Type,
			"title":     it.Title,
			"archived":  it.Archived,
			"withdrawn": it.Withdrawn,
		}
	}
	workflows := make([]any, len(s.Workflows))
	for i, w := range s.Workflows {
		workflows[i] = map[string]any{
			"id":    w.ID,
			"item":  w.Item,
			"kind":  w.Kind,
			"scope": w.Scope,
			"state": w.State,
		}
	}
	edges := make([]any, len(s.Edges))
	for i, e := range s.Edges {
		edges[i] = map[string]any{
			"kind":  e.Kind,
			"left":  e.Left,
			"right": e.Right,
		}
	}
	return map[string]any{
		"scenario":  s.Scenario,
		"items":     items,
		"workflows": workflows,
		"edges":     edges,
	}
}

// MarshalCanonical serializes the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	return model.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its final state against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's snapshot against the golden
// file for scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := result.Snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
