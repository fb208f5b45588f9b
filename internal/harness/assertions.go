package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type
	Target   string // ref.via path the assertion inspected
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s on %s failed\n", e.Type, e.Target)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

func (r *run) check(ctx context.Context, a Assertion) error {
	it, err := r.resolve(ctx, a.Ref, a.Via)
	if err != nil {
		return err
	}
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Target: path(a.Ref, a.Via), Expected: expected, Actual: actual}
	}

	if a.Type == "exists" {
		switch {
		case a.Absent && it != nil:
			return fail("no item", "item "+it.ID)
		case !a.Absent && it == nil:
			return fail("an item", "none")
		}
		return nil
	}
	if it == nil {
		return fail("an item", "none")
	}

	switch a.Type {
	case "field":
		return assertField(it, a, fail)
	case "state":
		if a.Archived != nil && *a.Archived != it.Archived {
			return fail(fmt.Sprintf("archived=%t", *a.Archived), fmt.Sprintf("archived=%t", it.Archived))
		}
		if a.Withdrawn != nil && *a.Withdrawn != it.Withdrawn {
			return fail(fmt.Sprintf("withdrawn=%t", *a.Withdrawn), fmt.Sprintf("withdrawn=%t", it.Withdrawn))
		}
		return nil
	case "workflow":
		wfi, err := r.app.Store.LatestWorkflowItem(ctx, it.ID)
		if errors.Is(err, store.ErrNotFound) {
			return fail("workflow in "+a.State, "no workflow")
		}
		if err != nil {
			return err
		}
		if string(wfi.State) != a.State {
			return fail("workflow in "+a.State, fmt.Sprintf("workflow %s in %s", wfi.ID, wfi.State))
		}
		return nil
	case "edges":
		l, err := relation.ParseLookup(a.Lookup)
		if err != nil {
			return err
		}
		edges, err := r.app.Resolver.Edges(ctx, it, l)
		if err != nil {
			return err
		}
		if len(edges) != *a.Count {
			return fail(fmt.Sprintf("%d %s", *a.Count, a.Lookup), fmt.Sprintf("%d", len(edges)))
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertField(it *model.Item, a Assertion, fail func(expected, actual string) error) error {
	got := []string{}
	for _, v := range it.Metadata.Values(a.Field) {
		got = append(got, v.Value)
	}
	want := a.Values
	if a.Absent {
		want = nil
	}
	if len(got) == 0 && len(want) == 0 {
		return nil
	}
	if !slices.Equal(got, want) {
		return fail(fmt.Sprintf("%s=%q", a.Field, want), fmt.Sprintf("%s=%q", a.Field, got))
	}
	return nil
}
