package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/dirsync/internal/app"
	"github.com/roach88/dirsync/internal/correction"
	"github.com/roach88/dirsync/internal/engine"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/workflow"
)

var (
	researcher = session.Actor{ID: "researcher-1"}
	reviewer   = session.Actor{ID: "reviewer", Admin: true}
)

// run holds the state of one scenario execution.
type run struct {
	app  *app.App
	refs map[string]string
}

// Run executes a scenario on a fresh database and returns its result.
// The error is non-nil only when the harness itself cannot run; step and
// assertion failures are reported in the result.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "dirsync-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var profile *model.Profile
	if s.Profile != "" {
		if profile, err = app.LoadProfile(s.Profile); err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
	}

	a, err := app.Open(ctx, app.Options{
		Database:    filepath.Join(dir, "scenario.db"),
		Profile:     profile,
		IDs:         engine.NewSequenceGenerator("item"),
		WorkflowIDs: engine.NewSequenceGenerator("wf"),
		Sessions:    engine.NewSequenceGenerator("session"),
	})
	if err != nil {
		return nil, fmt.Errorf("open app: %w", err)
	}
	defer a.Close()

	r := &run{app: a, refs: map[string]string{}}
	result := NewResult()

	for i, st := range s.Steps {
		if err := r.step(ctx, st); err != nil {
			result.AddError(fmt.Sprintf("step %d (%s %s): %v", i, st.Op, st.Ref, err))
			break
		}
	}

	if result.Pass {
		for i, as := range s.Assertions {
			if err := r.check(ctx, as); err != nil {
				result.AddError(fmt.Sprintf("assertion %d: %v", i, err))
			}
		}
	}

	trace, err := a.Trace(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("read provenance: %w", err)
	}
	result.Trace = trace

	snap, err := TakeSnapshot(ctx, a, s.Name)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	result.Snapshot = snap
	return result, nil
}

func (r *run) step(ctx context.Context, st Step) error {
	actor := r.actor(st)
	if st.Op == "create" {
		it, err := r.app.CreateItem(ctx, actor, app.NewItem{
			EntityType: st.Type,
			Metadata:   present(toMetadata(st.Metadata)),
			Workspace:  st.Workspace,
		})
		if it != nil {
			r.refs[st.Ref] = it.ID
		}
		return err
	}

	it, err := r.resolve(ctx, st.Ref, st.Via)
	if err != nil {
		return err
	}
	if it == nil {
		return fmt.Errorf("%s: no item", path(st.Ref, st.Via))
	}

	switch st.Op {
	case "update":
		_, err = r.app.UpdateItem(ctx, actor, it.ID, toMetadata(st.Set))
	case "install":
		_, err = r.app.InstallItem(ctx, actor, it.ID)
	case "withdraw":
		_, err = r.app.WithdrawItem(ctx, actor, it.ID)
	case "reinstate":
		_, err = r.app.ReinstateItem(ctx, actor, it.ID)
	case "event":
		err = r.app.Fire(ctx, it.ID, model.EventKind(st.Kind))
	case "decide":
		err = r.decide(ctx, actor, it, st)
	case "duplicate":
		err = r.duplicate(ctx, it, st)
	case "cancel":
		var wfi *model.WorkflowItem
		if wfi, err = r.reviewable(ctx, it); err == nil {
			err = r.app.CancelWorkflow(ctx, actor, wfi.ID)
		}
	default:
		err = fmt.Errorf("unknown op %q", st.Op)
	}
	return err
}

func (r *run) actor(st Step) session.Actor {
	if st.As != "" {
		return session.Actor{ID: st.As, Admin: st.Admin}
	}
	switch st.Op {
	case "decide", "duplicate", "cancel":
		return reviewer
	}
	return researcher
}

func (r *run) decide(ctx context.Context, actor session.Actor, it *model.Item, st Step) error {
	action, err := workflow.ParseAction(st.Action)
	if err != nil {
		return err
	}
	wfi, err := r.reviewable(ctx, it)
	if err != nil {
		return err
	}
	outcome := workflow.Outcome{Action: action, Reason: st.Reason}
	if action == workflow.ActionEdit {
		target, err := r.app.Catalog.Get(ctx, wfi.ItemID)
		if err != nil {
			return err
		}
		edited := target.Metadata.Clone()
		for field, vals := range toMetadata(st.Edit) {
			edited.Set(field, vals)
		}
		outcome.Correction = correction.Diff(r.app.Catalog.Profile(), target.Metadata, edited)
	}
	_, err = r.app.Decide(ctx, actor, wfi.ID, outcome)
	return err
}

// reviewable returns the active workflow of it, or the child it waits on.
func (r *run) reviewable(ctx context.Context, it *model.Item) (*model.WorkflowItem, error) {
	wfi, err := r.app.Workflow.ForItem(ctx, it.ID)
	if err != nil {
		return nil, err
	}
	if wfi == nil {
		return nil, fmt.Errorf("item %s has no active workflow", it.ID)
	}
	if wfi.State != model.StateWaitForConcytec {
		return wfi, nil
	}
	children, err := r.app.Workflow.Children(ctx, wfi)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if !c.State.Terminal() {
			return c, nil
		}
	}
	return wfi, nil
}

func (r *run) duplicate(ctx context.Context, it *model.Item, st Step) error {
	dup, err := r.resolve(ctx, st.Of, st.OfVia)
	if err != nil {
		return err
	}
	if dup == nil {
		return fmt.Errorf("%s: no item", path(st.Of, st.OfVia))
	}
	verdict := app.Verdict(st.Verdict)
	if verdict == "" {
		verdict = app.VerdictVerify
	}
	return r.app.JudgeDuplicate(ctx, it.ID, dup.ID, verdict, st.Reason)
}

// resolve returns the item reached from ref through via, or nil when a
// lookup on the way finds nothing.
func (r *run) resolve(ctx context.Context, ref string, via []string) (*model.Item, error) {
	id, ok := r.refs[ref]
	if !ok {
		return nil, fmt.Errorf("unknown ref %q", ref)
	}
	it, err := r.app.Catalog.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, name := range via {
		if it == nil {
			return nil, nil
		}
		l, err := relation.ParseLookup(name)
		if err != nil {
			return nil, err
		}
		if it, err = r.app.Resolver.Find(ctx, it, l); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// toMetadata converts scenario fields. A field listed with no values maps
// to nil so that Set removes it.
func toMetadata(in map[string][]string) model.Metadata {
	md := model.Metadata{}
	for field, vals := range in {
		md[field] = nil
		for _, v := range vals {
			md.Add(field, model.V(v))
		}
	}
	return md
}

func present(md model.Metadata) model.Metadata {
	return md.Without(func(field string) bool { return !md.Has(field) })
}

func path(ref string, via []string) string {
	p := ref
	for _, v := range via {
		p += "." + v
	}
	return p
}
