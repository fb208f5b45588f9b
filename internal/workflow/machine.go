// Package workflow implements the Directorio review state machine.
//
// A CV-side pending item (a clone, a correction item, a withdraw or
// reinstate request) enters at submitted_for_shadow_copy. That step creates
// or locates the item's Directorio shadow, starts a child workflow for it
// in review and parks the parent in wait_for_concytec. The reviewer's
// decision on the child unlocks the parent; both then finalize. A reject
// first sends the submission back: the child waits in returned until the
// submitter resubmits it or a reviewer confirms the decision.
//
//	cv:         submitted_for_shadow_copy → wait_for_concytec → finalize → complete|cancelled
//	directorio: review [→ returned → review] → unlock → finalize → complete|cancelled
//
// The pending change's scope is computed once at Start and stored on the
// workflow row.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/correction"
	"github.com/roach88/dirsync/internal/dedup"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/store"
)

// IDGenerator produces workflow item ids.
type IDGenerator interface {
	Generate() string
}

// Machine drives workflow items through their states.
type Machine struct {
	catalog     *catalog.Catalog
	resolver    *relation.Resolver
	corrections *correction.Engine
	dedup       *dedup.Service
	ids         IDGenerator
	tracer      trace.Tracer
}

// Option configures a Machine.
type Option func(*Machine)

// WithTracer sets the tracer used for per-step spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Machine) {
		if t != nil {
			m.tracer = t
		}
	}
}

// New creates a Machine.
func New(c *catalog.Catalog, r *relation.Resolver, ce *correction.Engine, d *dedup.Service, ids IDGenerator, opts ...Option) *Machine {
	m := &Machine{
		catalog:     c,
		resolver:    r,
		corrections: ce,
		dedup:       d,
		ids:         ids,
		tracer:      noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a workflow item by id.
func (m *Machine) Get(ctx context.Context, id string) (*model.WorkflowItem, error) {
	return m.catalog.Store().ReadWorkflowItem(ctx, id)
}

// ForItem returns the active workflow item of itemID, or nil.
func (m *Machine) ForItem(ctx context.Context, itemID string) (*model.WorkflowItem, error) {
	wfi, err := m.catalog.Store().ActiveWorkflowItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return wfi, err
}

// Children returns the workflow items waited on by wfi.
func (m *Machine) Children(ctx context.Context, wfi *model.WorkflowItem) ([]*model.WorkflowItem, error) {
	return m.catalog.Store().ChildWorkflowItems(ctx, wfi.ID)
}

// List returns workflow items in state (all when empty).
func (m *Machine) List(ctx context.Context, state model.WorkflowState) ([]*model.WorkflowItem, error) {
	return m.catalog.Store().ListWorkflowItems(ctx, state)
}

// ScopeOf determines the pending change it carries by probing, in order:
// correction, withdraw request, reinstate request, else creation.
func (m *Machine) ScopeOf(ctx context.Context, it *model.Item) (model.Scope, error) {
	candidates := []struct {
		kind   model.ScopeKind
		lookup relation.Lookup
	}{
		{model.ScopeCorrection, relation.CorrectedItem},
		{model.ScopeWithdraw, relation.WithdrawnItem},
		{model.ScopeReinstate, relation.ReinstatedItem},
	}
	for _, p := range candidates {
		target, err := m.resolver.Find(ctx, it, p.lookup)
		if err != nil {
			return model.Scope{}, err
		}
		if target != nil {
			return model.Scope{Kind: p.kind, Target: target.ID}, nil
		}
	}
	return model.Creation(), nil
}

// Start submits the pending item it to the workflow. CV-side items run
// their shadow-copy step immediately; institutional items wait in review.
// Starting an item that already has an active workflow returns that one.
func (m *Machine) Start(ctx context.Context, sess *session.Session, it *model.Item) (*model.WorkflowItem, error) {
	restore := sess.Elevate()
	defer restore()

	if existing, err := m.ForItem(ctx, it.ID); err != nil || existing != nil {
		return existing, err
	}
	if it.Archived {
		return nil, model.NewIllegalStateError(it.ID, "cannot submit an archived item to the workflow")
	}

	scope, err := m.ScopeOf(ctx, it)
	if err != nil {
		return nil, err
	}

	kind, state := model.WorkflowCV, model.StateShadowCopy
	if model.IsInstitutional(it.EntityType) {
		kind, state = model.WorkflowDirectorio, model.StateReview
	}
	wfi, err := m.insert(ctx, sess, it, kind, state, scope, "")
	if err != nil {
		return nil, err
	}
	if kind == model.WorkflowDirectorio {
		if err := m.detect(ctx, it, scope); err != nil {
			return wfi, err
		}
	}

	return wfi, m.advance(ctx, sess, wfi)
}

// insert stores a new workflow item and records the submission.
func (m *Machine) insert(ctx context.Context, sess *session.Session, it *model.Item, kind model.WorkflowKind, state model.WorkflowState, scope model.Scope, parentID string) (*model.WorkflowItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, model.NewIllegalStateError(it.ID, "invalid scope: %v", err)
	}
	wfi := &model.WorkflowItem{
		ID:        m.ids.Generate(),
		ItemID:    it.ID,
		Kind:      kind,
		State:     state,
		Scope:     scope,
		ParentID:  parentID,
		Submitter: sess.Actor.ID,
	}
	if err := m.catalog.Store().InsertWorkflowItem(ctx, wfi); err != nil {
		return nil, err
	}
	slog.Info("workflow started",
		"workflow", wfi.ID,
		"item", it.ID,
		"kind", kind,
		"scope", scope.String(),
		"parent", parentID,
	)
	if err := m.catalog.Record(ctx, sess, it.ID, "submitted", "submitted to %s workflow %s (%s)", kind, wfi.ID, scope); err != nil {
		return nil, err
	}
	return wfi, nil
}

// detect records duplicate candidates for new institutional items.
func (m *Machine) detect(ctx context.Context, it *model.Item, scope model.Scope) error {
	if scope.Kind != model.ScopeCreation {
		return nil
	}
	_, err := m.dedup.Detect(ctx, it)
	return err
}

// advance runs automatic steps until wfi reaches a state that waits for
// input or a terminal state.
//
// A step's effects run before its compare-and-set transition; if another
// session already moved the row, advance stops.
func (m *Machine) advance(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem) error {
	var deferred []error

	for !wfi.State.Terminal() {
		var next model.WorkflowState
		var err error

		switch wfi.State {
		case model.StateShadowCopy:
			next, err = m.step(ctx, sess, wfi, m.shadowCopy)
		case model.StateUnlock:
			var parent *model.WorkflowItem
			parent, err = m.unlock(ctx, sess, wfi)
			if err == nil && parent != nil {
				// The parent's failure aborts only the parent.
				if perr := m.advance(ctx, sess, parent); perr != nil {
					slog.Error("parent workflow aborted",
						"workflow", parent.ID,
						"child", wfi.ID,
						"error", perr,
					)
					deferred = append(deferred, perr)
				}
			}
			next = model.StateFinalize
		case model.StateFinalize:
			next, err = m.step(ctx, sess, wfi, m.finalize)
		default:
			// review, returned and wait_for_concytec wait for a decision.
			return errors.Join(deferred...)
		}
		if err != nil {
			slog.Error("workflow step failed",
				"workflow", wfi.ID,
				"item", wfi.ItemID,
				"state", wfi.State,
				"error", err,
			)
			return errors.Join(append(deferred, fmt.Errorf("workflow %s at %s: %w", wfi.ID, wfi.State, err))...)
		}

		moved, err := m.transition(ctx, wfi, next)
		if err != nil {
			return errors.Join(append(deferred, err)...)
		}
		if !moved {
			break
		}
	}
	return errors.Join(deferred...)
}

// step runs fn inside a span named after the workflow state.
func (m *Machine) step(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem, fn func(context.Context, *session.Session, *model.WorkflowItem) (model.WorkflowState, error)) (model.WorkflowState, error) {
	ctx, span := m.tracer.Start(ctx, "workflow."+string(wfi.State),
		trace.WithAttributes(
			attribute.String("workflow.id", wfi.ID),
			attribute.String("item.id", wfi.ItemID),
			attribute.String("workflow.scope", wfi.Scope.String()),
		),
	)
	defer span.End()

	next, err := fn(ctx, sess, wfi)
	if err != nil {
		span.RecordError(err)
	}
	return next, err
}

// transition moves wfi to next if it is still in its current state.
func (m *Machine) transition(ctx context.Context, wfi *model.WorkflowItem, next model.WorkflowState) (bool, error) {
	from := wfi.State
	moved, err := m.catalog.Store().TransitionWorkflowItem(ctx, wfi.ID, from, next)
	if err != nil {
		return false, err
	}
	if !moved {
		slog.Debug("workflow transition skipped, state changed elsewhere",
			"workflow", wfi.ID,
			"from", from,
			"to", next,
		)
		return false, nil
	}
	wfi.State = next
	slog.Debug("workflow transition", "workflow", wfi.ID, "from", from, "to", next)
	return true, nil
}

// item loads the workflow item's item. A missing item is an illegal state.
func (m *Machine) item(ctx context.Context, wfi *model.WorkflowItem) (*model.Item, error) {
	it, err := m.catalog.Lookup(ctx, wfi.ItemID)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, model.NewIllegalStateError(wfi.ItemID, "workflow %s has no item", wfi.ID)
	}
	return it, nil
}

// setFeedback records the reviewer decision on it.
func (m *Machine) setFeedback(ctx context.Context, sess *session.Session, it *model.Item, fb model.Feedback, reason string) error {
	it.Metadata.Set(model.FieldConcytecFeedback, []model.MetadataValue{model.V(string(fb))})
	if reason != "" {
		it.Metadata.Set(model.FieldRejectReason, []model.MetadataValue{model.V(reason)})
	}
	if err := m.catalog.Update(ctx, sess, it); err != nil {
		return err
	}
	msg := string(fb)
	if reason != "" {
		msg += ": " + reason
	}
	return m.catalog.Record(ctx, sess, it.ID, "feedback", "%s", msg)
}
