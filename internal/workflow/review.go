package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
)

// Action is what a caller asks of a workflow item.
type Action string

const (
	// ActionApprove accepts the pending change under review.
	ActionApprove Action = "approve"
	// ActionReject refuses it. In review with a waiting parent the
	// submission goes back to its submitter with Reason; a reject of a
	// returned item is final.
	ActionReject Action = "reject"
	// ActionEdit applies Correction to the item under review and keeps it in review.
	ActionEdit Action = "edit"
	// ActionResume re-runs the automatic step the item is parked at,
	// typically after a configuration error was fixed. On a returned item
	// it resubmits the item for review.
	ActionResume Action = "resume"
)

// ParseAction parses an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionApprove, ActionReject, ActionEdit, ActionResume:
		return a, nil
	default:
		return "", fmt.Errorf("unknown workflow action %q", s)
	}
}

// Outcome is a decision on a workflow item.
type Outcome struct {
	Action     Action               `json:"action"`
	Reason     string               `json:"reason,omitempty"`
	Correction model.ItemCorrection `json:"correction"`
}

// Decide loads the workflow item id and applies outcome to it.
func (m *Machine) Decide(ctx context.Context, sess *session.Session, id string, outcome Outcome) (*model.WorkflowItem, error) {
	wfi, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.ProcessOutcome(ctx, sess, wfi, outcome); err != nil {
		return wfi, err
	}
	return wfi, nil
}

// ProcessOutcome applies outcome to wfi and runs the automatic steps that
// follow. Review actions are accepted in review and, as the final decision
// on a sent-back submission, in returned.
func (m *Machine) ProcessOutcome(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem, outcome Outcome) error {
	resubmit := outcome.Action == ActionResume && wfi.State == model.StateReturned
	if !sess.Actor.Admin && !sess.Elevated() && !(resubmit && sess.Actor.ID == wfi.Submitter) {
		return model.NewNotAuthorizedError(wfi.ItemID, sess.Actor.ID)
	}
	restore := sess.Elevate()
	defer restore()

	if resubmit {
		return m.resubmit(ctx, sess, wfi)
	}
	if outcome.Action == ActionResume {
		return m.advance(ctx, sess, wfi)
	}
	if wfi.State != model.StateReview && (wfi.State != model.StateReturned || outcome.Action == ActionEdit) {
		return model.NewIllegalStateError(wfi.ItemID, "workflow %s is %s, cannot %s", wfi.ID, wfi.State, outcome.Action)
	}

	it, err := m.item(ctx, wfi)
	if err != nil {
		return err
	}

	switch outcome.Action {
	case ActionEdit:
		if err := m.corrections.ApplyCorrectionsOnItem(ctx, sess, it, outcome.Correction); err != nil {
			return err
		}
		return m.catalog.Record(ctx, sess, it.ID, "edit", "reviewer edited %v", outcome.Correction.Fields())
	case ActionApprove:
		if err := m.setFeedback(ctx, sess, it, model.FeedbackApprove, ""); err != nil {
			return err
		}
	case ActionReject:
		if err := m.setFeedback(ctx, sess, it, model.FeedbackReject, outcome.Reason); err != nil {
			return err
		}
		if wfi.State == model.StateReview && wfi.ParentID != "" {
			return m.sendBack(ctx, sess, wfi, it)
		}
	default:
		return fmt.Errorf("workflow %s: unknown action %q", wfi.ID, outcome.Action)
	}

	slog.Info("review decided",
		"workflow", wfi.ID,
		"item", it.ID,
		"action", outcome.Action,
	)
	moved, err := m.transition(ctx, wfi, model.StateUnlock)
	if err != nil || !moved {
		return err
	}
	return m.advance(ctx, sess, wfi)
}

// sendBack returns a rejected submission to its submitter. The reason is
// written on the original submission and the parent keeps waiting.
func (m *Machine) sendBack(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem, it *model.Item) error {
	parent, err := m.Get(ctx, wfi.ParentID)
	if err != nil {
		return err
	}
	original, err := m.item(ctx, parent)
	if err != nil {
		return err
	}
	reason := it.Metadata.First(model.FieldRejectReason)
	if reason != "" {
		original.Metadata.Set(model.FieldRejectReason, []model.MetadataValue{model.V(reason)})
		if err := m.catalog.Update(ctx, sess, original); err != nil {
			return err
		}
	}
	if err := m.catalog.Record(ctx, sess, original.ID, "returned", "returned by review %s: %s", wfi.ID, reason); err != nil {
		return err
	}
	if _, err := m.transition(ctx, wfi, model.StateReturned); err != nil {
		return err
	}
	slog.Info("submission returned",
		"workflow", wfi.ID,
		"parent", parent.ID,
		"submission", original.ID,
		"reason", reason,
	)
	return nil
}

// resubmit puts a returned item back in review with its feedback cleared.
func (m *Machine) resubmit(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem) error {
	it, err := m.item(ctx, wfi)
	if err != nil {
		return err
	}
	it.Metadata.Set(model.FieldConcytecFeedback, nil)
	it.Metadata.Set(model.FieldRejectReason, nil)
	if err := m.catalog.Update(ctx, sess, it); err != nil {
		return err
	}
	if err := m.catalog.Record(ctx, sess, it.ID, "resubmitted", "resubmitted to review by %s", sess.Actor.ID); err != nil {
		return err
	}
	_, err = m.transition(ctx, wfi, model.StateReview)
	return err
}

// unlock copies the reviewer feedback onto the waiting parent's item and
// releases the parent to finalize. Returns the released parent, or nil.
func (m *Machine) unlock(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem) (*model.WorkflowItem, error) {
	if wfi.ParentID == "" {
		return nil, nil
	}
	parent, err := m.Get(ctx, wfi.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.State != model.StateWaitForConcytec {
		return nil, nil
	}

	it, err := m.item(ctx, wfi)
	if err != nil {
		return nil, err
	}
	parentItem, err := m.item(ctx, parent)
	if err != nil {
		return nil, err
	}
	fb := model.FeedbackOf(it)
	if err := m.setFeedback(ctx, sess, parentItem, fb, it.Metadata.First(model.FieldRejectReason)); err != nil {
		return nil, err
	}

	moved, err := m.transition(ctx, parent, model.StateFinalize)
	if err != nil || !moved {
		return nil, err
	}
	slog.Debug("parent workflow released", "workflow", parent.ID, "child", wfi.ID, "feedback", fb)
	return parent, nil
}

// Delete cancels wfi and the reviews it waits on, discarding their
// pending items. Only admins and the submitter may delete.
func (m *Machine) Delete(ctx context.Context, sess *session.Session, wfi *model.WorkflowItem) error {
	if !sess.Actor.Admin && !sess.Elevated() && sess.Actor.ID != wfi.Submitter {
		return model.NewNotAuthorizedError(wfi.ItemID, sess.Actor.ID)
	}
	restore := sess.Elevate()
	defer restore()

	children, err := m.Children(ctx, wfi)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.State.Terminal() {
			continue
		}
		if err := m.Delete(ctx, sess, child); err != nil {
			return err
		}
	}

	if !wfi.State.Terminal() {
		if _, err := m.transition(ctx, wfi, model.StateCancelled); err != nil {
			return err
		}
	}

	it, err := m.catalog.Lookup(ctx, wfi.ItemID)
	if err != nil {
		return err
	}
	if it != nil && !it.Archived {
		if err := m.corrections.Discard(ctx, sess, it); err != nil {
			return err
		}
	}
	slog.Info("workflow deleted", "workflow", wfi.ID, "item", wfi.ItemID, "actor", sess.Actor.ID)
	return nil
}
