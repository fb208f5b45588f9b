package model

import "fmt"

// Feedback is the institutional reviewer's decision on a pending change.
type Feedback string

const (
	FeedbackNone    Feedback = "NONE"
	FeedbackApprove Feedback = "APPROVE"
	FeedbackReject  Feedback = "REJECT"
)

// ParseFeedback parses a stored feedback value. Unknown or empty values
// read as FeedbackNone.
func ParseFeedback(s string) Feedback {
	switch Feedback(s) {
	case FeedbackApprove, FeedbackReject:
		return Feedback(s)
	default:
		return FeedbackNone
	}
}

// FeedbackOf reads the feedback recorded on an item.
func FeedbackOf(it *Item) Feedback {
	return ParseFeedback(it.Metadata.First(FieldConcytecFeedback))
}

// WorkflowKind selects which entry step a workflow item starts at.
type WorkflowKind string

const (
	// WorkflowCV handles CV-side pending items (clones, corrections, requests).
	WorkflowCV WorkflowKind = "cv"
	// WorkflowDirectorio handles institutional items under review.
	WorkflowDirectorio WorkflowKind = "directorio"
)

// WorkflowState is a step of the Directorio review state machine.
type WorkflowState string

const (
	StateShadowCopy      WorkflowState = "submitted_for_shadow_copy"
	StateWaitForConcytec WorkflowState = "wait_for_concytec"
	StateReview          WorkflowState = "review"
	// StateReturned holds a rejected child review: the submission went back
	// to its submitter with the reason and the parent still waits.
	StateReturned  WorkflowState = "returned"
	StateUnlock    WorkflowState = "unlock"
	StateFinalize  WorkflowState = "finalize"
	StateComplete  WorkflowState = "complete"
	StateCancelled WorkflowState = "cancelled"
)

// Terminal reports whether s ends the workflow.
func (s WorkflowState) Terminal() bool {
	return s == StateComplete || s == StateCancelled
}

// ScopeKind tags the pending change a workflow item carries.
type ScopeKind string

const (
	ScopeCreation   ScopeKind = "creation"
	ScopeCorrection ScopeKind = "correction"
	ScopeWithdraw   ScopeKind = "withdraw"
	ScopeReinstate  ScopeKind = "reinstate"
)

// Scope is computed once when a workflow starts and travels with the
// workflow item. Target is empty for creations and names the corrected,
// withdrawn or reinstated item otherwise.
type Scope struct {
	Kind   ScopeKind `json:"kind"`
	Target string    `json:"target,omitempty"`
}

// Creation is the default scope.
func Creation() Scope { return Scope{Kind: ScopeCreation} }

func (s Scope) String() string {
	if s.Target == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Target)
}

// Validate checks the tagged-union shape.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeCreation:
		if s.Target != "" {
			return fmt.Errorf("creation scope must not carry a target")
		}
	case ScopeCorrection, ScopeWithdraw, ScopeReinstate:
		if s.Target == "" {
			return fmt.Errorf("%s scope requires a target", s.Kind)
		}
	default:
		return fmt.Errorf("unknown scope kind %q", s.Kind)
	}
	return nil
}

// WorkflowItem wraps an item moving through the review state machine.
// ParentID names the CV-side workflow item waiting on this one.
type WorkflowItem struct {
	ID        string        `json:"id"`
	ItemID    string        `json:"item_id"`
	Kind      WorkflowKind  `json:"kind"`
	State     WorkflowState `json:"state"`
	Scope     Scope         `json:"scope"`
	ParentID  string        `json:"parent_id,omitempty"`
	Submitter string        `json:"submitter,omitempty"`
	Seq       int64         `json:"seq"`
}

// DedupStatus is the verdict on a duplicate candidate.
type DedupStatus string

const (
	DedupPending  DedupStatus = "pending"
	DedupVerified DedupStatus = "verified"
	DedupRejected DedupStatus = "rejected"
)

// DedupContextWorkflow is the decision context consulted at finalize.
const DedupContextWorkflow = "workflow"

// DedupDecision records that ItemID may duplicate DuplicateID.
type DedupDecision struct {
	ID          int64       `json:"id"`
	ItemID      string      `json:"item_id"`
	DuplicateID string      `json:"duplicate_id"`
	Context     string      `json:"context"`
	Status      DedupStatus `json:"status"`
	Note        string      `json:"note,omitempty"`
	Seq         int64       `json:"seq"`
}

// ProvenanceEntry is one line of an item's audit trail.
type ProvenanceEntry struct {
	ID        int64  `json:"id"`
	ItemID    string `json:"item_id"`
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	Message   string `json:"message"`
	Seq       int64  `json:"seq"`
}
