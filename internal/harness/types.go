package harness

import "github.com/roach88/dirsync/internal/model"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step succeeded and every assertion held.
	Pass bool `json:"pass"`

	// Errors holds step failures and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Trace is the provenance log the run produced, in write order.
	Trace []model.ProvenanceEntry `json:"trace"`

	// Snapshot is the final state, used for golden comparison.
	Snapshot *Snapshot `json:"snapshot"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Trace:  []model.ProvenanceEntry{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
