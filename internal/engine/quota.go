package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts the events dispatched in one session and enforces a
// maximum.
//
// The ProcessedSet stops a consumer from handling the same item twice; the
// quota catches the other runaway shape, a long chain of distinct items
// each triggering the next (A → B → C → ... → Z).
//
// Together they guarantee a session's cascade terminates.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(sessionID string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			SessionID: sessionID,
			Steps:     q.current,
			Limit:     q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a session exceeds the max steps quota.
// Unlike a processed-set skip, it terminates the whole dispatch.
type StepsExceededError struct {
	SessionID string
	Steps     int
	Limit     int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("session %s exceeded max steps quota: %d steps > %d limit",
		e.SessionID, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
