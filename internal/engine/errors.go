package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/dirsync/internal/model"
)

// RuntimeError represents an error detected while dispatching events.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the affected session.
	SessionID string

	// Consumer names the consumer that failed, if any.
	Consumer string

	// Event is the event being dispatched.
	Event model.Event

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeConsumerFailed indicates a consumer aborted its handling of an event.
	ErrCodeConsumerFailed RuntimeErrorCode = "CONSUMER_FAILED"

	// ErrCodeStoreFailed indicates the event log could not be written.
	ErrCodeStoreFailed RuntimeErrorCode = "STORE_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s (session=%s", e.Code, e.Message, e.SessionID)
	if e.Consumer != "" {
		msg += ", consumer=" + e.Consumer
	}
	if e.Event.ItemID != "" {
		msg += fmt.Sprintf(", item=%s, kind=%s", e.Event.ItemID, e.Event.Kind)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// NewConsumerError wraps a consumer failure with its dispatch context.
func NewConsumerError(sessionID, consumer string, ev model.Event, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeConsumerFailed,
		Message:   "consumer aborted event",
		SessionID: sessionID,
		Consumer:  consumer,
		Event:     ev,
		Err:       err,
	}
}

// NewStoreError wraps an event log failure.
func NewStoreError(sessionID string, ev model.Event, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeStoreFailed,
		Message:   "event log write failed",
		SessionID: sessionID,
		Event:     ev,
		Err:       err,
	}
}

// IsConsumerError returns true if err wraps a consumer failure.
func IsConsumerError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeConsumerFailed
	}
	return false
}
