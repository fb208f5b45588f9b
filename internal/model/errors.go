package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes sync errors.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates a missing collection or relationship type.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeIllegalState indicates a broken relationship graph invariant,
	// such as a clone whose CV entity is gone.
	ErrCodeIllegalState ErrorCode = "ILLEGAL_STATE"

	// ErrCodeNotAuthorized indicates a write outside the actor's rights.
	ErrCodeNotAuthorized ErrorCode = "NOT_AUTHORIZED"
)

// SyncError is a structured error raised by the sync layer.
type SyncError struct {
	Code    ErrorCode
	Message string
	ItemID  string
	Err     error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ItemID != "" {
		msg = fmt.Sprintf("%s (item=%s)", msg, e.ItemID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error { return e.Err }

// NewConfigurationError reports a missing or inconsistent configuration.
func NewConfigurationError(itemID, format string, args ...any) *SyncError {
	return &SyncError{Code: ErrCodeConfiguration, Message: fmt.Sprintf(format, args...), ItemID: itemID}
}

// NewIllegalStateError reports a graph inconsistency.
func NewIllegalStateError(itemID, format string, args ...any) *SyncError {
	return &SyncError{Code: ErrCodeIllegalState, Message: fmt.Sprintf(format, args...), ItemID: itemID}
}

// NewNotAuthorizedError reports a denied write.
func NewNotAuthorizedError(itemID, actor string) *SyncError {
	return &SyncError{
		Code:    ErrCodeNotAuthorized,
		Message: fmt.Sprintf("actor %q may not modify item", actor),
		ItemID:  itemID,
	}
}

func hasCode(err error, code ErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsConfigurationError returns true if err carries ErrCodeConfiguration.
func IsConfigurationError(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsIllegalStateError returns true if err carries ErrCodeIllegalState.
func IsIllegalStateError(err error) bool { return hasCode(err, ErrCodeIllegalState) }

// IsNotAuthorizedError returns true if err carries ErrCodeNotAuthorized.
func IsNotAuthorizedError(err error) bool { return hasCode(err, ErrCodeNotAuthorized) }
