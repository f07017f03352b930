// Package errors provides structured error types for gridrisk.
//
// Every fatal condition in the analysis pipeline carries a machine-readable
// [Code] plus a message naming the offending asset, node, or key. The CLI
// prints [UserMessage] and tests match on codes with [Is].
//
// # Error Codes
//
// Codes are grouped by stage:
//   - INVALID_*: configuration and input record failures
//   - topology failures: ISLAND_UNRESOLVED, CYCLE_DETECTED, MISSING_CONDUCTOR
//   - metric failures: ASSET_NOT_INDEXED, MISSING_IMPACT_DATA, NOT_FINALIZED
//   - NOT_FOUND / FILE_NOT_FOUND: missing persisted state
//   - NETWORK_ERROR / TIMEOUT / INTERNAL_ERROR: backends and bugs
//
// # Usage
//
//	err := errors.New(errors.ErrCodeCycleDetected, "cycle closed by edge %s", name)
//	if errors.Is(err, errors.ErrCodeCycleDetected) {
//	    // topology is meshed, abort
//	}
//
//	err := errors.Wrap(errors.ErrCodeFileNotFound, origErr, "read %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"
	ErrCodeInvalidAsset    Code = "INVALID_ASSET"
	ErrCodeInvalidTopology Code = "INVALID_TOPOLOGY"
	ErrCodeInvalidPath     Code = "INVALID_PATH"

	// Topology errors
	ErrCodeIslandUnresolved Code = "ISLAND_UNRESOLVED"
	ErrCodeCycleDetected    Code = "CYCLE_DETECTED"
	ErrCodeMissingConductor Code = "MISSING_CONDUCTOR"

	// Metric engine errors
	ErrCodeAssetNotIndexed   Code = "ASSET_NOT_INDEXED"
	ErrCodeMissingImpactData Code = "MISSING_IMPACT_DATA"
	ErrCodeNotFinalized      Code = "NOT_FINALIZED"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Backend errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err stops an analysis run. Everything carrying a
// code does, except NETWORK_ERROR and TIMEOUT. Plain errors are left to the
// caller's judgement. A joined error is fatal when any of its members is.
func IsFatal(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if IsFatal(e) {
				return true
			}
		}
		return false
	}
	switch GetCode(err) {
	case "":
		return false
	case ErrCodeNetwork, ErrCodeTimeout:
		return false
	}
	return true
}
