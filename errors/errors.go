// Package errors provides error handling for aecoa.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Operator-facing hints and details
//
// It also defines the compliance error taxonomy shared by the evaluation
// engine and the gate state machine.
//
// Usage:
//
//	if err := run.Approve(gate.StageInput, "reviewer"); err != nil {
//	    if errors.Is(err, errors.ErrInvalidApprovalTransition) {
//	        // state was left untouched
//	    }
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Generic sentinel errors.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., stale run version)
	ErrConflict = New("resource conflict")
)

// Compliance taxonomy.
//
// ErrUnitMismatch and ErrBucketResolution never abort an evaluation: the
// evaluator records them as INCONCLUSIVE results on the affected requirement.
// ErrInvalidApprovalTransition is returned at the gate boundary and always
// leaves the run state untouched.
var (
	// ErrUnitMismatch indicates two units have no known linear conversion
	ErrUnitMismatch = New("unit mismatch")

	// ErrBucketResolution indicates a driver value selects no bucket of a ranged requirement
	ErrBucketResolution = New("bucket resolution failure")

	// ErrInvalidRequirement indicates a requirement table failed load-time validation
	ErrInvalidRequirement = New("invalid requirement")

	// ErrInvalidApprovalTransition indicates a gate action that the state machine refuses
	ErrInvalidApprovalTransition = New("invalid approval transition")
)

// Refinements of ErrInvalidApprovalTransition. errors.Is matches both the
// refinement and ErrInvalidApprovalTransition.
var (
	// ErrRunFrozen is returned for any mutation of a run whose output gate is approved
	ErrRunFrozen = Wrap(ErrInvalidApprovalTransition, "run is frozen")

	// ErrAlreadyApproved is returned when approving a gate that is already approved
	ErrAlreadyApproved = Wrap(ErrInvalidApprovalTransition, "gate already approved")

	// ErrStageMismatch is returned when acting on a stage that is not the run's current stage
	ErrStageMismatch = Wrap(ErrInvalidApprovalTransition, "stage is not current")

	// ErrArtifactMissing is returned when approving a gate that has no artifact to approve
	ErrArtifactMissing = Wrap(ErrInvalidApprovalTransition, "stage artifact missing")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsInvalidTransition checks if an error is or wraps ErrInvalidApprovalTransition
func IsInvalidTransition(err error) bool {
	return err != nil && Is(err, ErrInvalidApprovalTransition)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// WrapNotFound wraps an error as a not-found error with context
func WrapNotFound(err error, context string) error {
	return Wrap(Wrap(ErrNotFound, err.Error()), context)
}

// WrapInvalidRequest wraps an error as an invalid-request error with context
func WrapInvalidRequest(err error, context string) error {
	return Wrap(Wrap(ErrInvalidRequest, err.Error()), context)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
