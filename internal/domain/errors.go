package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for simple conditions without extra context.
var (
	// ErrEntityNotFound is returned when the target entity does not exist
	// within the caller's tenant.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrUnauthorized is returned for any role or tenant mismatch. It is
	// deliberately generic: unauthorized callers learn nothing beyond
	// "not permitted".
	ErrUnauthorized = errors.New("not permitted")

	// ErrStaleState is returned when an entity's state changed between
	// validation and write. The executor retries from the rules step.
	ErrStaleState = errors.New("entity state changed concurrently")
)

// UnknownOperationError is a catalog miss. It is fatal to the request:
// an unknown code is never silently permitted.
type UnknownOperationError struct {
	Code string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Code)
}

// RuleViolationError carries the complete set of business-rule failures
// for one operation attempt. Rules never short-circuit, so the list is
// exhaustive.
type RuleViolationError struct {
	OperationCode string
	Violations    []string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("operation %s violates %d rule(s): %s",
		e.OperationCode, len(e.Violations), strings.Join(e.Violations, "; "))
}

// InvalidTransitionError is returned when a from/to state pair is not in
// the machine's table, including any attempt out of a terminal state.
type InvalidTransitionError struct {
	Kind EntityKind
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s may not transition from %q to %q", e.Kind, e.From, e.To)
}

// MissingEvidenceError names the evidence kind a policy requires but the
// caller did not supply.
type MissingEvidenceError struct {
	PolicyCode string
	Missing    EvidenceKind
}

func (e *MissingEvidenceError) Error() string {
	return fmt.Sprintf("policy %s requires evidence of kind %q", e.PolicyCode, e.Missing)
}

// ChainIntegrityError reports a broken audit chain found by verification.
// It is surfaced only on explicit verification, never swallowed.
type ChainIntegrityError struct {
	TenantStreamID string
	BrokenAt       int
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("audit chain for stream %s broken at index %d", e.TenantStreamID, e.BrokenAt)
}

// InvalidMilestoneError is returned when a settlement milestone release
// is attempted out of order or from a state that forbids release.
type InvalidMilestoneError struct {
	SettlementID string
	MilestoneID  MilestoneID
	Reason       string
}

func (e *InvalidMilestoneError) Error() string {
	return fmt.Sprintf("settlement %s milestone %s: %s", e.SettlementID, e.MilestoneID, e.Reason)
}

// TransientStoreError wraps a retryable storage failure (lock contention,
// timeout). The executor retries a bounded number of times before
// surfacing the underlying error.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }
