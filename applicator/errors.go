// Package applicator applies decoded CodeView symbol records to an analysis
// context: sections, COFF groups, procedures, lexical blocks, data and
// publics.
//
// A run walks a Stream one record at a time. Each record kind has an
// Applier that validates the record and mutates the Context. Per-record
// problems are recorded as faults and never stop the run; only cancellation
// of the run's context.Context ends it early.
package applicator

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/pdb-apply/codeview"
)

// Sentinel errors. Every Fault unwraps to exactly one of the first four.
var (
	// ErrUnsupportedKind indicates no applier is registered for a record kind.
	ErrUnsupportedKind = errors.New("applicator: unsupported record kind")

	// ErrDispatchMismatch indicates an applier found a record of another kind
	// at the cursor. It signals a registry or applier bug, not bad input.
	ErrDispatchMismatch = errors.New("applicator: dispatch mismatch")

	// ErrMalformedField indicates a record field outside its valid range.
	ErrMalformedField = errors.New("applicator: malformed field")

	// ErrScopeImbalance indicates a scope end that does not match the open scope.
	ErrScopeImbalance = errors.New("applicator: scope imbalance")

	// ErrEndOfStream is returned by Stream when no records remain.
	ErrEndOfStream = errors.New("applicator: end of stream")

	// ErrInvalidSeek is returned by Stream.Seek for backward or out of range targets.
	ErrInvalidSeek = errors.New("applicator: invalid seek")

	// ErrCancelled is returned by Run when the run was cancelled.
	ErrCancelled = errors.New("applicator: run cancelled")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("applicator: invalid config")
)

// FaultClass classifies a per-record fault.
type FaultClass int

const (
	ClassUnsupportedKind FaultClass = iota
	ClassDispatchMismatch
	ClassMalformedField
	ClassScopeImbalance
)

func (c FaultClass) String() string {
	switch c {
	case ClassUnsupportedKind:
		return "unsupported_kind"
	case ClassDispatchMismatch:
		return "dispatch_mismatch"
	case ClassMalformedField:
		return "malformed_field"
	case ClassScopeImbalance:
		return "scope_imbalance"
	default:
		return "unknown"
	}
}

// Severity distinguishes programming faults from data-quality faults.
type Severity int

const (
	// SeverityData covers malformed or unexpected input. It is tolerated.
	SeverityData Severity = iota
	// SeverityProgramming covers internal inconsistencies that should not
	// happen with a correct registry.
	SeverityProgramming
)

func (s Severity) String() string {
	if s == SeverityProgramming {
		return "programming"
	}
	return "data"
}

// Severity returns the severity of faults of this class.
func (c FaultClass) Severity() Severity {
	if c == ClassDispatchMismatch {
		return SeverityProgramming
	}
	return SeverityData
}

// classify maps an applier error to its fault class. Errors that wrap none
// of the class sentinels are treated as malformed input.
func classify(err error) FaultClass {
	switch {
	case errors.Is(err, ErrDispatchMismatch):
		return ClassDispatchMismatch
	case errors.Is(err, ErrScopeImbalance):
		return ClassScopeImbalance
	case errors.Is(err, ErrUnsupportedKind):
		return ClassUnsupportedKind
	default:
		return ClassMalformedField
	}
}

// Fault describes a problem with a single record.
type Fault struct {
	Class    FaultClass
	Position int           // index of the record in the stream
	Offset   uint32        // byte offset of the record in its symbol stream
	Kind     codeview.Kind // kind of the record
	Err      error         // detail, wraps the class sentinel
}

func (f *Fault) Error() string {
	return fmt.Sprintf("applicator: %s at record %d (offset 0x%x, %s): %v",
		f.Class, f.Position, f.Offset, f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

func mismatch(want string, got codeview.Record) error {
	return fmt.Errorf("%w: expected %s, found %T (%s)", ErrDispatchMismatch, want, got, got.Kind())
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedField, fmt.Sprintf(format, args...))
}

func imbalance(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrScopeImbalance, fmt.Sprintf(format, args...))
}
