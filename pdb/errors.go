// Package pdb opens Microsoft PDB files and exposes what the applicator
// consumes: module symbol streams and PE section headers.
package pdb

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotFound indicates a module index out of range.
	ErrModuleNotFound = errors.New("pdb: module not found")

	// ErrNoSectionHeaders indicates the PDB carries no section header stream.
	ErrNoSectionHeaders = errors.New("pdb: no section header stream")

	// ErrFileClosed indicates the PDB file has been closed.
	ErrFileClosed = errors.New("pdb: file is closed")
)

// ParseError provides detailed information about parsing failures.
type ParseError struct {
	Stream  string // Stream name where error occurred
	Offset  int64  // Byte offset within stream
	Message string // Description of the error
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pdb: parse error in %s at offset 0x%x: %s: %v",
			e.Stream, e.Offset, e.Message, e.Err)
	}
	return fmt.Sprintf("pdb: parse error in %s at offset 0x%x: %s",
		e.Stream, e.Offset, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }
