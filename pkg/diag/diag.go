// Package diag defines the two user-visible error kinds and
// accumulates multiple front-end diagnostics from one compilation via
// go.uber.org/multierr so they can all be reported together instead of
// stopping at the first one.
package diag

import (
	"fmt"

	"go.uber.org/multierr"
)

// Pos is a source position, reported as "line:col" in diagnostics.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// SemanticError is any violation detected by the front end: parse error,
// type mismatch, undeclared name, duplicate declaration, return-type
// mismatch, array-dimension mismatch, non-lvalue assignment.
type SemanticError struct {
	Pos     Pos
	Message string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// NewSemanticError constructs a SemanticError at the given position.
func NewSemanticError(pos Pos, format string, args ...any) *SemanticError {
	return &SemanticError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// InternalError is an invariant violation in the core: a virtual register
// used without definition, an unreachable instruction-selection case, or
// any other compiler bug rather than a fault in the user's program.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Message
}

// NewInternalError constructs an InternalError.
func NewInternalError(format string, args ...any) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...)}
}

// Collector accumulates SemanticErrors across one pass (e.g. type checking
// keeps going after the first mismatch) so the CLI can report every
// diagnostic from a single compilation, not just the first.
type Collector struct {
	err error
}

// Add records err into the collector. Nil errors are ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.err = multierr.Append(c.err, err)
}

// Err returns the accumulated error, or nil if nothing was added.
func (c *Collector) Err() error {
	return c.err
}

// Errors splits the accumulated error back into its individual diagnostics,
// in the order they were added, for line-by-line reporting.
func Errors(err error) []error {
	return multierr.Errors(err)
}
