package piverif

import "fmt"

// InvariantError reports a violation of one of this package's data
// model invariants (e.g. Translate meeting a Process variant it does not
// know). It
// is always a programming error in a caller, never an attacker input
// problem, and is safe to treat as fatal.
type InvariantError struct {
	Component string
	Message   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: invariant violated: %s", e.Component, e.Message)
}

// NewInvariantError constructs an InvariantError for component.
func NewInvariantError(component, message string) *InvariantError {
	return &InvariantError{Component: component, Message: message}
}

// ModelError reports a problem in a translated Applied-Pi model that
// prevents query resolution from starting at all: an ill-typed
// let-binding, an undeclared free name, or a query referencing an
// unknown channel. Unlike InvariantError, this reflects a problem with
// user-supplied input and should be reported to the operator, not
// treated as a bug in piverif itself.
type ModelError struct {
	Where   string
	Message string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Where, e.Message)
}

// NewModelError constructs a ModelError at the given source location
// description (e.g. a process or let-binding name).
func NewModelError(where, message string) *ModelError {
	return &ModelError{Where: where, Message: message}
}
