package ruby

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when an operation is attempted through an Object
// whose handle has already been closed.
var ErrClosed = errors.New("ruby: object handle is closed")

// BadIdentifierError reports a name that fails the syntactic shape required
// by its identifier kind. Raised entirely host-side: a malformed name never
// reaches the interpreter.
type BadIdentifierError struct {
	Name string
	Kind IDKind
}

func (e *BadIdentifierError) Error() string {
	return fmt.Sprintf("ruby: %q is not a valid %s name", e.Name, e.Kind)
}

// BadTypeError reports a handle whose type tag did not match what an
// operation required (for example a class-variable access on a non-class
// receiver).
type BadTypeError struct {
	Expected string
}

func (e *BadTypeError) Error() string {
	return "ruby: expected " + e.Expected
}

// DuplicateKwArgError reports a repeated keyword name detected while
// assembling the keyword hash, before any interpreter call was issued.
type DuplicateKwArgError struct {
	Name string
}

func (e *DuplicateKwArgError) Error() string {
	return fmt.Sprintf("ruby: duplicate keyword argument %q", e.Name)
}

// Exception is an interpreter-level raise captured at the protected-call
// boundary. The class name and message are copied into host memory when the
// exception is caught, so an Exception stays valid after the raised handle
// has been reclaimed. Every captured Exception is also appended to the
// gateway's error history.
type Exception struct {
	Class   string `cbor:"class"`
	Message string `cbor:"message"`
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Class
	}
	return e.Class + ": " + e.Message
}
