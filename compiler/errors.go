package compiler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSyntax           = errors.New("syntax error")
	ErrUnknownDirective = errors.New("unknown directive")
	ErrMisplaced        = errors.New("misplaced statement")
	ErrBadArguments     = errors.New("bad directive arguments")
)

// Error is an error tied to a source position.
type Error struct {
	Pos Position
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %v", e.Pos.Line, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorList collects every syntax error of one source.
type ErrorList struct {
	Errors []error
}

func (e *ErrorList) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// Unwrap lets errors.Is and errors.As see every collected error.
func (e *ErrorList) Unwrap() []error {
	return e.Errors
}

func errorAt(pos Position, err error) error {
	return &Error{Pos: pos, Err: err}
}
