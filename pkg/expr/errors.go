// Package expr implements the closed expression language used by audit
// directives. Expressions are parsed once and evaluated against a scope of
// plain values; they can read scope variables, compose literals and call
// functions from an explicit allow-list. Nothing else is reachable.
package expr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFunction is returned when an expression calls a function that is
// not in the allow-list.
var ErrUnknownFunction = errors.New("function is not allowed")

// SyntaxError represents an error encountered while scanning or parsing
type SyntaxError struct {
	Message string
	Pos     int
	Near    string
}

// Error implements the error interface
func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error at %d: %s", e.Pos, e.Message)
	}
	return fmt.Sprintf("syntax error at %d: %s (near '%s')", e.Pos, e.Message, e.Near)
}

// CompileError groups all syntax errors found in one expression
type CompileError struct {
	Source string
	Errors []*SyntaxError
}

// Error implements the error interface
func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid expression %q: %s", e.Source, strings.Join(msgs, "; "))
}

// EvalError represents a runtime failure while evaluating an expression
type EvalError struct {
	Message string
	Pos     int
	Err     error
}

// Error implements the error interface
func (e *EvalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation error at %d: %s: %v", e.Pos, e.Message, e.Err)
	}
	return fmt.Sprintf("evaluation error at %d: %s", e.Pos, e.Message)
}

// Unwrap returns the wrapped error
func (e *EvalError) Unwrap() error {
	return e.Err
}
