// Package qerr defines the error taxonomy shared by the query compiler,
// the execution layer and the facet normalizer.
//
// Four categories exist:
//   - UNKNOWN_FIELD: an alias is absent from the type model
//   - SYNTAX_ERROR: malformed PQL text
//   - INVALID_QUERY: a well-formed query that cannot be compiled
//   - INTERNAL_ERROR: an engine invariant was violated
//
// The first three are client input errors and are never retried. Internal
// errors abort the request and must not be swallowed.
package qerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code categorizes query errors.
type Code string

const (
	// CodeUnknownField indicates an alias that the type model does not define.
	CodeUnknownField Code = "UNKNOWN_FIELD"

	// CodeSyntax indicates malformed PQL text.
	CodeSyntax Code = "SYNTAX_ERROR"

	// CodeInvalidQuery indicates a semantically invalid operation.
	CodeInvalidQuery Code = "INVALID_QUERY"

	// CodeInternal indicates a violated engine invariant.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error is the structured error returned by every component of the core.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Field is the alias or internal path involved, if any.
	Field string

	// Pos is the byte offset in PQL text for syntax errors, -1 otherwise.
	Pos int

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Code == CodeSyntax && e.Pos >= 0 {
		msg = fmt.Sprintf("%s (pos=%d)", msg, e.Pos)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UnknownField creates an error for an undefined alias.
func UnknownField(alias, scope string) *Error {
	return &Error{
		Code:    CodeUnknownField,
		Message: fmt.Sprintf("field %q is not defined in the %s type model", alias, scope),
		Field:   alias,
		Pos:     -1,
	}
}

// Syntax creates an error for malformed PQL text at a byte offset.
func Syntax(pos int, format string, args ...any) *Error {
	return &Error{
		Code:    CodeSyntax,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// Invalid creates an error for a semantically invalid query.
func Invalid(field, format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvalidQuery,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
		Pos:     -1,
	}
}

// Internal creates an error for a violated engine invariant.
func Internal(format string, args ...any) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: fmt.Sprintf(format, args...),
		Pos:     -1,
	}
}

// WrapInternal creates an internal error with an underlying cause.
func WrapInternal(err error, format string, args ...any) *Error {
	e := Internal(format, args...)
	e.Err = err
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// IsUnknownField returns true if err is an unknown field error.
// Uses errors.As to handle wrapped errors.
func IsUnknownField(err error) bool {
	return CodeOf(err) == CodeUnknownField
}

// IsSyntax returns true if err is a PQL syntax error.
func IsSyntax(err error) bool {
	return CodeOf(err) == CodeSyntax
}

// IsInvalidQuery returns true if err is an invalid query error.
func IsInvalidQuery(err error) bool {
	return CodeOf(err) == CodeInvalidQuery
}

// IsInternal returns true if err is an internal error.
func IsInternal(err error) bool {
	return CodeOf(err) == CodeInternal
}

// IsClientError reports whether err was caused by client input.
func IsClientError(err error) bool {
	switch CodeOf(err) {
	case CodeUnknownField, CodeSyntax, CodeInvalidQuery:
		return true
	}
	return false
}

// HTTPStatus maps err to the status code a REST layer should answer with.
// Errors outside the taxonomy map to 500.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeUnknownField, CodeSyntax, CodeInvalidQuery:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
