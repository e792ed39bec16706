// Package domain defines the request-shaped types and the error taxonomy shared
// by the statement builder, the execution gateway and the HTTP layer.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. The HTTP layer maps each kind to a status code.
type Kind int

// Error kinds.
const (
	KindExecution Kind = iota
	KindInvalidIdentifier
	KindMissingParameter
	KindInvalidRange
	KindEmptyPayload
	KindNotFound
	KindUnknownTable
	KindUniqueViolation
	KindQueryTimeout
	KindConnection
)

var kindNames = map[Kind]string{
	KindExecution:         "ExecutionError",
	KindInvalidIdentifier: "InvalidIdentifier",
	KindMissingParameter:  "MissingParameter",
	KindInvalidRange:      "InvalidRange",
	KindEmptyPayload:      "EmptyPayload",
	KindNotFound:          "NotFound",
	KindUnknownTable:      "UnknownTable",
	KindUniqueViolation:   "UniqueConstraintViolation",
	KindQueryTimeout:      "QueryTimeout",
	KindConnection:        "ConnectionError",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified failure. Table and Field are set when the failure
// concerns a specific table or column (unknown table, duplicate value).
type Error struct {
	Kind    Kind
	Message string
	Table   string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, &domain.Error{Kind: domain.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindExecution when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExecution
}

// IsKind reports whether err is classified as k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func newError(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidIdentifier creates an InvalidIdentifier error with a formatted message.
func ErrInvalidIdentifier(format string, args ...interface{}) *Error {
	return newError(KindInvalidIdentifier, format, args...)
}

// ErrMissingParameter creates a MissingParameter error with a formatted message.
func ErrMissingParameter(format string, args ...interface{}) *Error {
	return newError(KindMissingParameter, format, args...)
}

// ErrInvalidRange creates an InvalidRange error with a formatted message.
func ErrInvalidRange(format string, args ...interface{}) *Error {
	return newError(KindInvalidRange, format, args...)
}

// ErrEmptyPayload creates an EmptyPayload error with a formatted message.
func ErrEmptyPayload(format string, args ...interface{}) *Error {
	return newError(KindEmptyPayload, format, args...)
}

// ErrNotFound creates a NotFound error with a formatted message.
func ErrNotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

// ErrUnknownTable reports that table does not exist in the database.
func ErrUnknownTable(table string, cause error) *Error {
	msg := "table not found"
	if table != "" {
		msg = fmt.Sprintf("table %q not found", table)
	}
	return &Error{Kind: KindUnknownTable, Message: msg, Table: table, Err: cause}
}

// ErrUniqueViolation reports a uniqueness-constraint failure on field.
func ErrUniqueViolation(table, field string, cause error) *Error {
	msg := "duplicate value violates a unique constraint"
	if field != "" {
		msg = fmt.Sprintf("duplicate value for field %q", field)
	}
	return &Error{Kind: KindUniqueViolation, Message: msg, Table: table, Field: field, Err: cause}
}

// ErrQueryTimeout reports that a statement did not finish within its timeout.
func ErrQueryTimeout(format string, args ...interface{}) *Error {
	return newError(KindQueryTimeout, format, args...)
}

// ErrConnection wraps a failure to establish the database connection.
func ErrConnection(cause error) *Error {
	return &Error{Kind: KindConnection, Message: "database connection failed", Err: cause}
}

// ErrExecution wraps an unclassified driver failure, keeping its raw message.
func ErrExecution(cause error) *Error {
	return &Error{Kind: KindExecution, Err: cause}
}
