package api

import (
	"errors"
	"net/http"

	"sqlgate/internal/domain"
)

// requestError is a malformed request rejected before any statement is built.
type requestError struct {
	status  int
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *requestError) Unwrap() error { return e.err }

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.status
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	switch de.Kind {
	case domain.KindInvalidIdentifier, domain.KindMissingParameter, domain.KindInvalidRange,
		domain.KindEmptyPayload, domain.KindUniqueViolation:
		return http.StatusBadRequest
	case domain.KindNotFound, domain.KindUnknownTable:
		return http.StatusNotFound
	case domain.KindQueryTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the message shown to clients. Server-side failures keep
// their driver detail out of the message; development mode exposes it through
// the separate error and trace fields instead.
func publicMessage(err error, status int) string {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.message
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return "request body too large"
	}
	var de *domain.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case domain.KindExecution:
			return "database error"
		default:
			return de.Error()
		}
	}
	if status >= http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

// errorTrace lists the messages of err and every error it wraps, outermost
// first.
func errorTrace(err error) []string {
	var trace []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if len(trace) > 0 && trace[len(trace)-1] == msg {
			continue
		}
		trace = append(trace, msg)
	}
	return trace
}
