package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrorKind classifies a failed backend call
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUnreachable
	KindTimeout
	KindServerError
	KindMalformedResponse
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindTimeout:
		return "timeout"
	case KindServerError:
		return "server_error"
	case KindMalformedResponse:
		return "malformed_response"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by Client methods.
type Error struct {
	Op         string // "health", "chat", "ingest", "search", "stats"
	Kind       ErrorKind
	StatusCode int // set for KindServerError
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServerError:
		return fmt.Sprintf("backend %s: server error %d", e.Op, e.StatusCode)
	case KindValidation:
		return fmt.Sprintf("backend %s: invalid request: %v", e.Op, e.Err)
	default:
		if e.Err == nil {
			return fmt.Sprintf("backend %s: %s", e.Op, e.Kind)
		}
		return fmt.Sprintf("backend %s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a backend error, or KindUnknown for anything else.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// StatusCodeOf returns the HTTP status carried by a server error, or 0.
func StatusCodeOf(err error) int {
	var be *Error
	if errors.As(err, &be) && be.Kind == KindServerError {
		return be.StatusCode
	}
	return 0
}

func validationError(op, msg string) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: errors.New(msg)}
}

// classifyTransport maps an error from http.Client.Do (or from reading the
// body) onto the error taxonomy.
func classifyTransport(op string, err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}

	kind := KindUnknown
	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindUnreachable
	case errors.As(err, &opErr) && opErr.Op == "dial":
		kind = KindUnreachable
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// connection closed before a response arrived
		kind = KindUnreachable
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
