package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error so the transport layer can map it uniformly
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record already exists")
	ErrIntegrity     = errors.New("sealed data failed authentication")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token has expired")
	ErrUnknownChain  = errors.New("unsupported blockchain")
	ErrInvalidKey    = errors.New("invalid private key")
	ErrSignerTimeout = errors.New("signing timed out")
)

// Error is the fixed error shape returned by every core operation.
// Message is safe to show to callers; Detail and Err are for operators only.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func BadRequest(msg string) *Error      { return newError(KindBadRequest, msg, nil) }
func Unauthenticated(msg string) *Error { return newError(KindUnauthenticated, msg, nil) }
func Forbidden(msg string) *Error       { return newError(KindForbidden, msg, nil) }
func NotFound(msg string) *Error        { return newError(KindNotFound, msg, nil) }
func Conflict(msg string) *Error        { return newError(KindConflict, msg, nil) }

// Internal wraps an unexpected failure behind a generic message
func Internal(err error) *Error {
	return newError(KindInternal, "internal server error", err)
}

// Integrity reports a failed decryption. Callers see the same generic
// message as any internal failure so the response cannot act as an oracle.
func Integrity(err error) *Error {
	return newError(KindIntegrity, "internal server error", err)
}

// WithDetail attaches operator-facing detail to the error
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// KindOf reports the kind of err. Errors that are not *Error are internal,
// except the store sentinels which keep their natural meaning.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return KindInternal
}

// PublicMessage returns the message that may be shown to a caller
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	switch KindOf(err) {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "already exists"
	}
	return "internal server error"
}
