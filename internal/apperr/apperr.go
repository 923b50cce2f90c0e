package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindUnauthenticated     Kind = "unauthenticated"
	KindForbidden           Kind = "forbidden"
	KindValidation          Kind = "validation_error"
	KindNotFound            Kind = "not_found"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindInvalidTransition   Kind = "invalid_transition"
	KindDuplicateEmail      Kind = "duplicate_email"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindInternal            Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindUnauthenticated:     http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindValidation:          http.StatusBadRequest,
	KindNotFound:            http.StatusNotFound,
	KindInsufficientStock:   http.StatusConflict,
	KindInvalidTransition:   http.StatusConflict,
	KindDuplicateEmail:      http.StatusBadRequest,
	KindProviderUnavailable: http.StatusBadGateway,
	KindInternal:            http.StatusInternalServerError,
}

// Error is the typed error every component returns across its API.
// Message is safe to show to clients; Err stays server-side.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels like ErrExpired
// still satisfy errors.Is(err, apperr.Unauthenticated).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return e == t
}

// Kind sentinels, for errors.Is checks.
var (
	Unauthenticated     = &Error{Kind: KindUnauthenticated}
	Forbidden           = &Error{Kind: KindForbidden}
	Validation          = &Error{Kind: KindValidation}
	NotFound            = &Error{Kind: KindNotFound}
	InsufficientStock   = &Error{Kind: KindInsufficientStock}
	InvalidTransition   = &Error{Kind: KindInvalidTransition}
	DuplicateEmail      = &Error{Kind: KindDuplicateEmail}
	ProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	Internal            = &Error{Kind: KindInternal}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the kind of err; anything untyped is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(kind Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// PublicMessage returns text that is safe to send to a client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Message != "" {
		return e.Message
	}
	if KindOf(err) == KindProviderUnavailable {
		return "payment provider unavailable"
	}
	return "internal error"
}
