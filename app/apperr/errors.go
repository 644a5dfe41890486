// Package apperr defines the error taxonomy shared by every handler.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindValidation       Kind = "VALIDATION_FAILED"
	KindQuotaExceeded    Kind = "QUOTA_EXCEEDED"
	KindTierInsufficient Kind = "TIER_INSUFFICIENT"
	KindNotFound         Kind = "NOT_FOUND"
	KindUpstream         Kind = "UPSTREAM_PROVIDER_FAILED"
	KindSignature        Kind = "SIGNATURE_VERIFICATION_FAILED"
	KindInternal         Kind = "INTERNAL"
)

// Error is a classified application error.
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

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Unauthenticated(msg string) *Error { return newError(KindUnauthenticated, msg, nil) }

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...), nil)
}

func QuotaExceeded(msg string) *Error { return newError(KindQuotaExceeded, msg, nil) }

func TierInsufficient(msg string) *Error { return newError(KindTierInsufficient, msg, nil) }

func NotFound(msg string) *Error { return newError(KindNotFound, msg, nil) }

func Upstream(msg string, err error) *Error { return newError(KindUpstream, msg, err) }

func Signature(err error) *Error {
	return newError(KindSignature, "signature verification failed", err)
}

func Internal(msg string, err error) *Error { return newError(KindInternal, msg, err) }

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsEntitlement reports whether err is an entitlement denial.
func IsEntitlement(err error) bool {
	k := KindOf(err)
	return err != nil && (k == KindQuotaExceeded || k == KindTierInsufficient)
}

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindValidation, KindSignature:
		return http.StatusBadRequest
	case KindQuotaExceeded, KindTierInsufficient:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to return to clients.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindUpstream {
		return e.Message
	}
	if KindOf(err) == KindUpstream {
		return "payment provider unavailable"
	}
	return "internal error"
}
