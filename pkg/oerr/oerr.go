// Package oerr defines the error taxonomy shared across the engine.
//
// Every failure that crosses a package boundary is classified into one of a
// closed set of kinds so that callers (and the HTTP surface) can react
// without string matching. Errors are wrapped, never replaced: the original
// cause stays reachable through errors.Unwrap.
package oerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindInputInvalid         Kind = "input_invalid"
	KindCollectionMissing    Kind = "collection_missing"
	KindDimensionMismatch    Kind = "dimension_mismatch"
	KindPoolExhausted        Kind = "pool_exhausted"
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	KindLLMUnavailable       Kind = "llm_unavailable"
	KindTransport            Kind = "transport_error"
	KindCancelled            Kind = "cancelled"
	KindTimeout              Kind = "timeout"
	KindConflict             Kind = "conflict"
	KindNotFound             Kind = "not_found"
	KindQualityTooLow        Kind = "quality_too_low"
	KindUnknown              Kind = "unknown"
)

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is shorthand for E with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, walking the wrap chain.
// Context errors map to Cancelled/Timeout; everything else is Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code the transport layer should use.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInputInvalid:
		return 422
	case KindNotFound, KindCollectionMissing:
		return 404
	case KindPoolExhausted:
		return 503
	case KindTimeout:
		return 504
	case KindConflict:
		return 409
	default:
		return 500
	}
}
