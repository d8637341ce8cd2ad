// Package fault defines the closed error taxonomy of the engine and its
// mapping to HTTP status codes.
//
// Every error surfaced over the wire carries a stable [Code]. Components
// construct coded errors with [New] (optionally decorated via [WithHint] or
// [WithDetail]) and the HTTP layer resolves them with [CodeOf] and
// [HTTPStatus]. Errors without a code collapse to [CodeInternal].
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable error token understood by capture clients.
type Code string

const (
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeSessionAlreadyActive Code = "SESSION_ALREADY_ACTIVE"
	CodeSessionAlreadyExists Code = "SESSION_ALREADY_EXISTS"
	CodeSessionNotReady      Code = "SESSION_NOT_READY"
	CodeInvalidAudioFormat   Code = "INVALID_AUDIO_FORMAT"
	CodeEngineOverloaded     Code = "ENGINE_OVERLOADED"
	CodeSTTUnavailable       Code = "STT_BACKEND_UNAVAILABLE"
	CodeSTTFailure           Code = "STT_BACKEND_FAILURE"
	CodeLLMUnavailable       Code = "LLM_UNAVAILABLE"
	CodeExtractionFallback   Code = "EXTRACTION_FALLBACK"
	CodeMapStall             Code = "MAP_STALL"
	CodeOutputWriteFailure   Code = "OUTPUT_WRITE_FAILURE"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error is a coded engine error. Hint and Details are surfaced to the client
// in the error envelope; Message must never contain transcript or summary
// text.
type Error struct {
	Code    Code
	Message string
	Hint    string
	Details map[string]any
	wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.wrapped }

// New creates a coded error with a human-readable message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error around an underlying cause. The cause is
// reachable via [errors.Unwrap] but is never serialized to clients.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, wrapped: err}
}

// WithHint attaches an actionable hint, returned in the details.hint field of
// the error envelope.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithDetail attaches an extra key/value to the error envelope's details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the [Code] from err. Errors that do not carry a coded
// [*Error] anywhere in their chain report [CodeInternal].
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// AsError returns the coded [*Error] in err's chain, or a generic
// INTERNAL_ERROR wrapper when none is present. The generic message is
// deliberately vague; the real cause belongs in the logs only.
func AsError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(CodeInternal, "an unexpected internal error occurred", err)
}

// HTTPStatus maps a [Code] to its HTTP response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRequest, CodeInvalidAudioFormat:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeSessionAlreadyActive, CodeSessionAlreadyExists, CodeSessionNotReady:
		return http.StatusConflict
	case CodeEngineOverloaded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
