package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced by the profile client.
const (
	CodeNoCredential         = "NO_CREDENTIAL"
	CodeNoSession            = "NO_SESSION"
	CodeSessionDecodeFailed  = "SESSION_DECODE_FAILED"
	CodeProfileFetchFailed   = "PROFILE_FETCH_FAILED"
	CodeProfileSaveFailed    = "PROFILE_SAVE_FAILED"
	CodePasswordMismatch     = "PASSWORD_MISMATCH"
	CodePasswordChangeFailed = "PASSWORD_CHANGE_FAILED"
	CodeUnknownField         = "UNKNOWN_FIELD"
	CodeReadOnlyField        = "READ_ONLY_FIELD"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeRequestInFlight      = "REQUEST_IN_FLIGHT"
	CodeUnmounted            = "UNMOUNTED"
	CodeUpstream4xx          = "UPSTREAM_4XX"
	CodeUpstream5xx          = "UPSTREAM_5XX"
	CodeTransport            = "TRANSPORT_ERROR"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// Wrap attaches a cause to a new DomainError with the given code.
func Wrap(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err, HTTPStatus: statusOf(err)}
}

func NewValidationError(code, message string, details map[string]any) error {
	return NewDomainError(code, message, http.StatusBadRequest, details)
}

func NewNoCredential() error {
	return NewDomainError(CodeNoCredential, "no stored credential", http.StatusUnauthorized, nil)
}

func NewNoSession() error {
	return NewDomainError(CodeNoSession, "no active session", http.StatusUnauthorized, nil)
}

func NewRequestInFlight(operation string) error {
	return NewDomainError(CodeRequestInFlight, operation+" already in progress", http.StatusConflict,
		map[string]any{"operation": operation})
}

func NewUnmounted() error {
	return NewDomainError(CodeUnmounted, "profile view closed", 0, nil)
}

// NewUpstreamError maps a non-2xx response from the profile API.
func NewUpstreamError(status int, message string) error {
	code := CodeUpstream4xx
	if status >= http.StatusInternalServerError {
		code = CodeUpstream5xx
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &DomainError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Details:    map[string]any{"status": status},
	}
}

func NewTransportError(err error) error {
	return &DomainError{Code: CodeTransport, Message: "profile api unreachable", Err: err}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &DomainError{Code: CodeTransport, Message: "request cancelled", Err: err}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func statusOf(err error) int {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.HTTPStatus
	}
	return 0
}
