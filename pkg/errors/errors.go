package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
	CodeConflict            = "CONFLICT"
	CodeTimeout             = "TIMEOUT"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeTransientLookup     = "TRANSIENT_LOOKUP"
	CodeTransientStorage    = "TRANSIENT_STORAGE"
	CodeIncompleteData      = "INCOMPLETE_DATA"
	CodeNotificationChannel = "NOTIFICATION_CHANNEL"
)

var (
	ErrNotFound           = NewError(CodeNotFound, "resource not found", http.StatusNotFound)
	ErrValidation         = NewError(CodeValidation, "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError(CodeInternal, "internal server error", http.StatusInternalServerError)
	ErrConflict           = NewError(CodeConflict, "resource conflict", http.StatusConflict)
	ErrTimeout            = NewError(CodeTimeout, "operation timed out", http.StatusRequestTimeout)
	ErrServiceUnavailable = NewError(CodeServiceUnavailable, "service unavailable", http.StatusServiceUnavailable)

	// Pipeline taxonomy.
	ErrTransientLookup     = NewError(CodeTransientLookup, "owner lookup temporarily unavailable", http.StatusServiceUnavailable).AsRetryable()
	ErrTransientStorage    = NewError(CodeTransientStorage, "storage temporarily unavailable", http.StatusServiceUnavailable).AsRetryable()
	ErrIncompleteData      = NewError(CodeIncompleteData, "lead record is incomplete", http.StatusUnprocessableEntity).AsFatal()
	ErrNotificationChannel = NewError(CodeNotificationChannel, "notification channel delivery failed", http.StatusBadGateway)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

// Error is the single application error type. Retry behaviour is derived from
// the code unless explicitly overridden with AsRetryable or AsFatal.
type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		msg = detailMsg
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return !fatalByCode(e.Code)
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}
	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}
	return fatalByCode(e.Code)
}

func fatalByCode(code string) bool {
	switch code {
	case CodeValidation, CodeNotFound, CodeIncompleteData:
		return true
	}
	return false
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

// WithMessage replaces the human readable message, keeping code and status.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	err := *e
	err.Message = fmt.Sprintf(format, args...)
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

// Validation builds a client-facing validation error.
func Validation(format string, args ...interface{}) *Error {
	return ErrValidation.WithMessage(format, args...)
}

// TransientLookup wraps an owner store failure so that it is retried.
func TransientLookup(cause error) *Error {
	return ErrTransientLookup.WithCause(cause)
}

// TransientStorage wraps an object store failure so that it is retried.
func TransientStorage(cause error) *Error {
	return ErrTransientStorage.WithCause(cause)
}

func IncompleteData(field string) *Error {
	return ErrIncompleteData.WithMessage("lead record is missing %q", field).WithDetail("field", field)
}

func NotificationChannel(channel string, cause error) *Error {
	return ErrNotificationChannel.WithCause(cause).WithDetail("channel", channel)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

func IsConflict(err error) bool {
	return hasCode(err, CodeConflict)
}

func IsIncompleteData(err error) bool {
	return hasCode(err, CodeIncompleteData)
}

func IsNotificationChannel(err error) bool {
	return hasCode(err, CodeNotificationChannel)
}

// IsTransient reports whether err is a lookup or storage hiccup.
func IsTransient(err error) bool {
	return hasCode(err, CodeTransientLookup) || hasCode(err, CodeTransientStorage)
}

// IsRetryable reports whether err should be retried. Errors outside this
// package are treated as retryable unless they declare otherwise.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryableErr RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.IsRetryable()
	}
	var fatalErr FatalError
	if errors.As(err, &fatalErr) {
		return !fatalErr.IsFatal()
	}
	return true
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	// Internal failures never leak their cause to HTTP callers.
	if appErr.Status >= http.StatusInternalServerError {
		response["error"] = http.StatusText(appErr.Status)
		return response
	}

	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}
	return response
}

// ErrorResponse documents the body written by ToErrorResponse.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
