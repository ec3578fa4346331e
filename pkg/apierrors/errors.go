// Package apierrors provides the control plane's structured error taxonomy
// (§7): each kind maps to a stable machine-readable code and an HTTP status,
// so the admin HTTP surface can translate any returned error 1:1 without
// string matching.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, user-visible identifier for an error kind.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeNoCapacity          ErrorCode = "NO_CAPACITY"
	CodeAlreadyExists       ErrorCode = "ALREADY_EXISTS"
	CodeNotRegistered       ErrorCode = "NOT_REGISTERED"
	CodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	CodeStoreUnavailable    ErrorCode = "STORE_UNAVAILABLE"
	CodeInternal            ErrorCode = "INTERNAL"
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeForbidden           ErrorCode = "FORBIDDEN"
)

// ServiceError is the structured error every component returns. The HTTP
// layer maps it to {errorCode, message} and the matching status code.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches diagnostic-only key/value pairs; details are never
// load-bearing for callers, only for humans reading logs or responses.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError with no wrapped cause.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates a ServiceError around an underlying cause.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Validation errors (400): malformed input, unknown module reference, etc.
func Validation(field, reason string) *ServiceError {
	return New(CodeValidation, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).WithDetails("reason", reason)
}

// NotFound (404): match/node/module missing.
func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithDetails("resource", resource).WithDetails("id", id)
}

// Conflict (409): duplicate registration, module version/hash mismatch.
func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict)
}

// AlreadyExists (409): node registration with an address different from the one on record.
func AlreadyExists(resource, id string) *ServiceError {
	return New(CodeAlreadyExists, fmt.Sprintf("%s already exists", resource), http.StatusConflict).
		WithDetails("resource", resource).WithDetails("id", id)
}

// NotRegistered (409): heartbeat for a node that was never (or no longer) registered.
func NotRegistered(nodeID string) *ServiceError {
	return New(CodeNotRegistered, "node is not registered", http.StatusConflict).
		WithDetails("nodeId", nodeID)
}

// Capacity (409): no healthy nodes / no free slots, machine-readable reason NO_CAPACITY.
func Capacity(reason string) *ServiceError {
	return New(CodeNoCapacity, reason, http.StatusConflict)
}

// UpstreamUnavailable (503): store/engine/auth timed out or returned 5xx.
func UpstreamUnavailable(upstream string, err error) *ServiceError {
	return Wrap(CodeUpstreamUnavailable, fmt.Sprintf("%s unavailable", upstream), http.StatusServiceUnavailable, err).
		WithDetails("upstream", upstream)
}

// StoreUnavailable (503): the shared state store is persistently failing.
func StoreUnavailable(err error) *ServiceError {
	return Wrap(CodeStoreUnavailable, "shared state store unavailable", http.StatusServiceUnavailable, err)
}

// Internal (500): invariant violations, e.g. a CAS loop exhausted.
func Internal(message string, err error) *ServiceError {
	return Wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

// Unauthorized (401).
func Unauthorized(message string) *ServiceError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden (403).
func Forbidden(message string) *ServiceError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

// IsServiceError reports whether err is (or wraps) a *ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// As extracts a *ServiceError from an error chain, or nil.
func As(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus returns the status code for err, defaulting to 500 for
// errors that are not a *ServiceError (an invariant violation by definition).
func HTTPStatus(err error) int {
	if se := As(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
