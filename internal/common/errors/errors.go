// Package errors provides the tagged error types used across the deskd IPC
// boundary. Every failure that crosses the dispatch boundary is represented
// as an IPCError with a stable kind code so that frontends can branch on it.
package errors

import (
	"errors"
	"fmt"
)

// Error kinds as constants. These are wire-stable: frontends discriminate
// failure cases on them.
const (
	KindUnknownCommand     = "UNKNOWN_COMMAND"
	KindPermissionDenied   = "PERMISSION_DENIED"
	KindNotInitialized     = "NOT_INITIALIZED"
	KindHandlerError       = "HANDLER_ERROR"
	KindServiceNotFound    = "SERVICE_NOT_FOUND"
	KindAlreadyRegistered  = "ALREADY_REGISTERED"
	KindClientNotAllowed   = "CLIENT_NOT_ALLOWED"
	KindChannelSetupFailed = "CHANNEL_SETUP_FAILED"
	KindBadRequest         = "BAD_REQUEST"
	KindValidation         = "VALIDATION_ERROR"
	KindNotFound           = "NOT_FOUND"
	KindInternal           = "INTERNAL_ERROR"
)

// IPCError represents a dispatch-boundary error with a stable kind code.
type IPCError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *IPCError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *IPCError) Unwrap() error {
	return e.Err
}

// UnknownCommand creates an error for a command with no registered handler.
func UnknownCommand(command string) *IPCError {
	return &IPCError{
		Kind:    KindUnknownCommand,
		Message: fmt.Sprintf("no handler registered for command '%s'", command),
	}
}

// PermissionDenied creates an error for a caller lacking a required grant.
// The offending permission string is included for diagnostics; the caller's
// own grant set is never echoed back.
func PermissionDenied(permission string) *IPCError {
	return &IPCError{
		Kind:    KindPermissionDenied,
		Message: fmt.Sprintf("missing required permission '%s'", permission),
	}
}

// NotInitialized creates an error for a call received before the caller's
// identity has been established.
func NotInitialized(message string) *IPCError {
	return &IPCError{
		Kind:    KindNotInitialized,
		Message: message,
	}
}

// HandlerError wraps an error thrown by a command handler. The original
// message is preserved; the handler failure never crashes the dispatch path.
func HandlerError(err error) *IPCError {
	return &IPCError{
		Kind:    KindHandlerError,
		Message: err.Error(),
		Err:     err,
	}
}

// ServiceNotFound creates an error for a connect attempt against a service
// that is not registered.
func ServiceNotFound(appID, serviceName string) *IPCError {
	return &IPCError{
		Kind:    KindServiceNotFound,
		Message: fmt.Sprintf("app '%s' has no registered service '%s'", appID, serviceName),
	}
}

// AlreadyRegistered creates an error for a duplicate registration.
func AlreadyRegistered(key string) *IPCError {
	return &IPCError{
		Kind:    KindAlreadyRegistered,
		Message: fmt.Sprintf("'%s' is already registered", key),
	}
}

// ClientNotAllowed creates an error for a connect attempt from an app that is
// not on the service's allow-list.
func ClientNotAllowed(appID, serviceName string) *IPCError {
	return &IPCError{
		Kind:    KindClientNotAllowed,
		Message: fmt.Sprintf("app '%s' is not allowed to connect to service '%s'", appID, serviceName),
	}
}

// ChannelSetupFailed creates an error for a connect attempt where endpoint
// delivery failed after validation passed.
func ChannelSetupFailed(message string, err error) *IPCError {
	return &IPCError{
		Kind:    KindChannelSetupFailed,
		Message: message,
		Err:     err,
	}
}

// BadRequest creates an error for a malformed payload.
func BadRequest(message string) *IPCError {
	return &IPCError{
		Kind:    KindBadRequest,
		Message: message,
	}
}

// Validation creates an error for a payload that parsed but failed
// validation of a specific field.
func Validation(field string, message string) *IPCError {
	return &IPCError{
		Kind:    KindValidation,
		Message: fmt.Sprintf("validation failed for field '%s': %s", field, message),
	}
}

// NotFound creates an error for a missing resource.
func NotFound(resource string, id string) *IPCError {
	return &IPCError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// Internal creates an internal error with a wrapped underlying error.
func Internal(message string, err error) *IPCError {
	return &IPCError{
		Kind:    KindInternal,
		Message: message,
		Err:     err,
	}
}

// FromError converts any error into an IPCError. Existing IPCErrors pass
// through unchanged; everything else becomes a HANDLER_ERROR.
func FromError(err error) *IPCError {
	if err == nil {
		return nil
	}
	var ipcErr *IPCError
	if errors.As(err, &ipcErr) {
		return ipcErr
	}
	return HandlerError(err)
}

// KindOf returns the kind code of an error, or KindInternal if the error is
// not an IPCError.
func KindOf(err error) string {
	var ipcErr *IPCError
	if errors.As(err, &ipcErr) {
		return ipcErr.Kind
	}
	return KindInternal
}

// IsKind checks whether the error is an IPCError with the given kind.
func IsKind(err error, kind string) bool {
	var ipcErr *IPCError
	if errors.As(err, &ipcErr) {
		return ipcErr.Kind == kind
	}
	return false
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound) || IsKind(err, KindServiceNotFound)
}

// IsPermissionDenied checks if the error is a permission denied error.
func IsPermissionDenied(err error) bool {
	return IsKind(err, KindPermissionDenied)
}
