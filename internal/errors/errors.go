// Package errors provides standardized error codes for the companion session
// engine.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (connection, server, auth,
//     session, network)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by the embedding application for
// programmatic error handling. Human-readable messages are provided alongside
// codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers the embedding application can rely on.
const (
	// Connection domain - socket-level failures
	CodeConnectionFailed = "connection.failed"            // Connect/close/error before or during use
	CodePeerDisconnected = "connection.peer_disconnected" // Reserved; not raised by the handshake
	CodeDataChannel      = "connection.data_channel"      // Send failure on an otherwise-live socket

	// Server domain - host-side listener errors
	CodeServerFailed      = "server.failed"      // Listener setup failed
	CodeServerUnsupported = "server.unsupported" // Hosting not supported on this platform

	// Auth domain - handshake rejection
	CodeAuthFailed      = "auth.failed"       // Explicit rejection from the host
	CodeAuthRateLimited = "auth.rate_limited" // Too many failed attempts, lockout active
	CodeInvalidSession  = "session.invalid"   // Reserved; folded into auth.failed today

	// Session domain - lifecycle errors
	CodeTimeout = "session.timeout" // Join handshake exceeded its deadline

	// Network domain - local interface problems
	CodeNetworkUnavailable = "network.unavailable" // No usable local network interface

	// Keep-awake domain - sleep inhibitor lifecycle
	CodeKeepAwakeUnsupported   = "keepawake.unsupported"    // No inhibitor path on this OS
	CodeKeepAwakeAcquireFailed = "keepawake.acquire_failed" // Inhibitor acquisition failed

	// General domain - catch-all errors
	CodeUnknown = "error.unknown" // Unknown error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "auth.failed")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// ConnectionFailed creates a "connection.failed" error.
func ConnectionFailed(message string, cause error) *CodedError {
	if message == "" {
		message = "connection failed"
	}
	return Wrap(CodeConnectionFailed, message, cause)
}

// DataChannel creates a "connection.data_channel" error.
// This indicates a send failed on a connection that was believed live.
func DataChannel(cause error) *CodedError {
	return Wrap(CodeDataChannel, "failed to send on data channel", cause)
}

// ServerFailed creates a "server.failed" error.
func ServerFailed(message string, cause error) *CodedError {
	return Wrap(CodeServerFailed, message, cause)
}

// ServerUnsupported creates a "server.unsupported" error.
// This indicates the current platform cannot bind a listening socket.
func ServerUnsupported() *CodedError {
	return New(CodeServerUnsupported, "hosting a session is not supported on this platform")
}

// AuthFailed creates an "auth.failed" error with the host's message.
func AuthFailed(message string) *CodedError {
	if message == "" {
		message = "authentication failed"
	}
	return New(CodeAuthFailed, message)
}

// RateLimited creates an "auth.rate_limited" error.
func RateLimited() *CodedError {
	return New(CodeAuthRateLimited, "too many failed attempts, try again later")
}

// Timeout creates a "session.timeout" error.
func Timeout(message string) *CodedError {
	if message == "" {
		message = "operation timed out"
	}
	return New(CodeTimeout, message)
}

// NetworkUnavailable creates a "network.unavailable" error.
func NetworkUnavailable() *CodedError {
	return New(CodeNetworkUnavailable, "no usable network interface found")
}

// Unknown creates an "error.unknown" error wrapping an unexpected failure.
func Unknown(cause error) *CodedError {
	return Wrap(CodeUnknown, "unexpected error", cause)
}
