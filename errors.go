package voicelink

import (
	"errors"
	"fmt"
)

// Common error variables
var (
	// ErrClosed is returned when attempting to use a session whose transport
	// has been terminated. Start a new session to resume operations.
	ErrClosed = errors.New("voicelink: connection is closed")

	// ErrInvalidConfig is returned when required configuration fields are missing.
	ErrInvalidConfig = errors.New("voicelink: invalid configuration")

	// ErrNegotiationFailed is the errors.Is anchor for NegotiationError.
	ErrNegotiationFailed = errors.New("voicelink: credential negotiation failed")

	// ErrHandshakeTimeout is returned when the far end does not acknowledge the
	// configuration handshake within Config.HandshakeTimeout.
	ErrHandshakeTimeout = errors.New("voicelink: configuration handshake timed out")

	// ErrSendTimeout is returned when writing an outbound event times out.
	ErrSendTimeout = errors.New("voicelink: send timeout")

	// ErrToolTimeout is the synthetic cause recorded when a tool executor does
	// not resolve within the dispatcher's timeout ceiling.
	ErrToolTimeout = errors.New("voicelink: tool call timed out")

	// ErrNoCapturer is returned by StartRecording when the session was opened
	// without an AudioCapturer.
	ErrNoCapturer = errors.New("voicelink: no audio capturer configured")
)

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string // The configuration field that is invalid
	Value   string // The invalid value (if safe to log)
	Message string // Detailed error message
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("voicelink: invalid config field %q (value: %q): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("voicelink: invalid config field %q: %s", e.Field, e.Message)
}

// Is implements error matching for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NegotiationError reports a failure to obtain an ephemeral session
// credential. It is fatal: StartSession fails before any transport
// connection is attempted, and no retry is performed.
type NegotiationError struct {
	SubjectID string // The subject the negotiation was for
	Reason    string // What went wrong (e.g. "missing credential in response")
	Cause     error  // The underlying error, if any
}

func (e *NegotiationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("voicelink: negotiation for %q failed: %s: %v", e.SubjectID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("voicelink: negotiation for %q failed: %s", e.SubjectID, e.Reason)
}

// Unwrap returns the underlying error.
func (e *NegotiationError) Unwrap() error { return e.Cause }

// Is implements error matching for NegotiationError.
func (e *NegotiationError) Is(target error) bool {
	return target == ErrNegotiationFailed
}

// TransportError reports a failure of the duplex transport. The session
// closes, OnDisconnected fires, and the caller must start a new session
// explicitly; there is no automatic reconnection.
type TransportError struct {
	URL       string // The endpoint involved (if known)
	Operation string // The operation that failed (e.g. "dial", "read")
	Cause     error  // The underlying error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("voicelink: transport %s failed for %q: %v", e.Operation, e.URL, e.Cause)
	}
	return fmt.Sprintf("voicelink: transport %s failed for %q", e.Operation, e.URL)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TransportError) Unwrap() error { return e.Cause }

// CaptureError reports a device-level failure of the audio capture pipeline
// (permission revoked, device busy). It is recoverable: the session stays
// open and a later recording attempt may succeed.
type CaptureError struct {
	Operation string // "start" or "stop"
	Cause     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("voicelink: audio capture %s failed: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error { return e.Cause }

// ToolArgumentError reports that a function-call-arguments payload could not
// be parsed. The dispatcher recovers by emitting a correlated error result
// for the call, so the conversation never stalls on a malformed call.
type ToolArgumentError struct {
	CallID string
	Name   string
	Cause  error
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("voicelink: bad arguments for tool %q (call %s): %v", e.Name, e.CallID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ToolArgumentError) Unwrap() error { return e.Cause }

// ToolExecutionError reports that a tool executor returned an error. Like
// ToolArgumentError it is recovered: the failure is serialized into the
// correlated result event.
type ToolExecutionError struct {
	CallID string
	Name   string
	Cause  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("voicelink: tool %q (call %s) failed: %v", e.Name, e.CallID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// ProtocolError reports an error event received from the remote service, or
// an inbound event that could not be decoded. The session persists unless
// the transport also closes.
type ProtocolError struct {
	EventType string // The event type involved (if known)
	Message   string // The remote error message or decode failure
}

func (e *ProtocolError) Error() string {
	if e.EventType != "" {
		return fmt.Sprintf("voicelink: protocol error in %s event: %s", e.EventType, e.Message)
	}
	return fmt.Sprintf("voicelink: protocol error: %s", e.Message)
}

// SendError represents an error that occurred while writing an outbound
// event to the transport.
type SendError struct {
	EventType string // The type of event being sent
	EventID   string // The event ID (if available)
	Cause     error  // The underlying error
}

func (e *SendError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("voicelink: failed to send %s event %q: %v", e.EventType, e.EventID, e.Cause)
	}
	return fmt.Sprintf("voicelink: failed to send %s event: %v", e.EventType, e.Cause)
}

// Unwrap returns the underlying error.
func (e *SendError) Unwrap() error { return e.Cause }

// IsTimeout returns true if the error was caused by a timeout.
func (e *SendError) IsTimeout() bool {
	return errors.Is(e.Cause, ErrSendTimeout)
}

// Helper functions for creating specific errors

// NewConfigError creates a new configuration error.
func NewConfigError(field, value, message string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Message: message}
}

// NewNegotiationError creates a new negotiation error.
func NewNegotiationError(subjectID, reason string, cause error) *NegotiationError {
	return &NegotiationError{SubjectID: subjectID, Reason: reason, Cause: cause}
}

// NewTransportError creates a new transport error.
func NewTransportError(url, operation string, cause error) *TransportError {
	return &TransportError{URL: url, Operation: operation, Cause: cause}
}

// NewCaptureError creates a new capture error.
func NewCaptureError(operation string, cause error) *CaptureError {
	return &CaptureError{Operation: operation, Cause: cause}
}

// NewSendError creates a new send error.
func NewSendError(eventType, eventID string, cause error) *SendError {
	return &SendError{EventType: eventType, EventID: eventID, Cause: cause}
}
