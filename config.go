package voicelink

import (
	"net/http"
	"time"
)

// Credential represents an authentication method applied to outgoing HTTP
// requests and WebSocket handshakes.
type Credential interface{ apply(h http.Header) }

// APIKey authenticates with an "api-key" header. Used against negotiation
// services that accept static keys.
type APIKey string

// apply adds the API key to the request headers using the "api-key" header.
func (k APIKey) apply(h http.Header) {
	if k != "" {
		h.Set("api-key", string(k))
	}
}

// Bearer authenticates with an OAuth2-style Authorization header. The
// ephemeral credential returned by negotiation is applied this way when
// dialing the realtime transport.
type Bearer string

// apply adds the Bearer token to the Authorization header.
func (b Bearer) apply(h http.Header) {
	if b != "" {
		h.Set("Authorization", "Bearer "+string(b))
	}
}

// Default tuning values applied by ValidateConfig.
const (
	// DefaultHandshakeTimeout bounds the wait for the far end to acknowledge
	// the configuration handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultToolTimeout is the ceiling after which an unresolved tool call
	// receives a synthetic timeout result.
	DefaultToolTimeout = 30 * time.Second
)

// Config holds process-wide settings shared by all sessions started from it.
// Per-session settings (voice, tools, callbacks) live in Options.
type Config struct {
	// Negotiator obtains the ephemeral credential and endpoint for each new
	// session. Required.
	Negotiator Negotiator

	// DialTimeout sets the maximum time to wait for WebSocket connection
	// establishment. If zero, no timeout is applied.
	DialTimeout time.Duration

	// HandshakeTimeout bounds the wait for the configuration handshake
	// acknowledgment. Defaults to DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// HandshakeHeaders allows adding custom headers to the WebSocket
	// handshake request (proxy auth, tracing headers).
	HandshakeHeaders http.Header

	// SampleRate is the PCM16 sample rate the remote protocol expects.
	// Defaults to DefaultSampleRate.
	SampleRate int

	// ScratchDir is where transient playback artifacts are written.
	// Defaults to the OS temp directory.
	ScratchDir string

	// Metrics receives session instrumentation. If nil, instruments are
	// created on a private registry and effectively discarded.
	Metrics *Metrics

	// Logger is called for significant events. The fields parameter contains
	// structured data relevant to each event.
	Logger func(event string, fields map[string]any)

	// StructuredLogger provides leveled structured logging. If both Logger
	// and StructuredLogger are provided, StructuredLogger takes precedence.
	StructuredLogger *Logger
}

// ValidateConfig checks required fields and applies defaults in place.
func ValidateConfig(cfg *Config) error {
	if cfg.Negotiator == nil {
		return NewConfigError("Negotiator", "", "cannot be nil")
	}
	if cfg.DialTimeout < 0 {
		return NewConfigError("DialTimeout", cfg.DialTimeout.String(), "cannot be negative")
	}
	if cfg.HandshakeTimeout < 0 {
		return NewConfigError("HandshakeTimeout", cfg.HandshakeTimeout.String(), "cannot be negative")
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.SampleRate < 0 {
		return NewConfigError("SampleRate", "", "cannot be negative")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	return nil
}
