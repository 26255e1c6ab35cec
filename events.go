package voicelink

// envelope is used for initial JSON parsing to determine the event type
// before unmarshaling into the specific event struct.
type envelope struct {
	Type string `json:"type"`
}

// Event is the tagged-union interface implemented by every inbound event.
// Components subscribe to the event kinds they own through the transport's
// dispatch table; events they did not subscribe to never reach them.
type Event interface {
	// EventType returns the wire name of the event (e.g. "response.audio.delta").
	EventType() string
}

// Inbound event wire names.
const (
	EventTypeError                  = "error"
	EventTypeSessionCreated         = "session.created"
	EventTypeSessionUpdated         = "session.updated"
	EventTypeInputTranscriptionDone = "input_audio_transcription.completed"
	EventTypeResponseAudioDelta     = "response.audio.delta"
	EventTypeResponseTranscript     = "response.audio_transcript.delta"
	EventTypeResponseAudioDone      = "response.audio.done"
	EventTypeResponseDone           = "response.done"
	EventTypeSpeechStarted          = "input_audio_buffer.speech_started"
	EventTypeSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventTypeFunctionCallDone       = "response.function_call_arguments.done"
)

// ErrorEvent represents an error reported by the remote service. This
// includes both service-level errors (authentication, rate limits) and
// conversation-level errors (invalid requests).
type ErrorEvent struct {
	Type  string `json:"type"` // Always "error"
	Error struct {
		Type    string `json:"type,omitempty"`    // Error category
		Code    string `json:"code,omitempty"`    // Error code, if any
		Message string `json:"message,omitempty"` // Human-readable description
	} `json:"error"`
}

func (e *ErrorEvent) EventType() string { return EventTypeError }

// SessionCreated is sent by the server when a new session is established.
type SessionCreated struct {
	Type    string `json:"type"`     // Always "session.created"
	EventID string `json:"event_id"` // Unique identifier for this event
	Session struct {
		ID         string   `json:"id"`                   // Unique session identifier
		Model      string   `json:"model"`                // Model name
		Modalities []string `json:"modalities,omitempty"` // Supported modalities
		Voice      string   `json:"voice,omitempty"`      // Voice used for audio responses
		ExpiresAt  int64    `json:"expires_at,omitempty"` // Session expiration timestamp (Unix)
	} `json:"session"`
}

func (e *SessionCreated) EventType() string { return EventTypeSessionCreated }

// SessionUpdated acknowledges a session.update sent by this client. Receipt
// of this event completes the configuration handshake.
type SessionUpdated struct {
	Type    string `json:"type"`               // Always "session.updated"
	EventID string `json:"event_id,omitempty"` // Event identifier (may be empty)
	Session any    `json:"session"`            // Updated session configuration (dynamic structure)
}

func (e *SessionUpdated) EventType() string { return EventTypeSessionUpdated }

// InputTranscriptionCompleted carries the final transcript of a committed
// user audio segment.
type InputTranscriptionCompleted struct {
	Type       string `json:"type"`    // Always "input_audio_transcription.completed"
	EventID    string `json:"event_id"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

func (e *InputTranscriptionCompleted) EventType() string { return EventTypeInputTranscriptionDone }

// ResponseAudioDelta contains incremental audio from the assistant,
// base64-encoded PCM16 at the session sample rate.
type ResponseAudioDelta struct {
	Type        string `json:"type"` // Always "response.audio.delta"
	ResponseID  string `json:"response_id"`
	ItemID      string `json:"item_id"`
	DeltaBase64 string `json:"delta"` // Base64-encoded PCM16 audio data
}

func (e *ResponseAudioDelta) EventType() string { return EventTypeResponseAudioDelta }

// ResponseAudioTranscriptDelta contains the incremental transcript of the
// assistant's audio response.
type ResponseAudioTranscriptDelta struct {
	Type       string `json:"type"` // Always "response.audio_transcript.delta"
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

func (e *ResponseAudioTranscriptDelta) EventType() string { return EventTypeResponseTranscript }

// ResponseAudioDone signals that all audio for a response has been sent.
// Playback of the buffered chunks begins on receipt.
type ResponseAudioDone struct {
	Type       string `json:"type"` // Always "response.audio.done"
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
}

func (e *ResponseAudioDone) EventType() string { return EventTypeResponseAudioDone }

// ResponseDone signals that a response is complete, audio or not.
type ResponseDone struct {
	Type     string `json:"type"` // Always "response.done"
	EventID  string `json:"event_id"`
	Response struct {
		ID     string `json:"id"`
		Status string `json:"status,omitempty"`
	} `json:"response"`
}

func (e *ResponseDone) EventType() string { return EventTypeResponseDone }

// SpeechStarted indicates server-side voice activity detection noticed the
// user start speaking. Arriving while the assistant is speaking it triggers
// barge-in handling.
type SpeechStarted struct {
	Type         string `json:"type"` // Always "input_audio_buffer.speech_started"
	EventID      string `json:"event_id"`
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

func (e *SpeechStarted) EventType() string { return EventTypeSpeechStarted }

// SpeechStopped indicates the server detected the end of user speech.
type SpeechStopped struct {
	Type       string `json:"type"` // Always "input_audio_buffer.speech_stopped"
	EventID    string `json:"event_id"`
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

func (e *SpeechStopped) EventType() string { return EventTypeSpeechStopped }

// FunctionCallArgumentsDone carries a complete tool invocation request. The
// CallID is protocol-assigned and unique for the session's lifetime; the
// dispatcher correlates the eventual result to it.
type FunctionCallArgumentsDone struct {
	Type       string `json:"type"` // Always "response.function_call_arguments.done"
	EventID    string `json:"event_id"`
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"` // The final function arguments (JSON)
}

func (e *FunctionCallArgumentsDone) EventType() string { return EventTypeFunctionCallDone }

// eventFactories maps wire names to constructors for the dispatch table.
// Unknown inbound types are logged and skipped, never an error.
var eventFactories = map[string]func() Event{
	EventTypeError:                  func() Event { return &ErrorEvent{} },
	EventTypeSessionCreated:         func() Event { return &SessionCreated{} },
	EventTypeSessionUpdated:         func() Event { return &SessionUpdated{} },
	EventTypeInputTranscriptionDone: func() Event { return &InputTranscriptionCompleted{} },
	EventTypeResponseAudioDelta:     func() Event { return &ResponseAudioDelta{} },
	EventTypeResponseTranscript:     func() Event { return &ResponseAudioTranscriptDelta{} },
	EventTypeResponseAudioDone:      func() Event { return &ResponseAudioDone{} },
	EventTypeResponseDone:           func() Event { return &ResponseDone{} },
	EventTypeSpeechStarted:          func() Event { return &SpeechStarted{} },
	EventTypeSpeechStopped:          func() Event { return &SpeechStopped{} },
	EventTypeFunctionCallDone:       func() Event { return &FunctionCallArgumentsDone{} },
}
