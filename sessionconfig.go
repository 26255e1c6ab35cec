package voicelink

import (
	"errors"
	"fmt"
)

// SessionConfig is the configuration handshake payload sent as the first
// outbound event after the transport opens. The far end acknowledges it with
// session.updated; only then is the session considered connected.
type SessionConfig struct {
	// Modalities lists the output types the session produces. Both "text"
	// and "audio" are enabled for voice conversations.
	Modalities []string `json:"modalities,omitempty"`

	// Voice selects the voice for audio responses.
	Voice *string `json:"voice,omitempty"`

	// Instructions provide system-level guidance to the assistant.
	Instructions *string `json:"instructions,omitempty"`

	// InputAudioFormat is the wire format for captured audio. Only "pcm16"
	// is supported; transcoding is out of scope.
	InputAudioFormat *string `json:"input_audio_format,omitempty"`

	// OutputAudioFormat is the wire format for response audio.
	OutputAudioFormat *string `json:"output_audio_format,omitempty"`

	// InputTranscription configures automatic transcription of user audio.
	InputTranscription *InputTranscription `json:"input_audio_transcription,omitempty"`

	// TurnDetection configures server-side voice activity detection.
	TurnDetection *TurnDetection `json:"turn_detection,omitempty"`

	// Tools is the manifest of functions the model may call.
	Tools []map[string]any `json:"tools,omitempty"`
}

// InputTranscription configures automatic speech recognition for user input.
type InputTranscription struct {
	Model    string  `json:"model,omitempty"`    // Transcription model to use
	Language string  `json:"language,omitempty"` // Expected language code (e.g., "en")
	Prompt   *string `json:"prompt,omitempty"`   // Context to improve transcription accuracy
}

// TurnDetection configures voice activity detection and response timing.
type TurnDetection struct {
	Type              string  `json:"type"`                          // "server_vad" for server-side voice activity detection
	Threshold         float64 `json:"threshold,omitempty"`           // Detection sensitivity (0.0-1.0)
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`   // Audio included before speech starts (ms)
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"` // Silence duration to trigger end of turn (ms)
	CreateResponse    bool    `json:"create_response,omitempty"`     // Whether to automatically create a response
}

// DefaultTurnDetection returns the VAD tuning used when Options leaves
// TurnDetection nil.
func DefaultTurnDetection() *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.5,
		PrefixPaddingMS:   300,
		SilenceDurationMS: 500,
	}
}

// ValidateSessionConfig performs validation on the handshake payload.
func ValidateSessionConfig(s SessionConfig) error {
	for _, m := range s.Modalities {
		if m != "text" && m != "audio" {
			return fmt.Errorf("invalid modality %q, must be 'text' or 'audio'", m)
		}
	}

	if s.InputAudioFormat != nil && *s.InputAudioFormat != "pcm16" {
		return fmt.Errorf("invalid input audio format %q, only 'pcm16' is supported", *s.InputAudioFormat)
	}
	if s.OutputAudioFormat != nil && *s.OutputAudioFormat != "pcm16" {
		return fmt.Errorf("invalid output audio format %q, only 'pcm16' is supported", *s.OutputAudioFormat)
	}

	if s.TurnDetection != nil {
		td := s.TurnDetection
		if td.Type == "" {
			return errors.New("turn detection type cannot be empty")
		}
		if td.Type != "server_vad" {
			return fmt.Errorf("invalid turn detection type %q, must be 'server_vad'", td.Type)
		}
		if td.Threshold < 0.0 || td.Threshold > 1.0 {
			return fmt.Errorf("turn detection threshold must be between 0.0 and 1.0, got %f", td.Threshold)
		}
		if td.PrefixPaddingMS < 0 {
			return fmt.Errorf("prefix padding must be non-negative, got %d", td.PrefixPaddingMS)
		}
		if td.SilenceDurationMS < 0 {
			return fmt.Errorf("silence duration must be non-negative, got %d", td.SilenceDurationMS)
		}
	}

	if s.Instructions != nil && len(*s.Instructions) > 10000 {
		return fmt.Errorf("instructions too long (%d characters), maximum is 10000", len(*s.Instructions))
	}

	return nil
}
