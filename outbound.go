package voicelink

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Outbound event construction. Every helper funnels through transport.send,
// which serializes the single outbound write path.

// maxAppendChunk bounds a single input_audio_buffer.append payload.
const maxAppendChunk = 1024 * 1024

// sessionUpdate sends the configuration handshake.
func (t *transport) sessionUpdate(ctx context.Context, cfg SessionConfig) error {
	if err := ValidateSessionConfig(cfg); err != nil {
		return NewSendError("session.update", "", err)
	}
	return t.send(ctx, map[string]any{"type": "session.update", "session": cfg})
}

// appendAudio streams a PCM16 segment into the remote input buffer. Audio is
// base64-encoded before transmission. Empty data is a no-op.
func (t *transport) appendAudio(ctx context.Context, pcmLE []byte) error {
	if len(pcmLE) == 0 {
		return nil
	}
	if len(pcmLE)%2 != 0 {
		return NewSendError("input_audio_buffer.append", "", errors.New("PCM16 data must have even number of bytes"))
	}
	if len(pcmLE) > maxAppendChunk {
		return NewSendError("input_audio_buffer.append", "",
			fmt.Errorf("PCM data too large (%d bytes), maximum is %d bytes", len(pcmLE), maxAppendChunk))
	}
	return t.send(ctx, map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcmLE),
	})
}

// commitAudio marks the accumulated input audio as a complete user turn.
func (t *transport) commitAudio(ctx context.Context) error {
	return t.send(ctx, map[string]any{"type": "input_audio_buffer.commit"})
}

// createResponse asks the model to respond to the conversation as committed.
// Returns the event ID assigned to the request.
func (t *transport) createResponse(ctx context.Context) (string, error) {
	id := "evt_" + uuid.NewString()
	return id, t.send(ctx, map[string]any{
		"type":     "response.create",
		"event_id": id,
		"response": map[string]any{"modalities": []string{"text", "audio"}},
	})
}

// cancelResponse aborts the in-flight response. Sent on barge-in.
func (t *transport) cancelResponse(ctx context.Context) error {
	return t.send(ctx, map[string]any{"type": "response.cancel"})
}

// createUserMessage injects a synthetic user text turn. Used for text input
// and by the instruction relay.
func (t *transport) createUserMessage(ctx context.Context, text string) error {
	return t.send(ctx, map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// createFunctionOutput emits the correlated result of a tool call.
func (t *transport) createFunctionOutput(ctx context.Context, callID, output string) error {
	return t.send(ctx, map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}
