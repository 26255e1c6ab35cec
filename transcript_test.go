package voicelink

import "testing"

func TestTranscriptAssembler(t *testing.T) {
	a := NewTranscriptAssembler()

	a.OnDelta("resp_1", "Hello, ")
	a.OnDelta("resp_2", "Other ")
	a.OnDelta("resp_1", "world.")
	a.OnDelta("resp_2", "response.")

	if got := a.OnDone("resp_1"); got != "Hello, world." {
		t.Errorf("resp_1 transcript = %q", got)
	}
	// Retrieval removes the buffer.
	if got := a.OnDone("resp_1"); got != "" {
		t.Errorf("second OnDone = %q, want empty", got)
	}
	if got := a.OnDone("resp_2"); got != "Other response." {
		t.Errorf("resp_2 transcript = %q", got)
	}
}

func TestTranscriptAssemblerReset(t *testing.T) {
	a := NewTranscriptAssembler()
	a.OnDelta("resp_1", "partial")
	a.Reset()
	if got := a.OnDone("resp_1"); got != "" {
		t.Errorf("transcript after reset = %q, want empty", got)
	}
}

func TestTranscriptAssemblerUnknownResponse(t *testing.T) {
	a := NewTranscriptAssembler()
	if got := a.OnDone("never_seen"); got != "" {
		t.Errorf("unknown response transcript = %q, want empty", got)
	}
}
