package voicelink

// TranscriptAssembler collects streaming transcript deltas keyed by response
// and reassembles them into the complete utterance. Deltas are surfaced live
// through OnTranscript with final=false; the assembled text is surfaced once
// with final=true when the response completes.
type TranscriptAssembler struct{ data map[string][]byte }

// NewTranscriptAssembler creates a new TranscriptAssembler instance.
func NewTranscriptAssembler() *TranscriptAssembler {
	return &TranscriptAssembler{data: make(map[string][]byte)}
}

// OnDelta appends an incremental transcript fragment for a response.
func (a *TranscriptAssembler) OnDelta(responseID, delta string) {
	a.data[responseID] = append(a.data[responseID], []byte(delta)...)
}

// OnDone retrieves and removes the assembled transcript for a response.
func (a *TranscriptAssembler) OnDone(responseID string) string {
	buf := a.data[responseID]
	delete(a.data, responseID)
	return string(buf)
}

// Reset drops all partial transcripts, e.g. after barge-in cancels the
// response they belong to.
func (a *TranscriptAssembler) Reset() {
	a.data = make(map[string][]byte)
}
