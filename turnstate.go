package voicelink

import "sync"

// TurnState is the single authoritative conversation turn value. It is
// mutated only by the turn machine and read by all collaborators.
type TurnState int

const (
	// TurnIdle: nobody is speaking and no response is pending.
	TurnIdle TurnState = iota
	// TurnListening: a capture segment is open.
	TurnListening
	// TurnThinking: input committed, awaiting the model's response.
	TurnThinking
	// TurnSpeaking: response audio is arriving or playing.
	TurnSpeaking
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnListening:
		return "listening"
	case TurnThinking:
		return "thinking"
	case TurnSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// turnTrigger names the events that can move the turn machine.
type turnTrigger int

const (
	triggerCaptureStarted   turnTrigger = iota // local capture began
	triggerCaptureCommitted                    // segment committed, response requested
	triggerAudioStarted                        // first audio chunk of a response
	triggerResponseEmpty                       // response completed with no audio
	triggerPlaybackDone                        // response complete and playback finished
	triggerBargeIn                             // user spoke while assistant speaking
)

func (t turnTrigger) String() string {
	switch t {
	case triggerCaptureStarted:
		return "capture_started"
	case triggerCaptureCommitted:
		return "capture_committed"
	case triggerAudioStarted:
		return "audio_started"
	case triggerResponseEmpty:
		return "response_empty"
	case triggerPlaybackDone:
		return "playback_done"
	case triggerBargeIn:
		return "barge_in"
	default:
		return "unknown"
	}
}

// turnTransitions is the declared transition set. Any (state, trigger) pair
// not present is logged and ignored; the machine never raises.
var turnTransitions = map[TurnState]map[turnTrigger]TurnState{
	TurnIdle: {
		triggerCaptureStarted: TurnListening,
		// Text input commits straight from Idle; there is no capture segment.
		triggerCaptureCommitted: TurnThinking,
	},
	TurnListening: {
		triggerCaptureCommitted: TurnThinking,
	},
	TurnThinking: {
		triggerAudioStarted:  TurnSpeaking,
		triggerResponseEmpty: TurnIdle,
	},
	TurnSpeaking: {
		triggerPlaybackDone: TurnIdle,
		triggerBargeIn:      TurnListening,
	},
}

// turnMachine serializes all turn state mutations behind one mutex.
type turnMachine struct {
	mu    sync.Mutex
	state TurnState
	logFn func(level LogLevel, event string, fields map[string]any)
}

func newTurnMachine(logFn func(LogLevel, string, map[string]any)) *turnMachine {
	return &turnMachine{state: TurnIdle, logFn: logFn}
}

// State returns the current turn state.
func (m *turnMachine) State() TurnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// apply attempts a transition. Returns true if the trigger matched a
// declared transition from the current state.
func (m *turnMachine) apply(t turnTrigger) bool {
	m.mu.Lock()
	from := m.state
	to, ok := turnTransitions[from][t]
	if ok {
		m.state = to
	}
	m.mu.Unlock()

	if !ok {
		if m.logFn != nil {
			m.logFn(LogLevelDebug, "turn_event_ignored", map[string]any{"state": from.String(), "trigger": t.String()})
		}
		return false
	}
	if m.logFn != nil {
		m.logFn(LogLevelDebug, "turn_transition", map[string]any{"from": from.String(), "to": to.String(), "trigger": t.String()})
	}
	return true
}
