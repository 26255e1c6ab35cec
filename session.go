package voicelink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionState tracks the session handle through its lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Callbacks receive session activity. All callbacks run on internal
// goroutines and must not block; nil callbacks are skipped.
type Callbacks struct {
	OnConnected      func()
	OnDisconnected   func(err error)
	OnTranscript     func(text string, final bool)
	OnAudioDelta     func(pcm []byte)
	OnResponseDone   func()
	OnError          func(err error)
	OnFunctionCall   func(name string, args map[string]any)
	OnFunctionResult func(name string, result string)
}

// Options configures one session.
type Options struct {
	// Voice requests a specific voice; the negotiation service may override.
	Voice string

	// ContextText is forwarded to the negotiation service to seed the
	// conversation context.
	ContextText string

	// Instructions provide system-level guidance for this session.
	Instructions string

	// Tools is the manifest of functions the model may call.
	Tools []Tool

	// TurnDetection overrides DefaultTurnDetection.
	TurnDetection *TurnDetection

	// InputTranscription configures transcription of user audio.
	InputTranscription *InputTranscription

	// Capturer records user audio. Optional; without it StartRecording
	// returns ErrNoCapturer but text turns still work.
	Capturer AudioCapturer

	// Renderer plays response audio. Optional; without it audio is buffered
	// and surfaced through OnAudioDelta only.
	Renderer AudioRenderer

	// Executor runs tool calls. Required when Tools is non-empty.
	Executor ToolExecutor

	// InstructionFeed, when set, is subscribed for the session's subject and
	// its "message" instructions are injected as synthetic user turns.
	InstructionFeed InstructionSource

	// ToolTimeout overrides DefaultToolTimeout.
	ToolTimeout time.Duration

	Callbacks Callbacks
}

// Session is an explicit handle on one live conversation. There is exactly
// one Session per conversation subject; it is created by StartSession and
// destroyed by Stop or a fatal transport error. All methods are safe for
// concurrent use.
type Session struct {
	// ID is the local handle identifier (distinct from the remote session id
	// assigned during negotiation).
	ID string

	// SubjectID is the conversation subject this session belongs to.
	SubjectID string

	// CreatedAt is when the handle was created.
	CreatedAt time.Time

	cfg  Config
	opts Options
	neg  *Negotiated

	tr          *transport
	machine     *turnMachine
	playback    *playbackPipeline
	capture     *capturePipeline
	tools       *toolDispatcher
	transcripts *TranscriptAssembler
	metrics     *Metrics

	relayCancel context.CancelFunc

	state    atomic.Int32
	stopOnce sync.Once

	// responseRequestedAt holds the unix-nano timestamp of the last response
	// request, consumed by the first subsequent audio chunk for the
	// first-audio latency measurement.
	responseRequestedAt atomic.Int64
}

// StartSession negotiates credentials, opens the transport, and performs the
// configuration handshake. It returns only after the far end has
// acknowledged the handshake; no audio or tool activity is permitted before
// that. On failure nothing is left running.
func StartSession(ctx context.Context, cfg Config, subjectID string, opts Options) (*Session, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	if subjectID == "" {
		return nil, NewConfigError("subjectID", "", "cannot be empty")
	}

	s := &Session{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		CreatedAt:   time.Now(),
		cfg:         cfg,
		opts:        opts,
		transcripts: NewTranscriptAssembler(),
		metrics:     cfg.Metrics,
	}
	s.state.Store(int32(StateConnecting))
	s.machine = newTurnMachine(s.logf)

	neg, err := cfg.Negotiator.Negotiate(ctx, NegotiationRequest{
		SubjectID:   subjectID,
		Voice:       opts.Voice,
		ContextText: opts.ContextText,
	})
	if err != nil {
		var negErr *NegotiationError
		if errors.As(err, &negErr) {
			return nil, err
		}
		return nil, NewNegotiationError(subjectID, "negotiator failed", err)
	}
	if err := validateNegotiated(subjectID, neg); err != nil {
		return nil, err
	}
	s.neg = neg

	tr, err := dialTransport(ctx, neg.Endpoint, Bearer(neg.Credential), cfg.HandshakeHeaders, cfg.DialTimeout, s.logf, func(direction, eventType string) {
		s.metrics.SessionEvents.WithLabelValues(direction, eventType).Inc()
	})
	if err != nil {
		return nil, err
	}
	s.tr = tr

	s.playback = newPlaybackPipeline(opts.Renderer, cfg.SampleRate, cfg.ScratchDir, s.logf, s.onPlaybackFinished)
	s.capture = newCapturePipeline(opts.Capturer, &countingCommitter{tr: tr, metrics: s.metrics}, s.logf)
	s.tools = newToolDispatcher(opts.Executor, tr, subjectID, opts.ToolTimeout, s.logf, s.metrics)
	s.tools.onStarted = func(name string, args map[string]any) {
		if cb := s.opts.Callbacks.OnFunctionCall; cb != nil {
			cb(name, args)
		}
	}
	s.tools.onResult = func(name, result string) {
		if cb := s.opts.Callbacks.OnFunctionResult; cb != nil {
			cb(name, result)
		}
	}
	s.tools.onError = s.surfaceError

	ackCh := make(chan struct{}, 1)
	s.registerHandlers(ackCh)

	if err := tr.sessionUpdate(ctx, s.buildSessionConfig()); err != nil {
		_ = tr.close()
		return nil, err
	}

	timer := time.NewTimer(cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case <-ackCh:
	case <-timer.C:
		_ = tr.close()
		return nil, ErrHandshakeTimeout
	case <-tr.closed():
		return nil, NewTransportError(neg.Endpoint, "handshake", ErrClosed)
	case <-ctx.Done():
		_ = tr.close()
		return nil, ctx.Err()
	}

	if opts.InstructionFeed != nil {
		relayCtx, cancel := context.WithCancel(context.Background())
		s.relayCancel = cancel
		relay := newInstructionRelay(opts.InstructionFeed, s, s.logf)
		go func() {
			if err := relay.run(relayCtx, subjectID); err != nil {
				s.logf(LogLevelWarn, "instruction_relay_failed", map[string]any{"err": err})
			}
		}()
	}

	go s.watchTransport()

	s.state.Store(int32(StateOpen))
	s.metrics.ActiveSessions.Inc()
	s.logf(LogLevelInfo, "session_open", map[string]any{
		"session": s.ID, "remote_session": neg.SessionID, "subject": subjectID, "model": neg.Model,
	})
	if cb := s.opts.Callbacks.OnConnected; cb != nil {
		cb()
	}
	return s, nil
}

// buildSessionConfig assembles the configuration handshake: fixed PCM16
// audio in both directions, both modalities enabled, turn detection, and the
// tool manifest.
func (s *Session) buildSessionConfig() SessionConfig {
	cfg := SessionConfig{
		Modalities:         []string{"text", "audio"},
		InputAudioFormat:   Ptr("pcm16"),
		OutputAudioFormat:  Ptr("pcm16"),
		TurnDetection:      s.opts.TurnDetection,
		InputTranscription: s.opts.InputTranscription,
	}
	if cfg.TurnDetection == nil {
		cfg.TurnDetection = DefaultTurnDetection()
	}
	if v := s.voice(); v != "" {
		cfg.Voice = Ptr(v)
	}
	if s.opts.Instructions != "" {
		cfg.Instructions = Ptr(s.opts.Instructions)
	}
	for _, t := range s.opts.Tools {
		cfg.Tools = append(cfg.Tools, t.manifestEntry())
	}
	return cfg
}

func (s *Session) voice() string {
	if s.neg != nil && s.neg.Voice != "" {
		return s.neg.Voice
	}
	return s.opts.Voice
}

// registerHandlers wires each component to the event kinds it owns. All
// handlers run on the transport read loop, strictly in receipt order; the
// side effects they trigger (tool execution, playback) proceed concurrently.
func (s *Session) registerHandlers(ackCh chan struct{}) {
	cb := &s.opts.Callbacks

	s.tr.on(EventTypeSessionCreated, func(ev Event) {
		e := ev.(*SessionCreated)
		s.logf(LogLevelDebug, "remote_session_created", map[string]any{"remote_session": e.Session.ID, "model": e.Session.Model})
	})

	s.tr.on(EventTypeSessionUpdated, func(ev Event) {
		select {
		case ackCh <- struct{}{}:
		default:
		}
	})

	s.tr.on(EventTypeInputTranscriptionDone, func(ev Event) {
		e := ev.(*InputTranscriptionCompleted)
		if cb.OnTranscript != nil {
			cb.OnTranscript(e.Transcript, true)
		}
	})

	s.tr.on(EventTypeResponseTranscript, func(ev Event) {
		e := ev.(*ResponseAudioTranscriptDelta)
		s.transcripts.OnDelta(e.ResponseID, e.Delta)
		if cb.OnTranscript != nil {
			cb.OnTranscript(e.Delta, false)
		}
	})

	s.tr.on(EventTypeResponseAudioDelta, func(ev Event) {
		e := ev.(*ResponseAudioDelta)
		pcm, accepted := s.playback.handleDelta(e)
		if !accepted {
			return
		}
		s.machine.apply(triggerAudioStarted)
		s.observeFirstAudio()
		s.metrics.AudioBytes.WithLabelValues("in").Add(float64(len(pcm)))
		if cb.OnAudioDelta != nil {
			cb.OnAudioDelta(pcm)
		}
	})

	s.tr.on(EventTypeResponseAudioDone, func(ev Event) {
		s.playback.handleAudioDone(ev.(*ResponseAudioDone))
	})

	s.tr.on(EventTypeResponseDone, func(ev Event) {
		e := ev.(*ResponseDone)
		if text := s.transcripts.OnDone(e.Response.ID); text != "" && cb.OnTranscript != nil {
			cb.OnTranscript(text, true)
		}
		// No audio arrived for this response: Thinking drops back to Idle.
		s.machine.apply(triggerResponseEmpty)
		if cb.OnResponseDone != nil {
			cb.OnResponseDone()
		}
	})

	s.tr.on(EventTypeSpeechStarted, func(ev Event) {
		if s.machine.State() != TurnSpeaking {
			s.logf(LogLevelDebug, "speech_started", nil)
			return
		}
		// Barge-in: stop playback and cancel the in-flight response before
		// the new capture proceeds.
		s.machine.apply(triggerBargeIn)
		s.playback.interrupt()
		s.transcripts.Reset()
		if err := s.tr.cancelResponse(context.Background()); err != nil {
			s.logf(LogLevelWarn, "cancel_send_failed", map[string]any{"err": err})
		}
		s.metrics.Interruptions.Inc()
		s.logf(LogLevelInfo, "barge_in", map[string]any{"generation": s.playback.currentGeneration()})
	})

	s.tr.on(EventTypeSpeechStopped, func(ev Event) {
		s.logf(LogLevelDebug, "speech_stopped", nil)
	})

	s.tr.on(EventTypeFunctionCallDone, func(ev Event) {
		s.tools.handle(ev.(*FunctionCallArgumentsDone))
	})

	s.tr.on(EventTypeError, func(ev Event) {
		e := ev.(*ErrorEvent)
		s.surfaceError(&ProtocolError{EventType: e.Error.Type, Message: e.Error.Message})
	})
}

// StartRecording begins a new capture segment and moves the turn to
// Listening. No-op if already recording. Device failures are recoverable;
// the session stays open.
func (s *Session) StartRecording() error {
	if s.State() != StateOpen {
		return ErrClosed
	}
	started, err := s.capture.start()
	if err != nil {
		s.surfaceError(err)
		return err
	}
	if started {
		s.machine.apply(triggerCaptureStarted)
	}
	return nil
}

// StopRecording ends the segment, commits it through the serialized write
// path, and requests a response. No-op if not recording.
func (s *Session) StopRecording(ctx context.Context) error {
	if s.State() != StateOpen {
		return ErrClosed
	}
	stopped, err := s.capture.stop(ctx)
	if err != nil {
		s.surfaceError(err)
		return err
	}
	if stopped {
		s.machine.apply(triggerCaptureCommitted)
		s.markResponseRequested()
	}
	return nil
}

// SendText injects a synthetic user text turn and requests a response. This
// is the same commit path captured audio uses, text variant; the instruction
// relay funnels through it.
func (s *Session) SendText(ctx context.Context, text string) error {
	if s.State() != StateOpen {
		return ErrClosed
	}
	if err := s.tr.createUserMessage(ctx, text); err != nil {
		return err
	}
	if _, err := s.tr.createResponse(ctx); err != nil {
		return err
	}
	s.machine.apply(triggerCaptureCommitted)
	s.markResponseRequested()
	return nil
}

// Stop tears the session down: discard any open capture segment, stop and
// flush playback, unsubscribe the instruction relay, close the transport,
// release the handle. Idempotent; repeat calls produce no further side
// effects.
func (s *Session) Stop() error {
	s.teardown(nil)
	return nil
}

// State returns the lifecycle state of the handle.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// TurnState returns the authoritative conversation turn value.
func (s *Session) TurnState() TurnState {
	return s.machine.State()
}

// Remote returns the negotiated remote session descriptor.
func (s *Session) Remote() Negotiated {
	return *s.neg
}

func (s *Session) teardown(cause error) {
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		s.capture.discard()
		s.playback.interrupt()
		if s.relayCancel != nil {
			s.relayCancel()
		}
		s.tools.close()
		_ = s.tr.close()
		s.state.Store(int32(StateClosed))
		s.metrics.ActiveSessions.Dec()
		s.logf(LogLevelInfo, "session_closed", map[string]any{"session": s.ID, "subject": s.SubjectID})
		if cause != nil {
			if cb := s.opts.Callbacks.OnDisconnected; cb != nil {
				cb(cause)
			}
		}
	})
}

// watchTransport surfaces a dropped transport as a disconnect. There is no
// automatic reconnection: the caller must start a new session explicitly.
func (s *Session) watchTransport() {
	<-s.tr.closed()
	s.teardown(NewTransportError(s.neg.Endpoint, "read", ErrClosed))
}

// onPlaybackFinished returns the turn to Idle once a response has fully
// played. Interrupted renders changed state at barge-in time already.
func (s *Session) onPlaybackFinished(interrupted bool) {
	if !interrupted {
		s.machine.apply(triggerPlaybackDone)
	}
}

func (s *Session) markResponseRequested() {
	s.responseRequestedAt.Store(time.Now().UnixNano())
}

func (s *Session) observeFirstAudio() {
	if at := s.responseRequestedAt.Swap(0); at != 0 {
		s.metrics.ObserveFirstAudioLatency(time.Since(time.Unix(0, at)))
	}
}

func (s *Session) surfaceError(err error) {
	s.logf(LogLevelError, "session_error", map[string]any{"err": err})
	if cb := s.opts.Callbacks.OnError; cb != nil {
		cb(err)
	}
}

// countingCommitter wraps the transport's commit path to account outbound
// audio volume.
type countingCommitter struct {
	tr      *transport
	metrics *Metrics
}

func (c *countingCommitter) appendAudio(ctx context.Context, pcm []byte) error {
	if err := c.tr.appendAudio(ctx, pcm); err != nil {
		return err
	}
	c.metrics.AudioBytes.WithLabelValues("out").Add(float64(len(pcm)))
	return nil
}

func (c *countingCommitter) commitAudio(ctx context.Context) error {
	return c.tr.commitAudio(ctx)
}

func (c *countingCommitter) createResponse(ctx context.Context) (string, error) {
	return c.tr.createResponse(ctx)
}

// logf routes through the structured logger when configured, else the plain
// logger function.
func (s *Session) logf(level LogLevel, event string, fields map[string]any) {
	if s.cfg.StructuredLogger != nil {
		switch level {
		case LogLevelDebug:
			s.cfg.StructuredLogger.Debug(event, fields)
		case LogLevelInfo:
			s.cfg.StructuredLogger.Info(event, fields)
		case LogLevelWarn:
			s.cfg.StructuredLogger.Warn(event, fields)
		default:
			s.cfg.StructuredLogger.Error(event, fields)
		}
	} else if s.cfg.Logger != nil {
		s.cfg.Logger(event, fields)
	}
}
