package voicelink

import (
	"context"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"sync"
)

// AudioRenderer is the minimal playback device contract. Play blocks until
// the audio has been rendered or ctx is cancelled; Stop aborts the current
// render immediately. The core never depends on a concrete audio backend.
type AudioRenderer interface {
	Play(ctx context.Context, wav []byte) error
	Stop()
}

// playbackPipeline accumulates inbound response audio between the first
// delta and the audio-done signal, then wraps the concatenated PCM in a WAV
// container, persists it transiently, and plays it (batch-then-play).
//
// A generation counter is incremented on every interrupt. The first delta of
// each response binds that response to the generation current at receipt;
// deltas and done-signals bound to a superseded generation are dropped, so a
// cancelled response's stray late chunks never reach the renderer.
type playbackPipeline struct {
	renderer   AudioRenderer
	sampleRate int
	scratchDir string
	logFn      func(level LogLevel, event string, fields map[string]any)

	// onFinished reports playback completion. interrupted is true when the
	// render was cut short by a barge-in.
	onFinished func(interrupted bool)

	mu            sync.Mutex
	generation    uint64
	genByResponse map[string]uint64
	buf           []byte
	playing       bool
	cancelPlay    context.CancelFunc
}

func newPlaybackPipeline(renderer AudioRenderer, sampleRate int, scratchDir string, logFn func(LogLevel, string, map[string]any), onFinished func(bool)) *playbackPipeline {
	return &playbackPipeline{
		renderer:      renderer,
		sampleRate:    sampleRate,
		scratchDir:    scratchDir,
		logFn:         logFn,
		onFinished:    onFinished,
		genByResponse: make(map[string]uint64),
	}
}

// handleDelta decodes and buffers one audio chunk. The returned pcm is the
// decoded payload; accepted is false when the chunk belongs to a generation
// superseded by an interrupt, in which case it has been discarded.
func (p *playbackPipeline) handleDelta(e *ResponseAudioDelta) (pcm []byte, accepted bool) {
	b, err := base64.StdEncoding.DecodeString(e.DeltaBase64)
	if err != nil {
		p.log(LogLevelError, "bad_audio_delta", map[string]any{"response_id": e.ResponseID, "err": err})
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	gen, bound := p.genByResponse[e.ResponseID]
	if !bound {
		gen = p.generation
		p.genByResponse[e.ResponseID] = gen
	}
	if gen != p.generation {
		p.log(LogLevelDebug, "stale_audio_delta_dropped", map[string]any{"response_id": e.ResponseID, "generation": gen})
		return nil, false
	}

	p.buf = append(p.buf, b...)
	return b, true
}

// handleAudioDone finalizes the buffered response and starts playback.
// Returns false when the signal belongs to a superseded generation or no
// audio was buffered.
func (p *playbackPipeline) handleAudioDone(e *ResponseAudioDone) bool {
	p.mu.Lock()
	gen, bound := p.genByResponse[e.ResponseID]
	delete(p.genByResponse, e.ResponseID)
	if bound && gen != p.generation {
		p.mu.Unlock()
		p.log(LogLevelDebug, "stale_audio_done_dropped", map[string]any{"response_id": e.ResponseID})
		return false
	}

	pcm := p.buf
	p.buf = nil
	if len(pcm) == 0 {
		p.mu.Unlock()
		return false
	}

	playCtx, cancel := context.WithCancel(context.Background())
	p.playing = true
	p.cancelPlay = cancel
	startGen := p.generation
	p.mu.Unlock()

	go p.play(playCtx, pcm, startGen)
	return true
}

// play renders one complete response: synthesize the container, persist the
// transient artifact, hand the bytes to the render device, then delete the
// artifact exactly once.
func (p *playbackPipeline) play(ctx context.Context, pcm []byte, gen uint64) {
	wav := WAVFromPCM16Mono(pcm, p.sampleRate)

	path, err := p.persistArtifact(wav)
	if err != nil {
		p.log(LogLevelWarn, "artifact_write_failed", map[string]any{"err": err})
	}

	if p.renderer != nil {
		if err := p.renderer.Play(ctx, wav); err != nil && !errors.Is(err, context.Canceled) {
			p.log(LogLevelError, "playback_failed", map[string]any{"err": err})
		}
	}

	if path != "" {
		removeArtifact(path)
	}

	p.mu.Lock()
	p.playing = false
	p.cancelPlay = nil
	interrupted := gen != p.generation
	p.mu.Unlock()

	if p.onFinished != nil {
		p.onFinished(interrupted)
	}
}

// interrupt invalidates the current generation, clears unplayed frames, and
// stops any active render. Safe to call when nothing is playing; reports
// whether there was anything to interrupt.
func (p *playbackPipeline) interrupt() bool {
	p.mu.Lock()
	p.generation++
	hadBuffered := len(p.buf) > 0
	p.buf = nil
	wasPlaying := p.playing
	cancel := p.cancelPlay
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wasPlaying && p.renderer != nil {
		p.renderer.Stop()
	}
	return wasPlaying || hadBuffered
}

// currentGeneration returns the generation stamped on new responses.
func (p *playbackPipeline) currentGeneration() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func (p *playbackPipeline) persistArtifact(wav []byte) (string, error) {
	f, err := os.CreateTemp(p.scratchDir, "voicelink-*.wav")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(wav); err != nil {
		f.Close()
		removeArtifact(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		removeArtifact(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// removeArtifact deletes the transient playback file. Deleting an already
// deleted artifact is a no-op.
func removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// Nothing actionable; the file will be collected with the temp dir.
		_ = err
	}
}

func (p *playbackPipeline) log(level LogLevel, event string, fields map[string]any) {
	if p.logFn != nil {
		p.logFn(level, event, fields)
	}
}
