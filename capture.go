package voicelink

import (
	"context"
	"sync"
)

// AudioCapturer is the minimal recording device contract. Start opens a new
// capture segment; Stop closes it and returns the complete PCM16 segment.
// The core never depends on a concrete audio backend.
type AudioCapturer interface {
	Start() error
	Stop() ([]byte, error)
}

// audioCommitter is the slice of the outbound write path the capture
// pipeline needs: append the segment, commit it, request a response.
type audioCommitter interface {
	appendAudio(ctx context.Context, pcm []byte) error
	commitAudio(ctx context.Context) error
	createResponse(ctx context.Context) (string, error)
}

// capturePipeline records one bounded audio segment at a time and ships it
// through the serialized write path. Device-level failures surface as
// CaptureError without terminating the session.
type capturePipeline struct {
	capturer AudioCapturer
	out      audioCommitter
	logFn    func(level LogLevel, event string, fields map[string]any)

	mu        sync.Mutex
	recording bool
}

func newCapturePipeline(capturer AudioCapturer, out audioCommitter, logFn func(LogLevel, string, map[string]any)) *capturePipeline {
	return &capturePipeline{capturer: capturer, out: out, logFn: logFn}
}

// start begins a new capture segment. No-op if already recording. Returns
// (started, err) so callers can distinguish the no-op from a fresh segment.
func (c *capturePipeline) start() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		return false, nil
	}
	if c.capturer == nil {
		return false, NewCaptureError("start", ErrNoCapturer)
	}
	if err := c.capturer.Start(); err != nil {
		return false, NewCaptureError("start", err)
	}
	c.recording = true
	return true, nil
}

// stop ends the segment, encodes it, and emits append + commit followed by a
// response request. The capture buffer is released regardless of send
// success: once Stop returns the device holds nothing, and the pipeline
// never retains the segment past this call.
func (c *capturePipeline) stop(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return false, nil
	}
	c.recording = false
	c.mu.Unlock()

	pcm, err := c.capturer.Stop()
	if err != nil {
		return true, NewCaptureError("stop", err)
	}
	if len(pcm) == 0 {
		c.log(LogLevelDebug, "empty_capture_segment", nil)
		return true, nil
	}

	if err := c.out.appendAudio(ctx, pcm); err != nil {
		return true, err
	}
	if err := c.out.commitAudio(ctx); err != nil {
		return true, err
	}
	if _, err := c.out.createResponse(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// discard ends the segment without sending anything, dropping the buffer.
// Used during session teardown.
func (c *capturePipeline) discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return
	}
	c.recording = false
	if _, err := c.capturer.Stop(); err != nil {
		c.log(LogLevelDebug, "capture_discard_failed", map[string]any{"err": err})
	}
}

// isRecording reports whether a capture segment is open.
func (c *capturePipeline) isRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *capturePipeline) log(level LogLevel, event string, fields map[string]any) {
	if c.logFn != nil {
		c.logFn(level, event, fields)
	}
}
