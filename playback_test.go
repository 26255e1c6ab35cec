package voicelink

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func deltaEvent(responseID string, pcm []byte) *ResponseAudioDelta {
	return &ResponseAudioDelta{
		ResponseID:  responseID,
		DeltaBase64: base64.StdEncoding.EncodeToString(pcm),
	}
}

func TestPlaybackConcatenatesChunksInOrder(t *testing.T) {
	scratch := t.TempDir()
	renderer := &fakeRenderer{}
	finished := make(chan bool, 1)
	p := newPlaybackPipeline(renderer, DefaultSampleRate, scratch, nil, func(interrupted bool) {
		finished <- interrupted
	})

	chunks := [][]byte{{1, 2}, {3, 4}, {5, 6}}
	for _, c := range chunks {
		pcm, accepted := p.handleDelta(deltaEvent("resp_1", c))
		if !accepted {
			t.Fatal("delta rejected")
		}
		if !bytes.Equal(pcm, c) {
			t.Errorf("decoded pcm = %v, want %v", pcm, c)
		}
	}
	if !p.handleAudioDone(&ResponseAudioDone{ResponseID: "resp_1"}) {
		t.Fatal("audio done rejected")
	}

	select {
	case interrupted := <-finished:
		if interrupted {
			t.Error("uninterrupted playback reported as interrupted")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("playback never finished")
	}

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	if len(renderer.played) != 1 {
		t.Fatalf("renderer played %d times, want 1", len(renderer.played))
	}
	want := WAVFromPCM16Mono([]byte{1, 2, 3, 4, 5, 6}, DefaultSampleRate)
	if !bytes.Equal(renderer.played[0], want) {
		t.Error("rendered WAV does not match concatenated chunks")
	}
}

func TestPlaybackArtifactDeletedAfterPlay(t *testing.T) {
	scratch := t.TempDir()
	finished := make(chan bool, 1)
	p := newPlaybackPipeline(&fakeRenderer{}, DefaultSampleRate, scratch, nil, func(interrupted bool) {
		finished <- interrupted
	})

	p.handleDelta(deltaEvent("resp_1", []byte{1, 2}))
	p.handleAudioDone(&ResponseAudioDone{ResponseID: "resp_1"})
	<-finished

	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dir not empty after playback: %v", entries)
	}
}

func TestRemoveArtifactIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicelink-test.wav")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	removeArtifact(path)
	// Second delete is a no-op.
	removeArtifact(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("artifact still present: %v", err)
	}
}

func TestPlaybackInterruptDropsStaleResponse(t *testing.T) {
	p := newPlaybackPipeline(&fakeRenderer{}, DefaultSampleRate, t.TempDir(), nil, nil)

	if _, accepted := p.handleDelta(deltaEvent("resp_1", []byte{1, 2})); !accepted {
		t.Fatal("first delta rejected")
	}

	if !p.interrupt() {
		t.Error("interrupt with buffered audio reported nothing to interrupt")
	}

	// Chunks of the superseded response are dropped.
	if _, accepted := p.handleDelta(deltaEvent("resp_1", []byte{3, 4})); accepted {
		t.Error("stale delta accepted after interrupt")
	}
	if p.handleAudioDone(&ResponseAudioDone{ResponseID: "resp_1"}) {
		t.Error("stale audio done accepted after interrupt")
	}

	// A new response under the new generation plays normally.
	if _, accepted := p.handleDelta(deltaEvent("resp_2", []byte{5, 6})); !accepted {
		t.Error("fresh delta rejected after interrupt")
	}
}

func TestPlaybackInterruptStopsActiveRender(t *testing.T) {
	renderer := &fakeRenderer{release: make(chan struct{})}
	finished := make(chan bool, 1)
	p := newPlaybackPipeline(renderer, DefaultSampleRate, t.TempDir(), nil, func(interrupted bool) {
		finished <- interrupted
	})

	p.handleDelta(deltaEvent("resp_1", []byte{1, 2}))
	p.handleAudioDone(&ResponseAudioDone{ResponseID: "resp_1"})

	// Wait for the render to start, then barge in.
	deadline := time.Now().Add(2 * time.Second)
	for renderer.playCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if renderer.playCount() == 0 {
		t.Fatal("render never started")
	}

	if !p.interrupt() {
		t.Error("interrupt during render reported nothing to interrupt")
	}

	select {
	case interrupted := <-finished:
		if !interrupted {
			t.Error("interrupted playback reported as completed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("playback never finished after interrupt")
	}

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	if renderer.stops == 0 {
		t.Error("renderer.Stop was never called")
	}
}

func TestPlaybackInterruptWhenIdle(t *testing.T) {
	p := newPlaybackPipeline(&fakeRenderer{}, DefaultSampleRate, t.TempDir(), nil, nil)
	if p.interrupt() {
		t.Error("idle interrupt reported something to interrupt")
	}
}

func TestPlaybackEmptyResponse(t *testing.T) {
	p := newPlaybackPipeline(&fakeRenderer{}, DefaultSampleRate, t.TempDir(), nil, nil)
	if p.handleAudioDone(&ResponseAudioDone{ResponseID: "resp_1"}) {
		t.Error("audio done with no buffered chunks started playback")
	}
}

func TestPlaybackRejectsBadBase64(t *testing.T) {
	p := newPlaybackPipeline(&fakeRenderer{}, DefaultSampleRate, t.TempDir(), nil, nil)
	if _, accepted := p.handleDelta(&ResponseAudioDelta{ResponseID: "resp_1", DeltaBase64: "!!!"}); accepted {
		t.Error("malformed base64 delta accepted")
	}
}
