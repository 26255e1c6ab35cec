package voicelink

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestWAVContainerHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := WAVContainer(pcm, 24000, 1, 16)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) {
		t.Error("missing RIFF magic")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("riff length = %d, want %d", got, 36+len(pcm))
	}
	if !bytes.Equal(wav[8:12], []byte("WAVE")) || !bytes.Equal(wav[12:16], []byte("fmt ")) {
		t.Error("missing WAVE/fmt markers")
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Errorf("audio format = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Errorf("sample rate = %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 48000 {
		t.Errorf("byte rate = %d, want 48000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:34]); got != 2 {
		t.Errorf("block align = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if !bytes.Equal(wav[36:40], []byte("data")) {
		t.Error("missing data marker")
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data length = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("payload does not match input PCM")
	}
}

func TestWAVContainerEmptyPayload(t *testing.T) {
	wav := WAVFromPCM16Mono(nil, DefaultSampleRate)
	if len(wav) != 44 {
		t.Fatalf("empty wav length = %d, want 44", len(wav))
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 0 {
		t.Errorf("data length = %d, want 0", got)
	}
}

func TestWAVContainerStereo(t *testing.T) {
	wav := WAVContainer(make([]byte, 8), 48000, 2, 16)
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 2 {
		t.Errorf("channels = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:34]); got != 4 {
		t.Errorf("block align = %d, want 4", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 192000 {
		t.Errorf("byte rate = %d, want 192000", got)
	}
}

func TestPCM16BytesFor(t *testing.T) {
	if got := PCM16BytesFor(1000, 24000); got != 48000 {
		t.Errorf("1s at 24kHz = %d bytes, want 48000", got)
	}
	if got := PCM16BytesFor(DefaultChunkMS, DefaultSampleRate); got != 9600 {
		t.Errorf("200ms at 24kHz = %d bytes, want 9600", got)
	}
}

func TestPCM16Duration(t *testing.T) {
	if got := PCM16Duration(48000, 24000); got != time.Second {
		t.Errorf("48000 bytes at 24kHz = %v, want 1s", got)
	}
	if got := PCM16Duration(100, 0); got != 0 {
		t.Errorf("zero sample rate = %v, want 0", got)
	}
}
