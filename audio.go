package voicelink

import (
	"encoding/binary"
	"time"
)

// Audio constants for the single fixed raw format the remote protocol
// expects: 16-bit little-endian mono PCM.

// DefaultSampleRate is the sample rate used by the remote protocol (24kHz).
const DefaultSampleRate = 24000

// DefaultChunkMS is the recommended chunk size for streaming audio (200ms).
const DefaultChunkMS = 200

// WAVContainer wraps raw PCM samples in a minimal RIFF/WAVE container. It is
// a pure function of its inputs: no I/O, byte-for-byte testable against
// fixtures. bitsPerSample must be a multiple of 8.
func WAVContainer(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := uint16(channels * bitsPerSample / 8)
	byteRate := uint32(sampleRate) * uint32(blockAlign)
	dataLen := uint32(len(pcm))
	riffLen := 36 + dataLen
	out := make([]byte, 44+len(pcm))

	// RIFF header
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], riffLen)
	copy(out[8:], []byte("WAVE"))

	// Format chunk
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(out[20:], 1)  // audio format (PCM)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], byteRate)
	binary.LittleEndian.PutUint16(out[32:], blockAlign)
	binary.LittleEndian.PutUint16(out[34:], uint16(bitsPerSample))

	// Data chunk
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], dataLen)
	copy(out[44:], pcm)
	return out
}

// WAVFromPCM16Mono wraps mono PCM16 in a WAV container at the given rate.
func WAVFromPCM16Mono(pcm []byte, sampleRate int) []byte {
	return WAVContainer(pcm, sampleRate, 1, 16)
}

// PCM16BytesFor calculates the number of bytes needed for PCM16 mono audio
// of the given duration: (milliseconds * sampleRate * 2 bytes) / 1000.
func PCM16BytesFor(ms int, sampleRate int) int { return (ms * sampleRate * 2) / 1000 }

// PCM16Duration returns the play time of a PCM16 mono segment.
func PCM16Duration(n int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate*2)
}
