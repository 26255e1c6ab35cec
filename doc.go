// Package voicelink manages real-time voice conversation sessions against a
// remote conversational model service speaking a duplex WebSocket event
// protocol.
//
// A session is started with StartSession, which negotiates an ephemeral
// credential, opens the transport, and performs the configuration handshake
// before any audio or tool activity is permitted. The returned *Session is an
// explicit handle; there is no package-level client state, so multiple
// sessions can coexist (one per conversation subject).
//
// The session mediates a live spoken exchange:
//   - captured user audio is encoded and committed through the transport
//   - the model's audio response is buffered, wrapped in a WAV container and
//     played through an AudioRenderer
//   - user barge-in interrupts playback and cancels the in-flight response
//   - remote-requested tool calls are executed concurrently and each receives
//     exactly one correlated result
//
// Audio device access is abstracted behind the AudioCapturer and
// AudioRenderer interfaces so the core never depends on a concrete backend.
//
// Basic usage:
//
//	cfg := voicelink.Config{
//		Negotiator: &voicelink.HTTPNegotiator{URL: "https://issuer.example.com/negotiate"},
//	}
//	sess, err := voicelink.StartSession(ctx, cfg, "senior-42", voicelink.Options{
//		Voice:    "shimmer",
//		Renderer: renderer,
//		Capturer: capturer,
//		Callbacks: voicelink.Callbacks{
//			OnTranscript: func(text string, final bool) { fmt.Println(text) },
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Stop()
//
// A dropped transport surfaces OnDisconnected and requires an explicit new
// StartSession call; the package never reconnects silently.
package voicelink
