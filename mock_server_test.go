package voicelink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// MockServer simulates the remote realtime service over a local WebSocket.
type MockServer struct {
	server *httptest.Server
	t      *testing.T

	// ackHandshake controls whether session.update is answered with
	// session.updated. Disable to exercise handshake timeouts.
	ackHandshake bool

	dials atomic.Int64

	mu       sync.Mutex
	conn     *websocket.Conn
	received []json.RawMessage
}

// NewMockServer creates a mock realtime service that acknowledges the
// configuration handshake.
func NewMockServer(t *testing.T) *MockServer {
	ms := &MockServer{t: t, ackHandshake: true}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handleWebSocket))
	t.Cleanup(ms.Close)
	return ms
}

// Close shuts down the mock server.
func (ms *MockServer) Close() {
	ms.mu.Lock()
	conn := ms.conn
	ms.conn = nil
	ms.mu.Unlock()
	if conn != nil {
		// httptest.Server.Close does not close hijacked connections, so the
		// active WebSocket must be closed explicitly for clients to observe
		// the shutdown.
		_ = conn.Close(websocket.StatusNormalClosure, "server shutdown")
	}
	ms.server.Close()
}

// URL returns the WebSocket endpoint of the mock server.
func (ms *MockServer) URL() string {
	return "ws" + strings.TrimPrefix(ms.server.URL, "http") + "/realtime"
}

// DialCount reports how many WebSocket connections were attempted.
func (ms *MockServer) DialCount() int64 {
	return ms.dials.Load()
}

func (ms *MockServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ms.dials.Add(1)

	if r.Header.Get("Authorization") == "" {
		http.Error(w, "Missing authentication", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // For testing only
	})
	if err != nil {
		ms.t.Errorf("failed to upgrade to websocket: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ms.mu.Lock()
	ms.conn = conn
	ms.mu.Unlock()

	ms.write(r.Context(), map[string]any{
		"type":     "session.created",
		"event_id": "evt_mock_session_created",
		"session": map[string]any{
			"id":    "sess_mock_123",
			"model": "realtime-mock",
			"voice": "alloy",
		},
	})

	for {
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			return // Connection closed
		}
		if typ != websocket.MessageText {
			continue
		}

		ms.mu.Lock()
		ms.received = append(ms.received, json.RawMessage(data))
		ms.mu.Unlock()

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == "session.update" && ms.ackHandshake {
			ms.write(r.Context(), map[string]any{
				"type":     "session.updated",
				"event_id": "evt_mock_session_updated",
				"session":  map[string]any{"updated": true},
			})
		}
	}
}

// Send injects an event from the server to the connected client.
func (ms *MockServer) Send(msg any) {
	ms.mu.Lock()
	conn := ms.conn
	ms.mu.Unlock()
	if conn == nil {
		ms.t.Fatal("mock server: no client connected")
	}
	ms.write(context.Background(), msg)
}

func (ms *MockServer) write(ctx context.Context, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		ms.t.Errorf("mock server: marshal: %v", err)
		return
	}
	ms.mu.Lock()
	conn := ms.conn
	ms.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return
	}
}

// Received returns the raw client messages of the given type, in receipt
// order. Empty eventType returns everything.
func (ms *MockServer) Received(eventType string) []json.RawMessage {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []json.RawMessage
	for _, raw := range ms.received {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if eventType == "" || env.Type == eventType {
			out = append(out, raw)
		}
	}
	return out
}

// WaitReceived polls until at least n messages of the given type have
// arrived.
func (ms *MockServer) WaitReceived(eventType string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(ms.Received(eventType)) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// mockNegotiator serves canned negotiation responses without HTTP.
type mockNegotiator struct {
	neg   *Negotiated
	err   error
	calls atomic.Int64
}

func (m *mockNegotiator) Negotiate(ctx context.Context, req NegotiationRequest) (*Negotiated, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.neg, nil
}

// mockConfig builds a Config wired to the mock server.
func mockConfig(ms *MockServer) Config {
	return Config{
		Negotiator: &mockNegotiator{neg: &Negotiated{
			SessionID:  "sess_mock_123",
			Credential: "eph-test-token",
			Model:      "realtime-mock",
			Endpoint:   ms.URL(),
		}},
		DialTimeout:      5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
	}
}

// waitSignal blocks until ch is signalled or the timeout elapses.
func waitSignal(t *testing.T, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}
