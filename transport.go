package voicelink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// transport owns the duplex WebSocket connection to the remote service.
// It runs the single-consumer read loop that dispatches inbound events in
// receipt order, and the single serialized write path that every outbound
// producer (capture commit, tool results, cancel, instruction injection)
// funnels through. The transport is safe for concurrent use.
type transport struct {
	url     string
	logFn   func(level LogLevel, event string, fields map[string]any)
	countFn func(direction, eventType string)

	conn       *websocket.Conn    // Underlying WebSocket connection
	writeMu    sync.Mutex         // Protects writes to the WebSocket
	readCancel context.CancelFunc // Cancels the read loop when closing
	closedCh   chan struct{}      // Signals when the transport is closed
	closeOnce  sync.Once          // Ensures closedCh is only closed once

	handlerMu sync.RWMutex
	handlers  map[string][]func(Event) // Dispatch table, keyed by wire name
}

// dialTransport establishes the WebSocket connection using the negotiated
// endpoint and ephemeral credential. The returned transport is reading and
// dispatching immediately; register handlers before the server is provoked
// into sending anything that matters.
func dialTransport(ctx context.Context, endpoint string, cred Credential, extra http.Header, dialTimeout time.Duration, logFn func(LogLevel, string, map[string]any), countFn func(direction, eventType string)) (*transport, error) {
	h := http.Header{}
	for k, vals := range extra {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	if cred != nil {
		cred.apply(h)
	}

	dialCtx := ctx
	if dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{HTTPHeader: h})
	if err != nil {
		return nil, NewTransportError(endpoint, "dial", err)
	}

	t := &transport{
		url:      endpoint,
		logFn:    logFn,
		countFn:  countFn,
		conn:     ws,
		closedCh: make(chan struct{}),
		handlers: make(map[string][]func(Event)),
	}
	t.log(LogLevelInfo, "ws_connected", map[string]any{"url": endpoint})

	rcCtx, cancel := context.WithCancel(context.Background())
	t.readCancel = cancel
	go t.readLoop(rcCtx)
	go t.pingLoop()
	return t, nil
}

// on registers a handler for an inbound event kind. Handlers run on the read
// loop goroutine in registration order and must not block.
func (t *transport) on(eventType string, fn func(Event)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.handlers[eventType] = append(t.handlers[eventType], fn)
}

// close shuts the connection down. Safe to call multiple times.
func (t *transport) close() error {
	if t.readCancel != nil {
		t.readCancel()
	}

	t.writeMu.Lock()
	if t.conn != nil {
		_ = t.conn.Close(websocket.StatusNormalClosure, "closing")
		t.conn = nil
	}
	t.writeMu.Unlock()

	t.closeOnce.Do(func() {
		close(t.closedCh)
	})
	return nil
}

// closed returns a channel closed when the transport terminates, whether by
// local close or remote failure.
func (t *transport) closed() <-chan struct{} { return t.closedCh }

// readLoop continuously reads messages from the WebSocket connection. It is
// the single consumer guaranteeing inbound events are dispatched strictly in
// receipt order. The loop terminates when the context is canceled or the
// connection fails.
func (t *transport) readLoop(ctx context.Context) {
	defer func() {
		t.writeMu.Lock()
		if t.conn != nil {
			_ = t.conn.Close(websocket.StatusNormalClosure, "reader_exit")
			t.conn = nil
		}
		t.writeMu.Unlock()
		t.closeOnce.Do(func() {
			close(t.closedCh)
		})
	}()

	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			return // Connection closed or error occurred
		}

		// Only process text messages (JSON events)
		if typ != websocket.MessageText {
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log(LogLevelError, "bad_event_json", map[string]any{"err": err, "raw_data": string(data)})
			continue
		}

		t.dispatch(env, data)
	}
}

func (t *transport) pingLoop() {
	tick := time.NewTicker(20 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-t.closedCh:
			return
		case <-tick.C:
			t.writeMu.Lock()
			if t.conn != nil {
				_ = t.conn.Ping(context.Background())
			}
			t.writeMu.Unlock()
		}
	}
}

// dispatch decodes an inbound event through the factory table and invokes
// the handlers subscribed to its kind. Events with no registered handler are
// decoded and dropped; unknown wire names are logged and skipped.
func (t *transport) dispatch(env envelope, raw []byte) {
	factory, ok := eventFactories[env.Type]
	if !ok {
		t.log(LogLevelDebug, "unknown_event", map[string]any{"type": env.Type})
		return
	}

	ev := factory()
	if err := json.Unmarshal(raw, ev); err != nil {
		t.log(LogLevelError, "bad_event_payload", map[string]any{"type": env.Type, "err": err})
		return
	}
	t.count("in", env.Type)

	t.handlerMu.RLock()
	fns := t.handlers[env.Type]
	t.handlerMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// send serializes one outbound event onto the wire. The write mutex is the
// ownership mechanism for the single outbound write path: no interleaved
// partial writes regardless of how many producers are active.
func (t *transport) send(ctx context.Context, payload any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return ErrClosed
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return NewSendError("unknown", "", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := t.conn.Write(ctx, websocket.MessageText, b); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewSendError("unknown", "", ErrSendTimeout)
		}
		return NewSendError("unknown", "", err)
	}
	if m, ok := payload.(map[string]any); ok {
		if typ, ok := m["type"].(string); ok {
			t.count("out", typ)
		}
	}
	return nil
}

func (t *transport) log(level LogLevel, event string, fields map[string]any) {
	if t.logFn != nil {
		t.logFn(level, event, fields)
	}
}

func (t *transport) count(direction, eventType string) {
	if t.countFn != nil {
		t.countFn(direction, eventType)
	}
}
