package voicelink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// ToolExecutor runs a named side-effecting operation requested by the remote
// model and returns its result. Implementations should honor ctx; the
// dispatcher additionally enforces a timeout ceiling so an executor that
// ignores cancellation cannot stall the conversation.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any, subjectID string) (any, error)
}

// Tool describes one entry of the tool manifest advertised in the
// configuration handshake.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON-schema of the argument object. Usually produced
	// by NewTool; may be set to a hand-written map for dynamic tools.
	Parameters any
}

// NewTool builds a manifest entry whose parameter schema is reflected from
// the argument struct type T.
func NewTool[T any](name, description string) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}
	var v T
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  reflector.Reflect(&v),
	}
}

// manifestEntry renders the tool in the wire shape of the session.update
// tools block.
func (t Tool) manifestEntry() map[string]any {
	params := t.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return map[string]any{
		"type":        "function",
		"name":        t.Name,
		"description": t.Description,
		"parameters":  params,
	}
}

// ToolCallStatus tracks a call through its lifecycle. Every call reaches
// Completed or Failed and emits exactly one correlated response event.
type ToolCallStatus int

const (
	ToolCallPending ToolCallStatus = iota
	ToolCallExecuting
	ToolCallCompleted
	ToolCallFailed
)

func (s ToolCallStatus) String() string {
	switch s {
	case ToolCallPending:
		return "pending"
	case ToolCallExecuting:
		return "executing"
	case ToolCallCompleted:
		return "completed"
	case ToolCallFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// toolCall is one in-flight invocation, keyed by the protocol-assigned call
// id.
type toolCall struct {
	id     string
	name   string
	status ToolCallStatus
}

// resultSink is the slice of the outbound write path the dispatcher needs:
// emit the correlated output, then request a response.
type resultSink interface {
	createFunctionOutput(ctx context.Context, callID, output string) error
	createResponse(ctx context.Context) (string, error)
}

// toolDispatcher correlates inbound function-call requests to executor runs.
// Multiple calls may be concurrently in flight; each is independent and
// never blocks inbound event processing. Removal from the in-flight map is
// the exactly-once guard: whichever of resolution and timeout wins emits the
// single correlated result, the loser finds the map empty.
type toolDispatcher struct {
	executor  ToolExecutor
	sink      resultSink
	subjectID string
	timeout   time.Duration
	logFn     func(level LogLevel, event string, fields map[string]any)
	metrics   *Metrics

	onStarted func(name string, args map[string]any)
	onResult  func(name string, result string)
	onError   func(err error)

	mu        sync.Mutex
	inflight  map[string]*toolCall
	closedCh  chan struct{}
	closeOnce sync.Once
}

func newToolDispatcher(executor ToolExecutor, sink resultSink, subjectID string, timeout time.Duration, logFn func(LogLevel, string, map[string]any), metrics *Metrics) *toolDispatcher {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &toolDispatcher{
		executor:  executor,
		sink:      sink,
		subjectID: subjectID,
		timeout:   timeout,
		logFn:     logFn,
		metrics:   metrics,
		inflight:  make(map[string]*toolCall),
		closedCh:  make(chan struct{}),
	}
}

// handle processes one function-call-arguments event. It runs on the read
// loop goroutine and never blocks: the executor is invoked asynchronously.
func (d *toolDispatcher) handle(e *FunctionCallArgumentsDone) {
	call := &toolCall{id: e.CallID, name: e.Name, status: ToolCallPending}

	d.mu.Lock()
	if _, dup := d.inflight[e.CallID]; dup {
		d.mu.Unlock()
		d.log(LogLevelWarn, "duplicate_tool_call", map[string]any{"call_id": e.CallID})
		return
	}
	d.inflight[e.CallID] = call
	d.mu.Unlock()

	var args map[string]any
	if err := json.Unmarshal([]byte(e.Arguments), &args); err != nil {
		// Malformed arguments never block the conversation: emit the
		// correlated error result immediately.
		argErr := &ToolArgumentError{CallID: e.CallID, Name: e.Name, Cause: err}
		d.report(argErr)
		go d.finish(call, fmt.Sprintf("invalid arguments: %v", err), true)
		return
	}

	call.status = ToolCallExecuting
	if d.onStarted != nil {
		d.onStarted(e.Name, args)
	}
	if d.metrics != nil {
		d.metrics.ToolCalls.WithLabelValues(e.Name).Inc()
	}

	go d.run(call, args)
}

type execOutcome struct {
	result any
	err    error
}

// run executes one call with the timeout ceiling. Exactly one of the select
// arms reaches finish.
func (d *toolDispatcher) run(call *toolCall, args map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	resCh := make(chan execOutcome, 1)
	go func() {
		if d.executor == nil {
			resCh <- execOutcome{err: fmt.Errorf("no executor registered for tool %q", call.name)}
			return
		}
		result, err := d.executor.Execute(ctx, call.name, args, d.subjectID)
		resCh <- execOutcome{result: result, err: err}
	}()

	select {
	case o := <-resCh:
		if o.err != nil {
			execErr := &ToolExecutionError{CallID: call.id, Name: call.name, Cause: o.err}
			d.report(execErr)
			d.finish(call, o.err.Error(), true)
			return
		}
		out, err := json.Marshal(o.result)
		if err != nil {
			out = []byte(fmt.Sprintf("%q", fmt.Sprint(o.result)))
		}
		d.finish(call, string(out), false)
	case <-ctx.Done():
		d.report(&ToolExecutionError{CallID: call.id, Name: call.name, Cause: ErrToolTimeout})
		d.finish(call, fmt.Sprintf("tool call timed out after %s", d.timeout), true)
	case <-d.closedCh:
		// Session closed: the in-flight executor is not force-killed, but
		// its result is discarded.
		d.mu.Lock()
		delete(d.inflight, call.id)
		d.mu.Unlock()
	}
}

// finish emits the single correlated result for a call and requests the next
// response. A call no longer in the in-flight map has already been resolved.
func (d *toolDispatcher) finish(call *toolCall, output string, failed bool) {
	d.mu.Lock()
	if _, ok := d.inflight[call.id]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.inflight, call.id)
	if failed {
		call.status = ToolCallFailed
	} else {
		call.status = ToolCallCompleted
	}
	d.mu.Unlock()

	select {
	case <-d.closedCh:
		return
	default:
	}

	payload := output
	if failed {
		b, _ := json.Marshal(map[string]string{"error": output})
		payload = string(b)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.sink.createFunctionOutput(ctx, call.id, payload); err != nil {
		d.log(LogLevelError, "tool_result_send_failed", map[string]any{"call_id": call.id, "err": err})
		return
	}
	if _, err := d.sink.createResponse(ctx); err != nil {
		d.log(LogLevelError, "tool_response_request_failed", map[string]any{"call_id": call.id, "err": err})
		return
	}

	if d.metrics != nil {
		outcome := "completed"
		if failed {
			outcome = "failed"
		}
		d.metrics.ToolResults.WithLabelValues(call.name, outcome).Inc()
	}
	if d.onResult != nil {
		d.onResult(call.name, payload)
	}
}

// close discards results of calls still in flight. Their executors keep
// running but their outcomes go nowhere.
func (d *toolDispatcher) close() {
	d.closeOnce.Do(func() { close(d.closedCh) })
}

// inflightCount reports how many calls have not yet reached a terminal state.
func (d *toolDispatcher) inflightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

func (d *toolDispatcher) report(err error) {
	d.log(LogLevelWarn, "tool_call_error", map[string]any{"err": err})
	if d.onError != nil {
		d.onError(err)
	}
}

func (d *toolDispatcher) log(level LogLevel, event string, fields map[string]any) {
	if d.logFn != nil {
		d.logFn(level, event, fields)
	}
}
