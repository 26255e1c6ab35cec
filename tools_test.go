package voicelink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSink records the outbound events the dispatcher would send.
type fakeSink struct {
	mu        sync.Mutex
	outputs   []sinkOutput
	responses int
}

type sinkOutput struct {
	callID string
	output string
}

func (f *fakeSink) createFunctionOutput(ctx context.Context, callID, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, sinkOutput{callID: callID, output: output})
	return nil
}

func (f *fakeSink) createResponse(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses++
	return "evt_test", nil
}

func (f *fakeSink) snapshot() ([]sinkOutput, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sinkOutput(nil), f.outputs...), f.responses
}

func (f *fakeSink) waitOutputs(t *testing.T, n int, timeout time.Duration) []sinkOutput {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		outs, _ := f.snapshot()
		if len(outs) >= n {
			return outs
		}
		time.Sleep(5 * time.Millisecond)
	}
	outs, _ := f.snapshot()
	t.Fatalf("timed out waiting for %d outputs, have %d", n, len(outs))
	return outs
}

func callEvent(callID, name, args string) *FunctionCallArgumentsDone {
	return &FunctionCallArgumentsDone{CallID: callID, Name: name, Arguments: args}
}

func TestToolDispatcherSuccess(t *testing.T) {
	sink := &fakeSink{}
	d := newToolDispatcher(executorFunc(func(ctx context.Context, name string, args map[string]any, subjectID string) (any, error) {
		return map[string]any{"ok": true}, nil
	}), sink, "subject-1", time.Second, nil, nil)

	d.handle(callEvent("call_1", "ping", `{}`))

	outs := sink.waitOutputs(t, 1, 2*time.Second)
	if outs[0].callID != "call_1" || outs[0].output != `{"ok":true}` {
		t.Errorf("output = %+v", outs[0])
	}
	if _, responses := sink.snapshot(); responses != 1 {
		t.Errorf("responses = %d, want 1", responses)
	}
	if n := d.inflightCount(); n != 0 {
		t.Errorf("inflight = %d, want 0", n)
	}
}

func TestToolDispatcherExecutorError(t *testing.T) {
	sink := &fakeSink{}
	var reported error
	reportedCh := make(chan struct{})
	d := newToolDispatcher(executorFunc(func(ctx context.Context, name string, args map[string]any, subjectID string) (any, error) {
		return nil, errors.New("backend unavailable")
	}), sink, "subject-1", time.Second, nil, nil)
	d.onError = func(err error) {
		reported = err
		close(reportedCh)
	}

	d.handle(callEvent("call_1", "ping", `{}`))

	outs := sink.waitOutputs(t, 1, 2*time.Second)
	var payload map[string]string
	if err := json.Unmarshal([]byte(outs[0].output), &payload); err != nil {
		t.Fatalf("output is not JSON: %q", outs[0].output)
	}
	if payload["error"] != "backend unavailable" {
		t.Errorf("error payload = %q", payload["error"])
	}

	<-reportedCh
	var execErr *ToolExecutionError
	if !errors.As(reported, &execErr) {
		t.Errorf("reported error = %T, want *ToolExecutionError", reported)
	}
}

func TestToolDispatcherBadArguments(t *testing.T) {
	sink := &fakeSink{}
	executed := false
	var reported error
	reportedCh := make(chan struct{})
	d := newToolDispatcher(executorFunc(func(ctx context.Context, name string, args map[string]any, subjectID string) (any, error) {
		executed = true
		return nil, nil
	}), sink, "subject-1", time.Second, nil, nil)
	d.onError = func(err error) {
		reported = err
		close(reportedCh)
	}

	d.handle(callEvent("call_1", "ping", `{not json`))

	outs := sink.waitOutputs(t, 1, 2*time.Second)
	var payload map[string]string
	if err := json.Unmarshal([]byte(outs[0].output), &payload); err != nil {
		t.Fatalf("output is not JSON: %q", outs[0].output)
	}
	if payload["error"] == "" {
		t.Error("expected error payload for malformed arguments")
	}
	if executed {
		t.Error("executor ran despite malformed arguments")
	}

	<-reportedCh
	var argErr *ToolArgumentError
	if !errors.As(reported, &argErr) {
		t.Errorf("reported error = %T, want *ToolArgumentError", reported)
	}
}

func TestToolDispatcherTimeout(t *testing.T) {
	sink := &fakeSink{}
	release := make(chan struct{})
	d := newToolDispatcher(executorFunc(func(ctx context.Context, name string, args map[string]any, subjectID string) (any, error) {
		<-release
		return "late", nil
	}), sink, "subject-1", 50*time.Millisecond, nil, nil)

	d.handle(callEvent("call_1", "slow", `{}`))

	outs := sink.waitOutputs(t, 1, 2*time.Second)
	var payload map[string]string
	if err := json.Unmarshal([]byte(outs[0].output), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["error"] == "" {
		t.Error("expected timeout error payload")
	}

	// The executor resolving after the timeout must not emit a second result.
	close(release)
	time.Sleep(100 * time.Millisecond)
	if final, _ := sink.snapshot(); len(final) != 1 {
		t.Errorf("got %d outputs for one call, want exactly 1", len(final))
	}
}

func TestToolDispatcherDuplicateCallID(t *testing.T) {
	sink := &fakeSink{}
	block := make(chan struct{})
	d := newToolDispatcher(executorFunc(func(ctx context.Context, name string, args map[string]any, subjectID string) (any, error) {
		<-block
		return "done", nil
	}), sink, "subject-1", time.Second, nil, nil)

	d.handle(callEvent("call_1", "ping", `{}`))
	d.handle(callEvent("call_1", "ping", `{}`)) // duplicate, ignored
	close(block)

	outs := sink.waitOutputs(t, 1, 2*time.Second)
	time.Sleep(50 * time.Millisecond)
	if final, _ := sink.snapshot(); len(final) != len(outs) || len(final) != 1 {
		t.Errorf("got %d outputs, want 1", len(final))
	}
}

func TestToolDispatcherConcurrentCalls(t *testing.T) {
	sink := &fakeSink{}
	d := newToolDispatcher(executorFunc(func(ctx context.Context, name string, args map[string]any, subjectID string) (any, error) {
		return args["v"], nil
	}), sink, "subject-1", time.Second, nil, nil)

	d.handle(callEvent("call_a", "echo", `{"v":"a"}`))
	d.handle(callEvent("call_b", "echo", `{"v":"b"}`))

	outs := sink.waitOutputs(t, 2, 2*time.Second)
	byID := map[string]string{}
	for _, o := range outs {
		byID[o.callID] = o.output
	}
	if byID["call_a"] != `"a"` || byID["call_b"] != `"b"` {
		t.Errorf("results crossed calls: %+v", byID)
	}
}

func TestToolDispatcherCloseDiscardsResults(t *testing.T) {
	sink := &fakeSink{}
	release := make(chan struct{})
	d := newToolDispatcher(executorFunc(func(ctx context.Context, name string, args map[string]any, subjectID string) (any, error) {
		<-release
		return "orphan", nil
	}), sink, "subject-1", time.Second, nil, nil)

	d.handle(callEvent("call_1", "slow", `{}`))
	d.close()
	d.close() // idempotent
	close(release)

	time.Sleep(100 * time.Millisecond)
	if outs, _ := sink.snapshot(); len(outs) != 0 {
		t.Errorf("results sent after close: %+v", outs)
	}
}

func TestNewToolManifest(t *testing.T) {
	type lookupArgs struct {
		Query string `json:"query" jsonschema:"description=Search query"`
		Limit int    `json:"limit,omitempty"`
	}
	tool := NewTool[lookupArgs]("lookup", "Searches the index")

	entry := tool.manifestEntry()
	if entry["type"] != "function" || entry["name"] != "lookup" {
		t.Errorf("manifest entry = %+v", entry)
	}
	if entry["parameters"] == nil {
		t.Fatal("manifest entry missing parameters schema")
	}

	// The schema must survive JSON encoding for the handshake payload.
	b, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("manifest entry not marshalable: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	params, _ := decoded["parameters"].(map[string]any)
	if params["type"] != "object" {
		t.Errorf("schema type = %v, want object", params["type"])
	}
	props, _ := params["properties"].(map[string]any)
	if _, ok := props["query"]; !ok {
		t.Errorf("schema missing query property: %+v", props)
	}
}
