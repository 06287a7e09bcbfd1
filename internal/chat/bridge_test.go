package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/meridiantt/wayfarer/internal/assistant"
)

// recordingStreamer captures what the bridge pushes to the client side.
type recordingStreamer struct {
	mu        sync.Mutex
	tokens    []string
	toolsSeen []string
}

func (r *recordingStreamer) SendToken(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
	return nil
}

func (r *recordingStreamer) SendToolStart(tool string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolsSeen = append(r.toolsSeen, "start:"+tool)
	return nil
}

func (r *recordingStreamer) SendToolEnd(tool string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolsSeen = append(r.toolsSeen, "end:"+tool)
	return nil
}

func (r *recordingStreamer) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.tokens, "")
}

// stubTool records its invocation and returns a fixed output.
type stubTool struct {
	name     string
	output   string
	mu       sync.Mutex
	gotArgs  []string
	gotCalls int
}

func (s *stubTool) Name() string { return s.name }

func (s *stubTool) Call(ctx context.Context, arguments string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotCalls++
	s.gotArgs = append(s.gotArgs, arguments)
	return s.output
}

// fakeAssistant serves the backend wire protocol from canned SSE scripts.
type fakeAssistant struct {
	sessionID   string
	primary     string
	resumed     string
	mu          sync.Mutex
	toolResults []map[string]string
}

func sse(frames ...string) string {
	var b strings.Builder
	for _, frame := range frames {
		fmt.Fprintf(&b, "data: %s\n\n", frame)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func (f *fakeAssistant) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/sessions":
			id := f.sessionID
			if id == "" {
				id = "sess-new"
			}
			fmt.Fprintf(w, `{"id":%q}`, id)
		case strings.HasSuffix(r.URL.Path, "/tool_results"):
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode tool result: %v", err)
			}
			f.mu.Lock()
			f.toolResults = append(f.toolResults, body)
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/resume"):
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, f.resumed)
		case strings.HasSuffix(r.URL.Path, "/runs"):
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, f.primary)
		default:
			t.Errorf("unexpected request path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestBridge(t *testing.T, backend *fakeAssistant, tools ...Tool) *Bridge {
	t.Helper()
	server := httptest.NewServer(backend.handler(t))
	t.Cleanup(server.Close)

	client, err := assistant.NewClient(assistant.Config{
		APIURL:      server.URL,
		APIKey:      "test-key",
		AssistantID: "asst_1",
	})
	if err != nil {
		t.Fatalf("assistant client: %v", err)
	}

	registry := NewRegistry(nil)
	for _, tool := range tools {
		registry.Register(tool)
	}
	return NewBridge(client, registry, nil)
}

func TestRunTurnTextOnly(t *testing.T) {
	backend := &fakeAssistant{
		primary: sse(
			`{"type":"message.delta","run_id":"run-1","text":"Hello"}`,
			`{"type":"message.delta","text":" there"}`,
			`{"type":"run.completed","run_id":"run-1"}`,
		),
	}
	bridge := newTestBridge(t, backend)
	streamer := &recordingStreamer{}

	result, err := bridge.RunTurn(context.Background(), "sess-1", "hi", streamer)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.State != stateClosed {
		t.Fatalf("expected closed, got %s", result.State)
	}
	if got := streamer.text(); got != "Hello there" {
		t.Fatalf("expected streamed text, got %q", got)
	}
	if len(result.ToolCalls) != 0 {
		t.Fatalf("no tools expected, got %v", result.ToolCalls)
	}
	if len(backend.toolResults) != 0 {
		t.Fatalf("no tool results expected, got %v", backend.toolResults)
	}
}

func TestRunTurnWithToolCall(t *testing.T) {
	backend := &fakeAssistant{
		primary: sse(
			`{"type":"message.delta","run_id":"run-1","text":"Let me check."}`,
			`{"type":"tool_call.created","id":"call-1","name":"search_tours"}`,
			`{"type":"tool_call.delta","id":"call-1","arguments":"{\"departure\":\"1\","}`,
			`{"type":"tool_call.delta","id":"call-1","arguments":"\"country\":\"4\"}"}`,
			`{"type":"tool_call.completed","id":"call-1"}`,
			`{"type":"message.delta","text":"stale text after suspension"}`,
			`{"type":"run.completed","run_id":"run-1"}`,
		),
		resumed: sse(
			`{"type":"message.delta","run_id":"run-1","text":"Found 3 tours."}`,
			`{"type":"run.completed","run_id":"run-1"}`,
		),
	}
	tool := &stubTool{name: "search_tours", output: "TOOL OUTPUT"}
	bridge := newTestBridge(t, backend, tool)
	streamer := &recordingStreamer{}

	result, err := bridge.RunTurn(context.Background(), "sess-1", "find tours", streamer)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.State != stateClosed {
		t.Fatalf("expected closed, got %s", result.State)
	}

	if got := streamer.text(); got != "Let me check.Found 3 tours." {
		t.Fatalf("trailing primary text must be discarded, got %q", got)
	}
	if len(streamer.toolsSeen) != 2 || streamer.toolsSeen[0] != "start:search_tours" {
		t.Fatalf("expected tool start/end frames, got %v", streamer.toolsSeen)
	}

	if tool.gotCalls != 1 {
		t.Fatalf("expected one tool invocation, got %d", tool.gotCalls)
	}
	if tool.gotArgs[0] != `{"departure":"1","country":"4"}` {
		t.Fatalf("fragmented arguments must reassemble, got %q", tool.gotArgs[0])
	}

	if len(backend.toolResults) != 1 {
		t.Fatalf("expected one tool result submission, got %d", len(backend.toolResults))
	}
	submitted := backend.toolResults[0]
	if submitted["tool_call_id"] != "call-1" || submitted["output"] != "TOOL OUTPUT" {
		t.Fatalf("unexpected tool result body: %v", submitted)
	}
}

func TestRunTurnExtraToolCallsDropped(t *testing.T) {
	backend := &fakeAssistant{
		primary: sse(
			`{"type":"tool_call.created","id":"call-1","name":"search_tours","arguments":"{}"}`,
			`{"type":"tool_call.completed","id":"call-1"}`,
			`{"type":"tool_call.created","id":"call-2","name":"search_tours","arguments":"{}"}`,
			`{"type":"tool_call.completed","id":"call-2"}`,
			`{"type":"run.completed","run_id":"run-1"}`,
		),
		resumed: sse(`{"type":"run.completed","run_id":"run-1"}`),
	}
	tool := &stubTool{name: "search_tours", output: "ok"}
	bridge := newTestBridge(t, backend, tool)

	result, err := bridge.RunTurn(context.Background(), "sess-1", "hi", &recordingStreamer{})
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.State != stateClosed {
		t.Fatalf("expected closed, got %s", result.State)
	}
	if tool.gotCalls != 1 {
		t.Fatalf("only the first tool call may execute, got %d", tool.gotCalls)
	}
	// Both calls are answered so the run can resume, but the second gets a
	// refusal instead of a tool execution.
	if len(backend.toolResults) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(backend.toolResults))
	}
	if backend.toolResults[1]["tool_call_id"] != "call-2" {
		t.Fatalf("unexpected second submission: %v", backend.toolResults[1])
	}
	if backend.toolResults[1]["output"] == "ok" {
		t.Fatal("extra call must not carry the tool output")
	}
}

func TestRunTurnUnknownToolStillResumes(t *testing.T) {
	backend := &fakeAssistant{
		primary: sse(
			`{"type":"tool_call.created","id":"call-1","name":"mystery_tool","arguments":"{}"}`,
			`{"type":"tool_call.completed","id":"call-1"}`,
			`{"type":"run.completed","run_id":"run-1"}`,
		),
		resumed: sse(
			`{"type":"message.delta","text":"Working without it."}`,
			`{"type":"run.completed","run_id":"run-1"}`,
		),
	}
	bridge := newTestBridge(t, backend)
	streamer := &recordingStreamer{}

	result, err := bridge.RunTurn(context.Background(), "sess-1", "hi", streamer)
	if err != nil {
		t.Fatalf("an unknown tool must not fail the turn: %v", err)
	}
	if result.State != stateClosed {
		t.Fatalf("expected closed, got %s", result.State)
	}
	if len(backend.toolResults) != 1 {
		t.Fatalf("expected a fallback submission, got %d", len(backend.toolResults))
	}
	if !strings.Contains(backend.toolResults[0]["output"], "not available") {
		t.Fatalf("expected unavailability output, got %v", backend.toolResults[0])
	}
}

func TestRunTurnRunFailed(t *testing.T) {
	backend := &fakeAssistant{
		primary: sse(`{"type":"run.failed","run_id":"run-1","message":"model overloaded"}`),
	}
	bridge := newTestBridge(t, backend)

	result, err := bridge.RunTurn(context.Background(), "sess-1", "hi", &recordingStreamer{})
	if err == nil {
		t.Fatal("expected error for failed run")
	}
	if result.State != stateErrored {
		t.Fatalf("expected errored, got %s", result.State)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("failure detail lost: %v", err)
	}
}

func TestRunTurnContextCancelledDuringTool(t *testing.T) {
	backend := &fakeAssistant{
		primary: sse(
			`{"type":"tool_call.created","id":"call-1","name":"slow_tool","arguments":"{}"}`,
			`{"type":"tool_call.completed","id":"call-1"}`,
			`{"type":"run.completed","run_id":"run-1"}`,
		),
	}
	ctx, cancel := context.WithCancel(context.Background())
	tool := &cancellingTool{cancel: cancel}
	bridge := newTestBridge(t, backend, tool)

	result, err := bridge.RunTurn(ctx, "sess-1", "hi", &recordingStreamer{})
	if err == nil {
		t.Fatal("expected context error")
	}
	if result.State != stateErrored {
		t.Fatalf("expected errored, got %s", result.State)
	}
	if len(backend.toolResults) != 0 {
		t.Fatal("no tool result may be submitted after cancellation")
	}
}

// cancellingTool cancels the turn context from inside its own execution.
type cancellingTool struct {
	cancel context.CancelFunc
}

func (c *cancellingTool) Name() string { return "slow_tool" }

func (c *cancellingTool) Call(ctx context.Context, arguments string) string {
	c.cancel()
	return "too late"
}
