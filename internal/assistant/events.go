package assistant

import (
	"encoding/json"
	"strings"
)

// EventType identifies a logical frame on a run stream.
type EventType string

const (
	// EventTextDelta carries an incremental piece of assistant text.
	EventTextDelta EventType = "message.delta"
	// EventToolCallCreated announces a tool invocation and its name.
	EventToolCallCreated EventType = "tool_call.created"
	// EventToolCallDelta carries a fragment of the invocation's JSON arguments.
	EventToolCallDelta EventType = "tool_call.delta"
	// EventToolCallCompleted signals the invocation's arguments are complete.
	EventToolCallCompleted EventType = "tool_call.completed"
	// EventRunCompleted ends a run normally.
	EventRunCompleted EventType = "run.completed"
	// EventRunFailed ends a run with an upstream error.
	EventRunFailed EventType = "run.failed"
)

// Event is one logical frame decoded from the run stream.
type Event struct {
	Type       EventType `json:"type"`
	Text       string    `json:"text,omitempty"`
	ToolCallID string    `json:"id,omitempty"`
	ToolName   string    `json:"name,omitempty"`
	Arguments  string    `json:"arguments,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// ToolCall is a completed tool invocation with its fully accumulated
// argument payload.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ParsedArguments decodes the accumulated argument buffer. A partial or
// otherwise invalid buffer yields ok=false rather than an error; callers
// must only rely on it after the completion event.
func (c ToolCall) ParsedArguments() (map[string]any, bool) {
	var args map[string]any
	if err := json.Unmarshal([]byte(c.Arguments), &args); err != nil {
		return nil, false
	}
	return args, true
}

// ToolCallBuffer accumulates tool-call argument fragments keyed by
// invocation ID. Fragments may be split across any number of stream
// chunks; a call is only readable once its completion event arrives.
type ToolCallBuffer struct {
	names map[string]string
	args  map[string]*strings.Builder
}

func NewToolCallBuffer() *ToolCallBuffer {
	return &ToolCallBuffer{
		names: make(map[string]string),
		args:  make(map[string]*strings.Builder),
	}
}

// Observe feeds a stream event into the buffer. Non-tool events are ignored.
func (b *ToolCallBuffer) Observe(ev Event) {
	switch ev.Type {
	case EventToolCallCreated:
		b.names[ev.ToolCallID] = ev.ToolName
		if _, ok := b.args[ev.ToolCallID]; !ok {
			b.args[ev.ToolCallID] = &strings.Builder{}
		}
		if ev.Arguments != "" {
			b.args[ev.ToolCallID].WriteString(ev.Arguments)
		}
	case EventToolCallDelta:
		sb, ok := b.args[ev.ToolCallID]
		if !ok {
			sb = &strings.Builder{}
			b.args[ev.ToolCallID] = sb
		}
		sb.WriteString(ev.Arguments)
	}
}

// Complete returns the accumulated call for id, if any fragments were seen.
func (b *ToolCallBuffer) Complete(id string) (ToolCall, bool) {
	sb, ok := b.args[id]
	if !ok {
		return ToolCall{}, false
	}
	return ToolCall{
		ID:        id,
		Name:      b.names[id],
		Arguments: sb.String(),
	}, true
}
