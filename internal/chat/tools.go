package chat

import (
	"context"
	"fmt"

	"github.com/meridiantt/wayfarer/internal/assistant"
	"github.com/meridiantt/wayfarer/internal/logging"
)

// Tool is one callable the assistant may invoke mid-run. Call never
// returns an error: whatever goes wrong is folded into the returned string
// so the assistant can relay it to the user in its own words.
type Tool interface {
	Name() string
	Call(ctx context.Context, arguments string) string
}

// Registry routes assistant tool invocations to local tools.
type Registry struct {
	tools  map[string]Tool
	logger logging.Logger
}

func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Registry{tools: map[string]Tool{}, logger: logger}
}

func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Dispatch resolves a tool call to its output string. An unknown tool name
// still produces an output, so the run can always be resumed.
func (r *Registry) Dispatch(ctx context.Context, call assistant.ToolCall) string {
	tool, ok := r.tools[call.Name]
	if !ok {
		r.logger.WithFields(logging.Fields{
			"tool": call.Name,
			"id":   call.ID,
		}).Warn("Assistant requested unknown tool")
		toolCallsTotal.WithLabelValues(call.Name, "unknown").Inc()
		return fmt.Sprintf("The tool %q is not available. Please answer with what you already know.", call.Name)
	}
	output := tool.Call(ctx, call.Arguments)
	return output
}
