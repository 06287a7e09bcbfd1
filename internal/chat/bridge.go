package chat

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/meridiantt/wayfarer/internal/assistant"
	"github.com/meridiantt/wayfarer/internal/logging"
)

// TokenStreamer receives the client-facing side of a turn as it happens.
type TokenStreamer interface {
	SendToken(token string) error
	SendToolStart(tool string) error
	SendToolEnd(tool string) error
}

// turnState tracks where a turn is in its lifecycle. Transitions only move
// forward; errored and closed absorb.
type turnState string

const (
	stateIdle             turnState = "idle"
	stateRunningPrimary   turnState = "running_primary"
	stateAwaitingTool     turnState = "awaiting_tool"
	stateRunningSecondary turnState = "running_secondary"
	stateClosed           turnState = "closed"
	stateErrored          turnState = "errored"
)

// TurnResult summarizes a completed turn.
type TurnResult struct {
	State     turnState
	ToolCalls []string
	RunID     string
}

// Bridge drives one chat turn against the assistant backend: open the
// primary run, relay text, and when the assistant suspends on a tool call,
// execute it locally and resume with a secondary run. At most one tool is
// honored per run; extra calls are acknowledged with a refusal so the run
// can still resume.
type Bridge struct {
	assistant *assistant.Client
	registry  *Registry
	logger    logging.Logger
}

func NewBridge(client *assistant.Client, registry *Registry, logger logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Bridge{assistant: client, registry: registry, logger: logger}
}

// runOutcome is what one streamed run produced: the first completed tool
// call if any, plus any extras that arrived after it.
type runOutcome struct {
	runID    string
	toolCall *assistant.ToolCall
	extras   []assistant.ToolCall
	failed   string
}

// RunTurn executes a full turn for sessionID. Text deltas stream to the
// streamer as they arrive; tool suspension and resumption happen inline.
// The returned error means the turn ended in the errored state and the
// caller owes the client a terminal error frame.
func (b *Bridge) RunTurn(ctx context.Context, sessionID, message string, streamer TokenStreamer) (TurnResult, error) {
	result := TurnResult{State: stateIdle}
	if b.assistant == nil {
		result.State = stateErrored
		return result, errors.New("assistant client is required")
	}

	result.State = stateRunningPrimary
	stream, err := b.assistant.StreamRun(ctx, sessionID, message)
	if err != nil {
		result.State = stateErrored
		return result, fmt.Errorf("start run: %w", err)
	}
	outcome, err := b.consumeRun(ctx, stream, streamer)
	if err != nil {
		result.State = stateErrored
		return result, err
	}
	result.RunID = outcome.runID
	if outcome.failed != "" {
		result.State = stateErrored
		return result, fmt.Errorf("assistant run failed: %s", outcome.failed)
	}

	if outcome.toolCall == nil {
		result.State = stateClosed
		return result, nil
	}

	result.State = stateAwaitingTool
	call := *outcome.toolCall
	result.ToolCalls = append(result.ToolCalls, call.Name)

	_ = streamer.SendToolStart(call.Name)
	output := b.registry.Dispatch(ctx, call)
	_ = streamer.SendToolEnd(call.Name)

	if err := ctx.Err(); err != nil {
		result.State = stateErrored
		return result, err
	}

	// The backend must acknowledge the tool result before the run can be
	// resumed; a failed submission leaves the run suspended server-side.
	if err := b.assistant.SubmitToolResult(ctx, sessionID, outcome.runID, call.ID, output); err != nil {
		result.State = stateErrored
		return result, fmt.Errorf("submit tool result: %w", err)
	}
	for _, extra := range outcome.extras {
		b.logger.WithFields(logging.Fields{
			"session_id": sessionID,
			"tool":       extra.Name,
		}).Warn("Dropping extra tool call in same run")
		refusal := "Only one tool call is handled per run. Answer with the results you already have."
		if err := b.assistant.SubmitToolResult(ctx, sessionID, outcome.runID, extra.ID, refusal); err != nil {
			result.State = stateErrored
			return result, fmt.Errorf("submit extra tool result: %w", err)
		}
	}

	result.State = stateRunningSecondary
	resumed, err := b.assistant.ResumeRun(ctx, sessionID, outcome.runID)
	if err != nil {
		result.State = stateErrored
		return result, fmt.Errorf("resume run: %w", err)
	}
	secondary, err := b.consumeRun(ctx, resumed, streamer)
	if err != nil {
		result.State = stateErrored
		return result, err
	}
	if secondary.failed != "" {
		result.State = stateErrored
		return result, fmt.Errorf("assistant run failed after tool: %s", secondary.failed)
	}
	if secondary.toolCall != nil {
		b.logger.WithFields(logging.Fields{
			"session_id": sessionID,
			"tool":       secondary.toolCall.Name,
		}).Warn("Dropping tool call requested in resumed run")
	}

	result.State = stateClosed
	return result, nil
}

// consumeRun drains one run stream. Text arriving after the first
// completed tool call belongs to the suspended run and is discarded; the
// secondary run restates it with the tool output folded in.
func (b *Bridge) consumeRun(ctx context.Context, stream assistant.Stream, streamer TokenStreamer) (runOutcome, error) {
	defer stream.Close()

	var outcome runOutcome
	buffer := assistant.NewToolCallBuffer()

	for {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return outcome, nil
			}
			return outcome, fmt.Errorf("read run stream: %w", err)
		}
		if outcome.runID == "" && ev.RunID != "" {
			outcome.runID = ev.RunID
		}

		switch ev.Type {
		case assistant.EventTextDelta:
			if outcome.toolCall != nil {
				continue
			}
			if ev.Text == "" {
				continue
			}
			if err := streamer.SendToken(ev.Text); err != nil {
				return outcome, fmt.Errorf("write token: %w", err)
			}
		case assistant.EventToolCallCreated, assistant.EventToolCallDelta:
			buffer.Observe(ev)
		case assistant.EventToolCallCompleted:
			buffer.Observe(ev)
			call, ok := buffer.Complete(ev.ToolCallID)
			if !ok {
				b.logger.WithField("id", ev.ToolCallID).Warn("Completed tool call was never announced")
				continue
			}
			if outcome.toolCall == nil {
				outcome.toolCall = &call
			} else {
				outcome.extras = append(outcome.extras, call)
			}
		case assistant.EventRunCompleted:
			return outcome, nil
		case assistant.EventRunFailed:
			outcome.failed = ev.Message
			if outcome.failed == "" {
				outcome.failed = "no failure detail provided"
			}
			return outcome, nil
		}
	}
}
