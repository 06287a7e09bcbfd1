// Package assistant implements the client side of the conversational
// backend: session creation, streamed generation runs, and tool-result
// submission. Runs are delivered as SSE streams of logical events; see
// stream.go for the wire handling.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridiantt/wayfarer/internal/clients"
	"github.com/meridiantt/wayfarer/internal/logging"
)

// Config holds assistant backend configuration.
type Config struct {
	APIURL      string
	APIKey      string
	AssistantID string
	Timeout     time.Duration
	Logger      logging.Logger
}

// Client talks to the assistant backend over HTTP.
type Client struct {
	client      *http.Client
	streamer    *http.Client
	apiKey      string
	apiURL      string
	assistantID string
	retry       clients.RetryConfig
	logger      logging.Logger
}

// NewClient creates an assistant client. Streaming requests use a client
// without an overall timeout: a run stream legitimately outlives any fixed
// request deadline, and cancellation is carried by the request context.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("assistant api key is required")
	}
	if strings.TrimSpace(cfg.AssistantID) == "" {
		return nil, errors.New("assistant id is required")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		client:      &http.Client{Timeout: timeout},
		streamer:    &http.Client{},
		apiKey:      cfg.APIKey,
		apiURL:      apiURL,
		assistantID: cfg.AssistantID,
		retry:       clients.DefaultRetryConfig(),
		logger:      cfg.Logger,
	}, nil
}

type createSessionRequest struct {
	AssistantID string `json:"assistant_id"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

// CreateSession opens a new conversation session and returns its ID.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	payload, err := json.Marshal(createSessionRequest{AssistantID: c.assistantID})
	if err != nil {
		return "", fmt.Errorf("assistant: marshal session request: %w", err)
	}

	resp, err := clients.DoWithRetry(ctx, c.client, func() (*http.Request, error) {
		return c.newRequest(ctx, c.apiURL+"/v1/sessions", payload)
	}, c.retry)
	if err != nil {
		return "", fmt.Errorf("assistant: create session: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("assistant: create session: %w", err)
	}

	var decoded createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("assistant: decode session response: %w", err)
	}
	if decoded.ID == "" {
		return "", errors.New("assistant: session response missing id")
	}
	return decoded.ID, nil
}

type startRunRequest struct {
	AssistantID string `json:"assistant_id"`
	Message     string `json:"message"`
	Stream      bool   `json:"stream"`
}

// StreamRun starts a streamed generation run for the session and returns
// the event stream.
func (c *Client) StreamRun(ctx context.Context, sessionID, message string) (Stream, error) {
	payload, err := json.Marshal(startRunRequest{
		AssistantID: c.assistantID,
		Message:     message,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: marshal run request: %w", err)
	}
	url := fmt.Sprintf("%s/v1/sessions/%s/runs", c.apiURL, sessionID)
	return c.openStream(ctx, url, payload)
}

type toolResultRequest struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// SubmitToolResult hands a tool's textual result back to the run. It must
// succeed before the run can be resumed.
func (c *Client) SubmitToolResult(ctx context.Context, sessionID, runID, toolCallID, output string) error {
	payload, err := json.Marshal(toolResultRequest{
		ToolCallID: toolCallID,
		Output:     output,
	})
	if err != nil {
		return fmt.Errorf("assistant: marshal tool result: %w", err)
	}

	url := fmt.Sprintf("%s/v1/sessions/%s/runs/%s/tool_results", c.apiURL, sessionID, runID)
	resp, err := clients.DoWithRetry(ctx, c.client, func() (*http.Request, error) {
		return c.newRequest(ctx, url, payload)
	}, c.retry)
	if err != nil {
		return fmt.Errorf("assistant: submit tool result: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("assistant: submit tool result: %w", err)
	}
	return nil
}

type resumeRunRequest struct {
	Stream bool `json:"stream"`
}

// ResumeRun continues a run after its tool result has been submitted and
// returns the follow-up event stream.
func (c *Client) ResumeRun(ctx context.Context, sessionID, runID string) (Stream, error) {
	payload, err := json.Marshal(resumeRunRequest{Stream: true})
	if err != nil {
		return nil, fmt.Errorf("assistant: marshal resume request: %w", err)
	}
	url := fmt.Sprintf("%s/v1/sessions/%s/runs/%s/resume", c.apiURL, sessionID, runID)
	return c.openStream(ctx, url, payload)
}

func (c *Client) openStream(ctx context.Context, url string, payload []byte) (Stream, error) {
	req, err := c.newRequest(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant: request failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("assistant: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return newEventStream(resp.Body, c.logger), nil
}

func (c *Client) newRequest(ctx context.Context, url string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("assistant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
}
