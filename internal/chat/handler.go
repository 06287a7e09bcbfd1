package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridiantt/wayfarer/internal/assistant"
	"github.com/meridiantt/wayfarer/internal/logging"
)

const maxMessageRunes = 10000

type ChatHandler struct {
	Assistant         *assistant.Client
	Bridge            *Bridge
	Gate              *SessionGate
	Logger            logging.Logger
	KeepAliveInterval time.Duration
}

type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type sseToken struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type sseDone struct {
	Type string `json:"type"`
}

func NewChatHandler(client *assistant.Client, bridge *Bridge, gate *SessionGate, logger logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &ChatHandler{
		Assistant:         client,
		Bridge:            bridge,
		Gate:              gate,
		Logger:            logger,
		KeepAliveInterval: 15 * time.Second,
	}
}

func RegisterRoutes(router gin.IRoutes, handler *ChatHandler) {
	router.POST("/chat", handler.HandleChat)
}

func (h *ChatHandler) HandleChat(c *gin.Context) {
	startedAt := time.Now()
	if h == nil || h.Bridge == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "handler unavailable"})
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if len([]rune(req.Message)) > maxMessageRunes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	ctx := c.Request.Context()

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(c.GetHeader("X-Session-ID"))
	}
	if sessionID == "" {
		var err error
		sessionID, err = h.Assistant.CreateSession(ctx)
		if err != nil {
			h.Logger.WithError(err).Error("Failed to create assistant session")
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create session"})
			return
		}
	}

	if !h.Gate.TryAdmit(sessionID) {
		turnsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "a turn is already in progress for this session"})
		return
	}
	defer h.Gate.Release(sessionID)

	streamer, err := newSSEStreamer(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unavailable"})
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Session-ID", sessionID)
	c.Status(http.StatusOK)

	// Keep-alive comments stop proxies from cutting the stream during the
	// slow search window.
	stopKeepAlive := streamer.startKeepAlive(h.keepAliveInterval())
	defer stopKeepAlive()

	turnsActive.Inc()
	result, err := h.Bridge.RunTurn(ctx, sessionID, req.Message, streamer)
	turnsActive.Dec()
	turnDuration.Observe(time.Since(startedAt).Seconds())

	if err != nil {
		turnsTotal.WithLabelValues("errored").Inc()
		h.Logger.WithError(err).WithFields(logging.Fields{
			"session_id": sessionID,
			"state":      string(result.State),
		}).Warn("Chat turn failed")
		_ = streamer.SendError("An error occurred processing your request.")
		return
	}

	turnsTotal.WithLabelValues("completed").Inc()
	h.Logger.WithFields(logging.Fields{
		"session_id": sessionID,
		"run_id":     result.RunID,
		"tools":      strings.Join(result.ToolCalls, ","),
		"duration":   time.Since(startedAt).String(),
	}).Info("Chat turn completed")
	_ = streamer.SendDone()
}

func (h *ChatHandler) keepAliveInterval() time.Duration {
	if h.KeepAliveInterval > 0 {
		return h.KeepAliveInterval
	}
	return 15 * time.Second
}

// sseStreamer writes JSON SSE frames to the client. Writes are
// serialized so the keep-alive ticker can share the connection, and the
// stream is latched after its first terminal frame: exactly one of done or
// error reaches the client, everything after is dropped.
type sseStreamer struct {
	mu       sync.Mutex
	writer   http.ResponseWriter
	flusher  http.Flusher
	terminal bool
}

func newSSEStreamer(writer http.ResponseWriter) (*sseStreamer, error) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	return &sseStreamer{writer: writer, flusher: flusher}, nil
}

func (s *sseStreamer) SendToken(token string) error {
	return s.send(sseToken{Type: "token", Content: token})
}

func (s *sseStreamer) SendToolStart(tool string) error {
	return s.send(map[string]string{"type": "tool_start", "tool": tool})
}

func (s *sseStreamer) SendToolEnd(tool string) error {
	return s.send(map[string]string{"type": "tool_end", "tool": tool})
}

func (s *sseStreamer) SendError(msg string) error {
	return s.sendTerminal(map[string]string{"type": "error", "message": msg})
}

func (s *sseStreamer) SendDone() error {
	return s.sendTerminal(sseDone{Type: "done"})
}

func (s *sseStreamer) startKeepAlive(interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.comment("keep-alive")
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (s *sseStreamer) send(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return nil
	}
	return s.write(payload)
}

func (s *sseStreamer) sendTerminal(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return nil
	}
	s.terminal = true
	if err := s.write(payload); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.writer, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStreamer) comment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	if _, err := fmt.Fprintf(s.writer, ": %s\n\n", text); err != nil {
		return
	}
	s.flusher.Flush()
}

func (s *sseStreamer) write(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
