package assistant

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/meridiantt/wayfarer/internal/logging"
)

// Stream is a finite sequence of logical run events. Recv returns io.EOF
// once the terminal sentinel has been read; the stream is not restartable.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

type eventStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	logger logging.Logger
}

func newEventStream(body io.ReadCloser, logger logging.Logger) Stream {
	return &eventStream{
		body:   body,
		reader: bufio.NewReader(body),
		logger: logger,
	}
}

func (s *eventStream) Close() error {
	return s.body.Close()
}

func (s *eventStream) Recv() (Event, error) {
	for {
		data, err := s.readEvent()
		if err != nil {
			return Event{}, err
		}
		payload := strings.TrimSpace(string(data))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return Event{}, io.EOF
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			// The wire may interleave keep-alive and partial frames that
			// are not standalone JSON; drop them and keep reading.
			if s.logger != nil {
				s.logger.WithError(err).WithField("frame", payload).Debug("Dropping malformed stream frame")
			}
			continue
		}
		if event.Type == "" {
			continue
		}
		return event, nil
	}
}

// readEvent reads one SSE event's data payload. Lines are buffered by the
// underlying reader, so a frame split across transport chunks is
// reassembled before any parse is attempted.
func (s *eventStream) readEvent() ([]byte, error) {
	var dataLines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if errors.Is(err, io.EOF) {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			return nil, io.EOF
		}
	}
}
