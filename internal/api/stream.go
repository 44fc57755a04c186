package api

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// DoneSentinel is the data payload that terminates a discovery stream
const DoneSentinel = "[DONE]"

const maxFrameSize = 1 << 20

// Stream reads server-sent events from an open discovery connection.
// It is owned by one reader; Close may be called from any goroutine.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	closeOnce sync.Once
	closeErr  error
}

// OpenDiscoveryStream opens GET /api/discovery/stream. The connection lives
// until Close, EOF, or ctx is cancelled.
func (c *Client) OpenDiscoveryStream(ctx context.Context, conversationID string) (*Stream, error) {
	req := c.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if conversationID != "" {
		req.SetQueryParam("conversation_id", conversationID)
	}

	resp, err := req.Get("/api/discovery/stream")
	if err != nil {
		return nil, fmt.Errorf("discovery stream: %w", err)
	}
	body := resp.RawBody()
	if resp.IsError() {
		var data []byte
		if body != nil {
			data, _ = io.ReadAll(io.LimitReader(body, 64<<10))
			_ = body.Close()
		}
		return nil, newError("discovery stream", "STREAM_ERROR", resp.StatusCode(), resp.Status(), data)
	}
	if body == nil {
		return nil, fmt.Errorf("discovery stream: empty response body")
	}
	return NewStream(body), nil
}

// NewStream wraps an event-stream body
func NewStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Stream{body: body, scanner: scanner}
}

// Next returns the data of the next event. Multi-line data fields are
// joined with "\n"; comments and other fields are skipped. It returns
// io.EOF when the server closes the connection cleanly.
func (s *Stream) Next() (string, error) {
	var data []string
	hasData := false

	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")

		if line == "" {
			if hasData {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			value = ""
		}
		value = strings.TrimPrefix(value, " ")

		if field == "data" {
			data = append(data, value)
			hasData = true
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	// Flush an event the server did not terminate with a blank line.
	if hasData {
		return strings.Join(data, "\n"), nil
	}
	return "", io.EOF
}

// Close releases the connection. Only the first call has an effect.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
