package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_Next(t *testing.T) {
	body := strings.Join([]string{
		": keep-alive",
		"",
		"data: {\"conversation_id\":\"c1\"}",
		"",
		"event: log",
		"id: 7",
		"data:{\"message\":\"line one\"}",
		"",
		"data: first",
		"data: second",
		"",
		"data: [DONE]",
	}, "\r\n")

	s := NewStream(io.NopCloser(strings.NewReader(body)))

	var got []string
	for {
		frame, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, frame)
	}

	assert.Equal(t, []string{
		`{"conversation_id":"c1"}`,
		`{"message":"line one"}`,
		"first\nsecond",
		DoneSentinel,
	}, got)
}

type closeCounter struct {
	io.Reader
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestStream_CloseOnce(t *testing.T) {
	cc := &closeCounter{Reader: strings.NewReader("")}
	s := NewStream(cc)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, cc.closes)
}

func TestOpenDiscoveryStream(t *testing.T) {
	var query string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/discovery/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		query = r.URL.Query().Get("conversation_id")
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"conversation_id\":\"c9\",\"source\":\"system\"}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})

	s, err := c.OpenDiscoveryStream(context.Background(), "c9")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, "c9", query)

	first, err := s.Next()
	require.NoError(t, err)
	assert.Contains(t, first, `"c9"`)

	second, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, DoneSentinel, second)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenDiscoveryStream_HTTPError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"DOWN","message":"stream offline"}}`))
	})

	_, err := c.OpenDiscoveryStream(context.Background(), "")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "stream offline", apiErr.Message)
}
