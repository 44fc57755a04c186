package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/universal-adapter/hubctl/internal/api"
)

type fakeStream struct {
	frames    chan string
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		frames: make(chan string, 64),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Next() (string, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return "", io.EOF
		}
		return f, nil
	case <-s.closed:
		return "", errors.New("use of closed network connection")
	}
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) send(frames ...string) {
	for _, f := range frames {
		s.frames <- f
	}
}

type chatReply struct {
	resp *api.ChatResponse
	err  error
}

type fakeBackend struct {
	mu        sync.Mutex
	opened    chan *fakeStream
	openErr   error
	chatReqs  []api.ChatRequest
	replies   chan chatReply
	codeCalls []string
	code      *api.ToolCode
	codeErr   error
	search    *api.SearchResult
	searchErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		opened:  make(chan *fakeStream, 8),
		replies: make(chan chatReply, 8),
		search:  &api.SearchResult{Tools: []api.Tool{{Name: "get_weather"}}},
	}
}

func (b *fakeBackend) OpenDiscoveryStream(ctx context.Context, conversationID string) (FrameStream, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := newFakeStream()
	b.opened <- s
	return s, nil
}

// Chat blocks until the test replies; it ignores ctx so late replies can
// be delivered to superseded sessions.
func (b *fakeBackend) Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	b.mu.Lock()
	b.chatReqs = append(b.chatReqs, req)
	b.mu.Unlock()
	r := <-b.replies
	return r.resp, r.err
}

func (b *fakeBackend) SearchTools(ctx context.Context, query string, limit int) (*api.SearchResult, error) {
	return b.search, b.searchErr
}

func (b *fakeBackend) GetToolCode(ctx context.Context, name string) (*api.ToolCode, error) {
	b.mu.Lock()
	b.codeCalls = append(b.codeCalls, name)
	b.mu.Unlock()
	return b.code, b.codeErr
}

func (b *fakeBackend) chatRequests() []api.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.ChatRequest(nil), b.chatReqs...)
}

func (b *fakeBackend) codeRequests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.codeCalls...)
}

func (b *fakeBackend) reply(resp *api.ChatResponse, err error) {
	b.replies <- chatReply{resp: resp, err: err}
}

func (b *fakeBackend) nextStream(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-b.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("discovery stream was never opened")
		return nil
	}
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitSettled(t *testing.T, c *Correlator) Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return s
}
