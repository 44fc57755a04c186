package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/universal-adapter/hubctl/internal/api"
)

const (
	connectedC1 = `{"type":"connected","conversation_id":"c1","source":"system","message":"connected"}`
	done        = "[DONE]"
)

func startSession(t *testing.T, b *fakeBackend, opts Options, prompt string) (*Correlator, *fakeStream) {
	t.Helper()
	c := New(b, opts)
	if _, err := c.Start(context.Background(), prompt); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return c, b.nextStream(t)
}

func TestScenarioA_ReusedTool(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather in Tokyo")

	stream.send(connectedC1)
	waitFor(t, "chat request", func() bool { return len(b.chatRequests()) == 1 })

	req := b.chatRequests()[0]
	if req.ConversationID != "c1" {
		t.Errorf("chat conversation_id = %q, want c1", req.ConversationID)
	}
	if req.Message != "weather in Tokyo" {
		t.Errorf("chat message = %q", req.Message)
	}

	b.reply(&api.ChatResponse{
		Response:       "15°C and cloudy.",
		ConversationID: "c1",
		ToolCalls:      []api.ToolCall{{Name: "get_weather"}},
	}, nil)
	stream.send(done)

	s := waitSettled(t, c)
	if !Reused(s) {
		t.Error("Reused() = false, want true")
	}
	if ForgeMode(s) {
		t.Error("ForgeMode() = true, want false")
	}
	if got := b.codeRequests(); len(got) != 0 {
		t.Errorf("code fetches = %v, want none", got)
	}
	if s.Phase != PhaseDone {
		t.Errorf("Phase = %s, want done", s.Phase)
	}
	if Answer(s) != "15°C and cloudy." {
		t.Errorf("Answer() = %q", Answer(s))
	}
}

func TestScenarioB_ForgedTool(t *testing.T) {
	b := newFakeBackend()
	b.code = &api.ToolCode{Name: "get_weather", Code: "def get_weather(): ...", Language: "python"}
	c, stream := startSession(t, b, Options{}, "weather in Tokyo")

	stream.send(connectedC1)
	waitFor(t, "chat request", func() bool { return len(b.chatRequests()) == 1 })
	b.reply(&api.ChatResponse{
		ConversationID: "c1",
		ToolCalls:      []api.ToolCall{{Name: "get_weather"}},
		ActionsLogged:  []api.Action{{Title: "MCP tool registered"}},
	}, nil)
	waitFor(t, "chat applied", func() bool { return c.Snapshot().ChatSettled })
	stream.send(done)

	s := waitSettled(t, c)
	if Reused(s) {
		t.Error("Reused() = true, want false")
	}
	if !ForgeMode(s) {
		t.Error("ForgeMode() = false, want true")
	}
	if got := b.codeRequests(); len(got) != 1 || got[0] != "get_weather" {
		t.Errorf("code fetches = %v, want exactly [get_weather]", got)
	}
	if s.ForgedTool == nil || s.ForgedTool.Code == "" || s.ForgedTool.Language != "python" {
		t.Errorf("ForgedTool = %+v, want code populated", s.ForgedTool)
	}
}

func TestScenarioB_ChatAfterSentinel(t *testing.T) {
	b := newFakeBackend()
	b.code = &api.ToolCode{Code: "x", Language: "python"}
	c, stream := startSession(t, b, Options{}, "weather")

	stream.send(connectedC1, done)
	waitFor(t, "stream finished", func() bool { return !c.Snapshot().Loading })

	b.reply(&api.ChatResponse{
		ConversationID: "c1",
		ToolCalls:      []api.ToolCall{{Name: "get_weather"}},
		ActionsLogged:  []api.Action{{Title: "MCP tool registered"}},
	}, nil)

	s := waitSettled(t, c)
	if got := b.codeRequests(); len(got) != 1 {
		t.Errorf("code fetches = %v, want exactly one", got)
	}
	if s.ForgedTool == nil || s.ForgedTool.Name != "get_weather" {
		t.Errorf("ForgedTool = %+v", s.ForgedTool)
	}
}

func TestScenarioC_NoConversationID(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")

	stream.send(
		`{"type":"tool_call","source":"agent","message":"calling","tool_name":"get_weather"}`,
		`{"type":"tool_result","source":"agent","message":"ok","tool_name":"get_weather","status":"success"}`,
	)
	waitFor(t, "events", func() bool { return len(c.Snapshot().Events) == 2 })
	if n := len(b.chatRequests()); n != 0 {
		t.Fatalf("chat issued %d times before a conversation id", n)
	}

	stream.send(done)
	s := waitSettled(t, c)
	if s.Error != ErrNoConversation.Error() {
		t.Errorf("Error = %q, want %q", s.Error, ErrNoConversation.Error())
	}
	if s.Loading {
		t.Error("Loading should be cleared")
	}
	if s.Phase != PhaseIdle {
		t.Errorf("Phase = %s, want idle", s.Phase)
	}
	if n := len(b.chatRequests()); n != 0 {
		t.Errorf("chat issued %d times, want 0", n)
	}
}

func TestScenarioC_LateConnected(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")

	stream.send(`{"type":"tool_call","source":"agent","message":"calling","tool_name":"get_weather"}`)
	waitFor(t, "first event", func() bool { return len(c.Snapshot().Events) == 1 })
	if len(b.chatRequests()) != 0 {
		t.Fatal("chat issued before a conversation id")
	}

	stream.send(connectedC1)
	waitFor(t, "chat request", func() bool { return len(b.chatRequests()) == 1 })
	if got := c.Snapshot().Phase; got != PhaseDiscovering {
		t.Errorf("Phase = %s, want discovering", got)
	}
}

func TestScenarioD_SentinelBeforeChat(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")

	stream.send(
		connectedC1,
		`{"type":"assistant_message","source":"agent","message":"thinking","content":"Looking it up"}`,
		done,
	)
	waitFor(t, "stream finished", func() bool { return !c.Snapshot().Loading })

	s := c.Snapshot()
	if s.Chat != nil {
		t.Fatal("chat result should still be pending")
	}
	if s.Settled() {
		t.Error("session should not be settled while chat is pending")
	}

	b.reply(&api.ChatResponse{Response: "Sunny", ConversationID: "c1"}, nil)
	s = waitSettled(t, c)
	if Answer(s) != "Sunny" {
		t.Errorf("Answer() = %q, want Sunny", Answer(s))
	}
	if len(Transcript(s)) != 1 {
		t.Errorf("Transcript() len = %d, want 1", len(Transcript(s)))
	}
}

func TestChatIssuedAtMostOnce(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")

	stream.send(
		connectedC1,
		`{"conversation_id":"c1","source":"agent","message":"step one"}`,
		`{"conversation_id":"c2","source":"agent","message":"step two"}`,
	)
	waitFor(t, "events", func() bool { return len(c.Snapshot().Events) == 3 })

	if n := len(b.chatRequests()); n != 1 {
		t.Errorf("chat issued %d times, want 1", n)
	}
	if got := c.Snapshot().ConversationID; got != "c1" {
		t.Errorf("ConversationID = %q, want c1 (immutable)", got)
	}
}

func TestLoadingClearedExactlyOnce(t *testing.T) {
	b := newFakeBackend()
	c := New(b, Options{})

	var mu sync.Mutex
	clears := 0
	last := false
	c.OnUpdate(func(s Session) {
		mu.Lock()
		defer mu.Unlock()
		if last && !s.Loading {
			clears++
		}
		last = s.Loading
	})

	if _, err := c.Start(context.Background(), "weather"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stream := b.nextStream(t)
	stream.send(connectedC1)
	for i := 0; i < 10; i++ {
		stream.send(`{"source":"agent","message":"working"}`)
	}
	stream.send(done, done)
	b.reply(&api.ChatResponse{ConversationID: "c1"}, nil)
	waitSettled(t, c)
	waitFor(t, "loading cleared", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return clears > 0
	})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if clears != 1 {
		t.Errorf("Loading cleared %d times, want 1", clears)
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")

	stream.send(
		connectedC1,
		`{"type":"assistant_message","source":"agent","content":"first"}`,
		`{not json`,
		`{"type":"keepalive"}`,
		`{"type":"tool_call","source":"agent","tool_name":"get_weather"}`,
		done,
	)
	b.reply(&api.ChatResponse{ConversationID: "c1"}, nil)
	s := waitSettled(t, c)

	tr := Transcript(s)
	if len(tr) != 2 {
		t.Fatalf("Transcript() len = %d, want 2", len(tr))
	}
	if tr[0].Kind() != KindAssistantMessage || tr[1].Kind() != KindToolCall {
		t.Errorf("Transcript() kinds = %s, %s", tr[0].Kind(), tr[1].Kind())
	}
	if s.Error != "" {
		t.Errorf("Error = %q, want none", s.Error)
	}
}

func TestNewSessionIgnoresStaleChat(t *testing.T) {
	b := newFakeBackend()
	c, first := startSession(t, b, Options{}, "old question")

	first.send(connectedC1, done)
	waitFor(t, "first stream finished", func() bool { return !c.Snapshot().Loading })

	if _, err := c.Start(context.Background(), "new question"); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	second := b.nextStream(t)
	if n := first.closes.Load(); n != 1 {
		t.Errorf("first stream closed %d times, want 1", n)
	}

	// Late answer for the superseded conversation.
	b.reply(&api.ChatResponse{Response: "old answer", ConversationID: "c1"}, nil)
	time.Sleep(50 * time.Millisecond)

	s := c.Snapshot()
	if s.Prompt != "new question" {
		t.Fatalf("Prompt = %q", s.Prompt)
	}
	if s.Chat != nil || Answer(s) != "" {
		t.Errorf("stale chat response applied: %q", Answer(s))
	}

	second.send(`{"type":"connected","conversation_id":"c2","source":"system"}`)
	waitFor(t, "second chat", func() bool { return len(b.chatRequests()) == 2 })
	b.reply(&api.ChatResponse{Response: "new answer", ConversationID: "c2"}, nil)
	second.send(done)
	s = waitSettled(t, c)
	if Answer(s) != "new answer" {
		t.Errorf("Answer() = %q, want new answer", Answer(s))
	}
}

func TestApplyChat_StaleGeneration(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")
	stream.send(connectedC1)
	waitFor(t, "chat request", func() bool { return len(b.chatRequests()) == 1 })

	gen := c.Snapshot().Generation
	c.applyChat(gen+1, &api.ChatResponse{Response: "wrong"}, nil)
	if c.Snapshot().Chat != nil {
		t.Error("response for another generation must be ignored")
	}

	c.applyChat(gen, &api.ChatResponse{Response: "other", ConversationID: "zzz"}, nil)
	s := c.Snapshot()
	if s.Chat != nil {
		t.Error("response for another conversation must not be applied")
	}
	if !strings.Contains(s.Error, "does not match") {
		t.Errorf("Error = %q", s.Error)
	}
}

func TestStartWhileLoading(t *testing.T) {
	b := newFakeBackend()
	c, _ := startSession(t, b, Options{}, "weather")

	if _, err := c.Start(context.Background(), "again"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Start() error = %v, want ErrSessionBusy", err)
	}
	if _, err := New(b, Options{}).Start(context.Background(), "   "); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("Start() error = %v, want ErrEmptyPrompt", err)
	}
}

func TestStreamOpenFailure(t *testing.T) {
	b := newFakeBackend()
	b.openErr = &api.Error{Op: "discovery stream", Status: 503, Message: "stream offline"}
	c := New(b, Options{})
	if _, err := c.Start(context.Background(), "weather"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	s := waitSettled(t, c)
	if s.Error != "stream offline" {
		t.Errorf("Error = %q, want stream offline", s.Error)
	}
	if s.Loading || s.Phase != PhaseIdle {
		t.Errorf("Loading = %v, Phase = %s", s.Loading, s.Phase)
	}
}

func TestStreamErrorBeforeCorrelation(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")

	close(stream.frames)
	s := waitSettled(t, c)
	if s.Error != "discovery stream connection failed" {
		t.Errorf("Error = %q", s.Error)
	}
	if n := stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}
}

func TestStreamErrorAfterCorrelation(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")

	stream.send(connectedC1)
	waitFor(t, "chat request", func() bool { return len(b.chatRequests()) == 1 })
	close(stream.frames)
	waitFor(t, "stream closed", func() bool { return c.Snapshot().StreamClosed })

	s := c.Snapshot()
	if s.Error != "" {
		t.Errorf("Error = %q, want none after correlation", s.Error)
	}
	if !s.Loading {
		t.Error("Loading should stay set until the chat completes")
	}

	b.reply(&api.ChatResponse{Response: "Sunny", ConversationID: "c1"}, nil)
	s = waitSettled(t, c)
	if s.Loading || s.Phase != PhaseDone || Answer(s) != "Sunny" {
		t.Errorf("Loading = %v, Phase = %s, Answer = %q", s.Loading, s.Phase, Answer(s))
	}
}

func TestChatFailureKeepsTranscript(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")

	stream.send(connectedC1, `{"type":"assistant_message","source":"agent","content":"partial"}`)
	waitFor(t, "chat request", func() bool { return len(b.chatRequests()) == 1 })
	b.reply(nil, &api.Error{Op: "chat", Status: 500, Message: "model unavailable"})
	stream.send(done)

	s := waitSettled(t, c)
	if s.Error != "chat: model unavailable" {
		t.Errorf("Error = %q", s.Error)
	}
	if len(Transcript(s)) != 1 {
		t.Errorf("transcript was rolled back")
	}
	if s.Phase != PhaseDone {
		t.Errorf("Phase = %s, want done", s.Phase)
	}
}

func TestFirstErrorWins(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")
	stream.send(connectedC1)
	waitFor(t, "chat request", func() bool { return len(b.chatRequests()) == 1 })

	gen := c.Snapshot().Generation
	c.mu.Lock()
	c.setErrorLocked("first")
	c.setErrorLocked("second")
	c.mu.Unlock()
	c.applyChat(gen, nil, errors.New("third"))

	if got := c.Snapshot().Error; got != "first" {
		t.Errorf("Error = %q, want first", got)
	}
}

func TestCodeFetchFailureDegrades(t *testing.T) {
	b := newFakeBackend()
	b.codeErr = &api.Error{Op: "get tool code", Status: 404, Message: "Not Found"}
	c, stream := startSession(t, b, Options{}, "build a weather tool")

	stream.send(connectedC1, `{"source":"mcp","message":"Tool 'get_weather' registered in marketplace"}`, done)
	b.reply(&api.ChatResponse{ConversationID: "c1"}, nil)

	s := waitSettled(t, c)
	if s.Error != "" {
		t.Errorf("Error = %q, want none", s.Error)
	}
	if s.ForgedTool == nil || s.ForgedTool.Name != "get_weather" || !s.ForgedTool.CodeUnavailable {
		t.Errorf("ForgedTool = %+v, want get_weather with code unavailable", s.ForgedTool)
	}
	if got := b.codeRequests(); len(got) != 1 {
		t.Errorf("code fetches = %v, want one", got)
	}
}

func TestWatchdog(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{Watchdog: 50 * time.Millisecond}, "weather")

	s := waitSettled(t, c)
	if s.Error != ErrWatchdog.Error() {
		t.Errorf("Error = %q, want %q", s.Error, ErrWatchdog.Error())
	}
	if n := stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}
}

func TestMaxEvents(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{MaxEvents: 3}, "weather")

	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		stream.send(`{"source":"agent","message":"` + msg + `"}`)
	}
	waitFor(t, "events", func() bool {
		ev := c.Snapshot().Events
		return len(ev) == 3 && ev[2].Info().Message == "five"
	})
	snap := c.Snapshot()
	if got := snap.Events[0].Info().Message; got != "three" {
		t.Errorf("oldest retained event = %q, want three", got)
	}
	if snap.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", snap.Dropped)
	}
}

func TestPhaseFromSteps(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "build it")

	stream.send(connectedC1, `{"source":"agent","message":"forging tool","metadata":{"step":"forging"}}`)
	waitFor(t, "forging", func() bool { return c.Snapshot().Phase == PhaseForging })
	if !ForgeMode(c.Snapshot()) {
		t.Error("ForgeMode() should be true while forging")
	}

	stream.send(`{"source":"agent","message":"back to discovery","step":"discovering"}`)
	waitFor(t, "event", func() bool { return len(c.Snapshot().Events) == 3 })
	if got := c.Snapshot().Phase; got != PhaseForging {
		t.Errorf("Phase = %s, phases must not move backwards", got)
	}
}

func TestCancel(t *testing.T) {
	b := newFakeBackend()
	c, stream := startSession(t, b, Options{}, "weather")
	stream.send(connectedC1)
	waitFor(t, "chat request", func() bool { return len(b.chatRequests()) == 1 })

	before := c.Snapshot()
	c.Cancel()
	s := waitSettled(t, c)
	if s.Loading {
		t.Error("Loading should be cleared by Cancel")
	}
	if !s.Cancelled || s.Generation != before.Generation {
		t.Errorf("Cancelled = %v, Generation = %d, want true and %d", s.Cancelled, s.Generation, before.Generation)
	}
	if len(s.Events) != len(before.Events) || s.Error != "session cancelled" {
		t.Errorf("cancelled session should keep its events and record the error: events = %d, Error = %q", len(s.Events), s.Error)
	}
	c.Cancel()
	if got := c.Snapshot(); got.Version != s.Version {
		t.Error("a second Cancel should be a no-op")
	}
	if n := stream.closes.Load(); n != 1 {
		t.Errorf("stream closed %d times, want 1", n)
	}

	b.reply(&api.ChatResponse{Response: "late", ConversationID: "c1"}, nil)
	time.Sleep(50 * time.Millisecond)
	if c.Snapshot().Chat != nil {
		t.Error("chat after Cancel must be ignored")
	}

	gen, err := c.Start(context.Background(), "next")
	if err != nil {
		t.Fatalf("Start() after Cancel error = %v", err)
	}
	if next := c.Snapshot(); gen != before.Generation+1 || next.Cancelled {
		t.Errorf("new session: gen = %d, Cancelled = %v", gen, next.Cancelled)
	}
}

func TestSuggestions(t *testing.T) {
	b := newFakeBackend()
	c, _ := startSession(t, b, Options{}, "weather")
	waitFor(t, "suggestions", func() bool { return len(c.Snapshot().Suggestions) == 1 })

	b2 := newFakeBackend()
	b2.searchErr = errors.New("search down")
	c2, stream := startSession(t, b2, Options{}, "weather")
	stream.send(`{"type":"connected","conversation_id":"c1","source":"system"}`, done)
	b2.reply(&api.ChatResponse{ConversationID: "c1"}, nil)
	s := waitSettled(t, c2)
	if s.Error != "" || len(s.Suggestions) != 0 {
		t.Errorf("search failure should be silent: Error = %q, Suggestions = %d", s.Error, len(s.Suggestions))
	}
}
