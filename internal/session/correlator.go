package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/universal-adapter/hubctl/internal"
	"github.com/universal-adapter/hubctl/internal/api"
)

var (
	// ErrSessionBusy is returned by Start while a session is still loading
	ErrSessionBusy = errors.New("session: a session is already loading")
	// ErrEmptyPrompt is returned by Start for a blank prompt
	ErrEmptyPrompt = errors.New("session: empty prompt")
	// ErrWatchdog is the stream error reported when the watchdog fires
	ErrWatchdog = errors.New("discovery stream timed out")
	// ErrNoConversation is the stream error reported when the stream ends
	// before announcing a conversation id
	ErrNoConversation = errors.New("discovery stream ended before a conversation id was received")
)

// Options tune a Correlator
type Options struct {
	// MaxEvents caps the retained event list; oldest events are dropped
	MaxEvents int
	// Watchdog bounds the lifetime of the discovery stream; 0 disables it
	Watchdog time.Duration
	// SearchLimit is the number of advisory tool suggestions to fetch
	SearchLimit int
	// View is sent to the agent as the chat context
	View string
}

// DefaultOptions returns the defaults used by the CLI
func DefaultOptions() Options {
	return Options{
		MaxEvents:   50,
		Watchdog:    2 * time.Minute,
		SearchLimit: 5,
		View:        "dashboard",
	}
}

// Correlator owns the discovery stream of the active session and the chat
// call correlated with it. All state mutations happen under mu; observers
// are called with copies outside it.
type Correlator struct {
	backend Backend
	opts    Options

	mu        sync.Mutex
	state     Session
	ctx       context.Context
	cancel    context.CancelFunc
	stream    *ownedStream
	settled   chan struct{}
	settledOK bool

	notifyMu     sync.Mutex
	observers    []func(Session)
	lastNotified uint64
}

// New creates a Correlator
func New(backend Backend, opts Options) *Correlator {
	def := DefaultOptions()
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = def.MaxEvents
	}
	if opts.Watchdog < 0 {
		opts.Watchdog = 0
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = def.SearchLimit
	}
	if opts.View == "" {
		opts.View = def.View
	}
	return &Correlator{
		backend: backend,
		opts:    opts,
		state:   Session{Phase: PhaseIdle},
	}
}

// OnUpdate registers fn to receive a snapshot after every state change.
// Snapshots are delivered in order; stale ones are skipped.
func (c *Correlator) OnUpdate(fn func(Session)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Start begins a new session for prompt and returns its generation. It
// returns immediately; progress is reported through OnUpdate. ctx bounds
// every request the session makes.
func (c *Correlator) Start(ctx context.Context, prompt string) (uint64, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return 0, ErrEmptyPrompt
	}

	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return 0, ErrSessionBusy
	}
	c.teardownLocked()

	gen := c.state.Generation + 1
	sessCtx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = sessCtx, cancel
	c.settled = make(chan struct{})
	c.settledOK = false
	c.state = Session{
		Generation: gen,
		Version:    c.state.Version + 1,
		Prompt:     prompt,
		Phase:      PhaseChecking,
		Loading:    true,
		StartedAt:  time.Now(),
	}
	snap := c.state.Clone()
	c.mu.Unlock()

	internal.LogDebug("session %d: started", gen)
	c.notify(snap)

	go c.readStream(sessCtx, gen)
	go c.searchTools(sessCtx, gen, prompt)
	return gen, nil
}

// HandleFrame applies one raw stream frame to session gen. It reports true
// once the stream should no longer be read.
func (c *Correlator) HandleFrame(gen uint64, raw string) bool {
	if strings.TrimSpace(raw) == api.DoneSentinel {
		c.finalize(gen)
		return true
	}

	ev, ok := ParseEvent(raw)

	c.mu.Lock()
	if !c.currentLocked(gen) || c.state.StreamClosed {
		c.mu.Unlock()
		return true
	}
	if !ok {
		c.mu.Unlock()
		return false
	}

	info := ev.Info()
	var chatReq *api.ChatRequest
	if info.ConversationID != "" && !c.state.ChatIssued {
		c.state.ConversationID = info.ConversationID
		c.state.ChatIssued = true
		c.state.Phase = c.state.Phase.Advance(PhaseDiscovering)
		chatReq = &api.ChatRequest{
			Message:        c.state.Prompt,
			ConversationID: info.ConversationID,
			Context:        &api.ChatContext{UIMode: "cli", View: c.opts.View},
		}
	}

	c.appendLocked(ev)
	if name := registeredToolName(ev); name != "" && c.state.RegisteredTool == "" {
		c.state.RegisteredTool = name
		if c.state.ForgedTool == nil {
			c.state.ForgedTool = &ForgedTool{Name: name}
		}
	}
	if p, ok := ParsePhase(info.Step); ok {
		c.state.Phase = c.state.Phase.Advance(p)
	}

	ctx := c.ctx
	snap := c.bumpLocked()
	c.mu.Unlock()

	c.notify(snap)
	if chatReq != nil {
		internal.LogDebug("session %d: correlated with conversation %s", gen, chatReq.ConversationID)
		go c.issueChat(ctx, gen, *chatReq)
	}
	return false
}

// HandleStreamError reports that the stream of session gen failed. Before
// correlation this fails the session; afterwards the chat call may still
// complete it.
func (c *Correlator) HandleStreamError(gen uint64, err error) {
	c.mu.Lock()
	if !c.currentLocked(gen) || c.state.StreamClosed {
		c.mu.Unlock()
		return
	}
	c.closeStreamLocked()
	c.state.StreamClosed = true

	var fetch string
	if !c.state.ChatIssued {
		c.setErrorLocked(errorMessage(err))
		c.state.Phase = PhaseIdle
		c.state.Loading = false
		c.state.FinishedAt = time.Now()
	} else {
		internal.LogDebug("session %d: stream error after correlation: %v", gen, err)
		if c.state.ChatSettled {
			c.state.Loading = false
			c.state.Phase = c.state.Phase.Advance(PhaseDone)
			c.state.FinishedAt = time.Now()
		}
		fetch = c.codeFetchLocked()
	}

	ctx := c.ctx
	c.settleLocked()
	snap := c.bumpLocked()
	c.mu.Unlock()

	c.notify(snap)
	if fetch != "" {
		go c.fetchCode(ctx, gen, fetch)
	}
}

// finalize ends session gen on the termination sentinel
func (c *Correlator) finalize(gen uint64) {
	c.mu.Lock()
	if !c.currentLocked(gen) || c.state.StreamClosed {
		c.mu.Unlock()
		return
	}
	c.closeStreamLocked()
	c.state.StreamClosed = true
	c.state.Loading = false
	c.state.FinishedAt = time.Now()

	var fetch string
	if !c.state.ChatIssued {
		c.setErrorLocked(ErrNoConversation.Error())
		c.state.Phase = PhaseIdle
	} else {
		c.state.Phase = PhaseDone
		fetch = c.codeFetchLocked()
	}

	ctx := c.ctx
	c.settleLocked()
	snap := c.bumpLocked()
	c.mu.Unlock()

	internal.LogDebug("session %d: stream finished", gen)
	c.notify(snap)
	if fetch != "" {
		go c.fetchCode(ctx, gen, fetch)
	}
}

func (c *Correlator) issueChat(ctx context.Context, gen uint64, req api.ChatRequest) {
	resp, err := c.backend.Chat(ctx, req)
	c.applyChat(gen, resp, err)
}

// applyChat records the chat outcome if it still belongs to session gen
func (c *Correlator) applyChat(gen uint64, resp *api.ChatResponse, err error) {
	c.mu.Lock()
	if !c.currentLocked(gen) || c.state.ChatSettled {
		c.mu.Unlock()
		internal.LogDebug("session %d: dropping stale chat response", gen)
		return
	}
	c.state.ChatSettled = true

	switch {
	case err != nil:
		c.setErrorLocked("chat: " + errorMessage(err))
	case resp == nil:
		c.setErrorLocked("chat: empty response")
	case resp.ConversationID != "" && resp.ConversationID != c.state.ConversationID:
		c.setErrorLocked(fmt.Sprintf("chat: response for conversation %s does not match %s",
			resp.ConversationID, c.state.ConversationID))
	default:
		c.state.Chat = resp
		if name := chatForgedTool(resp); name != "" && !c.state.CodeRequested {
			c.state.ForgedTool = &ForgedTool{Name: name}
		}
		for _, step := range resp.WorkflowSteps {
			if p, ok := ParsePhase(step.Step); ok {
				c.state.Phase = c.state.Phase.Advance(p)
			}
		}
	}

	// A stream that died after correlation leaves completion to the chat.
	if c.state.StreamClosed && c.state.Loading {
		c.state.Loading = false
		c.state.Phase = c.state.Phase.Advance(PhaseDone)
		c.state.FinishedAt = time.Now()
	}

	fetch := c.codeFetchLocked()
	ctx := c.ctx
	c.settleLocked()
	snap := c.bumpLocked()
	c.mu.Unlock()

	c.notify(snap)
	if fetch != "" {
		go c.fetchCode(ctx, gen, fetch)
	}
}

// codeFetchLocked claims the one code fetch of the session once the stream
// is closed and a forged tool is known
func (c *Correlator) codeFetchLocked() string {
	if !c.state.StreamClosed || c.state.CodeRequested || c.state.ForgedTool == nil {
		return ""
	}
	c.state.CodeRequested = true
	return c.state.ForgedTool.Name
}

func (c *Correlator) fetchCode(ctx context.Context, gen uint64, name string) {
	code, err := c.backend.GetToolCode(ctx, name)

	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.state.CodeSettled = true
	if ft := c.state.ForgedTool; ft != nil && ft.Name == name {
		switch {
		case err != nil:
			internal.LogDebug("session %d: code for %s unavailable: %v", gen, name, err)
			ft.CodeUnavailable = true
		case code == nil || code.Code == "":
			ft.CodeUnavailable = true
		default:
			ft.Code = code.Code
			ft.Language = code.Language
		}
	}
	c.settleLocked()
	snap := c.bumpLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// searchTools fetches advisory suggestions; failures are ignored
func (c *Correlator) searchTools(ctx context.Context, gen uint64, prompt string) {
	res, err := c.backend.SearchTools(ctx, prompt, c.opts.SearchLimit)
	if err != nil {
		internal.LogDebug("session %d: tool search failed: %v", gen, err)
		return
	}
	if res == nil {
		return
	}

	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.state.Suggestions = res.Tools
	snap := c.bumpLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// readStream opens the discovery stream for session gen and feeds every
// frame to HandleFrame until the stream ends
func (c *Correlator) readStream(ctx context.Context, gen uint64) {
	if c.opts.Watchdog > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Watchdog)
		defer cancel()
	}

	fs, err := c.backend.OpenDiscoveryStream(ctx, "")
	if err != nil {
		c.HandleStreamError(gen, streamError(ctx, "open", err))
		return
	}
	stream := &ownedStream{FrameStream: fs}
	if !c.attach(gen, stream) {
		_ = stream.Close()
		return
	}
	// Unblocks Next when the session is superseded or the watchdog fires.
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	for {
		frame, err := stream.Next()
		if err != nil {
			c.HandleStreamError(gen, streamError(ctx, "read", err))
			return
		}
		if c.HandleFrame(gen, frame) {
			return
		}
	}
}

func (c *Correlator) attach(gen uint64, stream *ownedStream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) || c.state.StreamClosed {
		return false
	}
	c.stream = stream
	return true
}

func streamError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrWatchdog
	}
	return &internal.StreamError{Op: op, Err: err}
}

// Cancel abandons the active session. Its connection is closed and any
// result still in flight is ignored.
func (c *Correlator) Cancel() {
	c.mu.Lock()
	if c.state.Generation == 0 || c.state.Cancelled {
		c.mu.Unlock()
		return
	}
	if c.state.Loading {
		c.setErrorLocked("session cancelled")
		c.state.Loading = false
		c.state.StreamClosed = true
		c.state.Phase = PhaseIdle
		c.state.FinishedAt = time.Now()
	}
	c.state.Cancelled = true
	c.teardownLocked()
	snap := c.bumpLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// Wait blocks until the active session is settled or ctx is done, then
// returns a snapshot
func (c *Correlator) Wait(ctx context.Context) (Session, error) {
	c.mu.Lock()
	ch := c.settled
	c.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
	return c.Snapshot(), nil
}

// Snapshot returns a copy of the current session
func (c *Correlator) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

func (c *Correlator) currentLocked(gen uint64) bool {
	return gen != 0 && gen == c.state.Generation && !c.state.Cancelled
}

func (c *Correlator) appendLocked(ev Event) {
	c.state.Events = append(c.state.Events, ev)
	if over := len(c.state.Events) - c.opts.MaxEvents; over > 0 {
		c.state.Events = append([]Event(nil), c.state.Events[over:]...)
		c.state.Dropped += over
	}
}

// setErrorLocked keeps the first error of the session
func (c *Correlator) setErrorLocked(msg string) {
	if c.state.Error != "" {
		internal.LogDebug("session %d: suppressed error: %s", c.state.Generation, msg)
		return
	}
	c.state.Error = msg
	internal.LogWarn("session %d: %s", c.state.Generation, msg)
}

func (c *Correlator) closeStreamLocked() {
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
}

// teardownLocked cancels the active session's requests and releases its
// connection and waiters
func (c *Correlator) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.closeStreamLocked()
	c.releaseWaitersLocked()
}

func (c *Correlator) settleLocked() {
	if c.state.Settled() {
		c.releaseWaitersLocked()
	}
}

func (c *Correlator) releaseWaitersLocked() {
	if c.settled != nil && !c.settledOK {
		close(c.settled)
		c.settledOK = true
	}
}

func (c *Correlator) bumpLocked() Session {
	c.state.Version++
	return c.state.Clone()
}

func (c *Correlator) notify(snap Session) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Version <= c.lastNotified {
		return
	}
	c.lastNotified = snap.Version
	for _, fn := range c.observers {
		fn(snap)
	}
}

// ownedStream closes the underlying stream exactly once
type ownedStream struct {
	FrameStream
	once sync.Once
}

func (s *ownedStream) Close() error {
	var err error
	s.once.Do(func() { err = s.FrameStream.Close() })
	return err
}

func errorMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var streamErr *internal.StreamError
	if errors.As(err, &streamErr) {
		if errors.Is(streamErr.Err, ErrWatchdog) {
			return ErrWatchdog.Error()
		}
		return "discovery stream connection failed"
	}
	return err.Error()
}

var (
	registeredRe = regexp.MustCompile(`(?i)\bregistered\b`)
	quotedNameRe = regexp.MustCompile("[`'\"]([A-Za-z_][\\w.-]*)[`'\"]")
	toolBeforeRe = regexp.MustCompile(`(?i)\btool\s+([A-Za-z_][\w-]*)\s+(?:was\s+|has\s+been\s+|is\s+)?registered`)
	toolAfterRe  = regexp.MustCompile(`(?i)\bregistered(?:\s+tool)?\s*:?\s+([A-Za-z_][\w-]*)`)
	executingRe  = regexp.MustCompile(`(?i)\b(?:executing|calling)\s+([A-Za-z_][\w-]*)`)
	notNames     = map[string]bool{
		"in": true, "as": true, "to": true, "the": true, "a": true, "an": true,
		"with": true, "successfully": true, "into": true, "on": true, "tool": true,
	}
)

// registeredToolName extracts the tool named by a "registered" log line
func registeredToolName(ev Event) string {
	info := ev.Info()
	msg := info.Message
	if !registeredRe.MatchString(msg) {
		return ""
	}
	if info.ToolName != "" {
		return info.ToolName
	}
	for _, re := range []*regexp.Regexp{quotedNameRe, toolBeforeRe, toolAfterRe, executingRe} {
		if m := re.FindStringSubmatch(msg); m != nil && !notNames[strings.ToLower(m[1])] {
			return m[1]
		}
	}
	return ""
}

var registrationRe = regexp.MustCompile(`(?i)\bregist(?:ered|ration)\b`)

// chatRegistered reports whether the chat logged a new tool registration
func chatRegistered(resp *api.ChatResponse) bool {
	if resp == nil {
		return false
	}
	for _, a := range resp.ActionsLogged {
		if registrationRe.MatchString(a.Title) {
			return true
		}
	}
	return false
}

// chatForgedTool names the tool a chat registered, if any
func chatForgedTool(resp *api.ChatResponse) string {
	if !chatRegistered(resp) || len(resp.ToolCalls) == 0 {
		return ""
	}
	return resp.ToolCalls[0].Name
}
