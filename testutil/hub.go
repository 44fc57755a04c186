package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/universal-adapter/hubctl/internal/api"
)

// FakeHub is an in-process hub serving the endpoints hubctl talks to.
// Its fields are set through the configure funcs of NewFakeHub and must
// not change afterwards.
type FakeHub struct {
	URL string

	// Frames are sent on the discovery stream as SSE data lines, followed
	// by the [DONE] sentinel unless NoSentinel is set
	Frames     []string
	NoSentinel bool

	// Chat answers POST /chat. The default echoes the request's
	// conversation id with a canned answer.
	Chat func(req api.ChatRequest) (int, any)

	Tools    []map[string]any
	Code     map[string]api.ToolCode
	Results  map[string]map[string]any
	Actions  []api.Action
	Verified []map[string]any
	// Health is the status code of GET /health (200 when zero)
	Health int

	mu       sync.Mutex
	requests []string
	bodies   map[string][]json.RawMessage
}

// NewFakeHub starts a FakeHub, stopped when the test ends
func NewFakeHub(t *testing.T, configure ...func(*FakeHub)) *FakeHub {
	t.Helper()
	h := &FakeHub{
		Code:    map[string]api.ToolCode{},
		Results: map[string]map[string]any{},
		bodies:  map[string][]json.RawMessage{},
	}
	for _, fn := range configure {
		fn(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/discovery/stream", h.stream)
	mux.HandleFunc("POST /chat", h.chat)
	mux.HandleFunc("GET /tools", h.listTools)
	mux.HandleFunc("GET /tools/search", h.searchTools)
	mux.HandleFunc("GET /tools/{name}", h.getTool)
	mux.HandleFunc("GET /tools/{name}/code", h.getCode)
	mux.HandleFunc("DELETE /tools/{name}", h.deleteTool)
	mux.HandleFunc("POST /tools/{name}/execute", h.execute)
	mux.HandleFunc("POST /api/forge/generate", h.forge)
	mux.HandleFunc("GET /api/actions", h.actions)
	mux.HandleFunc("GET /api/governance/verified-tools", h.verified)
	mux.HandleFunc("GET /health", h.health)

	srv := httptest.NewServer(h.record(mux))
	t.Cleanup(srv.Close)
	h.URL = srv.URL
	return h
}

// Requests returns "METHOD /path" for every request served so far
func (h *FakeHub) Requests() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.requests...)
}

// Bodies returns the JSON bodies posted to path
func (h *FakeHub) Bodies(path string) []json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]json.RawMessage(nil), h.bodies[path]...)
}

// Count returns how many requests matched "METHOD /path"
func (h *FakeHub) Count(request string) int {
	n := 0
	for _, r := range h.Requests() {
		if r == request {
			n++
		}
	}
	return n
}

func (h *FakeHub) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		h.mu.Lock()
		h.requests = append(h.requests, r.Method+" "+r.URL.Path)
		if len(body) > 0 {
			h.bodies[r.URL.Path] = append(h.bodies[r.URL.Path], json.RawMessage(body))
		}
		h.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (h *FakeHub) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	for _, frame := range h.Frames {
		_, _ = fmt.Fprintf(w, "data: %s\n\n", frame)
		if flusher != nil {
			flusher.Flush()
		}
	}
	if !h.NoSentinel {
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func (h *FakeHub) chat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if h.Chat != nil {
		status, v := h.Chat(req)
		writeJSON(w, status, v)
		return
	}
	writeJSON(w, http.StatusOK, api.ChatResponse{
		Success:        true,
		Response:       "Answer for: " + req.Message,
		ConversationID: req.ConversationID,
		Model:          "test-model",
	})
}

func (h *FakeHub) listTools(w http.ResponseWriter, r *http.Request) {
	tools := h.Tools
	if tools == nil {
		tools = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, tools)
}

func (h *FakeHub) searchTools(w http.ResponseWriter, r *http.Request) {
	tools := h.Tools
	if tools == nil {
		tools = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": r.URL.Query().Get("q"), "count": len(tools), "tools": tools})
}

func (h *FakeHub) findTool(name string) map[string]any {
	for _, t := range h.Tools {
		if t["name"] == name {
			return t
		}
	}
	return nil
}

func (h *FakeHub) getTool(w http.ResponseWriter, r *http.Request) {
	tool := h.findTool(r.PathValue("name"))
	if tool == nil {
		notFound(w, "Tool not found")
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (h *FakeHub) getCode(w http.ResponseWriter, r *http.Request) {
	code, ok := h.Code[r.PathValue("name")]
	if !ok {
		notFound(w, "Code not found")
		return
	}
	writeJSON(w, http.StatusOK, code)
}

func (h *FakeHub) deleteTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if h.findTool(name) == nil {
		notFound(w, "Tool not found")
		return
	}
	writeJSON(w, http.StatusOK, api.DeleteResponse{Success: true, Message: "Tool '" + name + "' deleted"})
}

func (h *FakeHub) execute(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	result, ok := h.Results[name]
	if !ok {
		notFound(w, "Tool not found")
		return
	}
	writeJSON(w, http.StatusOK, api.ExecuteResponse{
		Success:     true,
		ToolName:    name,
		ExecutionID: "exec-1",
		Result:      result,
		ExecutionMetadata: &api.ExecutionMetadata{
			DurationMS:   12,
			APICallsMade: 1,
		},
	})
}

func (h *FakeHub) forge(w http.ResponseWriter, r *http.Request) {
	var req api.ForgeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	writeJSON(w, http.StatusOK, api.ForgeResponse{
		Success: true,
		ToolID:  "forged_tool",
		Documentation: api.ForgeDocs{
			EndpointsFound: 3,
			BaseURL:        req.SourceURL,
			AuthParams:     []string{"api_key"},
		},
		GeneratedCode: api.ForgeCode{
			TypeScript: "export const tool = {};",
			Language:   "typescript",
			Framework:  "mcp",
		},
		Metadata: api.ForgeMetadata{FirecrawlPagesCrawled: 2, TokensUsed: 100},
	})
}

func (h *FakeHub) actions(w http.ResponseWriter, r *http.Request) {
	conv := r.URL.Query().Get("conversation_id")
	out := []api.Action{}
	for _, a := range h.Actions {
		if conv == "" || a.ConversationID == conv {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *FakeHub) verified(w http.ResponseWriter, r *http.Request) {
	out := h.Verified
	if out == nil {
		out = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *FakeHub) health(w http.ResponseWriter, r *http.Request) {
	status := h.Health
	if status == 0 {
		status = http.StatusOK
	}
	if status != http.StatusOK {
		writeJSON(w, status, map[string]any{"detail": "unhealthy"})
		return
	}
	writeJSON(w, status, api.Health{Status: "healthy", Service: "universal-adapter", Version: "test"})
}

func notFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
