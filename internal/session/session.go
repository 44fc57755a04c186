// Package session drives one discovery session against the hub: it owns
// the event stream, correlates it with the chat call and exposes pure
// projections of the accumulated state.
package session

import (
	"time"

	"github.com/universal-adapter/hubctl/internal"
	"github.com/universal-adapter/hubctl/internal/api"
)

// Reference is a link surfaced by the discovery stream
type Reference = internal.Reference

// ForgedTool is the tool registered during a session
type ForgedTool = internal.ForgedTool

// Session is the raw state of one request cycle. Values handed out by the
// Correlator are copies; the Chat response they point to is never mutated.
type Session struct {
	Generation     uint64
	Version        uint64
	Prompt         string
	ConversationID string
	Phase          Phase
	Loading        bool
	StreamClosed   bool
	Events         []Event
	// Dropped counts events evicted by the cap; Dropped+i is the absolute
	// position of Events[i]
	Dropped int

	// Cancelled marks a session abandoned by Cancel. It keeps its
	// generation and events but accepts no further results.
	Cancelled bool

	ChatIssued  bool
	ChatSettled bool
	Chat        *api.ChatResponse

	// RegisteredTool is the tool name announced by a "registered" log line
	RegisteredTool string
	ForgedTool     *ForgedTool
	CodeRequested  bool
	CodeSettled    bool

	Suggestions []api.Tool
	Error       string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Clone returns a copy that shares no mutable state with s
func (s Session) Clone() Session {
	out := s
	if s.Events != nil {
		out.Events = append([]Event(nil), s.Events...)
	}
	if s.Suggestions != nil {
		out.Suggestions = append([]api.Tool(nil), s.Suggestions...)
	}
	if s.ForgedTool != nil {
		ft := *s.ForgedTool
		out.ForgedTool = &ft
	}
	return out
}

// Settled reports whether nothing is left in flight: the stream is done,
// the chat call (if issued) has returned, and any code fetch has finished.
func (s Session) Settled() bool {
	if s.Loading {
		return false
	}
	if s.ChatIssued && !s.ChatSettled {
		return false
	}
	if s.CodeRequested && !s.CodeSettled {
		return false
	}
	return true
}

// Finished reports whether the stream completed normally
func (s Session) Finished() bool {
	return s.Phase == PhaseDone
}
