package session

import (
	"regexp"
	"strings"
)

// The functions in this file are pure views over a Session snapshot. They
// never mutate their input and return the same result for the same input.

var urlRe = regexp.MustCompile("https?://[^\\s<>\"'`()\\[\\]{}]+")

// Transcript returns the narratable events in arrival order
func Transcript(s Session) []Event {
	var out []Event
	for _, ev := range s.Events {
		if Narratable(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// References collects links from the events: the explicit url field when
// present, otherwise the first URL in the message text. The first
// occurrence of a URL wins, label included.
func References(s Session) []Reference {
	seen := make(map[string]bool)
	var out []Reference
	for _, ev := range s.Events {
		ref, ok := eventReference(ev)
		if !ok || seen[ref.URL] {
			continue
		}
		seen[ref.URL] = true
		out = append(out, ref)
	}
	return out
}

func eventReference(ev Event) (Reference, bool) {
	info := ev.Info()
	if u := strings.TrimSpace(info.URL); u != "" {
		return Reference{URL: u, Label: info.Title}, true
	}

	text := info.Message
	if am, ok := ev.(AssistantMessage); ok && text == "" {
		text = am.Content
	}
	if u := FirstURL(text); u != "" {
		return Reference{URL: u, Label: info.Title}, true
	}
	return Reference{}, false
}

// FirstURL returns the first http(s) URL in text with trailing
// punctuation removed
func FirstURL(text string) string {
	u := urlRe.FindString(text)
	return strings.TrimRight(u, ".,;:!?")
}

// ToolCallCount is the number of tool calls made in the session. The chat
// result is authoritative once it arrives; until then stream events count.
func ToolCallCount(s Session) int {
	if s.Chat != nil {
		return len(s.Chat.ToolCalls)
	}
	n := 0
	for _, ev := range s.Events {
		if ev.Kind() == KindToolCall {
			n++
		}
	}
	return n
}

// Registered reports whether the session registered a new tool, either
// per the chat's logged actions or a "registered" stream log line
func Registered(s Session) bool {
	return chatRegistered(s.Chat) || s.RegisteredTool != ""
}

// Reused reports whether the agent only called tools that already existed
func Reused(s Session) bool {
	return ToolCallCount(s) > 0 && !Registered(s)
}

// ForgeMode reports whether the forge layout applies: a tool is known, the
// backend is forging, or a finished session called a tool it did not reuse
func ForgeMode(s Session) bool {
	if s.ForgedTool != nil || s.Phase == PhaseForging {
		return true
	}
	return s.Finished() && ToolCallCount(s) > 0 && !Reused(s)
}

// Answer is the agent's final response text, empty until the chat returns
func Answer(s Session) string {
	if s.Chat == nil {
		return ""
	}
	return s.Chat.Response
}
