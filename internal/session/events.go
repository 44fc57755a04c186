package session

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind discriminates discovery events
type Kind int

const (
	KindOther Kind = iota
	KindConnected
	KindAssistantMessage
	KindToolCall
	KindToolResult
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindAssistantMessage:
		return "assistant_message"
	case KindToolCall:
		return "tool_call"
	case KindToolResult:
		return "tool_result"
	default:
		return "other"
	}
}

// Event is one parsed discovery frame. The concrete type is one of
// Connected, AssistantMessage, ToolCall, ToolResult or Other.
type Event interface {
	Kind() Kind
	Info() Base
}

// Base holds the fields every discovery frame may carry
type Base struct {
	ID             string
	Timestamp      string
	Type           string
	Source         string
	Message        string
	Level          string
	URL            string
	ConversationID string
	ToolName       string
	Step           string
	Title          string
}

func (b Base) Info() Base { return b }

type Connected struct {
	Base
}

func (Connected) Kind() Kind { return KindConnected }

type AssistantMessage struct {
	Base
	Content   string
	Iteration int
}

func (AssistantMessage) Kind() Kind { return KindAssistantMessage }

type ToolCall struct {
	Base
	ToolID    string
	Arguments map[string]any
}

func (ToolCall) Kind() Kind { return KindToolCall }

type ToolResult struct {
	Base
	Status  string
	Preview string
	Error   string
}

func (ToolResult) Kind() Kind { return KindToolResult }

// Other is any recognised but non-narratable frame (agent_start,
// completion, firecrawl logs, ...)
type Other struct {
	Base
}

func (Other) Kind() Kind { return KindOther }

// Narratable reports whether ev belongs in the transcript
func Narratable(ev Event) bool {
	switch ev.Kind() {
	case KindAssistantMessage, KindToolCall, KindToolResult:
		return true
	default:
		return false
	}
}

type wireEvent struct {
	ID             any            `json:"id"`
	Timestamp      any            `json:"timestamp"`
	Type           string         `json:"type"`
	Source         string         `json:"source"`
	Message        string         `json:"message"`
	Level          string         `json:"level"`
	URL            string         `json:"url"`
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	Iteration      float64        `json:"iteration"`
	ToolName       string         `json:"tool_name"`
	ToolID         string         `json:"tool_id"`
	Arguments      map[string]any `json:"arguments"`
	Status         any            `json:"status"`
	ResultPreview  string         `json:"result_preview"`
	Error          string         `json:"error"`
	Step           string         `json:"step"`
	Title          string         `json:"title"`
	Metadata       map[string]any `json:"metadata"`
}

// ParseEvent decodes one frame. ok is false for malformed JSON and for
// frames carrying none of conversation id, message or source.
func ParseEvent(raw string) (ev Event, ok bool) {
	var w wireEvent
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, false
	}
	if w.ConversationID == "" && w.Message == "" && w.Source == "" {
		return nil, false
	}

	base := Base{
		ID:             scalarString(w.ID),
		Timestamp:      scalarString(w.Timestamp),
		Type:           w.Type,
		Source:         w.Source,
		Message:        w.Message,
		Level:          w.Level,
		URL:            w.URL,
		ConversationID: w.ConversationID,
		ToolName:       w.ToolName,
		Step:           w.Step,
		Title:          w.Title,
	}
	if base.Step == "" {
		base.Step = metaString(w.Metadata, "step")
	}
	if base.Title == "" {
		base.Title = metaString(w.Metadata, "title")
	}
	if base.URL == "" {
		base.URL = metaString(w.Metadata, "url")
	}

	switch w.Type {
	case "connected":
		return Connected{Base: base}, true
	case "assistant_message":
		return AssistantMessage{Base: base, Content: w.Content, Iteration: int(w.Iteration)}, true
	case "tool_call":
		return ToolCall{Base: base, ToolID: w.ToolID, Arguments: w.Arguments}, true
	case "tool_result":
		return ToolResult{
			Base:    base,
			Status:  scalarString(w.Status),
			Preview: w.ResultPreview,
			Error:   w.Error,
		}, true
	case "":
		// Untyped frames that only announce the conversation act as connected.
		if w.ConversationID != "" && w.Message == "" {
			return Connected{Base: base}, true
		}
		return Other{Base: base}, true
	default:
		return Other{Base: base}, true
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
