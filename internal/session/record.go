package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/universal-adapter/hubctl/internal"
)

// recordNamespace derives stable record ids from conversation ids
var recordNamespace = uuid.MustParse("6f1c1d2e-4b7a-4c55-9a55-2f0d8f3e9b10")

// BuildRecord converts a session snapshot into an exportable record
func BuildRecord(s Session) *internal.Session {
	rec := &internal.Session{
		ID:             recordID(s.ConversationID),
		ConversationID: s.ConversationID,
		Prompt:         s.Prompt,
		Phase:          s.Phase.String(),
		Answer:         Answer(s),
		Error:          s.Error,
		References:     References(s),
	}

	started := formatTime(s.StartedAt)
	rec.Messages = append(rec.Messages, internal.Message{
		Timestamp: started,
		Actor:     "user",
		Content:   s.Prompt,
	})
	for _, ev := range Transcript(s) {
		rec.Messages = append(rec.Messages, NormalizeEvent(ev))
	}
	if answer := Answer(s); answer != "" {
		rec.Messages = append(rec.Messages, internal.Message{
			Timestamp: formatTime(s.FinishedAt),
			Actor:     "assistant",
			Content:   answer,
		})
	}
	if s.Error != "" {
		rec.Messages = append(rec.Messages, internal.Message{
			Timestamp: formatTime(s.FinishedAt),
			Actor:     "system",
			Content:   s.Error,
		})
	}

	if s.ForgedTool != nil {
		ft := *s.ForgedTool
		rec.ForgedTool = &ft
	}

	rec.Metadata = internal.Metadata{
		CreatedAt:    started,
		MessageCount: len(rec.Messages),
		ToolCalls:    ToolCallCount(s),
		Reused:       Reused(s),
		ForgeMode:    ForgeMode(s),
	}
	if s.Chat != nil {
		rec.Metadata.Model = s.Chat.Model
	}
	return rec
}

func recordID(conversationID string) string {
	if conversationID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(recordNamespace, []byte(conversationID)).String()
}

// NormalizeEvent renders an event as a transcript message. Events that
// are not narratable become system messages carrying their log line.
func NormalizeEvent(ev Event) internal.Message {
	info := ev.Info()
	msg := internal.Message{Timestamp: info.Timestamp}

	switch e := ev.(type) {
	case AssistantMessage:
		msg.Actor = "assistant"
		msg.Content = e.Content
		if msg.Content == "" {
			msg.Content = e.Message
		}
	case ToolCall:
		msg.Actor = "tool"
		msg.Content = "call " + e.ToolName
		if len(e.Arguments) > 0 {
			if args, err := json.Marshal(e.Arguments); err == nil {
				msg.Content += " " + string(args)
			}
		}
	case ToolResult:
		msg.Actor = "tool"
		status := e.Status
		if status == "" {
			status = "done"
		}
		msg.Content = fmt.Sprintf("result %s [%s]", e.ToolName, status)
		if detail := strings.TrimSpace(firstNonEmpty(e.Error, e.Preview)); detail != "" {
			msg.Content += ": " + detail
		}
	default:
		msg.Actor = "system"
		msg.Content = info.Message
	}
	return msg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// formatTime formats a time as RFC3339, empty for the zero time
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
