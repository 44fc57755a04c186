package internal

import (
	"time"
)

// CreateTestSession creates a test session with sample data
func CreateTestSession(id string) *Session {
	return &Session{
		ID:             id,
		ConversationID: "conv-" + id,
		Prompt:         "weather in Tokyo",
		Phase:          "done",
		Answer:         "It is 15°C in Tokyo.",
		Messages: []Message{
			{
				Actor:     "user",
				Content:   "weather in Tokyo",
				Timestamp: time.Now().Format(time.RFC3339),
			},
			{
				Actor:     "tool",
				Content:   "get_weather {\"city\":\"Tokyo\"}",
				Timestamp: time.Now().Format(time.RFC3339),
			},
			{
				Actor:     "assistant",
				Content:   "It is 15°C in Tokyo.",
				Timestamp: time.Now().Format(time.RFC3339),
			},
		},
		References: []Reference{
			{URL: "https://open-meteo.com/en/docs", Label: "Open-Meteo docs"},
		},
		Metadata: Metadata{
			MessageCount: 3,
			ToolCalls:    1,
			Reused:       true,
			CreatedAt:    time.Now().Format(time.RFC3339),
		},
	}
}

// CreateTestSessionWithMessages creates a test session with custom messages
func CreateTestSessionWithMessages(id string, messages []Message) *Session {
	return &Session{
		ID:             id,
		ConversationID: "conv-" + id,
		Phase:          "done",
		Messages:       messages,
		Metadata: Metadata{
			MessageCount: len(messages),
		},
	}
}

// CreateTestForgedSession creates a test session that registered a new tool
func CreateTestForgedSession(id string) *Session {
	s := CreateTestSession(id)
	s.ForgedTool = &ForgedTool{
		Name:     "get_weather",
		Language: "python",
		Code:     "def get_weather(city):\n    return {}\n",
	}
	s.Metadata.Reused = false
	s.Metadata.ForgeMode = true
	return s
}
