package internal

// Session is the exportable record of one hub conversation turn
type Session struct {
	ID             string      `json:"id" yaml:"id"`
	ConversationID string      `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	Prompt         string      `json:"prompt" yaml:"prompt"`
	Phase          string      `json:"phase" yaml:"phase"`
	Answer         string      `json:"answer,omitempty" yaml:"answer,omitempty"`
	Error          string      `json:"error,omitempty" yaml:"error,omitempty"`
	Messages       []Message   `json:"messages" yaml:"messages"`
	References     []Reference `json:"references,omitempty" yaml:"references,omitempty"`
	ForgedTool     *ForgedTool `json:"forged_tool,omitempty" yaml:"forged_tool,omitempty"`
	Metadata       Metadata    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Message represents a normalized message
type Message struct {
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Actor     string `json:"actor" yaml:"actor"` // "user", "assistant", "tool", "system"
	Content   string `json:"content" yaml:"content"`
}

// Reference is a documentation or source link surfaced during discovery
type Reference struct {
	URL   string `json:"url" yaml:"url"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// ForgedTool is the tool registered during the turn, if any
type ForgedTool struct {
	Name            string `json:"name" yaml:"name"`
	Language        string `json:"language,omitempty" yaml:"language,omitempty"`
	Code            string `json:"code,omitempty" yaml:"code,omitempty"`
	CodeUnavailable bool   `json:"code_unavailable,omitempty" yaml:"code_unavailable,omitempty"`
}

// Metadata contains additional session information
type Metadata struct {
	CreatedAt    string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	MessageCount int    `json:"message_count" yaml:"message_count"`
	ToolCalls    int    `json:"tool_calls" yaml:"tool_calls"`
	Reused       bool   `json:"reused" yaml:"reused"`
	ForgeMode    bool   `json:"forge_mode" yaml:"forge_mode"`
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`
}
