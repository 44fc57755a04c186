package api

import "encoding/json"

// Tool statuses reported by the marketplace.
const (
	StatusProdReady  = "PROD-READY"
	StatusBeta       = "BETA"
	StatusDeprecated = "DEPRECATED"
)

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message        string       `json:"message"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Model          string       `json:"model,omitempty"`
	Context        *ChatContext `json:"context,omitempty"`
}

// ChatContext tells the agent which surface the request came from
type ChatContext struct {
	UIMode string `json:"ui_mode,omitempty"`
	View   string `json:"view,omitempty"`
}

// WorkflowStep is one step of the agent's execution
type WorkflowStep struct {
	Step       string  `json:"step"`
	Status     string  `json:"status"`
	DurationMS float64 `json:"duration_ms"`
	Message    string  `json:"message"`
}

// ToolCall is a tool invocation made by the agent while answering
type ToolCall struct {
	ID              string         `json:"id,omitempty"`
	Name            string         `json:"name"`
	Arguments       map[string]any `json:"arguments,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	ExecutionTimeMS float64        `json:"execution_time_ms,omitempty"`
	Status          string         `json:"status,omitempty"`
}

// Action is an entry of the action feed. Chat responses embed the actions
// they logged using the same shape.
type Action struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Title          string `json:"title"`
	Detail         string `json:"detail"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	GithubPRURL    string `json:"github_pr_url,omitempty"`
	ToolName       string `json:"tool_name,omitempty"`
	ExecutionID    string `json:"execution_id,omitempty"`
}

// ChatMetadata carries accounting for one chat call
type ChatMetadata struct {
	TotalDurationMS float64 `json:"total_duration_ms"`
	TokensUsed      int     `json:"tokens_used"`
	CostUSD         float64 `json:"cost_usd"`
}

// ChatResponse is the body returned by POST /chat
type ChatResponse struct {
	Success        bool           `json:"success,omitempty"`
	Response       string         `json:"response"`
	ConversationID string         `json:"conversation_id"`
	Model          string         `json:"model,omitempty"`
	WorkflowSteps  []WorkflowStep `json:"workflow_steps,omitempty"`
	ToolCalls      []ToolCall     `json:"tool_calls"`
	ActionsLogged  []Action       `json:"actions_logged,omitempty"`
	Metadata       *ChatMetadata  `json:"metadata,omitempty"`
}

// ToolParameters is the JSON schema of a tool's arguments
type ToolParameters struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

// Tool is a normalized marketplace entry
type Tool struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Status           string         `json:"status"`
	Category         string         `json:"category"`
	Tags             []string       `json:"tags"`
	Verified         bool           `json:"verified"`
	UsageCount       int            `json:"usage_count"`
	Parameters       ToolParameters `json:"parameters"`
	PreviewSnippet   string         `json:"preview_snippet,omitempty"`
	Code             string         `json:"code,omitempty"`
	CreatedAt        string         `json:"created_at,omitempty"`
	SourceURL        string         `json:"source_url,omitempty"`
	APIReferenceURL  string         `json:"api_reference_url,omitempty"`
	DocumentationURL string         `json:"documentation_url,omitempty"`
	SpecURL          string         `json:"spec_url,omitempty"`
	SimilarityScore  *float64       `json:"similarity_score,omitempty"`
}

// SearchResult is the body of GET /tools/search
type SearchResult struct {
	Query string `json:"query"`
	Count int    `json:"count"`
	Tools []Tool `json:"tools"`
}

// ToolCode is the body of GET /tools/{name}/code
type ToolCode struct {
	Success        bool           `json:"success"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Code           string         `json:"code"`
	Language       string         `json:"language"`
	PreviewSnippet string         `json:"preview_snippet,omitempty"`
	CreatedAt      string         `json:"created_at,omitempty"`
}

// ExecutionMetadata describes one tool execution
type ExecutionMetadata struct {
	StartedAt    string  `json:"started_at"`
	CompletedAt  string  `json:"completed_at"`
	DurationMS   float64 `json:"duration_ms"`
	APICallsMade int     `json:"api_calls_made"`
	Cached       bool    `json:"cached"`
}

// ExecutionLog is a log line emitted by an executing tool
type ExecutionLog struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// ExecuteResponse is the body of POST /tools/{name}/execute
type ExecuteResponse struct {
	Success           bool               `json:"success"`
	ToolName          string             `json:"tool_name"`
	ExecutionID       string             `json:"execution_id"`
	Result            map[string]any     `json:"result"`
	ExecutionMetadata *ExecutionMetadata `json:"execution_metadata,omitempty"`
	Logs              []ExecutionLog     `json:"logs,omitempty"`
}

// DeleteResponse is the body of DELETE /tools/{name}
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ForgeRequest is the body of POST /api/forge/generate
type ForgeRequest struct {
	SourceURL       string `json:"source_url"`
	ForceRegenerate bool   `json:"force_regenerate,omitempty"`
}

// ForgeResponse is the body returned by the forge generator
type ForgeResponse struct {
	Success       bool              `json:"success"`
	ToolID        string            `json:"tool_id"`
	Documentation ForgeDocs         `json:"documentation"`
	GeneratedCode ForgeCode         `json:"generated_code"`
	DiscoveryLogs []json.RawMessage `json:"discovery_logs,omitempty"`
	Metadata      ForgeMetadata     `json:"metadata"`
}

// ForgeDocs summarizes the crawled documentation
type ForgeDocs struct {
	Markdown       string   `json:"markdown"`
	EndpointsFound int      `json:"endpoints_found"`
	AuthParams     []string `json:"auth_params"`
	BaseURL        string   `json:"base_url"`
}

// ForgeCode is the generated tool source
type ForgeCode struct {
	TypeScript string `json:"typescript"`
	Language   string `json:"language"`
	Framework  string `json:"framework"`
}

// ForgeMetadata carries generation accounting
type ForgeMetadata struct {
	GenerationTimeMS      float64 `json:"generation_time_ms"`
	FirecrawlPagesCrawled int     `json:"firecrawl_pages_crawled"`
	TokensUsed            int     `json:"tokens_used"`
}

// Verification is the trust record of a verified tool
type Verification struct {
	Verified           bool    `json:"verified"`
	VerifiedAt         string  `json:"verified_at"`
	VerifiedBy         string  `json:"verified_by"`
	TrustScore         float64 `json:"trust_score"`
	SecurityScanPassed bool    `json:"security_scan_passed"`
	LastAudit          string  `json:"last_audit"`
}

// Governance is the usage policy of a verified tool
type Governance struct {
	ApprovalRequired   bool     `json:"approval_required"`
	AllowedUsers       []string `json:"allowed_users"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute"`
	CostPerExecution   float64  `json:"cost_per_execution"`
}

// VerifiedTool is a ledger entry
type VerifiedTool struct {
	Tool
	Verification Verification `json:"verification"`
	Governance   Governance   `json:"governance"`
}

// Health is the body of GET /health
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
