package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/universal-adapter/hubctl/internal"
)

// ListTools returns one page of the marketplace
func (c *Client) ListTools(ctx context.Context, limit, skip int) ([]Tool, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "list tools", "TOOLS_ERROR", &raw, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"limit": strconv.Itoa(limit),
			"skip":  strconv.Itoa(skip),
		}).Get("/tools")
	}); err != nil {
		return nil, err
	}

	// The hub answers either a bare array or {"tools": [...]}.
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Tools []map[string]any `json:"tools"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, &internal.ParseError{Source: "api", Key: "list tools", Err: err}
		}
		items = wrapped.Tools
	}
	return normalizeTools(items), nil
}

// SearchTools runs a semantic search over the marketplace
func (c *Client) SearchTools(ctx context.Context, query string, limit int) (*SearchResult, error) {
	var out struct {
		Query *string          `json:"query"`
		Count *int             `json:"count"`
		Tools []map[string]any `json:"tools"`
	}
	if err := c.do(ctx, "search tools", "TOOLS_ERROR", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"q":     query,
			"limit": strconv.Itoa(limit),
		}).Get("/tools/search")
	}); err != nil {
		return nil, err
	}

	res := &SearchResult{Query: query, Tools: normalizeTools(out.Tools)}
	if out.Query != nil {
		res.Query = *out.Query
	}
	res.Count = len(res.Tools)
	if out.Count != nil {
		res.Count = *out.Count
	}
	return res, nil
}

// GetTool fetches one tool by name
func (c *Client) GetTool(ctx context.Context, name string) (*Tool, error) {
	var raw map[string]any
	if err := c.do(ctx, "get tool", "TOOLS_ERROR", &raw, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/tools/" + url.PathEscape(name))
	}); err != nil {
		return nil, err
	}
	if inner, ok := raw["tool"].(map[string]any); ok {
		raw = inner
	}
	if raw == nil {
		raw = map[string]any{"name": name}
	}
	tool := normalizeTool(raw)
	return &tool, nil
}

// GetToolCode fetches the generated source of a tool. A missing tool or
// missing code yields an error matching ErrNotFound.
func (c *Client) GetToolCode(ctx context.Context, name string) (*ToolCode, error) {
	var out ToolCode
	if err := c.do(ctx, "get tool code", "TOOLS_ERROR", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/tools/" + url.PathEscape(name) + "/code")
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTool removes a tool from the marketplace
func (c *Client) DeleteTool(ctx context.Context, name string) (*DeleteResponse, error) {
	var out DeleteResponse
	if err := c.do(ctx, "delete tool", "TOOLS_ERROR", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.Delete("/tools/" + url.PathEscape(name))
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteTool runs a tool with params
func (c *Client) ExecuteTool(ctx context.Context, name string, params map[string]any) (*ExecuteResponse, error) {
	if params == nil {
		params = map[string]any{}
	}
	var out ExecuteResponse
	if err := c.do(ctx, "execute tool", "EXECUTE_ERROR", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(params).Post("/tools/" + url.PathEscape(name) + "/execute")
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgeGenerate asks the forge to build a tool from documentation at a URL
func (c *Client) ForgeGenerate(ctx context.Context, req ForgeRequest) (*ForgeResponse, error) {
	var out ForgeResponse
	if err := c.do(ctx, "forge generate", "FORGE_ERROR", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(req).Post("/api/forge/generate")
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetActions returns the action feed, optionally for one conversation
func (c *Client) GetActions(ctx context.Context, conversationID string, limit, offset int) ([]Action, error) {
	var out []Action
	if err := c.do(ctx, "get actions", "ACTIONS_ERROR", &out, func(r *resty.Request) (*resty.Response, error) {
		r.SetQueryParams(map[string]string{
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		})
		if conversationID != "" {
			r.SetQueryParam("conversation_id", conversationID)
		}
		return r.Get("/api/actions")
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// GetVerifiedTools returns the governance ledger
func (c *Client) GetVerifiedTools(ctx context.Context) ([]VerifiedTool, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, "get verified tools", "GOVERNANCE_ERROR", &raw, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/api/governance/verified-tools")
	}); err != nil {
		return nil, err
	}

	out := make([]VerifiedTool, 0, len(raw))
	for _, item := range raw {
		var fields map[string]any
		var extra struct {
			Verification Verification `json:"verification"`
			Governance   Governance   `json:"governance"`
		}
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, &internal.ParseError{Source: "api", Key: "get verified tools", Err: err}
		}
		if err := json.Unmarshal(item, &extra); err != nil {
			return nil, &internal.ParseError{Source: "api", Key: "get verified tools", Err: err}
		}
		out = append(out, VerifiedTool{
			Tool:         normalizeTool(fields),
			Verification: extra.Verification,
			Governance:   extra.Governance,
		})
	}
	return out, nil
}

func normalizeTools(items []map[string]any) []Tool {
	tools := make([]Tool, 0, len(items))
	for _, item := range items {
		tools = append(tools, normalizeTool(item))
	}
	return tools
}

// normalizeTool maps a loosely-typed backend tool onto Tool with the
// dashboard's defaults
func normalizeTool(t map[string]any) Tool {
	tool := Tool{
		ID:               firstString(t, "_id", "id", "name"),
		Name:             stringField(t, "name"),
		Description:      stringField(t, "description"),
		Status:           StatusProdReady,
		Category:         stringField(t, "category"),
		Tags:             []string{},
		PreviewSnippet:   stringField(t, "preview_snippet"),
		Code:             stringField(t, "code"),
		CreatedAt:        stringField(t, "created_at"),
		SourceURL:        stringField(t, "source_url"),
		APIReferenceURL:  stringField(t, "api_reference_url"),
		DocumentationURL: stringField(t, "documentation_url"),
		SpecURL:          stringField(t, "spec_url"),
	}
	if tool.Name == "" {
		tool.Name = "unknown"
	}
	if tool.Category == "" {
		tool.Category = "general"
	}
	if s, _ := t["status"].(string); s == StatusBeta || s == StatusDeprecated {
		tool.Status = s
	}
	if v, ok := t["verified"].(bool); ok {
		tool.Verified = v
	}
	if n, ok := t["usage_count"].(float64); ok {
		tool.UsageCount = int(n)
	}
	if n, ok := t["similarity_score"].(float64); ok {
		tool.SimilarityScore = &n
	}
	if tags, ok := t["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				tool.Tags = append(tool.Tags, s)
			}
		}
	}

	tool.Parameters = ToolParameters{Type: "object", Properties: map[string]any{}}
	if params, ok := t["parameters"].(map[string]any); ok {
		if typ, ok := params["type"].(string); ok && typ != "" {
			tool.Parameters.Type = typ
		}
		if props, ok := params["properties"].(map[string]any); ok {
			tool.Parameters.Properties = props
		}
		if req, ok := params["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					tool.Parameters.Required = append(tool.Parameters.Required, s)
				}
			}
		}
	}
	return tool
}

// stringField renders scalars the way the dashboard's String() did
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if _, ok := m[k]; ok && m[k] != nil {
			return stringField(m, k)
		}
	}
	return ""
}

// DocURL is a labelled documentation link
type DocURL struct {
	Label string
	URL   string
}

// DocURLs lists the tool's documentation links, de-duplicated by URL
func (t Tool) DocURLs() []DocURL {
	candidates := []DocURL{
		{Label: "API reference", URL: t.APIReferenceURL},
		{Label: "Source", URL: t.SourceURL},
		{Label: "Documentation", URL: t.DocumentationURL},
		{Label: "Spec", URL: t.SpecURL},
	}
	seen := make(map[string]bool)
	var out []DocURL
	for _, c := range candidates {
		u := strings.TrimSpace(c.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, DocURL{Label: c.Label, URL: u})
	}
	return out
}

// IsRequired reports whether name is a required parameter
func (t Tool) IsRequired(name string) bool {
	for _, r := range t.Parameters.Required {
		if r == name {
			return true
		}
	}
	return false
}

// ExecuteParams builds an execute body from raw string values. Empty
// values for optional parameters are dropped.
func (t Tool) ExecuteParams(values map[string]string) map[string]any {
	params := make(map[string]any, len(values))
	for k, v := range values {
		if v == "" && !t.IsRequired(k) {
			continue
		}
		params[k] = v
	}
	return params
}

// FilterTools keeps tools whose name or description contains query,
// case-insensitively. A blank query keeps everything.
func FilterTools(tools []Tool, query string) []Tool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return tools
	}
	var out []Tool
	for _, t := range tools {
		if strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.Description), q) {
			out = append(out, t)
		}
	}
	return out
}

// PinTool moves the tool whose id or name equals key to the front
func PinTool(tools []Tool, key string) []Tool {
	if key == "" {
		return tools
	}
	idx := -1
	for i, t := range tools {
		if t.ID == key || t.Name == key {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return tools
	}
	out := make([]Tool, 0, len(tools))
	out = append(out, tools[idx])
	out = append(out, tools[:idx]...)
	out = append(out, tools[idx+1:]...)
	return out
}
