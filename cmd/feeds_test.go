package cmd

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/universal-adapter/hubctl/internal"
	"github.com/universal-adapter/hubctl/internal/api"
	"github.com/universal-adapter/hubctl/testutil"
)

func TestForgeCommand(t *testing.T) {
	hub := testutil.NewFakeHub(t)

	stdout, _, err := execute(t, "", "--api-url", hub.URL, "forge", "--force", "https://docs.example.com/api")
	if err != nil {
		t.Fatalf("forge error = %v", err)
	}
	for _, want := range []string{
		"forged_tool",
		"3 endpoint(s) found",
		"base URL https://docs.example.com/api",
		"auth: api_key",
		"2 page(s) crawled",
		"export const tool = {};",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output should contain %q, got:\n%s", want, stdout)
		}
	}

	var req api.ForgeRequest
	testutil.JSONUnmarshal(t, hub.Bodies("/api/forge/generate")[0], &req)
	if req.SourceURL != "https://docs.example.com/api" || !req.ForceRegenerate {
		t.Errorf("forge request = %+v", req)
	}
}

func TestForgeCommand_RejectsRelativeURL(t *testing.T) {
	hub := testutil.NewFakeHub(t)

	_, _, err := execute(t, "", "--api-url", hub.URL, "forge", "docs.example.com")
	if _, ok := err.(*internal.ParseError); !ok {
		t.Fatalf("error = %v, want *internal.ParseError", err)
	}
	if len(hub.Requests()) != 0 {
		t.Errorf("requests = %v", hub.Requests())
	}
}

func TestActionsCommand(t *testing.T) {
	hub := testutil.NewFakeHub(t, func(h *testutil.FakeHub) {
		h.Actions = []api.Action{
			{ID: "a1", ConversationID: "c1", Title: "Tool registered", Detail: "get_weather added", Status: "success", ToolName: "get_weather", Timestamp: time.Now().Format(time.RFC3339)},
			{ID: "a2", ConversationID: "c2", Title: "Pull request opened", Status: "pending", GithubPRURL: "https://github.com/org/repo/pull/7"},
		}
	})

	stdout, _, err := execute(t, "", "--api-url", hub.URL, "actions")
	if err != nil {
		t.Fatalf("actions error = %v", err)
	}
	for _, want := range []string{"2 action(s)", "Tool registered (get_weather)", "Today", "https://github.com/org/repo/pull/7"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output should contain %q, got:\n%s", want, stdout)
		}
	}

	stdout, _, err = execute(t, "", "--api-url", hub.URL, "actions", "--conversation", "c2", "--limit", "5")
	if err != nil {
		t.Fatalf("actions error = %v", err)
	}
	if !strings.Contains(stdout, "1 action(s)") || strings.Contains(stdout, "Tool registered") {
		t.Errorf("conversation filter not applied:\n%s", stdout)
	}
}

func TestActionsCommand_Empty(t *testing.T) {
	hub := testutil.NewFakeHub(t)

	stdout, _, err := execute(t, "", "--api-url", hub.URL, "actions")
	if err != nil {
		t.Fatalf("actions error = %v", err)
	}
	if !strings.Contains(stdout, "No actions recorded") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestLedgerCommand(t *testing.T) {
	hub := testutil.NewFakeHub(t, func(h *testutil.FakeHub) {
		h.Verified = []map[string]any{
			{
				"name": "get_weather",
				"verification": map[string]any{
					"verified":             true,
					"verified_by":          "security-team",
					"trust_score":          0.92,
					"security_scan_passed": true,
				},
				"governance": map[string]any{
					"approval_required":     true,
					"rate_limit_per_minute": 60,
					"cost_per_execution":    0.002,
				},
			},
		}
	})

	stdout, _, err := execute(t, "", "--api-url", hub.URL, "ledger")
	if err != nil {
		t.Fatalf("ledger error = %v", err)
	}
	for _, want := range []string{"1 verified tool(s)", "get_weather", "92%", "passed", "security-team", "required", "60/min", "$0.0020"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output should contain %q, got:\n%s", want, stdout)
		}
	}
}

func TestHealthCommand(t *testing.T) {
	hub := testutil.NewFakeHub(t)

	stdout, _, err := execute(t, "", "--api-url", hub.URL, "health")
	if err != nil {
		t.Fatalf("health error = %v", err)
	}
	for _, want := range []string{"Liveness: healthy (universal-adapter test)", "Marketplace", "Action feed", "Governance ledger", "All checks passed"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output should contain %q, got:\n%s", want, stdout)
		}
	}
	for _, req := range []string{"GET /health", "GET /tools", "GET /api/actions", "GET /api/governance/verified-tools"} {
		if hub.Count(req) != 1 {
			t.Errorf("%s requested %d times", req, hub.Count(req))
		}
	}
}

func TestHealthCommand_Unhealthy(t *testing.T) {
	hub := testutil.NewFakeHub(t, func(h *testutil.FakeHub) {
		h.Health = http.StatusServiceUnavailable
	})

	stdout, _, err := execute(t, "", "--api-url", hub.URL, "healthcheck")
	if err == nil || !strings.Contains(err.Error(), "hub is unhealthy") {
		t.Fatalf("error = %v", err)
	}
	if !strings.Contains(stdout, "Liveness: health check: unhealthy") {
		t.Errorf("stdout = %s", stdout)
	}
	// The other probes still report.
	if !strings.Contains(stdout, "✅ Marketplace") {
		t.Errorf("stdout = %s", stdout)
	}
}
