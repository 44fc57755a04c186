package testutil

import (
	"encoding/json"
	"os"
	"testing"
)

// CreateTempDir creates a temporary directory for testing, removed when
// the test ends
func CreateTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "hubctl-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// IsolateConfig points HOME at an empty directory and clears the
// environment variables the config loader reads, so a developer's own
// ~/.hubctl.yaml cannot leak into a test
func IsolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", CreateTempDir(t))
	for _, key := range []string{"HUBCTL_API_URL", "HUBCTL_SESSION_WATCHDOG", "HUBCTL_LOG_LEVEL", "NEXT_PUBLIC_API_URL"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

// JSONMarshal marshals a value to JSON for testing
func JSONMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal JSON: %v", err)
	}
	return data
}

// JSONUnmarshal unmarshals JSON for testing
func JSONUnmarshal(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
}
