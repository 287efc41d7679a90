package testutil

import (
	"os"
	"testing"
)

// RequireEnv returns the values of the named environment variables, or
// skips the test when any of them is unset. Integration tests against live
// vendor services use it so that `go test ./...` stays hermetic.
func RequireEnv(t *testing.T, names ...string) map[string]string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	values := make(map[string]string, len(names))
	for _, name := range names {
		v := os.Getenv(name)
		if v == "" {
			t.Skipf("integration test requires %s", name)
		}
		values[name] = v
	}
	return values
}
