package testutil

import (
	"os"
	"testing"
)

// RequireIntegration skips the test in short mode and unless
// INTEGRATION_TESTS is set.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("skipping integration test (set INTEGRATION_TESTS=1 to run)")
	}
}

// RequireEnv returns the values of the named variables, skipping the test if
// any of them is unset.
func RequireEnv(t *testing.T, names ...string) map[string]string {
	t.Helper()
	values := make(map[string]string, len(names))
	for _, name := range names {
		v := os.Getenv(name)
		if v == "" {
			t.Skipf("skipping: %s is not set", name)
		}
		values[name] = v
	}
	return values
}
