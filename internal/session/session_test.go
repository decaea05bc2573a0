package session

import (
	"os"
	"strings"
	"testing"
)

func TestResolveExplicitWins(t *testing.T) {
	t.Setenv(EnvSessionID, "from-env")
	r := New()
	if got := r.Resolve("explicit"); got != "explicit" {
		t.Errorf("Resolve = %q, want explicit", got)
	}
}

func TestResolveEnvOverride(t *testing.T) {
	t.Setenv(EnvSessionID, "from-env")
	r := New()
	if got := r.Resolve(""); got != "from-env" {
		t.Errorf("Resolve = %q, want from-env", got)
	}
}

func TestResolveFallbackIsStable(t *testing.T) {
	t.Setenv(EnvSessionID, "")
	os.Unsetenv(EnvSessionID)
	r := New()

	first := r.Resolve("")
	if first == "" {
		t.Fatal("fallback session id is empty")
	}
	if !strings.HasPrefix(first, "container-") && !strings.HasPrefix(first, "mcp-") {
		t.Errorf("unexpected fallback %q", first)
	}
	if second := r.Resolve(""); second != first {
		t.Errorf("fallback not stable: %q then %q", first, second)
	}
}
