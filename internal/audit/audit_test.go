package audit

import (
	"log/slog"
	"os"
	"strings"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := Open(t.TempDir(), log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLogAndRecent(t *testing.T) {
	s := testStore(t)

	s.Log("gcc_commit", "sess-1", map[string]any{"branch": "feature"}, "ok", "")
	s.Log("gcc_merge", "sess-1", nil, "", "branch_not_found: no such branch")

	entries, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ID == "" || e.CreatedAt == "" {
			t.Fatalf("incomplete entry %+v", e)
		}
	}

	var commit *Entry
	for i := range entries {
		if entries[i].Action == "gcc_commit" {
			commit = &entries[i]
		}
	}
	if commit == nil {
		t.Fatal("gcc_commit entry missing")
	}
	if !strings.Contains(commit.Params, `"branch":"feature"`) {
		t.Fatalf("params not recorded: %s", commit.Params)
	}
}

func TestSensitiveKeysRedacted(t *testing.T) {
	s := testStore(t)

	s.Log("gcc_init", "sess-1", map[string]any{
		"api_key":  "sk-12345",
		"password": "hunter2",
		"branch":   "main",
	}, "", "")

	entries, err := s.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	params := entries[0].Params
	if strings.Contains(params, "sk-12345") || strings.Contains(params, "hunter2") {
		t.Fatalf("secrets leaked into audit log: %s", params)
	}
	if !strings.Contains(params, "[REDACTED]") {
		t.Fatalf("redaction marker missing: %s", params)
	}
	if !strings.Contains(params, `"branch":"main"`) {
		t.Fatalf("benign key dropped: %s", params)
	}
}

func TestLongValuesTruncated(t *testing.T) {
	s := testStore(t)

	long := strings.Repeat("x", 5000)
	s.Log("gcc_log", "sess-1", map[string]any{"entries": long}, long, "")

	entries, err := s.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries[0].Result) > maxValueLen+len("...[truncated]") {
		t.Fatalf("result not truncated: %d bytes", len(entries[0].Result))
	}
	if !strings.Contains(entries[0].Params, "...[truncated]") {
		t.Fatal("param value not truncated")
	}
}

func TestNilStoreIsNoOp(t *testing.T) {
	var s *Store
	s.Log("gcc_init", "sess-1", nil, "", "")
	if err := s.Close(); err != nil {
		t.Fatalf("Close on nil store: %v", err)
	}
}
