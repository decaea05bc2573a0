package validate

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gitcontext/gcc-mcp/internal/config"
	"github.com/gitcontext/gcc-mcp/internal/gccerr"
)

var lim = config.Default().Limits

func wantValidation(t *testing.T, err error) {
	t.Helper()
	var ve *gccerr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *gccerr.ValidationError", err)
	}
}

func TestBranchName(t *testing.T) {
	valid := []string{"main", "feature-1", "a", "x_y-z", "0branch"}
	for _, name := range valid {
		if err := BranchName(name, lim); err != nil {
			t.Errorf("BranchName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		"-leading-dash",
		"_leading_underscore",
		"has space",
		"has/slash",
		"has;semicolon",
		"../traversal",
		strings.Repeat("a", 101),
		"HEAD",
		"ORIG_HEAD",
		"FETCH_HEAD",
		"MERGE_HEAD",
	}
	for _, name := range invalid {
		err := BranchName(name, lim)
		if err == nil {
			t.Errorf("BranchName(%q) = nil, want error", name)
			continue
		}
		wantValidation(t, err)
	}
}

func TestSessionID(t *testing.T) {
	got, err := SessionID("", lim)
	if err != nil || got != DefaultSession {
		t.Errorf("SessionID(\"\") = %q, %v; want %q, nil", got, err, DefaultSession)
	}

	got, err = SessionID("agent_42-a", lim)
	if err != nil || got != "agent_42-a" {
		t.Errorf("SessionID valid = %q, %v", got, err)
	}

	for _, id := range []string{"has space", "a/b", "a.b", "?", strings.Repeat("s", 101)} {
		if _, err := SessionID(id, lim); err == nil {
			t.Errorf("SessionID(%q) = nil, want error", id)
		}
	}
}

func TestGitRef(t *testing.T) {
	valid := []string{"HEAD", "HEAD~1", "main", "abc1234", "v1.0.0", "HEAD~1..HEAD", "HEAD^"}
	for _, ref := range valid {
		if err := GitRef(ref); err != nil {
			t.Errorf("GitRef(%q) = %v, want nil", ref, err)
		}
	}

	injection := []string{
		"",
		"; rm -rf /",
		"main|cat",
		"main&bg",
		"$(whoami)",
		"`id`",
		"main\nsecond",
		"-option",
		strings.Repeat("r", 1001),
	}
	for _, ref := range injection {
		err := GitRef(ref)
		if err == nil {
			t.Errorf("GitRef(%q) = nil, want error", ref)
			continue
		}
		wantValidation(t, err)
	}
}

func TestLimit(t *testing.T) {
	if err := Limit(20, lim); err != nil {
		t.Errorf("Limit(20) = %v", err)
	}
	if err := Limit(0, lim); err == nil {
		t.Error("Limit(0) should fail")
	}
	if err := Limit(lim.MaxLimit+1, lim); err == nil {
		t.Error("Limit above max should fail")
	}
}

func TestResetMode(t *testing.T) {
	for _, mode := range []string{"soft", "hard"} {
		if err := ResetMode(mode); err != nil {
			t.Errorf("ResetMode(%q) = %v", mode, err)
		}
	}
	for _, mode := range []string{"", "mixed", "keep", "HARD"} {
		if err := ResetMode(mode); err == nil {
			t.Errorf("ResetMode(%q) = nil, want error", mode)
		}
	}
}

func TestSanitizeLogEntry(t *testing.T) {
	in := "keep\tthis\nline\x00\x07\x1b[31m"
	got := SanitizeLogEntry(in, lim)
	if strings.ContainsAny(got, "\x00\x07\x1b") {
		t.Errorf("control characters survived: %q", got)
	}
	if !strings.Contains(got, "keep\tthis\nline") {
		t.Errorf("tabs/newlines should be preserved, got %q", got)
	}

	long := strings.Repeat("x", lim.MaxStringLen+50)
	if got := SanitizeLogEntry(long, lim); len(got) != lim.MaxStringLen {
		t.Errorf("len = %d, want %d", len(got), lim.MaxStringLen)
	}
}

func TestSanitizeLogEntryTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", lim.MaxStringLen+50)
	got := SanitizeLogEntry(long, lim)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got[len(got)-4:])
	}
	if n := utf8.RuneCountInString(got); n != lim.MaxStringLen {
		t.Errorf("rune count = %d, want %d", n, lim.MaxStringLen)
	}

	mixed := strings.Repeat("a", lim.MaxStringLen-1) + "世界"
	got = SanitizeLogEntry(mixed, lim)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
	if !strings.HasSuffix(got, "世") {
		t.Errorf("got %q, want suffix %q", got[len(got)-8:], "世")
	}
}
