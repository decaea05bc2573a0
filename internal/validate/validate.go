// Package validate checks user-supplied input before any side effect.
// The rules exist to keep hostile input out of git argv lines and the
// on-disk path layout, so they err on the strict side.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gitcontext/gcc-mcp/internal/config"
	"github.com/gitcontext/gcc-mcp/internal/gccerr"
)

// DefaultSession is the session id used when none is supplied.
const DefaultSession = "default"

var (
	branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	sessionIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	gitRefPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_./~^-]*$`)
	controlChars      = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// reservedBranchNames are git's own symbolic refs; using them as branch
// names corrupts the repository state.
var reservedBranchNames = map[string]bool{
	"HEAD":       true,
	"ORIG_HEAD":  true,
	"FETCH_HEAD": true,
	"MERGE_HEAD": true,
}

// BranchName validates a branch name: non-empty, bounded length, starts
// alphanumeric, charset [A-Za-z0-9_-], not a reserved git name.
func BranchName(name string, lim config.Limits) error {
	if name == "" {
		return gccerr.Validation("branch", "branch name is required")
	}
	if len(name) > lim.MaxBranchNameLen {
		return gccerr.ValidationValue("branch",
			fmt.Sprintf("branch name too long (max %d characters)", lim.MaxBranchNameLen), name)
	}
	if !branchNamePattern.MatchString(name) {
		return gccerr.ValidationValue("branch",
			"branch name must start with an alphanumeric character and contain only alphanumerics, underscores, or hyphens", name)
	}
	if reservedBranchNames[name] {
		return gccerr.ValidationValue("branch",
			fmt.Sprintf("branch name %q is reserved by git", name), name)
	}
	return nil
}

// SessionID normalizes and validates a session id. Empty input maps to
// DefaultSession; anything else must match [A-Za-z0-9_-]+ within the
// configured length.
func SessionID(id string, lim config.Limits) (string, error) {
	if id == "" {
		return DefaultSession, nil
	}
	if len(id) > lim.MaxSessionIDLen {
		return "", gccerr.ValidationValue("session_id",
			fmt.Sprintf("session_id too long (max %d characters)", lim.MaxSessionIDLen), id)
	}
	if !sessionIDPattern.MatchString(id) {
		return "", gccerr.ValidationValue("session_id",
			"session_id must contain only alphanumeric characters, hyphens, and underscores", id)
	}
	return id, nil
}

// GitRef validates a git reference (hash, branch, tag, range expression).
// The charset excludes everything a shell or git could interpret as an
// option or command separator.
func GitRef(ref string) error {
	if ref == "" {
		return gccerr.Validation("ref", "git ref is required")
	}
	if len(ref) > 1000 {
		return gccerr.ValidationValue("ref", "git ref too long (max 1000 characters)", ref)
	}
	if !gitRefPattern.MatchString(ref) {
		return gccerr.ValidationValue("ref", "git ref contains invalid characters", ref)
	}
	if strings.ContainsAny(ref, ";|&$`\n\r") {
		return gccerr.ValidationValue("ref", "git ref contains potentially dangerous characters", ref)
	}
	return nil
}

// Limit checks a pagination limit against the configured bounds.
func Limit(n int, lim config.Limits) error {
	if n < lim.MinLimit {
		return gccerr.ValidationValue("limit",
			fmt.Sprintf("limit must be at least %d", lim.MinLimit), fmt.Sprint(n))
	}
	if n > lim.MaxLimit {
		return gccerr.ValidationValue("limit",
			fmt.Sprintf("limit must be at most %d", lim.MaxLimit), fmt.Sprint(n))
	}
	return nil
}

// ResetMode accepts only the documented reset modes.
func ResetMode(mode string) error {
	if mode != "soft" && mode != "hard" {
		return gccerr.ValidationValue("mode", "reset mode must be 'soft' or 'hard'", mode)
	}
	return nil
}

// StringLength bounds free-text fields such as purpose and contribution.
func StringLength(value, field string, lim config.Limits) error {
	if len(value) > lim.MaxStringLen {
		return gccerr.ValidationValue(field,
			fmt.Sprintf("%s too long (max %d characters)", field, lim.MaxStringLen), value)
	}
	return nil
}

// Required rejects an empty free-text field.
func Required(value, field string) error {
	if value == "" {
		return gccerr.Validation(field, field+" is required")
	}
	return nil
}

// SanitizeLogEntry strips control characters (keeping newlines and tabs)
// and truncates to the configured string length. Truncation counts runes
// so a multibyte character is never split.
func SanitizeLogEntry(entry string, lim config.Limits) string {
	s := controlChars.ReplaceAllString(entry, "")
	if len(s) <= lim.MaxStringLen {
		return s
	}
	runes := []rune(s)
	if len(runes) > lim.MaxStringLen {
		runes = runes[:lim.MaxStringLen]
	}
	return string(runes)
}
