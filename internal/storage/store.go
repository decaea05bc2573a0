// Package storage owns the on-disk representation of sessions: the path
// layout, atomic file writes, the commit-entry micro-format, and YAML
// metadata. Nothing here is cached across calls; every operation
// re-reads from disk so independent processes observe each other's
// writes.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/gitcontext/gcc-mcp/internal/gccerr"
)

// timestampLayout is the UTC second-precision format used in log blocks
// and commit entries. The literal Z suffix is part of the persisted
// format.
const timestampLayout = "2006-01-02T15:04:05Z"

// Store reads and mutates one data root's session subtrees.
type Store struct {
	root string

	// Seams for deterministic tests.
	now   func() time.Time
	newID func() string
}

// New creates a Store over the given data root.
func New(root string) *Store {
	return &Store{
		root:  root,
		now:   time.Now,
		newID: newCommitID,
	}
}

// newCommitID generates an 8-hex-char commit id. Collisions within one
// branch file are possible in principle and not guarded against.
func newCommitID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// EnsureSession idempotently creates the session's directory tree. On
// first creation only, main.md is written with the roadmap template;
// an existing main.md is never overwritten.
func (s *Store) EnsureSession(session, goal string, todo []string) error {
	if err := os.MkdirAll(s.BranchesRoot(session), 0o755); err != nil {
		return &gccerr.StorageError{Msg: "create session directories", Path: s.SessionRoot(session), Err: err}
	}
	mainPath := s.MainPath(session)
	if _, err := os.Stat(mainPath); err == nil {
		return nil
	}

	if goal == "" {
		goal = "(unset)"
	}
	lines := []string{"# GCC Roadmap", "", "## Goal", goal, "", "## Todo"}
	if len(todo) > 0 {
		for _, item := range todo {
			lines = append(lines, "- "+item)
		}
	} else {
		lines = append(lines, "- (none)")
	}
	return s.writeFile(mainPath, strings.Join(lines, "\n")+"\n")
}

// EnsureBranch idempotently creates a branch directory with its three
// files: commit.md with the two-line header, an empty log.md, and
// metadata.yaml initialized to empty file_structure/env_config maps.
// Existing files are never overwritten.
func (s *Store) EnsureBranch(session, branch, purpose string) error {
	if err := os.MkdirAll(s.BranchRoot(session, branch), 0o755); err != nil {
		return &gccerr.StorageError{Msg: "create branch directories", Path: s.BranchRoot(session, branch), Err: err}
	}

	commitPath := s.CommitPath(session, branch)
	if _, err := os.Stat(commitPath); os.IsNotExist(err) {
		header := fmt.Sprintf("# Branch: %s\n# Purpose: %s\n\n", branch, purpose)
		if err := s.writeFile(commitPath, header); err != nil {
			return err
		}
	}

	logPath := s.LogPath(session, branch)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &gccerr.StorageError{Msg: "create log file", Path: logPath, Err: err}
	}
	f.Close()

	metaPath := s.MetadataPath(session, branch)
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		initial := map[string]any{"file_structure": map[string]any{}, "env_config": map[string]any{}}
		data, err := yaml.Marshal(initial)
		if err != nil {
			return &gccerr.StorageError{Msg: "encode metadata", Path: metaPath, Err: err}
		}
		if err := s.writeFile(metaPath, string(data)); err != nil {
			return err
		}
	}
	return nil
}

// ListBranches returns the session's branch names, sorted
// lexicographically. A session with no branches directory yields an
// empty list.
func (s *Store) ListBranches(session string) ([]string, error) {
	entries, err := os.ReadDir(s.BranchesRoot(session))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, &gccerr.StorageError{Msg: "list branches", Path: s.BranchesRoot(session), Err: err}
	}
	branches := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			branches = append(branches, e.Name())
		}
	}
	sort.Strings(branches)
	return branches, nil
}

// HasBranch reports whether branch exists in session.
func (s *Store) HasBranch(session, branch string) (bool, error) {
	branches, err := s.ListBranches(session)
	if err != nil {
		return false, err
	}
	for _, b := range branches {
		if b == branch {
			return true, nil
		}
	}
	return false, nil
}

// ReadMain returns main.md's content, or "" when it does not exist yet.
func (s *Store) ReadMain(session string) (string, error) {
	data, err := os.ReadFile(s.MainPath(session))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", &gccerr.StorageError{Msg: "read main.md", Path: s.MainPath(session), Err: err}
	}
	return string(data), nil
}

// UpdateMain appends a blank-line-separated block to main.md. When the
// document is empty the trimmed text becomes the whole content.
func (s *Store) UpdateMain(session, text string) error {
	content, err := s.ReadMain(session)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(text)
	if content != "" {
		content = strings.TrimRight(content, " \t\n") + "\n\n" + trimmed + "\n"
	} else {
		content = trimmed + "\n"
	}
	return s.writeFile(s.MainPath(session), content)
}

// AppendLog appends one timestamped block to the branch log: the UTC
// timestamp in brackets, one "- entry" line per entry, then a blank
// line. An empty entry list is a no-op.
func (s *Store) AppendLog(session, branch string, entries []string) error {
	if len(entries) == 0 {
		return nil
	}
	lines := []string{"[" + s.timestamp() + "]"}
	for _, item := range entries {
		lines = append(lines, "- "+item)
	}
	block := strings.Join(lines, "\n") + "\n\n"
	return s.appendFile(s.LogPath(session, branch), block)
}

// ReadLogTail returns up to the last tail lines of the branch log.
// A missing log or a non-positive tail yields an empty slice.
func (s *Store) ReadLogTail(session, branch string, tail int) ([]string, error) {
	if tail <= 0 {
		return []string{}, nil
	}
	data, err := os.ReadFile(s.LogPath(session, branch))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, &gccerr.StorageError{Msg: "read log.md", Path: s.LogPath(session, branch), Err: err}
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return []string{}, nil
	}
	if tail < len(lines) {
		lines = lines[len(lines)-tail:]
	}
	return lines, nil
}

// ReadLogFile returns the branch's raw log text, or "" when missing.
func (s *Store) ReadLogFile(session, branch string) (string, error) {
	data, err := os.ReadFile(s.LogPath(session, branch))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", &gccerr.StorageError{Msg: "read log.md", Path: s.LogPath(session, branch), Err: err}
	}
	return string(data), nil
}

// ReadCommitFile returns the branch's raw commit file text.
func (s *Store) ReadCommitFile(session, branch string) (string, error) {
	data, err := os.ReadFile(s.CommitPath(session, branch))
	if err != nil {
		return "", &gccerr.StorageError{Msg: "read commit.md", Path: s.CommitPath(session, branch), Err: err}
	}
	return string(data), nil
}

// BranchPurpose extracts the purpose from the commit file header, or ""
// when the branch or header does not exist.
func (s *Store) BranchPurpose(session, branch string) (string, error) {
	data, err := os.ReadFile(s.CommitPath(session, branch))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", &gccerr.StorageError{Msg: "read commit.md", Path: s.CommitPath(session, branch), Err: err}
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "# Purpose:") {
			return strings.TrimSpace(line[len("# Purpose:"):]), nil
		}
	}
	return "", nil
}

// CommitEntry returns the raw entry block for commitID (including the
// leading separator line), or "" when not found.
func (s *Store) CommitEntry(session, branch, commitID string) (string, error) {
	data, err := os.ReadFile(s.CommitPath(session, branch))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", &gccerr.StorageError{Msg: "read commit.md", Path: s.CommitPath(session, branch), Err: err}
	}
	return RawEntry(string(data), commitID), nil
}

// AppendCommit appends a new entry to the branch's commit file, chaining
// the previous progress summary from the last existing entry, and
// returns the new commit id. The branch must already exist.
func (s *Store) AppendCommit(session, branch, purpose, contribution string) (string, error) {
	existing, err := s.ReadCommitFile(session, branch)
	if err != nil {
		return "", err
	}

	id := s.newID()
	entry := encodeEntry(id, s.timestamp(), purpose, chainSummary(ParseEntries(existing)), contribution)
	if err := s.appendFile(s.CommitPath(session, branch), entry); err != nil {
		return "", err
	}
	return id, nil
}

// AppendRawCommits appends text verbatim to a branch's commit file,
// prefixed with a newline. Used by merge to splice a source branch's
// entire commit history into the target.
func (s *Store) AppendRawCommits(session, branch, text string) error {
	return s.appendFile(s.CommitPath(session, branch), "\n"+text)
}

// AppendRawLog appends a source branch's log under an explicit merge
// banner.
func (s *Store) AppendRawLog(session, branch, source, text string) error {
	block := fmt.Sprintf("\n== Merge from %s ==\n%s\n", source, text)
	return s.appendFile(s.LogPath(session, branch), block)
}

// ReadMetadata returns the branch metadata mapping. A missing or empty
// file reads as an empty map, never an error.
func (s *Store) ReadMetadata(session, branch string) (map[string]any, error) {
	data, err := os.ReadFile(s.MetadataPath(session, branch))
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, &gccerr.StorageError{Msg: "read metadata.yaml", Path: s.MetadataPath(session, branch), Err: err}
	}
	meta := map[string]any{}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, &gccerr.StorageError{Msg: "parse metadata.yaml", Path: s.MetadataPath(session, branch), Err: err}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, nil
}

// UpdateMetadata applies per-key upserts to the branch metadata; a nil
// update value deletes the key. The whole mapping is rewritten
// atomically.
func (s *Store) UpdateMetadata(session, branch string, updates map[string]any) error {
	meta, err := s.ReadMetadata(session, branch)
	if err != nil {
		return err
	}
	for key, value := range updates {
		if value == nil {
			delete(meta, key)
		} else {
			meta[key] = value
		}
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return &gccerr.StorageError{Msg: "encode metadata", Path: s.MetadataPath(session, branch), Err: err}
	}
	return s.writeFile(s.MetadataPath(session, branch), string(data))
}

// writeFile atomically replaces path's content: write a temporary
// sibling, then rename over the target. Concurrent readers never observe
// a partial write.
func (s *Store) writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &gccerr.StorageError{Msg: "create parent directory", Path: path, Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return &gccerr.StorageError{Msg: "write temporary file", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &gccerr.StorageError{Msg: "replace file", Path: path, Err: err}
	}
	return nil
}

func (s *Store) appendFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &gccerr.StorageError{Msg: "create parent directory", Path: path, Err: err}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &gccerr.StorageError{Msg: "open file for append", Path: path, Err: err}
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return &gccerr.StorageError{Msg: "append to file", Path: path, Err: err}
	}
	return nil
}
