// Package commands composes the lock, storage, and git layers into the
// user-facing operations. Each mutating operation is a short transaction
// under the session lock: validate, acquire, mutate files, checkpoint in
// git, release. Context is deliberately lock-free so inspection stays
// cheap during long mutations.
package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/gitcontext/gcc-mcp/internal/config"
	"github.com/gitcontext/gcc-mcp/internal/gccerr"
	"github.com/gitcontext/gcc-mcp/internal/gitops"
	"github.com/gitcontext/gcc-mcp/internal/lock"
	"github.com/gitcontext/gcc-mcp/internal/storage"
	"github.com/gitcontext/gcc-mcp/internal/validate"
)

// DefaultHistoryLimit applies when a history request omits the limit.
const DefaultHistoryLimit = 20

// recentCommitWindow bounds the commit ids returned in branch context.
const recentCommitWindow = 10

// Service executes GCC operations against one data root.
type Service struct {
	store *storage.Store
	cfg   config.Config
	log   *slog.Logger
}

// New creates a Service over cfg.DataRoot.
func New(cfg config.Config, log *slog.Logger) *Service {
	return &Service{
		store: storage.New(cfg.DataRoot),
		cfg:   cfg,
		log:   log,
	}
}

// Store exposes the storage layer for read-only inspection in tests.
func (s *Service) Store() *storage.Store { return s.store }

func (s *Service) repo(session string) *gitops.Repo {
	return gitops.New(s.store.SessionRoot(session), s.cfg.Git, s.log)
}

// withLock runs fn while holding the session lock. The lock file lives
// inside the session directory, so the directory is created first.
func (s *Service) withLock(session string, fn func() error) error {
	if err := os.MkdirAll(s.store.SessionRoot(session), 0o755); err != nil {
		return &gccerr.StorageError{Msg: "create session directory", Path: s.store.SessionRoot(session), Err: err}
	}
	return lock.With(s.store.LockPath(session), s.cfg.Lock.Timeout, s.cfg.Lock.Poll, fn)
}

func (s *Service) session(id string) (string, error) {
	return validate.SessionID(id, s.cfg.Limits)
}

// requireBranch returns BranchNotFound carrying the sorted available list
// when branch does not exist in session.
func (s *Service) requireBranch(session, branch string) error {
	branches, err := s.store.ListBranches(session)
	if err != nil {
		return err
	}
	for _, b := range branches {
		if b == branch {
			return nil
		}
	}
	return &gccerr.BranchNotFound{Branch: branch, Available: branches}
}

// InitResult reports where a session lives on disk.
type InitResult struct {
	GCCRoot string `json:"gcc_root"`
	Session string `json:"session"`
	Main    string `json:"main"`
}

// Init creates the session directory tree, the roadmap document, and the
// backing git repository. Idempotent: re-running never alters an
// existing main.md.
func (s *Service) Init(goal string, todo []string, sessionID string) (*InitResult, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := validate.StringLength(goal, "goal", s.cfg.Limits); err != nil {
		return nil, err
	}

	var result *InitResult
	err = s.withLock(session, func() error {
		if err := s.store.EnsureSession(session, goal, todo); err != nil {
			return err
		}
		if err := s.repo(session).EnsureRepo(); err != nil {
			return err
		}
		result = &InitResult{
			GCCRoot: s.store.GCCRoot(),
			Session: session,
			Main:    s.store.MainPath(session),
		}
		return nil
	})
	return result, err
}

// BranchResult reports a created (or re-ensured) branch.
type BranchResult struct {
	Branch  string `json:"branch"`
	Purpose string `json:"purpose"`
	Session string `json:"session"`
}

// Branch creates a named line of work with its commit, log, and metadata
// files, checked out and checkpointed in git.
func (s *Service) Branch(branchName, purpose, sessionID string) (*BranchResult, error) {
	if err := validate.BranchName(branchName, s.cfg.Limits); err != nil {
		return nil, err
	}
	if err := validate.Required(purpose, "purpose"); err != nil {
		return nil, err
	}
	if err := validate.StringLength(purpose, "purpose", s.cfg.Limits); err != nil {
		return nil, err
	}
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var result *BranchResult
	err = s.withLock(session, func() error {
		if err := s.store.EnsureSession(session, "", nil); err != nil {
			return err
		}
		repo := s.repo(session)
		if err := repo.EnsureRepo(); err != nil {
			return err
		}
		if err := repo.Checkout(branchName); err != nil {
			return err
		}
		if err := s.store.EnsureBranch(session, branchName, purpose); err != nil {
			return err
		}
		if err := repo.StageAndCommit(s.branchFiles(session, branchName), "GCC branch "+branchName); err != nil {
			return err
		}
		result = &BranchResult{Branch: branchName, Purpose: purpose, Session: session}
		return nil
	})
	return result, err
}

// LogResult reports how many entries were appended.
type LogResult struct {
	Branch  string `json:"branch"`
	Entries int    `json:"entries"`
	Session string `json:"session"`
}

// Log appends timestamped entries to an existing branch's log.
func (s *Service) Log(branchName string, entries []string, sessionID string) (*LogResult, error) {
	if err := validate.BranchName(branchName, s.cfg.Limits); err != nil {
		return nil, err
	}
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sanitized := make([]string, len(entries))
	for i, e := range entries {
		sanitized[i] = validate.SanitizeLogEntry(e, s.cfg.Limits)
	}

	var result *LogResult
	err = s.withLock(session, func() error {
		if err := s.store.EnsureSession(session, "", nil); err != nil {
			return err
		}
		repo := s.repo(session)
		if err := repo.EnsureRepo(); err != nil {
			return err
		}
		if err := s.requireBranch(session, branchName); err != nil {
			return err
		}
		if err := repo.Checkout(branchName); err != nil {
			return err
		}
		if err := s.store.AppendLog(session, branchName, sanitized); err != nil {
			return err
		}
		if err := repo.StageAndCommit(
			[]string{s.store.LogPath(session, branchName)},
			"GCC log "+branchName,
		); err != nil {
			return err
		}
		result = &LogResult{Branch: branchName, Entries: len(sanitized), Session: session}
		return nil
	})
	return result, err
}

// CommitResult reports a new checkpoint's id.
type CommitResult struct {
	Branch   string `json:"branch"`
	CommitID string `json:"commit_id"`
	Session  string `json:"session"`
}

// CommitParams carries the optional extras of a commit call.
type CommitParams struct {
	Purpose         string
	LogEntries      []string
	MetadataUpdates map[string]any
	UpdateMain      string
}

// Commit records a progress checkpoint on a branch, creating the branch
// when purpose is supplied, plus optional log entries, metadata updates,
// and a roadmap append. Everything lands in one git commit.
func (s *Service) Commit(branchName, contribution string, p CommitParams, sessionID string) (*CommitResult, error) {
	if err := validate.BranchName(branchName, s.cfg.Limits); err != nil {
		return nil, err
	}
	if err := validate.Required(contribution, "contribution"); err != nil {
		return nil, err
	}
	if err := validate.StringLength(contribution, "contribution", s.cfg.Limits); err != nil {
		return nil, err
	}
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sanitized := make([]string, len(p.LogEntries))
	for i, e := range p.LogEntries {
		sanitized[i] = validate.SanitizeLogEntry(e, s.cfg.Limits)
	}

	var result *CommitResult
	err = s.withLock(session, func() error {
		if err := s.store.EnsureSession(session, "", nil); err != nil {
			return err
		}
		repo := s.repo(session)
		if err := repo.EnsureRepo(); err != nil {
			return err
		}

		has, err := s.store.HasBranch(session, branchName)
		if err != nil {
			return err
		}
		if !has {
			if p.Purpose == "" {
				branches, lerr := s.store.ListBranches(session)
				if lerr != nil {
					return lerr
				}
				return &gccerr.BranchNotFound{Branch: branchName, Available: branches}
			}
			if err := s.store.EnsureBranch(session, branchName, p.Purpose); err != nil {
				return err
			}
		}

		if err := repo.Checkout(branchName); err != nil {
			return err
		}

		purpose, err := s.store.BranchPurpose(session, branchName)
		if err != nil {
			return err
		}
		if purpose == "" {
			purpose = p.Purpose
		}

		if len(sanitized) > 0 {
			if err := s.store.AppendLog(session, branchName, sanitized); err != nil {
				return err
			}
		}
		if len(p.MetadataUpdates) > 0 {
			if err := s.store.UpdateMetadata(session, branchName, p.MetadataUpdates); err != nil {
				return err
			}
		}

		commitID, err := s.store.AppendCommit(session, branchName, purpose, contribution)
		if err != nil {
			return err
		}

		if p.UpdateMain != "" {
			if err := s.store.UpdateMain(session, p.UpdateMain); err != nil {
				return err
			}
		}

		paths := append(s.branchFiles(session, branchName), s.store.MainPath(session))
		message := fmt.Sprintf("GCC commit %s: %s", branchName, truncateRunes(contribution, 60))
		if err := repo.StageAndCommit(paths, message); err != nil {
			return err
		}

		result = &CommitResult{Branch: branchName, CommitID: commitID, Session: session}
		return nil
	})
	return result, err
}

// MergeResult reports a completed merge.
type MergeResult struct {
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	Session      string `json:"session"`
}

// Merge folds a source branch's commits, log, and metadata into the
// target (default "main", auto-created), then merges the git branches.
// The merge is additive only: the source branch is never modified.
func (s *Service) Merge(sourceBranch, targetBranch, summary, sessionID string) (*MergeResult, error) {
	if err := validate.BranchName(sourceBranch, s.cfg.Limits); err != nil {
		return nil, err
	}
	if targetBranch != "" {
		if err := validate.BranchName(targetBranch, s.cfg.Limits); err != nil {
			return nil, err
		}
	}
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var result *MergeResult
	err = s.withLock(session, func() error {
		if err := s.store.EnsureSession(session, "", nil); err != nil {
			return err
		}
		repo := s.repo(session)
		if err := repo.EnsureRepo(); err != nil {
			return err
		}
		if err := s.requireBranch(session, sourceBranch); err != nil {
			return err
		}

		target := targetBranch
		if target == "" {
			target = "main"
		}
		has, err := s.store.HasBranch(session, target)
		if err != nil {
			return err
		}
		if !has {
			purpose := fmt.Sprintf("Main branch (merged from %s)", sourceBranch)
			if err := s.store.EnsureBranch(session, target, purpose); err != nil {
				return err
			}
		}

		if err := repo.Checkout(target); err != nil {
			return err
		}

		sourceCommits, err := s.store.ReadCommitFile(session, sourceBranch)
		if err != nil {
			return err
		}
		if err := s.store.AppendRawCommits(session, target, sourceCommits); err != nil {
			return err
		}

		sourceLog, err := s.store.ReadLogFile(session, sourceBranch)
		if err != nil {
			return err
		}
		if err := s.store.AppendRawLog(session, target, sourceBranch, sourceLog); err != nil {
			return err
		}

		sourceMeta, err := s.store.ReadMetadata(session, sourceBranch)
		if err != nil {
			return err
		}
		if len(sourceMeta) > 0 {
			targetMeta, err := s.store.ReadMetadata(session, target)
			if err != nil {
				return err
			}
			mergedFrom, _ := targetMeta["merged_from"].(map[string]any)
			if mergedFrom == nil {
				mergedFrom = map[string]any{}
			}
			mergedFrom[sourceBranch] = sourceMeta
			if err := s.store.UpdateMetadata(session, target, map[string]any{"merged_from": mergedFrom}); err != nil {
				return err
			}
		}

		// The folded files must be committed on the target before the git
		// merge so the merge commit's first parent carries them.
		message := fmt.Sprintf("GCC merge %s -> %s", sourceBranch, target)
		if err := repo.StageAndCommit(s.branchFiles(session, target), message); err != nil {
			return err
		}

		note := summary
		if note == "" {
			note = fmt.Sprintf("Merged branch %s into %s", sourceBranch, target)
		}
		if err := repo.MergeBranch(sourceBranch, note); err != nil {
			return err
		}

		if err := s.store.UpdateMain(session, note); err != nil {
			return err
		}
		if err := repo.StageAndCommit([]string{s.store.MainPath(session)}, message); err != nil {
			return err
		}

		result = &MergeResult{SourceBranch: sourceBranch, TargetBranch: target, Session: session}
		return nil
	})
	return result, err
}

// BranchContext is the per-branch section of a context result.
type BranchContext struct {
	Name          string   `json:"name"`
	Purpose       string   `json:"purpose"`
	LatestCommit  string   `json:"latest_commit"`
	LatestSummary string   `json:"latest_summary"`
	RecentCommits []string `json:"recent_commits"`
}

// ContextResult is a read-only snapshot of a session. The optional
// sections appear in the JSON form only when they were requested; a
// requested lookup that found nothing is an explicit null, never a
// missing key.
type ContextResult struct {
	Main        string         `json:"main"`
	Branches    []string       `json:"branches"`
	Session     string         `json:"session"`
	Branch      *BranchContext `json:"branch,omitempty"`
	CommitEntry *string        `json:"commit_entry,omitempty"`
	LogTail     []string       `json:"log_tail,omitempty"`
	Metadata    any            `json:"metadata,omitempty"`

	hasCommitEntry bool
	hasLogTail     bool
	hasMetadata    bool
}

// MarshalJSON distinguishes a requested-but-empty section (explicit null)
// from one that was never requested (key absent).
func (c *ContextResult) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"main":     c.Main,
		"branches": c.Branches,
		"session":  c.Session,
	}
	if c.Branch != nil {
		m["branch"] = c.Branch
	}
	if c.hasCommitEntry {
		m["commit_entry"] = c.CommitEntry
	}
	if c.hasLogTail {
		tail := c.LogTail
		if tail == nil {
			tail = []string{}
		}
		m["log_tail"] = tail
	}
	if c.hasMetadata {
		m["metadata"] = c.Metadata
	}
	return json.Marshal(m)
}

// ContextParams selects the optional detail sections of a context call.
type ContextParams struct {
	Branch          string
	CommitID        string
	LogTail         int
	MetadataSegment string
}

// Context returns the roadmap, branch list, and optional branch detail.
// It takes no lock: reads are last-writer-wins snapshots, so a read
// concurrent with a mutation may observe an intermediate state.
func (s *Service) Context(p ContextParams, sessionID string) (*ContextResult, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.EnsureSession(session, "", nil); err != nil {
		return nil, err
	}

	main, err := s.store.ReadMain(session)
	if err != nil {
		return nil, err
	}
	branches, err := s.store.ListBranches(session)
	if err != nil {
		return nil, err
	}
	result := &ContextResult{Main: main, Branches: branches, Session: session}

	if p.Branch == "" {
		return result, nil
	}
	if err := validate.BranchName(p.Branch, s.cfg.Limits); err != nil {
		return nil, err
	}
	if err := s.requireBranch(session, p.Branch); err != nil {
		return nil, err
	}

	commitText, err := s.store.ReadCommitFile(session, p.Branch)
	if err != nil {
		return nil, err
	}
	purpose, err := s.store.BranchPurpose(session, p.Branch)
	if err != nil {
		return nil, err
	}
	entries := storage.ParseEntries(commitText)

	bc := &BranchContext{Name: p.Branch, Purpose: purpose, RecentCommits: []string{}}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		bc.LatestCommit = last.ID
		bc.LatestSummary = last.Contribution()
		start := len(entries) - recentCommitWindow
		if start < 0 {
			start = 0
		}
		for _, e := range entries[start:] {
			bc.RecentCommits = append(bc.RecentCommits, e.ID)
		}
	}
	result.Branch = bc

	if p.CommitID != "" {
		entry, err := s.store.CommitEntry(session, p.Branch, p.CommitID)
		if err != nil {
			return nil, err
		}
		result.hasCommitEntry = true
		if entry != "" {
			result.CommitEntry = &entry
		}
	}

	if p.LogTail > 0 {
		tail, err := s.store.ReadLogTail(session, p.Branch, p.LogTail)
		if err != nil {
			return nil, err
		}
		result.hasLogTail = true
		result.LogTail = tail
	}

	if p.MetadataSegment != "" {
		meta, err := s.store.ReadMetadata(session, p.Branch)
		if err != nil {
			return nil, err
		}
		result.hasMetadata = true
		result.Metadata = meta[p.MetadataSegment]
	}

	return result, nil
}

// HistoryResult lists recent git checkpoints.
type HistoryResult struct {
	Session string          `json:"session"`
	Commits []gitops.Commit `json:"commits"`
}

// History returns the session's most recent git checkpoints, newest
// first. A zero limit defaults to DefaultHistoryLimit.
func (s *Service) History(limit int, sessionID string) (*HistoryResult, error) {
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if err := validate.Limit(limit, s.cfg.Limits); err != nil {
		return nil, err
	}
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var result *HistoryResult
	err = s.withLock(session, func() error {
		if err := s.store.EnsureSession(session, "", nil); err != nil {
			return err
		}
		repo := s.repo(session)
		if err := repo.EnsureRepo(); err != nil {
			return err
		}
		commits, err := repo.Log(limit)
		if err != nil {
			return err
		}
		if commits == nil {
			commits = []gitops.Commit{}
		}
		result = &HistoryResult{Session: session, Commits: commits}
		return nil
	})
	return result, err
}

// DiffResult carries unified diff text.
type DiffResult struct {
	Session string `json:"session"`
	Diff    string `json:"diff"`
}

// Diff returns the diff between two refs, or between fromRef and the
// working tree when toRef is empty.
func (s *Service) Diff(fromRef, toRef, sessionID string) (*DiffResult, error) {
	if err := validate.Required(fromRef, "from_ref"); err != nil {
		return nil, err
	}
	if err := validate.GitRef(fromRef); err != nil {
		return nil, err
	}
	if toRef != "" {
		if err := validate.GitRef(toRef); err != nil {
			return nil, err
		}
	}
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var result *DiffResult
	err = s.withLock(session, func() error {
		if err := s.store.EnsureSession(session, "", nil); err != nil {
			return err
		}
		repo := s.repo(session)
		if err := repo.EnsureRepo(); err != nil {
			return err
		}
		out, err := repo.Diff(fromRef, toRef)
		if err != nil {
			return err
		}
		result = &DiffResult{Session: session, Diff: out}
		return nil
	})
	return result, err
}

// ShowResult carries the content of a checkpoint or one file within it.
type ShowResult struct {
	Session string `json:"session"`
	Content string `json:"content"`
}

// Show returns a whole checkpoint, or one file's content at that
// checkpoint when path is non-empty.
func (s *Service) Show(ref, path, sessionID string) (*ShowResult, error) {
	if err := validate.Required(ref, "ref"); err != nil {
		return nil, err
	}
	if err := validate.GitRef(ref); err != nil {
		return nil, err
	}
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var result *ShowResult
	err = s.withLock(session, func() error {
		if err := s.store.EnsureSession(session, "", nil); err != nil {
			return err
		}
		repo := s.repo(session)
		if err := repo.EnsureRepo(); err != nil {
			return err
		}
		out, err := repo.Show(ref, path)
		if err != nil {
			return err
		}
		result = &ShowResult{Session: session, Content: out}
		return nil
	})
	return result, err
}

// ResetResult reports a completed pointer move.
type ResetResult struct {
	Session string `json:"session"`
	Ref     string `json:"ref"`
	Mode    string `json:"mode"`
}

// Reset moves the current branch pointer to ref. Hard resets discard
// working-tree changes and therefore require confirm; the refusal happens
// before any side effect.
func (s *Service) Reset(ref, mode string, confirm bool, sessionID string) (*ResetResult, error) {
	if err := validate.Required(ref, "ref"); err != nil {
		return nil, err
	}
	if err := validate.GitRef(ref); err != nil {
		return nil, err
	}
	if err := validate.ResetMode(mode); err != nil {
		return nil, err
	}
	if mode == "hard" && !confirm {
		return nil, gccerr.Validation("confirm", "hard reset requires confirm=true")
	}
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var result *ResetResult
	err = s.withLock(session, func() error {
		if err := s.store.EnsureSession(session, "", nil); err != nil {
			return err
		}
		repo := s.repo(session)
		if err := repo.EnsureRepo(); err != nil {
			return err
		}
		if err := repo.Reset(ref, mode); err != nil {
			return err
		}
		result = &ResetResult{Session: session, Ref: ref, Mode: mode}
		return nil
	})
	return result, err
}

// branchFiles returns the three per-branch file paths in staging order.
func (s *Service) branchFiles(session, branch string) []string {
	return []string{
		s.store.CommitPath(session, branch),
		s.store.LogPath(session, branch),
		s.store.MetadataPath(session, branch),
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
