// Package gitops wraps the external git binary as the session history
// backend. Every operation shells out, captures output, and appends a
// best-effort record to the repository's git.log so the full command
// history of a session is inspectable after the fact.
package gitops

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gitcontext/gcc-mcp/internal/config"
	"github.com/gitcontext/gcc-mcp/internal/gccerr"
)

// Log limits are clamped here regardless of API-level validation so the
// adapter is safe to call directly.
const (
	minLogLimit = 1
	maxLogLimit = 10000
)

// Commit is one history checkpoint.
type Commit struct {
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
	Subject   string `json:"subject"`
}

// Repo operates on one session's git repository.
type Repo struct {
	root string
	cfg  config.Git
	log  *slog.Logger
}

// New creates a Repo for the repository rooted at root.
func New(root string, cfg config.Git, log *slog.Logger) *Repo {
	return &Repo{root: root, cfg: cfg, log: log}
}

// Root returns the repository root directory.
func (r *Repo) Root() string { return r.root }

// run executes git with args in the repository root, appends the
// invocation to git.log, and normalizes failures to *gccerr.RepositoryError.
func (r *Repo) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exit := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exit = ee.ExitCode()
		} else {
			exit = -1
		}
	}
	r.appendOpLog(args, exit, stdout.String(), stderr.String())

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", &gccerr.RepositoryError{
				Msg:  "git binary not found in PATH",
				Cmd:  "git " + strings.Join(args, " "),
				Path: r.root,
				Err:  err,
			}
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = strings.TrimSpace(stdout.String())
		}
		return "", &gccerr.RepositoryError{
			Msg:    "git command failed",
			Cmd:    "git " + strings.Join(args, " "),
			Path:   r.root,
			Output: diag,
			Err:    err,
		}
	}
	return stdout.String(), nil
}

// tryRun executes git and reports success instead of an error; used for
// probes where a non-zero exit is an answer, not a failure.
func (r *Repo) tryRun(args ...string) (string, bool) {
	out, err := r.run(args...)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(out), true
}

// appendOpLog records one invocation in <root>/git.log. Failures here are
// logged and swallowed: the operation log must never abort the operation.
func (r *Repo) appendOpLog(args []string, exit int, stdout, stderr string) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	lines := []string{
		fmt.Sprintf("[%s] git %s", timestamp, strings.Join(args, " ")),
		fmt.Sprintf("exit=%d", exit),
	}
	if stdout != "" {
		lines = append(lines, "stdout:", strings.TrimRight(stdout, "\n"))
	}
	if stderr != "" {
		lines = append(lines, "stderr:", strings.TrimRight(stderr, "\n"))
	}
	lines = append(lines, "")

	path := filepath.Join(r.root, "git.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.log.Warn("git operation log unavailable", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		r.log.Warn("git operation log write failed", "path", path, "error", err)
	}
}

// EnsureRepo idempotently prepares the session repository: init with the
// configured default branch when no repository exists, configure identity
// if absent, and guarantee at least one commit so HEAD resolves.
func (r *Repo) EnsureRepo() error {
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return &gccerr.RepositoryError{Msg: "create repository directory", Path: r.root, Err: err}
	}
	if _, err := os.Stat(filepath.Join(r.root, ".git")); os.IsNotExist(err) {
		if _, err := r.run("init", "-b", r.cfg.DefaultBranch); err != nil {
			return err
		}
	}
	if err := r.ensureIdentity(); err != nil {
		return err
	}
	return r.ensureInitialCommit()
}

// ensureIdentity sets user.name/user.email only when unset; an existing
// identity is never overwritten.
func (r *Repo) ensureIdentity() error {
	if _, ok := r.tryRun("config", "--get", "user.name"); !ok {
		if _, err := r.run("config", "user.name", r.cfg.Name); err != nil {
			return err
		}
	}
	if _, ok := r.tryRun("config", "--get", "user.email"); !ok {
		if _, err := r.run("config", "user.email", r.cfg.Email); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) ensureInitialCommit() error {
	if _, ok := r.tryRun("rev-parse", "--verify", "HEAD"); ok {
		return nil
	}
	if _, err := r.run("add", "-A"); err != nil {
		return err
	}
	_, err := r.run("commit", "--allow-empty", "-m", "GCC init")
	return err
}

// CurrentBranch returns the checked-out branch name, falling back to the
// configured default when HEAD is unresolvable.
func (r *Repo) CurrentBranch() string {
	if name, ok := r.tryRun("rev-parse", "--abbrev-ref", "HEAD"); ok && name != "" {
		return name
	}
	return r.cfg.DefaultBranch
}

// Checkout switches to branch, creating it at the current HEAD when it
// does not exist. An existing branch's pointer is never reset: returning
// to a previously-used branch resumes at its prior position. Switching
// repoints HEAD and the index without touching the working tree, so files
// recorded on sibling branches stay on disk.
func (r *Repo) Checkout(branch string) error {
	if branch == "" {
		return &gccerr.RepositoryError{Msg: "branch name cannot be empty", Path: r.root}
	}
	if _, ok := r.tryRun("rev-parse", "--verify", "refs/heads/"+branch); ok {
		if _, err := r.run("symbolic-ref", "HEAD", "refs/heads/"+branch); err != nil {
			return err
		}
		_, err := r.run("reset", "-q")
		return err
	}
	_, err := r.run("checkout", "-b", branch)
	return err
}

// StageAndCommit stages the given absolute paths (all of which must live
// under the repository root) and commits them with message. When the
// staged diff is empty no commit is created.
func (r *Repo) StageAndCommit(paths []string, message string) error {
	relPaths := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(r.root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return &gccerr.RepositoryError{
				Msg:  fmt.Sprintf("path %s is not under repository root", p),
				Path: r.root,
			}
		}
		relPaths = append(relPaths, rel)
	}
	if len(relPaths) == 0 {
		return nil
	}

	if _, err := r.run(append([]string{"add"}, relPaths...)...); err != nil {
		return err
	}
	// diff --cached --quiet exits non-zero when something is staged.
	if _, clean := r.tryRun("diff", "--cached", "--quiet"); clean {
		return nil
	}
	_, err := r.run("commit", "-m", message)
	return err
}

// MergeBranch records a non-fast-forward merge of source into the current
// branch. The folded content is already committed on the current branch
// before this runs, so the merge keeps our tree and only ties the two
// histories together. Failures surface as a RepositoryError carrying git's
// diagnostic output.
func (r *Repo) MergeBranch(source, message string) error {
	_, err := r.run("merge", "--no-ff", "-s", "ours", source, "-m", message)
	return err
}

// Log returns the most recent checkpoints, newest first. limit is
// clamped to [1, 10000].
func (r *Repo) Log(limit int) ([]Commit, error) {
	if limit < minLogLimit {
		limit = minLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	out, err := r.run("log", fmt.Sprintf("-n%d", limit), "--pretty=format:%H|%ct|%s")
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		ts, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, Commit{Hash: parts[0], Timestamp: ts, Subject: parts[2]})
	}
	return commits, nil
}

// Diff returns the unified diff between two refs, or between fromRef and
// the working tree when toRef is empty.
func (r *Repo) Diff(fromRef, toRef string) (string, error) {
	if toRef != "" {
		return r.run("diff", fromRef+".."+toRef)
	}
	return r.run("diff", fromRef)
}

// Show returns a whole checkpoint, or one file's content at that
// checkpoint when path is non-empty.
func (r *Repo) Show(ref, path string) (string, error) {
	if path != "" {
		return r.run("show", ref+":"+path)
	}
	return r.run("show", ref)
}

// Reset moves the current branch pointer to ref. mode must be "soft" or
// "hard"; hard additionally discards working-tree changes.
func (r *Repo) Reset(ref, mode string) error {
	if mode != "soft" && mode != "hard" {
		return &gccerr.RepositoryError{Msg: fmt.Sprintf("reset mode must be 'soft' or 'hard', got %q", mode), Path: r.root}
	}
	_, err := r.run("reset", "--"+mode, ref)
	return err
}
