// Package server assembles the MCP server with all gcc tools registered.
package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gitcontext/gcc-mcp/internal/audit"
	"github.com/gitcontext/gcc-mcp/internal/commands"
	"github.com/gitcontext/gcc-mcp/internal/session"
	"github.com/gitcontext/gcc-mcp/internal/tools"
)

// Version is the server version reported to clients and /health.
const Version = "0.1.0"

// commitGuide is appended to the gcc_commit description so agent callers
// know what a useful checkpoint contains.
const commitGuide = "Commit guidance: every gcc_commit should include a clear contribution summary, " +
	"key observations/actions in log_entries, and any file/module changes in metadata_updates. " +
	"Update main milestones via update_main when needed."

// New creates a fully configured MCP server with all tools registered.
func New(svc *commands.Service, auditStore *audit.Store) *mcp.Server {
	gt := &tools.GCCTools{
		Service:  svc,
		Resolver: session.New(),
		Audit:    auditStore,
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "gcc-mcp",
		Version: Version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_init",
		Description: "Initialize a session memory store. Creates main.md (goal + todo) and prepares a git-backed workspace for memory commits. IMPORTANT: Use English only for all text values to avoid encoding issues. All paths are automatically managed by the server using session_id.",
	}, gt.Init)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_branch",
		Description: "Create a memory branch within session. Writes commit.md/log.md/metadata.yaml and creates a git branch for isolated exploration. IMPORTANT: Use English only for 'purpose' to avoid encoding issues.",
	}, gt.Branch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_commit",
		Description: "Record a structured memory checkpoint. Appends to commit.md, optionally adds OTA log entries and metadata updates, updates main.md, and creates a git commit. IMPORTANT: Use English only for all text fields ('contribution', 'log_entries') to avoid encoding issues. " + commitGuide,
	}, gt.Commit)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_merge",
		Description: "Merge a source memory branch into a target branch (default main). Performs git merge and updates main.md plus merged commit/log/metadata content.",
	}, gt.Merge)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_context",
		Description: "Retrieve structured context at multiple levels: project overview, branch summaries, commit entry, log tail, or a metadata segment.",
	}, gt.Context)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_log",
		Description: "Append fine-grained OTA log entries to branch log.md and record a git commit for traceability.",
	}, gt.Log)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_history",
		Description: "List git commit history for session repository. Each entry reflects a memory change checkpoint.",
	}, gt.History)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_diff",
		Description: "Show git diff between two refs to compare memory changes (e.g., HEAD~1..HEAD).",
	}, gt.Diff)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_show",
		Description: "Show file content at a git ref (e.g., main.md or branches/<branch>/commit.md) to inspect memory before/after changes.",
	}, gt.Show)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gcc_reset",
		Description: "Reset session git repo to a ref. Use mode=soft or hard; hard reset requires confirm=true.",
	}, gt.Reset)

	return srv
}
