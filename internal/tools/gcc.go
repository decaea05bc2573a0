// Package tools exposes the GCC operations as MCP tools. Handlers are
// thin: resolve the session id, call the command layer, record the call
// in the audit store, and translate errors into tool results carrying
// the stable error kind.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gitcontext/gcc-mcp/internal/audit"
	"github.com/gitcontext/gcc-mcp/internal/commands"
	"github.com/gitcontext/gcc-mcp/internal/gccerr"
	"github.com/gitcontext/gcc-mcp/internal/session"
)

// GCCTools holds references needed by the gcc_* tool handlers.
type GCCTools struct {
	Service  *commands.Service
	Resolver *session.Resolver
	Audit    *audit.Store
}

// --- Input types ---

type InitInput struct {
	Goal      string   `json:"goal,omitempty" jsonschema:"Session goal or objective"`
	Todo      []string `json:"todo,omitempty" jsonschema:"List of todo items"`
	SessionID string   `json:"session_id,omitempty" jsonschema:"Unique session identifier (auto-generated if not provided)"`
}

type BranchInput struct {
	Branch    string `json:"branch" jsonschema:"Branch name"`
	Purpose   string `json:"purpose" jsonschema:"Branch purpose"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Session identifier (uses default if not provided)"`
}

type CommitInput struct {
	Branch          string         `json:"branch" jsonschema:"Branch name"`
	Contribution    string         `json:"contribution" jsonschema:"This commit's contribution"`
	Purpose         string         `json:"purpose,omitempty" jsonschema:"Branch purpose (optional if branch exists)"`
	LogEntries      []string       `json:"log_entries,omitempty" jsonschema:"Log entries to add"`
	MetadataUpdates map[string]any `json:"metadata_updates,omitempty" jsonschema:"Metadata to update"`
	UpdateMain      string         `json:"update_main,omitempty" jsonschema:"Text to append to main.md"`
	SessionID       string         `json:"session_id,omitempty" jsonschema:"Session identifier (uses default if not provided)"`
}

type MergeInput struct {
	SourceBranch string `json:"source_branch" jsonschema:"Source branch to merge from"`
	TargetBranch string `json:"target_branch,omitempty" jsonschema:"Target branch (default: main)"`
	Summary      string `json:"summary,omitempty" jsonschema:"Merge summary"`
	SessionID    string `json:"session_id,omitempty" jsonschema:"Session identifier (uses default if not provided)"`
}

type ContextInput struct {
	Branch          string `json:"branch,omitempty" jsonschema:"Branch name to get context for"`
	CommitID        string `json:"commit_id,omitempty" jsonschema:"Specific commit ID"`
	LogTail         int    `json:"log_tail,omitempty" jsonschema:"Number of recent log entries"`
	MetadataSegment string `json:"metadata_segment,omitempty" jsonschema:"Metadata key to retrieve"`
	SessionID       string `json:"session_id,omitempty" jsonschema:"Session identifier (uses default if not provided)"`
}

type LogInput struct {
	Branch    string   `json:"branch" jsonschema:"Branch name"`
	Entries   []string `json:"entries" jsonschema:"Log entries"`
	SessionID string   `json:"session_id,omitempty" jsonschema:"Session identifier (uses default if not provided)"`
}

type HistoryInput struct {
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum commits to return"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Session identifier (uses default if not provided)"`
}

type DiffInput struct {
	FromRef   string `json:"from_ref" jsonschema:"Source git reference"`
	ToRef     string `json:"to_ref,omitempty" jsonschema:"Target git reference (default: HEAD)"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Session identifier (uses default if not provided)"`
}

type ShowInput struct {
	Ref       string `json:"ref" jsonschema:"Git reference (commit hash, branch, tag)"`
	Path      string `json:"path,omitempty" jsonschema:"File path within git repo"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Session identifier (uses default if not provided)"`
}

type ResetInput struct {
	Ref       string `json:"ref" jsonschema:"Git reference to reset to"`
	Mode      string `json:"mode,omitempty" jsonschema:"Reset mode: soft or hard"`
	Confirm   bool   `json:"confirm,omitempty" jsonschema:"Required for hard reset"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Session identifier (uses default if not provided)"`
}

// --- Handlers ---

func (t *GCCTools) Init(_ context.Context, _ *mcp.CallToolRequest, input InitInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	res, err := t.Service.Init(input.Goal, input.Todo, session)
	t.record("gcc_init", session, map[string]any{"goal": input.Goal, "todo": input.Todo}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) Branch(_ context.Context, _ *mcp.CallToolRequest, input BranchInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	res, err := t.Service.Branch(input.Branch, input.Purpose, session)
	t.record("gcc_branch", session, map[string]any{"branch": input.Branch, "purpose": input.Purpose}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) Commit(_ context.Context, _ *mcp.CallToolRequest, input CommitInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	res, err := t.Service.Commit(input.Branch, input.Contribution, commands.CommitParams{
		Purpose:         input.Purpose,
		LogEntries:      input.LogEntries,
		MetadataUpdates: input.MetadataUpdates,
		UpdateMain:      input.UpdateMain,
	}, session)
	t.record("gcc_commit", session, map[string]any{"branch": input.Branch, "contribution": input.Contribution}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) Merge(_ context.Context, _ *mcp.CallToolRequest, input MergeInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	res, err := t.Service.Merge(input.SourceBranch, input.TargetBranch, input.Summary, session)
	t.record("gcc_merge", session, map[string]any{"source_branch": input.SourceBranch, "target_branch": input.TargetBranch}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) Context(_ context.Context, _ *mcp.CallToolRequest, input ContextInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	res, err := t.Service.Context(commands.ContextParams{
		Branch:          input.Branch,
		CommitID:        input.CommitID,
		LogTail:         input.LogTail,
		MetadataSegment: input.MetadataSegment,
	}, session)
	t.record("gcc_context", session, map[string]any{"branch": input.Branch}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) Log(_ context.Context, _ *mcp.CallToolRequest, input LogInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	res, err := t.Service.Log(input.Branch, input.Entries, session)
	t.record("gcc_log", session, map[string]any{"branch": input.Branch, "entries": len(input.Entries)}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) History(_ context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	res, err := t.Service.History(input.Limit, session)
	t.record("gcc_history", session, map[string]any{"limit": input.Limit}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) Diff(_ context.Context, _ *mcp.CallToolRequest, input DiffInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	res, err := t.Service.Diff(input.FromRef, input.ToRef, session)
	t.record("gcc_diff", session, map[string]any{"from_ref": input.FromRef, "to_ref": input.ToRef}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) Show(_ context.Context, _ *mcp.CallToolRequest, input ShowInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	res, err := t.Service.Show(input.Ref, input.Path, session)
	t.record("gcc_show", session, map[string]any{"ref": input.Ref, "path": input.Path}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) Reset(_ context.Context, _ *mcp.CallToolRequest, input ResetInput) (*mcp.CallToolResult, any, error) {
	session := t.Resolver.Resolve(input.SessionID)
	mode := input.Mode
	if mode == "" {
		mode = "soft"
	}
	res, err := t.Service.Reset(input.Ref, mode, input.Confirm, session)
	t.record("gcc_reset", session, map[string]any{"ref": input.Ref, "mode": mode, "confirm": input.Confirm}, err)
	if err != nil {
		return opError(err), nil, nil
	}
	return toolJSON(res)
}

func (t *GCCTools) record(action, session string, params map[string]any, err error) {
	errMsg := ""
	result := "ok"
	if err != nil {
		errMsg = err.Error()
		result = gccerr.Kind(err)
	}
	t.Audit.Log(action, session, params, result, errMsg)
}

// opError renders an operation failure as a tool error carrying the
// stable machine identifier ahead of the human-readable message.
func opError(err error) *mcp.CallToolResult {
	return toolError("%s: %v", gccerr.Kind(err), err)
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
