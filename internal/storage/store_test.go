package storage

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	s.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}
	return s
}

func TestEnsureSessionWritesTemplateOnce(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.EnsureSession("default", "Ship v1", []string{"write code", "write tests"}))

	main, err := s.ReadMain("default")
	require.NoError(t, err)
	want := "# GCC Roadmap\n\n## Goal\nShip v1\n\n## Todo\n- write code\n- write tests\n"
	assert.Equal(t, want, main)

	// Second ensure with different arguments must not touch main.md.
	require.NoError(t, s.EnsureSession("default", "Different goal", nil))
	again, err := s.ReadMain("default")
	require.NoError(t, err)
	assert.Equal(t, want, again)
}

func TestEnsureSessionDefaults(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.EnsureSession("default", "", nil))

	main, err := s.ReadMain("default")
	require.NoError(t, err)
	assert.Contains(t, main, "## Goal\n(unset)")
	assert.Contains(t, main, "## Todo\n- (none)")
}

func TestEnsureBranchLayout(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.EnsureSession("default", "", nil))
	require.NoError(t, s.EnsureBranch("default", "alpha", "Explore parser"))

	commit, err := s.ReadCommitFile("default", "alpha")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(commit, "# Branch: alpha\n# Purpose: Explore parser\n"))

	purpose, err := s.BranchPurpose("default", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "Explore parser", purpose)

	logData, err := os.ReadFile(s.LogPath("default", "alpha"))
	require.NoError(t, err)
	assert.Empty(t, logData)

	meta, err := s.ReadMetadata("default", "alpha")
	require.NoError(t, err)
	assert.Contains(t, meta, "file_structure")
	assert.Contains(t, meta, "env_config")

	// Re-ensuring with a different purpose must not rewrite the header.
	require.NoError(t, s.EnsureBranch("default", "alpha", "Changed purpose"))
	purpose, err = s.BranchPurpose("default", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "Explore parser", purpose)
}

func TestListBranchesSorted(t *testing.T) {
	s := testStore(t)

	branches, err := s.ListBranches("default")
	require.NoError(t, err)
	assert.Empty(t, branches)

	require.NoError(t, s.EnsureSession("default", "", nil))
	for _, b := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.EnsureBranch("default", b, "p"))
	}

	branches, err = s.ListBranches("default")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, branches)
}

func TestAppendLogFormat(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.EnsureSession("default", "", nil))
	require.NoError(t, s.EnsureBranch("default", "alpha", "p"))

	require.NoError(t, s.AppendLog("default", "alpha", nil))
	data, err := os.ReadFile(s.LogPath("default", "alpha"))
	require.NoError(t, err)
	assert.Empty(t, data, "empty entry list must be a no-op")

	require.NoError(t, s.AppendLog("default", "alpha", []string{"step one", "step two"}))
	data, err = os.ReadFile(s.LogPath("default", "alpha"))
	require.NoError(t, err)
	assert.Equal(t, "[2026-03-14T09:26:53Z]\n- step one\n- step two\n\n", string(data))
}

func TestReadLogTail(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.EnsureSession("default", "", nil))
	require.NoError(t, s.EnsureBranch("default", "alpha", "p"))
	require.NoError(t, s.AppendLog("default", "alpha", []string{"a", "b", "c"}))

	tail, err := s.ReadLogTail("default", "alpha", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"- b", "- c"}, tail)

	tail, err = s.ReadLogTail("default", "alpha", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"[2026-03-14T09:26:53Z]", "- a", "- b", "- c"}, tail)

	for _, n := range []int{0, -5} {
		tail, err = s.ReadLogTail("default", "alpha", n)
		require.NoError(t, err)
		assert.Empty(t, tail)
	}

	tail, err = s.ReadLogTail("default", "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, tail)
}

func TestAppendCommitChaining(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.EnsureSession("default", "", nil))
	require.NoError(t, s.EnsureBranch("default", "alpha", "Build feature"))

	ids := make([]string, 3)
	for i := range ids {
		id, err := s.AppendCommit("default", "alpha", "Build feature", fmt.Sprintf("step %d", i+1))
		require.NoError(t, err)
		require.Len(t, id, 8)
		ids[i] = id
	}

	text, err := s.ReadCommitFile("default", "alpha")
	require.NoError(t, err)
	entries := ParseEntries(text)
	require.Len(t, entries, 3)

	assert.Equal(t, NoPreviousSummary, entries[0].PreviousSummary())
	assert.Equal(t, "(none)\nstep 1", entries[1].PreviousSummary())
	assert.Equal(t, "(none)\nstep 1\nstep 2", entries[2].PreviousSummary())

	for i, e := range entries {
		assert.Equal(t, ids[i], e.ID)
		assert.Equal(t, "Build feature", e.Purpose())
		assert.Equal(t, fmt.Sprintf("step %d", i+1), e.Contribution())
		assert.Equal(t, "2026-03-14T09:26:53Z", e.Timestamp)
	}
}

func TestCommitEntryLookup(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.EnsureSession("default", "", nil))
	require.NoError(t, s.EnsureBranch("default", "alpha", "p"))

	id, err := s.AppendCommit("default", "alpha", "p", "the work")
	require.NoError(t, err)

	raw, err := s.CommitEntry("default", "alpha", id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, Separator))
	assert.Contains(t, raw, "the work")

	raw, err = s.CommitEntry("default", "alpha", "00000000")
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestMetadataUpsertAndDelete(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.EnsureSession("default", "", nil))
	require.NoError(t, s.EnsureBranch("default", "alpha", "p"))

	require.NoError(t, s.UpdateMetadata("default", "alpha", map[string]any{
		"owner": "agent-7",
		"files": map[string]any{"main.go": "entrypoint"},
	}))

	meta, err := s.ReadMetadata("default", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", meta["owner"])
	assert.Contains(t, meta, "file_structure")

	// nil value deletes the key; others are upserted.
	require.NoError(t, s.UpdateMetadata("default", "alpha", map[string]any{
		"owner": nil,
		"phase": 2,
	}))
	meta, err = s.ReadMetadata("default", "alpha")
	require.NoError(t, err)
	assert.NotContains(t, meta, "owner")
	assert.Equal(t, 2, meta["phase"])
}

func TestReadMetadataMissingFile(t *testing.T) {
	s := testStore(t)
	meta, err := s.ReadMetadata("default", "ghost")
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestUpdateMain(t *testing.T) {
	s := testStore(t)

	// Empty document: the block becomes the entire content.
	require.NoError(t, s.UpdateMain("default", "  first update  \n"))
	main, err := s.ReadMain("default")
	require.NoError(t, err)
	assert.Equal(t, "first update\n", main)

	require.NoError(t, s.UpdateMain("default", "second update"))
	main, err = s.ReadMain("default")
	require.NoError(t, err)
	assert.Equal(t, "first update\n\nsecond update\n", main)
}

func TestWriteFileLeavesNoTempDebris(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.EnsureSession("default", "goal", nil))

	entries, err := os.ReadDir(s.SessionRoot("default"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}
