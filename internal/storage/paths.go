package storage

import "path/filepath"

// On-disk layout, fixed for interoperability with existing session data:
//
//	<root>/.GCC/sessions/<session>/main.md
//	<root>/.GCC/sessions/<session>/.lock
//	<root>/.GCC/sessions/<session>/branches/<branch>/commit.md
//	<root>/.GCC/sessions/<session>/branches/<branch>/log.md
//	<root>/.GCC/sessions/<session>/branches/<branch>/metadata.yaml
const (
	gccDirName      = ".GCC"
	sessionsDirName = "sessions"
	branchesDirName = "branches"

	mainFileName     = "main.md"
	commitFileName   = "commit.md"
	logFileName      = "log.md"
	metadataFileName = "metadata.yaml"
	lockFileName     = ".lock"
)

// GCCRoot returns <root>/.GCC.
func (s *Store) GCCRoot() string {
	return filepath.Join(s.root, gccDirName)
}

// SessionRoot returns the session directory, which is also the root of
// the session's git repository.
func (s *Store) SessionRoot(session string) string {
	return filepath.Join(s.GCCRoot(), sessionsDirName, session)
}

// BranchesRoot returns the directory holding all branch subtrees.
func (s *Store) BranchesRoot(session string) string {
	return filepath.Join(s.SessionRoot(session), branchesDirName)
}

// BranchRoot returns one branch's directory.
func (s *Store) BranchRoot(session, branch string) string {
	return filepath.Join(s.BranchesRoot(session), branch)
}

// MainPath returns the session's main document path.
func (s *Store) MainPath(session string) string {
	return filepath.Join(s.SessionRoot(session), mainFileName)
}

// CommitPath returns a branch's commit file path.
func (s *Store) CommitPath(session, branch string) string {
	return filepath.Join(s.BranchRoot(session, branch), commitFileName)
}

// LogPath returns a branch's log file path.
func (s *Store) LogPath(session, branch string) string {
	return filepath.Join(s.BranchRoot(session, branch), logFileName)
}

// MetadataPath returns a branch's metadata file path.
func (s *Store) MetadataPath(session, branch string) string {
	return filepath.Join(s.BranchRoot(session, branch), metadataFileName)
}

// LockPath returns the session lock file path.
func (s *Store) LockPath(session string) string {
	return filepath.Join(s.SessionRoot(session), lockFileName)
}
