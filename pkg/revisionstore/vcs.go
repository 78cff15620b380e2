// Package revisionstore defines the abstract Backend contract (C3):
// the RevisionStore adapter wraps whatever underlying revision-control
// tool a Project uses, exposing only the operations named in §4.2.
// Concrete implementations live in subpackages (gitvcs, memvcs).
package revisionstore

import (
	"time"

	"github.com/replicate/cogset/pkg/ignorefile"
)

// RefKind names what a resolved ref turned out to be.
type RefKind string

const (
	RefKindCommit RefKind = "commit"
	RefKindTree   RefKind = "tree"
	RefKindBlob   RefKind = "blob"
)

// ChangeKind names the kind of change status() reports for a path,
// matching §4.2's {A, D, M, R}.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "A"
	ChangeDeleted  ChangeKind = "D"
	ChangeModified ChangeKind = "M"
	ChangeRenamed  ChangeKind = "R"
)

// TreeEntry is one file recorded in a VCS tree object.
type TreeEntry struct {
	Path string
	Hash string // content hash of the blob, in the backend's own hash space
}

// RemoteSpec names one VCS-level remote (distinct from RemoteRegistry's
// data remotes — this is the "where do push/pull/fetch talk to" remote,
// surfaced to ProjectRepositories, §9 supplement).
type RemoteSpec struct {
	Name string
	URL  string
}

// Backend is the abstract VCS contract of §4.2. All ref resolution is
// case-sensitive; the literal empty ref denotes the working tree,
// "index" denotes the index, and any 40-hex string denotes a revision
// hash — interpreting those three forms is the RevisionStore/Project
// layer's job, not the backend's: the backend only deals in whatever
// symbolic refs and hashes its underlying tool understands.
type Backend interface {
	// Init initializes a fresh repository at root. A no-op (and not an
	// error) if one already exists.
	Init(root string) error

	// HasCommits reports whether the repository has at least one commit.
	HasCommits() (bool, error)

	// IsRef reports whether ref resolves to anything in the backend.
	IsRef(ref string) bool

	// RevParse resolves ref to its kind and backend-native hash.
	RevParse(ref string) (RefKind, string, error)

	// GetTree returns the flat file list of the tree at ref.
	GetTree(ref string) ([]TreeEntry, error)

	// WriteTree writes every blob reachable from the tree at ref into
	// dst, preserving relative paths.
	WriteTree(ref string, dst string) error

	// Add stages paths (relative to base) for the next commit.
	Add(paths []string, base string) error

	// Commit records a new commit from whatever is currently staged,
	// returning its hash.
	Commit(message string) (string, error)

	// Tag names the current HEAD. Supplemented from the original
	// GitWrapper.tag (§9 of the expanded spec).
	Tag(name string) error

	// Checkout restores ref (optionally scoped to paths) into the
	// working tree.
	Checkout(ref string, paths []string) error

	// Status returns path -> change kind relative to HEAD.
	Status() (map[string]ChangeKind, error)

	// ListRemotes returns the VCS-level named remotes.
	ListRemotes() ([]RemoteSpec, error)
	// AddRemote registers a VCS-level remote.
	AddRemote(name, url string) error
	// RemoveRemote deregisters a VCS-level remote.
	RemoveRemote(name string) error

	// Fetch retrieves refs from remote without altering the working
	// tree or any local ref.
	Fetch(remote string) error
	// Pull fetches and integrates remote's default branch.
	Pull(remote string) error
	// Push sends local commits to remote.
	Push(remote string) error
	// CheckUpdates reports which remote refs changed since the last
	// fetch, supplemented from the original (commented-out in
	// project.py, restored per §9 of the expanded spec).
	CheckUpdates(remote string) ([]string, error)

	// Ignore updates a gitignore-format file in the given mode, via the
	// shared rewrite/append/remove laws in the ignorefile package.
	Ignore(path string, patterns []string, mode ignorefile.Mode) error
}

// CommitInfo is metadata about one commit. No Backend method returns
// it; CheckUpdates reports updated refs as plain strings.
type CommitInfo struct {
	Hash    string
	Message string
	When    time.Time
}
