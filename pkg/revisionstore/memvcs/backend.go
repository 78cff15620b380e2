// Package memvcs is an in-memory revisionstore.Backend test double: a
// map of commit hash to tree snapshot, with no real .git directory —
// grounded in the teacher's pattern of an in-memory test double for an
// external-tool-backed interface (pkg/registry/registrytest).
package memvcs

import (
	"crypto/sha1" //nolint:gosec // test double, width matches the real backend's hash space
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/ignorefile"
	"github.com/replicate/cogset/pkg/revisionstore"
)

type snapshot struct {
	entries []revisionstore.TreeEntry
	blobs   map[string][]byte // hash -> content, for this snapshot's entries
}

// Backend is a Backend implementation that never touches disk for its
// revision history (the working tree itself is still read from/written
// to root, mirroring what a real VCS working copy would do).
type Backend struct {
	mu        sync.Mutex
	root      string
	commits   []string // ordered, oldest first
	snapshots map[string]snapshot
	staged    map[string]struct{}
	remotes   map[string]string
	head      string
}

var _ revisionstore.Backend = (*Backend)(nil)

// New returns a fresh, uninitialized Backend.
func New() *Backend {
	return &Backend{
		snapshots: map[string]snapshot{},
		staged:    map[string]struct{}{},
		remotes:   map[string]string{},
	}
}

func (b *Backend) Init(root string) error {
	b.root = root
	return os.MkdirAll(root, 0o755)
}

func (b *Backend) HasCommits() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.commits) > 0, nil
}

func (b *Backend) IsRef(ref string) bool {
	_, _, err := b.RevParse(ref)
	return err == nil
}

func (b *Backend) RevParse(ref string) (revisionstore.RefKind, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ref == "HEAD" || ref == "" {
		if b.head == "" {
			return "", "", cerrors.UnknownRef(ref)
		}
		return revisionstore.RefKindCommit, b.head, nil
	}
	if _, ok := b.snapshots[ref]; ok {
		return revisionstore.RefKindCommit, ref, nil
	}
	return "", "", cerrors.UnknownRef(ref)
}

func (b *Backend) GetTree(ref string) ([]revisionstore.TreeEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.resolveSnapshot(ref)
	if !ok {
		return nil, cerrors.UnknownRef(ref)
	}
	out := make([]revisionstore.TreeEntry, len(snap.entries))
	copy(out, snap.entries)
	return out, nil
}

func (b *Backend) resolveSnapshot(ref string) (snapshot, bool) {
	if ref == "" || ref == "HEAD" {
		ref = b.head
	}
	snap, ok := b.snapshots[ref]
	return snap, ok
}

func (b *Backend) WriteTree(ref string, dst string) error {
	b.mu.Lock()
	snap, ok := b.resolveSnapshot(ref)
	b.mu.Unlock()
	if !ok {
		return cerrors.UnknownRef(ref)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range snap.entries {
		path := filepath.Join(dst, e.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, snap.blobs[e.Hash], 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Add(paths []string, base string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		b.staged[p] = struct{}{}
	}
	return nil
}

// Commit snapshots every staged path's current on-disk content under
// root into a new commit.
func (b *Backend) Commit(message string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	blobs := map[string][]byte{}
	var entries []revisionstore.TreeEntry
	for p := range b.staged {
		data, err := os.ReadFile(filepath.Join(b.root, p))
		if err != nil {
			return "", err
		}
		h := sha1.Sum(data) //nolint:gosec
		hash := hex.EncodeToString(h[:])
		blobs[hash] = data
		entries = append(entries, revisionstore.TreeEntry{Path: p, Hash: hash})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	commitHash := hashCommit(message, entries)
	b.snapshots[commitHash] = snapshot{entries: entries, blobs: blobs}
	b.commits = append(b.commits, commitHash)
	b.head = commitHash
	b.staged = map[string]struct{}{}
	return commitHash, nil
}

func hashCommit(message string, entries []revisionstore.TreeEntry) string {
	h := sha1.New() //nolint:gosec
	h.Write([]byte(message))
	for _, e := range entries {
		h.Write([]byte(e.Path))
		h.Write([]byte(e.Hash))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (b *Backend) Tag(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.head == "" {
		return cerrors.Vcs("tag", cerrors.UnknownRef("HEAD"))
	}
	b.snapshots[name] = b.snapshots[b.head]
	return nil
}

func (b *Backend) Checkout(ref string, paths []string) error {
	if len(paths) == 0 {
		return b.WriteTree(ref, b.root)
	}
	b.mu.Lock()
	snap, ok := b.resolveSnapshot(ref)
	b.mu.Unlock()
	if !ok {
		return cerrors.UnknownRef(ref)
	}
	want := map[string]struct{}{}
	for _, p := range paths {
		want[p] = struct{}{}
	}
	for _, e := range snap.entries {
		if _, ok := want[e.Path]; !ok {
			continue
		}
		path := filepath.Join(b.root, e.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, snap.blobs[e.Hash], 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Status() (map[string]revisionstore.ChangeKind, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := map[string]revisionstore.ChangeKind{}
	for p := range b.staged {
		out[p] = revisionstore.ChangeAdded
	}
	return out, nil
}

func (b *Backend) ListRemotes() ([]revisionstore.RemoteSpec, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]revisionstore.RemoteSpec, 0, len(b.remotes))
	for name, url := range b.remotes {
		out = append(out, revisionstore.RemoteSpec{Name: name, URL: url})
	}
	return out, nil
}

func (b *Backend) AddRemote(name, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.remotes[name]; ok {
		return cerrors.RemoteExists(name)
	}
	b.remotes[name] = url
	return nil
}

func (b *Backend) RemoveRemote(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.remotes[name]; !ok {
		return cerrors.UnknownRemote(name)
	}
	delete(b.remotes, name)
	return nil
}

func (b *Backend) Fetch(remote string) error { return nil }
func (b *Backend) Pull(remote string) error  { return nil }
func (b *Backend) Push(remote string) error  { return nil }

func (b *Backend) CheckUpdates(remote string) ([]string, error) {
	return nil, nil
}

func (b *Backend) Ignore(path string, patterns []string, mode ignorefile.Mode) error {
	return ignorefile.Write(path, patterns, mode)
}
