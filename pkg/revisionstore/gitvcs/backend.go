// Package gitvcs implements revisionstore.Backend over go-git, the way
// the original implementation's GitWrapper shells out to (or, in the
// original, binds) libgit2/git: init, commit, tag, checkout, remotes
// and status are all native go-git operations rather than a subprocess.
package gitvcs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/ignorefile"
	"github.com/replicate/cogset/pkg/revisionstore"
	"github.com/replicate/cogset/pkg/util/console"
)

// Backend is a revisionstore.Backend backed by an on-disk git
// repository via go-git.
type Backend struct {
	repo *git.Repository
	root string
}

var _ revisionstore.Backend = (*Backend)(nil)

// Open opens an existing git repository at root.
func Open(root string) (*Backend, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, cerrors.Vcs("open", err)
	}
	return &Backend{repo: repo, root: root}, nil
}

// Init initializes a fresh git repository at root, or opens the
// existing one if already present.
func (b *Backend) Init(root string) error {
	repo, err := git.PlainInit(root, false)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			repo, err = git.PlainOpen(root)
			if err != nil {
				return cerrors.Vcs("init", err)
			}
			b.repo = repo
			b.root = root
			return nil
		}
		return cerrors.Vcs("init", err)
	}
	b.repo = repo
	b.root = root
	return nil
}

func (b *Backend) HasCommits() (bool, error) {
	_, err := b.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, cerrors.Vcs("has_commits", err)
	}
	return true, nil
}

func (b *Backend) IsRef(ref string) bool {
	_, _, err := b.RevParse(ref)
	return err == nil
}

// RevParse resolves ref to its object kind and hash, distinguishing
// commit/tree/blob via the resolved object's plumbing.ObjectType — an
// if/else over the concrete type, never a blanket "any error means
// unknown ref" (the defect named for the Python original's
// _parse_ref was an unconditional except-Exception that discarded a
// valid cached-blob resolution; this mirrors the corrected behavior).
func (b *Backend) RevParse(ref string) (revisionstore.RefKind, string, error) {
	hash, err := b.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", "", cerrors.UnknownRef(ref)
	}

	obj, err := b.repo.Object(plumbing.AnyObject, *hash)
	if err != nil {
		return "", "", cerrors.UnknownRef(ref)
	}

	switch obj.Type() {
	case plumbing.CommitObject:
		return revisionstore.RefKindCommit, hash.String(), nil
	case plumbing.TreeObject:
		return revisionstore.RefKindTree, hash.String(), nil
	case plumbing.BlobObject:
		return revisionstore.RefKindBlob, hash.String(), nil
	default:
		return "", "", cerrors.UnknownRef(ref)
	}
}

func (b *Backend) commitTree(ref string) (*object.Tree, error) {
	kind, hash, err := b.RevParse(ref)
	if err != nil {
		return nil, err
	}
	switch kind {
	case revisionstore.RefKindCommit:
		commit, err := b.repo.CommitObject(plumbing.NewHash(hash))
		if err != nil {
			return nil, cerrors.Vcs("commit_object", err)
		}
		return commit.Tree()
	case revisionstore.RefKindTree:
		return b.repo.TreeObject(plumbing.NewHash(hash))
	default:
		return nil, cerrors.UnknownRef(ref)
	}
}

func (b *Backend) GetTree(ref string) ([]revisionstore.TreeEntry, error) {
	tree, err := b.commitTree(ref)
	if err != nil {
		return nil, err
	}

	var entries []revisionstore.TreeEntry
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cerrors.Vcs("get_tree", err)
		}
		if entry.Mode.IsFile() {
			entries = append(entries, revisionstore.TreeEntry{Path: name, Hash: entry.Hash.String()})
		}
	}
	return entries, nil
}

// WriteTree walks the tree at ref, writing every blob to dst with its
// original relative path — mirroring the original GitWrapper.write_tree.
func (b *Backend) WriteTree(ref string, dst string) error {
	tree, err := b.commitTree(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return cerrors.Vcs("write_tree", err)
		}
		if !entry.Mode.IsFile() {
			continue
		}
		blob, err := b.repo.BlobObject(entry.Hash)
		if err != nil {
			return cerrors.Vcs("write_tree", err)
		}
		if err := writeBlob(blob, filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	return nil
}

func writeBlob(blob *object.Blob, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	r, err := blob.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

func (b *Backend) Add(paths []string, base string) error {
	wt, err := b.repo.Worktree()
	if err != nil {
		return cerrors.Vcs("add", err)
	}
	for _, p := range paths {
		rel := p
		if base != "" {
			if r, err := filepath.Rel(base, p); err == nil {
				rel = r
			}
		}
		if _, err := wt.Add(rel); err != nil {
			return cerrors.Vcs(fmt.Sprintf("add %s", rel), err)
		}
	}
	return nil
}

func (b *Backend) Commit(message string) (string, error) {
	wt, err := b.repo.Worktree()
	if err != nil {
		return "", cerrors.Vcs("commit", err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{})
	if err != nil {
		return "", cerrors.Vcs("commit", err)
	}
	return hash.String(), nil
}

func (b *Backend) Tag(name string) error {
	head, err := b.repo.Head()
	if err != nil {
		return cerrors.Vcs("tag", err)
	}
	if _, err := b.repo.CreateTag(name, head.Hash(), nil); err != nil {
		return cerrors.Vcs("tag", err)
	}
	return nil
}

func (b *Backend) Checkout(ref string, paths []string) error {
	wt, err := b.repo.Worktree()
	if err != nil {
		return cerrors.Vcs("checkout", err)
	}

	_, hash, err := b.RevParse(ref)
	if err != nil {
		return err
	}

	opts := &git.CheckoutOptions{Hash: plumbing.NewHash(hash)}
	if len(paths) > 0 {
		// go-git doesn't support a pathspec-scoped checkout directly;
		// fall back to per-path file restoration from the target tree.
		return b.checkoutPaths(hash, paths)
	}
	if err := wt.Checkout(opts); err != nil {
		return cerrors.Vcs("checkout", err)
	}
	return nil
}

func (b *Backend) checkoutPaths(hash string, paths []string) error {
	tree, err := b.commitTree(hash)
	if err != nil {
		return err
	}
	for _, p := range paths {
		entry, err := tree.FindEntry(p)
		if err != nil {
			continue
		}
		blob, err := b.repo.BlobObject(entry.Hash)
		if err != nil {
			return cerrors.Vcs("checkout", err)
		}
		if err := writeBlob(blob, filepath.Join(b.root, p)); err != nil {
			return err
		}
	}
	return nil
}

// Status reports each file's worktree status (worktree against the
// index) and maps go-git's status codes
// to the shared {A,D,M,R} taxonomy.
func (b *Backend) Status() (map[string]revisionstore.ChangeKind, error) {
	wt, err := b.repo.Worktree()
	if err != nil {
		return nil, cerrors.Vcs("status", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, cerrors.Vcs("status", err)
	}

	out := make(map[string]revisionstore.ChangeKind, len(st))
	for path, fs := range st {
		out[path] = mapStatusCode(fs.Worktree)
	}
	return out, nil
}

func mapStatusCode(code git.StatusCode) revisionstore.ChangeKind {
	switch code {
	case git.Added, git.Untracked:
		return revisionstore.ChangeAdded
	case git.Deleted:
		return revisionstore.ChangeDeleted
	case git.Renamed:
		return revisionstore.ChangeRenamed
	default:
		return revisionstore.ChangeModified
	}
}

func (b *Backend) ListRemotes() ([]revisionstore.RemoteSpec, error) {
	remotes, err := b.repo.Remotes()
	if err != nil {
		return nil, cerrors.Vcs("list_remotes", err)
	}
	out := make([]revisionstore.RemoteSpec, 0, len(remotes))
	for _, r := range remotes {
		urls := r.Config().URLs
		url := ""
		if len(urls) > 0 {
			url = urls[0]
		}
		out = append(out, revisionstore.RemoteSpec{Name: r.Config().Name, URL: url})
	}
	return out, nil
}

func (b *Backend) AddRemote(name, url string) error {
	_, err := b.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
	if err != nil {
		return cerrors.Vcs("add_remote", err)
	}
	return nil
}

func (b *Backend) RemoveRemote(name string) error {
	if err := b.repo.DeleteRemote(name); err != nil {
		return cerrors.Vcs("remove_remote", err)
	}
	return nil
}

func (b *Backend) Fetch(remote string) error {
	err := b.repo.Fetch(&git.FetchOptions{RemoteName: remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return cerrors.Vcs("fetch", err)
	}
	return nil
}

func (b *Backend) Pull(remote string) error {
	wt, err := b.repo.Worktree()
	if err != nil {
		return cerrors.Vcs("pull", err)
	}
	err = wt.Pull(&git.PullOptions{RemoteName: remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return cerrors.Vcs("pull", err)
	}
	return nil
}

func (b *Backend) Push(remote string) error {
	err := b.repo.Push(&git.PushOptions{RemoteName: remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return cerrors.Vcs("push", err)
	}
	return nil
}

// CheckUpdates fetches remote and reports which refs moved, by
// comparing ref hashes before and after — supplemented from the
// original's commented-out check_updates.
func (b *Backend) CheckUpdates(remote string) ([]string, error) {
	before, err := b.remoteRefHashes(remote)
	if err != nil {
		return nil, err
	}
	if err := b.Fetch(remote); err != nil {
		return nil, err
	}
	after, err := b.remoteRefHashes(remote)
	if err != nil {
		return nil, err
	}

	var updated []string
	for name, hash := range after {
		if before[name] != hash {
			updated = append(updated, name)
		}
	}
	return updated, nil
}

func (b *Backend) remoteRefHashes(remoteName string) (map[string]string, error) {
	r, err := b.repo.Remote(remoteName)
	if err != nil {
		return nil, cerrors.Vcs("check_updates", err)
	}
	refs, err := r.List(&git.ListOptions{})
	if err != nil {
		if errors.Is(err, transport.ErrAuthenticationRequired) {
			return nil, cerrors.Vcs("check_updates: authentication required", err)
		}
		return nil, cerrors.Vcs("check_updates", err)
	}
	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		out[string(ref.Name())] = ref.Hash().String()
	}
	return out, nil
}

// Ignore appends/rewrites/removes patterns in the gitignore-format file
// at path, delegating the set-algebra to the ignorefile package.
func (b *Backend) Ignore(path string, patterns []string, mode ignorefile.Mode) error {
	console.Debugf("updating ignore file %s (%s, %d patterns)", path, mode, len(patterns))
	return ignorefile.Write(path, patterns, mode)
}
