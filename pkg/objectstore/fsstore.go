package objectstore

import (
	"crypto/sha1" //nolint:gosec // 40-hex width matches the git/DVC cache convention this replaces
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/replicate/cogset/pkg/util/console"
	"github.com/replicate/cogset/pkg/util/files"
)

// FSStore is a Store backed by a local directory, laid out
// <root>/<hash[:2]>/<hash[2:]> exactly as §4.1 specifies.
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)
var _ Reader = (*FSStore)(nil)

// NewFSStore returns a Store rooted at root, creating the directory if
// it doesn't already exist.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object store root %s: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

// PathFor returns <root>/<hash[:2]>/<hash[2:]>.
func (s *FSStore) PathFor(hash string) string {
	prefix, rest := splitHash(hash)
	return filepath.Join(s.root, prefix, rest)
}

// IsCached reports whether hash (or, for a directory hash, every entry
// in its manifest) is present in the store.
func (s *FSStore) IsCached(hash string) (bool, error) {
	path := s.PathFor(hash)
	exists, err := files.Exists(path)
	if err != nil || !exists {
		return false, err
	}
	if !IsDirHash(hash) {
		return true, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	manifest, err := DecodeManifest(data)
	if err != nil {
		return false, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	for _, entry := range manifest {
		cached, err := s.IsCached(entry.Hash)
		if err != nil {
			return false, err
		}
		if !cached {
			return false, nil
		}
	}
	return true, nil
}

// Open returns a reader over the (single-file) object at hash.
func (s *FSStore) Open(hash string) (io.ReadCloser, error) {
	f, err := os.Open(s.PathFor(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFound
		}
		return nil, err
	}
	return f, nil
}

// Put content-addresses localPath and copies it into the store under
// its hash, returning the hash.
func (s *FSStore) Put(localPath string) (string, error) {
	hash, manifest, err := s.ComputeHash(localPath)
	if err != nil {
		return "", err
	}
	cached, err := s.IsCached(hash)
	if err != nil {
		return "", err
	}
	if cached {
		return hash, nil
	}

	dst := s.PathFor(hash)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	if IsDirHash(hash) {
		if err := s.putDir(localPath, manifest); err != nil {
			return "", err
		}
		data, err := EncodeManifest(manifest)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return "", err
		}
		return hash, nil
	}

	console.Debugf("storing object %s from %s", hash, localPath)
	if err := files.CopyFile(localPath, dst); err != nil {
		return "", err
	}
	return hash, nil
}

// putDir stores every file named in manifest, keyed by its own content
// hash (manifest entries already carry per-file hashes from
// ComputeHash).
func (s *FSStore) putDir(root string, manifest Manifest) error {
	for _, entry := range manifest {
		cached, err := s.IsCached(entry.Hash)
		if err != nil {
			return err
		}
		if cached {
			continue
		}
		dst := s.PathFor(entry.Hash)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := files.CopyFile(filepath.Join(root, entry.Path), dst); err != nil {
			return err
		}
	}
	return nil
}

// Link materializes hash at dst: a hard link when store and dst share a
// filesystem device, falling back to a copy on EXDEV.
func (s *FSStore) Link(hash string, dst string) error {
	if IsDirHash(hash) {
		return s.linkDir(hash, dst)
	}

	src := s.PathFor(hash)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	_ = os.Remove(dst)
	if err := os.Link(src, dst); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
			return files.CopyFile(src, dst)
		}
		return fmt.Errorf("failed to link %s to %s: %w", src, dst, err)
	}
	return nil
}

func (s *FSStore) linkDir(hash string, dst string) error {
	data, err := os.ReadFile(s.PathFor(hash))
	if err != nil {
		return fmt.Errorf("failed to read manifest for %s: %w", hash, err)
	}
	manifest, err := DecodeManifest(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, entry := range manifest {
		if err := s.Link(entry.Hash, filepath.Join(dst, entry.Path)); err != nil {
			return err
		}
	}
	return nil
}

// ComputeHash hashes localPath (a file or directory) without storing
// it. Directory hashing produces a sorted manifest of {relative path,
// hash} entries and the hash is the sha1 of that encoded manifest,
// suffixed ".dir".
func (s *FSStore) ComputeHash(localPath string) (string, Manifest, error) {
	isDir, err := files.IsDir(localPath)
	if err != nil {
		return "", nil, err
	}
	if !isDir {
		hash, err := hashFile(localPath)
		return hash, nil, err
	}

	var manifest Manifest
	err = filepath.Walk(localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		hash, err := hashFile(path)
		if err != nil {
			return err
		}
		manifest = append(manifest, ManifestEntry{Path: rel, Hash: hash})
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	sort.Slice(manifest, func(i, j int) bool { return manifest[i].Path < manifest[j].Path })

	data, err := EncodeManifest(manifest)
	if err != nil {
		return "", nil, err
	}
	h := sha1.Sum(data) //nolint:gosec
	return hex.EncodeToString(h[:]) + DirSuffix, manifest, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func splitHash(hash string) (prefix, rest string) {
	if IsDirHash(hash) {
		base := hash[:HashSize]
		return base[:2], base[2:] + DirSuffix
	}
	if len(hash) < 2 {
		return hash, ""
	}
	return hash[:2], hash[2:]
}
