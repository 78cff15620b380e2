// Package objectstore implements the content-addressed ObjectStore
// adapter (C2): a cache keyed by 40-hex object hashes, laid out
// <root>/<hash[:2]>/<hash[2:]> on a local filesystem, following the
// shape of the teacher's pkg/storage (a rooted local backend returning
// a NotFound sentinel) generalized from user/name/id keys to content
// hashes.
package objectstore

import (
	"encoding/json"
	"errors"
	"io"
	"sort"
)

// NotFound is returned when a requested hash isn't present in the
// store.
var NotFound = errors.New("object not found")

// HashSize is the width, in hex characters, of a content hash (sha1,
// matching the width the original git/DVC-backed implementation uses).
const HashSize = 40

// DirSuffix marks a hash as addressing a directory manifest rather than
// a single blob.
const DirSuffix = ".dir"

// ManifestEntry is one row of a directory object's manifest: the path
// of a file relative to the directory root, and the hash of its
// contents.
type ManifestEntry struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Manifest is the sorted, JSON-encoded body of a ".dir" object.
type Manifest []ManifestEntry

func (m Manifest) sorted() Manifest {
	out := make(Manifest, len(m))
	copy(out, m)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// EncodeManifest serializes entries into the canonical (path-sorted)
// JSON form stored at a ".dir" object's path.
func EncodeManifest(entries Manifest) ([]byte, error) {
	return json.Marshal(entries.sorted())
}

// DecodeManifest parses a ".dir" object's contents.
func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// IsDirHash reports whether hash addresses a directory manifest.
func IsDirHash(hash string) bool {
	return len(hash) > HashSize && hash[HashSize:] == DirSuffix
}

// Store is the ObjectStore adapter's operation set, matching §4.1
// exactly: is_cached, path_for, put, link, compute_hash.
type Store interface {
	// IsCached reports whether hash is present; for a directory hash,
	// every entry listed in its manifest must itself be cached.
	IsCached(hash string) (bool, error)

	// PathFor returns the on-disk path an object with this hash would
	// occupy, whether or not it currently exists.
	PathFor(hash string) string

	// Put copies localPath (file or directory) into the store, content-
	// addressing it, and returns its hash.
	Put(localPath string) (string, error)

	// Link materializes the object at hash into dst: a hard link when
	// possible, falling back to a copy across filesystem boundaries.
	Link(hash string, dst string) error

	// ComputeHash hashes localPath without storing it, returning the
	// hash and (for a directory) its manifest.
	ComputeHash(localPath string) (string, Manifest, error)
}

// Reader is implemented by Store for tests/tools that just need bytes
// back out of the cache.
type Reader interface {
	Open(hash string) (io.ReadCloser, error)
}
