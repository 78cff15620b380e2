package objectstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSStorePutAndIsCachedFile(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	require.NoError(t, err)

	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello"), 0o644))

	hash, err := store.Put(srcFile)
	require.NoError(t, err)
	require.Len(t, hash, HashSize)

	cached, err := store.IsCached(hash)
	require.NoError(t, err)
	require.True(t, cached)

	path := store.PathFor(hash)
	require.Equal(t, filepath.Join(root, hash[:2], hash[2:]), path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(contents))
}

func TestFSStorePutDirProducesDirHash(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	require.NoError(t, err)

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(srcDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "sub", "b.txt"), []byte("b"), 0o644))

	hash, err := store.Put(srcDir)
	require.NoError(t, err)
	require.True(t, IsDirHash(hash))

	cached, err := store.IsCached(hash)
	require.NoError(t, err)
	require.True(t, cached)
}

func TestFSStoreIsCachedMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	cached, err := store.IsCached("0000000000000000000000000000000000000a")
	require.NoError(t, err)
	require.False(t, cached)
}

func TestFSStoreLinkMaterializesObjectAtDestination(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	require.NoError(t, err)

	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello"), 0o644))

	hash, err := store.Put(srcFile)
	require.NoError(t, err)

	dstDir := t.TempDir()
	dst := filepath.Join(dstDir, "linked.txt")
	require.NoError(t, store.Link(hash, dst))

	contents, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "hello", string(contents))
}

func TestComputeHashDeterministic(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	srcDir := t.TempDir()
	f := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("stable content"), 0o644))

	h1, _, err := store.ComputeHash(f)
	require.NoError(t, err)
	h2, _, err := store.ComputeHash(f)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}
