package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
	"github.com/replicate/cogset/pkg/revisionstore/memvcs"
)

func TestInitRejectsDoubleInit(t *testing.T) {
	root := t.TempDir()
	vcs := memvcs.New()
	env := environment.NewRegistry()

	_, err := Init(root, vcs, env)
	require.NoError(t, err)

	_, err = Init(root, vcs, env)
	require.Error(t, err)
	require.True(t, cerrors.IsProjectAlreadyExists(err))
}

func TestOpenWalksUpToAuxDir(t *testing.T) {
	root := t.TempDir()
	vcs := memvcs.New()
	env := environment.NewRegistry()

	_, err := Init(root, vcs, env)
	require.NoError(t, err)

	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	proj, err := Open(sub, vcs, env)
	require.NoError(t, err)
	require.Equal(t, root, proj.layout.Root)
}

func TestOpenWithNoProjectFails(t *testing.T) {
	_, err := Open(t.TempDir(), memvcs.New(), environment.NewRegistry())
	require.Error(t, err)
	require.True(t, cerrors.IsProjectNotFound(err))
}

func TestGetRevWorkingTreeIsWritable(t *testing.T) {
	root := t.TempDir()
	proj, err := Init(root, memvcs.New(), environment.NewRegistry())
	require.NoError(t, err)

	tr, err := proj.GetRev("")
	require.NoError(t, err)
	require.Equal(t, PositionWorking, tr.Position)
	require.False(t, tr.Readonly())
}

// addSource registers a generated source on tree and writes one file
// of data into its data directory.
func addSource(t *testing.T, proj *Project, tree *Tree, name, content string) string {
	t.Helper()
	ctx := context.Background()
	_, err := tree.Sources().Add(ctx, name, config.SourceConfig{Format: "raw"})
	require.NoError(t, err)
	require.NoError(t, proj.Save(tree))

	dataDir := tree.Sources().DataDir(name)
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "a.txt"), []byte(content), 0o644))
	return dataDir
}

func TestAddCommitCheckoutRoundTrip(t *testing.T) {
	root := t.TempDir()
	proj, err := Init(root, memvcs.New(), environment.NewRegistry())
	require.NoError(t, err)

	working, err := proj.GetRev("")
	require.NoError(t, err)
	dataDir := addSource(t, proj, working, "images", "hello")

	require.NoError(t, proj.Add([]string{"images"}))

	idx, err := proj.GetRev("index")
	require.NoError(t, err)
	require.Equal(t, PositionIndex, idx.Position)
	require.True(t, idx.Readonly())
	idxSrc, err := idx.Sources().Get("images")
	require.NoError(t, err)
	require.NotEmpty(t, idxSrc.Hash)

	hash, err := proj.Commit("add images")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	// The index is gone once committed.
	_, err = proj.GetRev("index")
	require.Error(t, err)

	rev, err := proj.GetRev(hash)
	require.NoError(t, err)
	require.Equal(t, PositionRevision, rev.Position)
	require.True(t, rev.Readonly())
	revSrc, err := rev.Sources().Get("images")
	require.NoError(t, err)
	require.Equal(t, idxSrc.Hash, revSrc.Hash)

	// Destroy the working copy, then restore it from the commit.
	require.NoError(t, os.RemoveAll(dataDir))
	require.NoError(t, proj.Checkout(hash, []string{"images"}))

	restored, err := os.ReadFile(filepath.Join(dataDir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(restored))
}

func TestCommitWithNothingStagedFails(t *testing.T) {
	root := t.TempDir()
	proj, err := Init(root, memvcs.New(), environment.NewRegistry())
	require.NoError(t, err)

	_, err = proj.Commit("nothing to see")
	require.Error(t, err)
}

func TestMakeDatasetRunsSingleSourceTarget(t *testing.T) {
	root := t.TempDir()
	env := environment.NewRegistry()
	var extractedPath string
	env.RegisterExtractor("raw", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		extractedPath = path
		return "dataset:" + path, nil
	})

	proj, err := Init(root, memvcs.New(), env)
	require.NoError(t, err)

	working, err := proj.GetRev("")
	require.NoError(t, err)
	dataDir := addSource(t, proj, working, "images", "hello")

	result, err := proj.MakeDataset(context.Background(), "images")
	require.NoError(t, err)
	require.Equal(t, "dataset:"+dataDir, result)
	require.Equal(t, dataDir, extractedPath)
}

func TestProjectRepositoriesAddSetsDefault(t *testing.T) {
	root := t.TempDir()
	proj, err := Init(root, memvcs.New(), environment.NewRegistry())
	require.NoError(t, err)

	repos := proj.Repositories()
	require.Empty(t, repos.GetDefault())

	require.NoError(t, repos.Add("origin", "https://example.test/repo.git"))
	require.Equal(t, "origin", repos.GetDefault())

	specs, err := repos.List()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, "origin", specs[0].Name)

	require.NoError(t, repos.Remove("origin"))
	require.Empty(t, repos.GetDefault())
}
