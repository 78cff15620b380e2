package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replicate/cogset/pkg/buildtargets"
	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
	"github.com/replicate/cogset/pkg/remote"
)

func newTestRegistry(t *testing.T, env environment.Environment, writable bool) (*SourceRegistry, map[string]config.SourceConfig) {
	t.Helper()
	root := t.TempDir()
	sources := map[string]config.SourceConfig{}
	remotes, err := remote.NewRegistry(map[string]config.RemoteConfig{})
	require.NoError(t, err)
	targets := buildtargets.New(map[string]config.BuildTarget{})

	reg := NewSourceRegistry(sources, remotes, targets, env,
		writable, root, filepath.Join(root, "stages"), filepath.Join(root, "tmp"))
	return reg, sources
}

func TestAddGeneratedSource(t *testing.T) {
	reg, sources := newTestRegistry(t, environment.NewRegistry(), true)

	value, err := reg.Add(context.Background(), "gen", config.SourceConfig{Format: "coco"})
	require.NoError(t, err)
	require.Equal(t, "", value.Remote)
	require.Equal(t, "", value.URL)
	require.Contains(t, sources, "gen")
}

func TestAddRemoteRefAttachesExistingRemote(t *testing.T) {
	env := environment.NewRegistry()
	reg, _ := newTestRegistry(t, env, true)

	dir := t.TempDir()
	require.NoError(t, reg.remotes.Add("r1", config.RemoteConfig{URL: dir, Type: config.RemoteTypeURL}))

	env.RegisterImporter("url", func(ctx context.Context, url, dst string) (string, error) {
		require.NoError(t, os.MkdirAll(dst, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dst, "a.txt"), []byte("x"), 0o644))
		return dst, nil
	})

	value, err := reg.Add(context.Background(), "s1", config.SourceConfig{URL: "remote://r1/subpath"})
	require.NoError(t, err)
	require.Equal(t, "r1", value.Remote)
}

func TestAddNewRemoteImportsAndRollsBackOnFailure(t *testing.T) {
	env := environment.NewRegistry()
	reg, sources := newTestRegistry(t, env, true)

	env.RegisterImporter("url", func(ctx context.Context, url, dst string) (string, error) {
		return "", errors.New("import failed")
	})

	_, err := reg.Add(context.Background(), "s1", config.SourceConfig{URL: "https://example.com/data.zip"})
	require.Error(t, err)
	require.NotContains(t, sources, "s1")

	_, _, getErr := reg.remotes.Get("s1")
	require.Error(t, getErr)
	require.True(t, cerrors.IsUnknownRemote(getErr))
}

func TestAddNewRemoteImportsSuccessfully(t *testing.T) {
	env := environment.NewRegistry()
	reg, sources := newTestRegistry(t, env, true)

	env.RegisterImporter("url", func(ctx context.Context, url, dst string) (string, error) {
		require.NoError(t, os.MkdirAll(dst, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dst, "a.txt"), []byte("x"), 0o644))
		return dst, nil
	})

	value, err := reg.Add(context.Background(), "s1", config.SourceConfig{URL: "https://example.com/data.zip"})
	require.NoError(t, err)
	require.Equal(t, "s1", value.Remote)
	require.Contains(t, sources, "s1")
}

func TestAddDuplicateNameRejected(t *testing.T) {
	reg, _ := newTestRegistry(t, environment.NewRegistry(), true)
	_, err := reg.Add(context.Background(), "dup", config.SourceConfig{})
	require.NoError(t, err)

	_, err = reg.Add(context.Background(), "dup", config.SourceConfig{})
	require.Error(t, err)
	require.True(t, cerrors.IsSourceExists(err))
}

func TestAddRejectsNameStartingWithDot(t *testing.T) {
	reg, _ := newTestRegistry(t, environment.NewRegistry(), true)
	_, err := reg.Add(context.Background(), ".hidden", config.SourceConfig{})
	require.Error(t, err)
}

func TestAddOnDetachedTreeRejectsRemoteURL(t *testing.T) {
	reg, _ := newTestRegistry(t, environment.NewRegistry(), false)
	_, err := reg.Add(context.Background(), "s1", config.SourceConfig{URL: "https://example.com/data.zip"})
	require.Error(t, err)
	require.True(t, cerrors.IsDetachedProject(err))
}

func TestAddOnDetachedTreeAllowsExistingLocalPath(t *testing.T) {
	reg, _ := newTestRegistry(t, environment.NewRegistry(), false)
	dir := t.TempDir()
	value, err := reg.Add(context.Background(), "s1", config.SourceConfig{URL: dir})
	require.NoError(t, err)
	require.Equal(t, "", value.Remote)
}

func TestRemoveWipesDataDirWhenForceAndNotKeepData(t *testing.T) {
	reg, sources := newTestRegistry(t, environment.NewRegistry(), true)
	_, err := reg.Add(context.Background(), "gen", config.SourceConfig{})
	require.NoError(t, err)

	dataDir := reg.DataDir("gen")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "f.txt"), []byte("x"), 0o644))

	require.NoError(t, reg.Remove("gen", true, false))
	require.NotContains(t, sources, "gen")

	_, err = os.Stat(dataDir)
	require.True(t, os.IsNotExist(err))
}

func TestPullRequiresWritable(t *testing.T) {
	reg, _ := newTestRegistry(t, environment.NewRegistry(), false)
	err := reg.Pull(context.Background(), []string{"x"}, "")
	require.Error(t, err)
	require.True(t, cerrors.IsReadonlyProject(err))
}

func TestPullRejectsRevWithMultipleNames(t *testing.T) {
	reg, _ := newTestRegistry(t, environment.NewRegistry(), true)
	err := reg.Pull(context.Background(), []string{"a", "b"}, "deadbeef")
	require.Error(t, err)
}

func TestPullSkipsGeneratedSources(t *testing.T) {
	reg, _ := newTestRegistry(t, environment.NewRegistry(), true)
	_, err := reg.Add(context.Background(), "gen", config.SourceConfig{})
	require.NoError(t, err)

	err = reg.Pull(context.Background(), []string{"gen"}, "")
	require.NoError(t, err)
}
