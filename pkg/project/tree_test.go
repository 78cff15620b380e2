package project

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
	"github.com/replicate/cogset/pkg/revisionstore/memvcs"
)

func newTestTree(t *testing.T, position Position, proj *Project) *Tree {
	t.Helper()
	cfg := config.NewTreeConfig()
	tr, err := newTree(&cfg, position, proj, environment.NewRegistry(), nil, t.TempDir(), t.TempDir(), t.TempDir())
	require.NoError(t, err)
	return tr
}

func TestReadonlyDetachedIsAlwaysReadonly(t *testing.T) {
	for _, pos := range []Position{PositionDetached, PositionWorking, PositionIndex, PositionRevision} {
		tr := newTestTree(t, pos, nil)
		require.False(t, tr.IsBound())
		require.True(t, tr.Readonly(), "position %s with no bound project must be readonly", pos)
	}
}

func TestReadonlyBoundWorkingIsWritable(t *testing.T) {
	root := t.TempDir()
	proj, err := Init(root, memvcs.New(), environment.NewRegistry())
	require.NoError(t, err)

	tr := newTestTree(t, PositionWorking, proj)
	require.True(t, tr.IsBound())
	require.False(t, tr.Readonly())
}

func TestReadonlyBoundIndexAndRevisionAreExplicitlyReadonly(t *testing.T) {
	root := t.TempDir()
	proj, err := Init(root, memvcs.New(), environment.NewRegistry())
	require.NoError(t, err)

	for _, pos := range []Position{PositionIndex, PositionRevision} {
		tr := newTestTree(t, pos, proj)
		require.True(t, tr.IsBound())
		require.True(t, tr.Readonly(), "position %s must be readonly even when bound", pos)
	}
}
