package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
	"github.com/replicate/cogset/pkg/objectstore"
	"github.com/replicate/cogset/pkg/pipeline"
)

type fakeSources struct {
	cfgs     map[string]config.SourceConfig
	dataDirs map[string]string
	pulled   []string
	pullErr  error
}

func (f *fakeSources) Get(name string) (config.SourceConfig, error) {
	c, ok := f.cfgs[name]
	if !ok {
		return config.SourceConfig{}, errors.New("unknown source " + name)
	}
	return c, nil
}

func (f *fakeSources) DataDir(name string) string { return f.dataDirs[name] }

func (f *fakeSources) Pull(ctx context.Context, names []string, rev string) error {
	if f.pullErr != nil {
		return f.pullErr
	}
	f.pulled = append(f.pulled, names...)
	return nil
}

func newStore(t *testing.T) objectstore.Store {
	t.Helper()
	store, err := objectstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func sourceNode(name string) pipeline.Node {
	return pipeline.Node{Name: name + ".root", Config: config.BuildStage{Name: "root", Type: config.StageSource}}
}

func TestFindMissingSourcesCollectsNonGeneratedLeaves(t *testing.T) {
	store := newStore(t)
	nodes := []pipeline.Node{
		sourceNode("images"),
		{Name: "project.root", Parents: []string{"images.root"}, Config: config.BuildStage{Name: "root", Type: config.StageProject}},
	}
	p := pipeline.New(nodes)

	sources := &fakeSources{cfgs: map[string]config.SourceConfig{
		"images": {Remote: "r1"},
	}, dataDirs: map[string]string{}}

	exec := New(store, environment.NewRegistry(), sources)
	missing, err := exec.FindMissingSources(p)
	require.NoError(t, err)
	require.Equal(t, []string{"images"}, missing)
}

func TestFindMissingSourcesSkipsGeneratedSource(t *testing.T) {
	store := newStore(t)
	nodes := []pipeline.Node{sourceNode("gen")}
	p := pipeline.New(nodes)

	sources := &fakeSources{cfgs: map[string]config.SourceConfig{"gen": {Remote: ""}}}
	exec := New(store, environment.NewRegistry(), sources)

	missing, err := exec.FindMissingSources(p)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestExecuteSingleSourcePassesThroughExtractor(t *testing.T) {
	store := newStore(t)
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "a.txt"), []byte("x"), 0o644))

	sources := &fakeSources{
		cfgs:     map[string]config.SourceConfig{"images": {Format: "coco", Remote: ""}},
		dataDirs: map[string]string{"images": dataDir},
	}

	env := environment.NewRegistry()
	var extractedPath string
	env.RegisterExtractor("coco", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		extractedPath = path
		return "dataset:" + path, nil
	})

	p := pipeline.New([]pipeline.Node{sourceNode("images")})
	exec := New(store, env, sources)

	result, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "dataset:"+dataDir, result)
	require.Equal(t, dataDir, extractedPath)
}

func TestExecuteHydratesMissingSourceBeforeRunning(t *testing.T) {
	store := newStore(t)
	dataDir := t.TempDir()

	sources := &fakeSources{
		cfgs:     map[string]config.SourceConfig{"remote-src": {Format: "coco", Remote: "r1"}},
		dataDirs: map[string]string{"remote-src": dataDir},
	}

	env := environment.NewRegistry()
	env.RegisterExtractor("coco", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		return "ds", nil
	})

	p := pipeline.New([]pipeline.Node{sourceNode("remote-src")})
	exec := New(store, env, sources)

	_, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, []string{"remote-src"}, sources.pulled)
}

func TestExecuteProjectJoinsMultipleParentsWithForce(t *testing.T) {
	store := newStore(t)
	dirA, dirB := t.TempDir(), t.TempDir()

	sources := &fakeSources{
		cfgs: map[string]config.SourceConfig{
			"a": {Format: "coco"},
			"b": {Format: "coco"},
		},
		dataDirs: map[string]string{"a": dirA, "b": dirB},
	}

	env := environment.NewRegistry()
	env.RegisterExtractor("coco", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		return "ds:" + path, nil
	})
	var merged []interface{}
	env.SetMerger(func(ctx context.Context, datasets []interface{}) (interface{}, error) {
		merged = datasets
		return "merged", nil
	})

	nodes := []pipeline.Node{
		sourceNode("a"),
		sourceNode("b"),
		{
			Name:    "project.root",
			Parents: []string{"a.root", "b.root"},
			Config:  config.BuildStage{Name: "root", Type: config.StageProject},
		},
	}
	p := pipeline.New(nodes)
	exec := New(store, env, sources)

	result, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "merged", result)
	require.Len(t, merged, 2)
}

func TestExecuteTransformAppliesNamedPlugin(t *testing.T) {
	store := newStore(t)
	dataDir := t.TempDir()

	sources := &fakeSources{
		cfgs:     map[string]config.SourceConfig{"images": {Format: "coco"}},
		dataDirs: map[string]string{"images": dataDir},
	}

	env := environment.NewRegistry()
	env.RegisterExtractor("coco", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		return "raw", nil
	})
	env.RegisterTransform("resize", func(ctx context.Context, dataset interface{}, params map[string]interface{}) (interface{}, error) {
		return "resized:" + dataset.(string), nil
	})

	nodes := []pipeline.Node{
		sourceNode("images"),
		{
			Name:    "images.transform-1",
			Parents: []string{"images.root"},
			Config:  config.BuildStage{Name: "transform-1", Type: config.StageTransform, Kind: "resize"},
		},
	}
	p := pipeline.New(nodes)
	exec := New(store, env, sources)

	result, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "resized:raw", result)
}

func TestExecuteTransformUnknownKindFails(t *testing.T) {
	store := newStore(t)
	dataDir := t.TempDir()
	sources := &fakeSources{
		cfgs:     map[string]config.SourceConfig{"images": {Format: "coco"}},
		dataDirs: map[string]string{"images": dataDir},
	}
	env := environment.NewRegistry()
	env.RegisterExtractor("coco", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		return "raw", nil
	})

	nodes := []pipeline.Node{
		sourceNode("images"),
		{
			Name:    "images.transform-1",
			Parents: []string{"images.root"},
			Config:  config.BuildStage{Name: "transform-1", Type: config.StageTransform, Kind: "missing"},
		},
	}
	p := pipeline.New(nodes)
	exec := New(store, env, sources)

	_, err := exec.Execute(context.Background(), p)
	require.Error(t, err)
}

func TestExecuteChainInitializesEachNodeOnce(t *testing.T) {
	store := newStore(t)
	dataDir := t.TempDir()
	sources := &fakeSources{
		cfgs:     map[string]config.SourceConfig{"images": {Format: "coco"}},
		dataDirs: map[string]string{"images": dataDir},
	}
	env := environment.NewRegistry()
	env.RegisterExtractor("coco", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		return "raw", nil
	})

	root := sourceNode("images")
	// A root with one downstream node: the root is pushed back onto the
	// stack behind its child, and the run completes without tripping the
	// "initialized twice" error, since the `st.done` guard at the top of
	// the loop skips any node popped after it already completed.
	nodes := []pipeline.Node{
		root,
		{Name: "images.t1", Parents: []string{"images.root"}, Config: config.BuildStage{Name: "t1", Type: config.StageConvert, Kind: "parquet"}},
	}
	p := pipeline.New(nodes)
	exec := New(store, env, sources)

	result, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "raw", result)
}

func TestConvertStagePassesDatasetThroughUnchanged(t *testing.T) {
	store := newStore(t)
	dataDir := t.TempDir()
	sources := &fakeSources{
		cfgs:     map[string]config.SourceConfig{"images": {Format: "coco"}},
		dataDirs: map[string]string{"images": dataDir},
	}
	env := environment.NewRegistry()
	env.RegisterExtractor("coco", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		return "dataset", nil
	})

	nodes := []pipeline.Node{
		sourceNode("images"),
		{Name: "images.convert-1", Parents: []string{"images.root"}, Config: config.BuildStage{Name: "convert-1", Type: config.StageConvert, Kind: "parquet"}},
	}
	p := pipeline.New(nodes)
	exec := New(store, env, sources)

	// No transform is registered for "parquet" at all: a convert stage
	// must not look up or invoke any transform plugin.
	result, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "dataset", result)
}
