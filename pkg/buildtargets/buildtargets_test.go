package buildtargets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
)

func freshTargets() map[string]config.BuildTarget {
	return map[string]config.BuildTarget{
		"images": {
			Stages: []config.BuildStage{
				{Name: "source", Type: config.StageSource},
			},
		},
		"project": {
			Stages: []config.BuildStage{
				{Name: "project", Type: config.StageProject},
			},
		},
	}
}

func TestMakeAndSplitTargetName(t *testing.T) {
	name := MakeTargetName("images", "transform-1")
	require.Equal(t, "images.transform-1", name)

	target, stage, err := SplitTargetName(name)
	require.NoError(t, err)
	require.Equal(t, "images", target)
	require.Equal(t, "transform-1", stage)
}

func TestSplitTargetNameRejectsEmptyHalves(t *testing.T) {
	_, _, err := SplitTargetName(".stage")
	require.Error(t, err)
	_, _, err = SplitTargetName("target.")
	require.Error(t, err)
	_, _, err = SplitTargetName("noseparator")
	require.Error(t, err)
}

func TestAddStageAutoNamesAndAppendsToTail(t *testing.T) {
	bt := New(freshTargets())

	fqName, err := bt.AddTransformStage("images", "resize", nil, "", "", nil)
	require.NoError(t, err)
	require.Equal(t, "images.transform-1", fqName)

	fqName2, err := bt.AddTransformStage("images", "crop", nil, "", "", nil)
	require.NoError(t, err)
	require.Equal(t, "images.transform-2", fqName2)
}

func TestAddStageRejectsDuplicateName(t *testing.T) {
	bt := New(freshTargets())
	_, err := bt.AddStage("images", config.BuildStage{Type: config.StageTransform, Kind: "resize"}, "", "resize-step")
	require.NoError(t, err)

	_, err = bt.AddStage("images", config.BuildStage{Type: config.StageTransform, Kind: "crop"}, "", "resize-step")
	require.Error(t, err)
}

func TestAddStageInsertsAfterExplicitPrev(t *testing.T) {
	bt := New(freshTargets())
	_, err := bt.AddStage("images", config.BuildStage{Type: config.StageTransform, Kind: "resize"}, "", "t1")
	require.NoError(t, err)
	_, err = bt.AddStage("images", config.BuildStage{Type: config.StageTransform, Kind: "crop"}, "", "t2")
	require.NoError(t, err)

	// Insert after "source" (not the tail), so it lands between source and t1.
	_, err = bt.AddStage("images", config.BuildStage{Type: config.StageFilter, Params: map[string]interface{}{"filter": "dedupe"}}, "source", "f1")
	require.NoError(t, err)

	names := bt.stageNames("images")
	require.Equal(t, []string{"source", "f1", "t1", "t2"}, names)
}

func TestAddStageResolvesDotStageSuffixCursor(t *testing.T) {
	bt := New(freshTargets())
	_, err := bt.AddStage("images", config.BuildStage{Type: config.StageTransform, Kind: "resize"}, "", "t1")
	require.NoError(t, err)

	// "images.source" as the target ref should resolve cursor = source.
	_, err = bt.AddStage("images.source", config.BuildStage{Type: config.StageFilter, Params: map[string]interface{}{"filter": "dedupe"}}, "", "f1")
	require.NoError(t, err)

	names := bt.stageNames("images")
	require.Equal(t, []string{"source", "f1", "t1"}, names)
}

func TestAddKindedStageRejectsUnknownKindWhenEnvProvided(t *testing.T) {
	bt := New(freshTargets())
	env := environment.NewRegistry()
	_, err := bt.AddTransformStage("images", "nonexistent", nil, "", "", env)
	require.Error(t, err)

	env.RegisterTransform("resize", func(ctx context.Context, dataset interface{}, params map[string]interface{}) (interface{}, error) {
		return dataset, nil
	})
	_, err = bt.AddTransformStage("images", "resize", nil, "", "", env)
	require.NoError(t, err)
}

func TestAddConvertStageValidatesKindAgainstFormatsNotTransforms(t *testing.T) {
	bt := New(freshTargets())
	env := environment.NewRegistry()

	_, err := bt.AddConvertStage("images", "parquet", nil, "", "", env)
	require.Error(t, err)

	env.RegisterExtractor("parquet", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		return nil, nil
	})
	_, err = bt.AddConvertStage("images", "parquet", nil, "", "", env)
	require.NoError(t, err)
}

func TestMakePipelineAggregatesAllTargetsUnderProject(t *testing.T) {
	targets := freshTargets()
	bt := New(targets)

	_, err := bt.AddTransformStage("images", "resize", nil, "", "", nil)
	require.NoError(t, err)

	targets["text"] = config.BuildTarget{
		Stages: []config.BuildStage{{Name: "source", Type: config.StageSource}},
	}

	p, err := bt.MakePipeline("project")
	require.NoError(t, err)

	head, err := p.Head()
	require.NoError(t, err)
	require.Equal(t, "project.project", head.Name)
	require.ElementsMatch(t, []string{"images.transform-1", "text.source"}, head.Parents)
}

func TestMakePipelineSynthesizesProjectTargetWhenUndeclared(t *testing.T) {
	targets := map[string]config.BuildTarget{
		"images": {
			Stages: []config.BuildStage{
				{Name: "source", Type: config.StageSource},
			},
		},
	}
	bt := New(targets)

	p, err := bt.MakePipeline("project")
	require.NoError(t, err)

	head, err := p.Head()
	require.NoError(t, err)
	require.Equal(t, "project.project", head.Name)
	require.Equal(t, []string{"images.source"}, head.Parents)
}

func TestMakePipelineBareTargetResolvesToHeadStage(t *testing.T) {
	bt := New(freshTargets())
	_, err := bt.AddTransformStage("images", "resize", nil, "", "", nil)
	require.NoError(t, err)

	p, err := bt.MakePipeline("images")
	require.NoError(t, err)
	head, err := p.Head()
	require.NoError(t, err)
	require.Equal(t, "images.transform-1", head.Name)
}
