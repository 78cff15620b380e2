package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
)

func diamond() []Node {
	return []Node{
		{Name: "images.source", Config: config.BuildStage{Type: config.StageSource}},
		{Name: "images.transform-1", Parents: []string{"images.source"}, Config: config.BuildStage{Type: config.StageTransform, Kind: "resize"}},
		{Name: "images.filter-1", Parents: []string{"images.source"}, Config: config.BuildStage{Type: config.StageFilter, Kind: "dedupe"}},
		{Name: "project.project", Parents: []string{"images.transform-1", "images.filter-1"}, Config: config.BuildStage{Type: config.StageProject}},
	}
}

func TestHeadUniqueOutDegreeZero(t *testing.T) {
	p := New(diamond())
	head, err := p.Head()
	require.NoError(t, err)
	require.Equal(t, "project.project", head.Name)
}

func TestHeadMissingWhenNoOutDegreeZeroExists(t *testing.T) {
	nodes := []Node{
		{Name: "a", Parents: []string{"b"}},
		{Name: "b", Parents: []string{"a"}},
	}
	p := New(nodes)
	_, err := p.Head()
	require.Error(t, err)
	require.True(t, cerrors.IsMissingPipelineHead(err))
}

func TestHeadMultipleWhenTwoSinks(t *testing.T) {
	nodes := []Node{
		{Name: "a"},
		{Name: "b"},
	}
	p := New(nodes)
	_, err := p.Head()
	require.Error(t, err)
	require.True(t, cerrors.IsMultiplePipelineHeads(err))

	var multi *cerrors.MultiplePipelineHeadsErr
	require.ErrorAs(t, err, &multi)
	require.ElementsMatch(t, []string{"a", "b"}, multi.Heads)
}

func TestHeadEmptyPipeline(t *testing.T) {
	p := New(nil)
	_, err := p.Head()
	require.Error(t, err)
	require.True(t, cerrors.IsEmptyPipeline(err))
}

func TestSliceCollectsAncestorsAndTargetBecomesHead(t *testing.T) {
	p := New(diamond())
	sliced, err := p.Slice("images.transform-1")
	require.NoError(t, err)
	require.Equal(t, 2, sliced.Len())

	head, err := sliced.Head()
	require.NoError(t, err)
	require.Equal(t, "images.transform-1", head.Name)
}

func TestSliceUnknownTarget(t *testing.T) {
	p := New(diamond())
	_, err := p.Slice("nope")
	require.Error(t, err)
	require.True(t, cerrors.IsUnknownStage(err))
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	p := New(diamond())
	serialized := p.Serialize()
	require.Len(t, serialized, 4)

	restored := Deserialize(serialized)
	head, err := restored.Head()
	require.NoError(t, err)
	require.Equal(t, "project.project", head.Name)
	require.Equal(t, 4, restored.Len())
}

func TestDeserializeOrderIndependent(t *testing.T) {
	nodes := diamond()
	// Reverse the order — child before its parents are declared.
	reversed := make([]Node, len(nodes))
	for i, n := range nodes {
		reversed[len(nodes)-1-i] = n
	}
	p := New(reversed)
	head, err := p.Head()
	require.NoError(t, err)
	require.Equal(t, "project.project", head.Name)
}
