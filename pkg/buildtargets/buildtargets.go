// Package buildtargets implements C6: per-target stage chains, cursor
// resolution for inserting new stages, and assembly of the cross-target
// pipeline DAG consumed by C7/C8.
package buildtargets

import (
	"fmt"
	"strings"

	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
	"github.com/replicate/cogset/pkg/pipeline"
	"github.com/replicate/cogset/pkg/util"
)

// ProjectTargetName is the reserved aggregation target's name.
const ProjectTargetName = "project"

// BuildTargets owns (by reference) the build_targets map of one
// TreeConfig, providing stage-insertion and pipeline-assembly
// operations over it.
type BuildTargets struct {
	targets map[string]config.BuildTarget
}

// New wraps an existing build_targets map. Mutations write through to
// the same map the caller owns (mirroring TreeConfig's direct-map
// ownership elsewhere in the engine).
func New(targets map[string]config.BuildTarget) *BuildTargets {
	return &BuildTargets{targets: targets}
}

// NewTarget registers a brand-new build target named name, rooted at
// rootStage. Used by SourceRegistry.Add, which registers a
// single-root-stage target alongside each source's config entry.
func (bt *BuildTargets) NewTarget(name string, rootStage config.BuildStage) error {
	if _, exists := bt.targets[name]; exists {
		return fmt.Errorf("buildtargets: target %q already exists", name)
	}
	target := config.BuildTarget{Stages: []config.BuildStage{rootStage}}
	if err := target.Validate(); err != nil {
		return err
	}
	bt.targets[name] = target
	return nil
}

// RemoveTarget drops target entirely, e.g. when its owning source is
// removed.
func (bt *BuildTargets) RemoveTarget(name string) {
	delete(bt.targets, name)
}

// MakeTargetName joins a target and stage name as "target.stage".
func MakeTargetName(target, stage string) string {
	return target + "." + stage
}

// SplitTargetName parses "target.stage", rejecting empty halves.
func SplitTargetName(name string) (target, stage string, err error) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", fmt.Errorf("buildtargets: malformed target name %q", name)
	}
	return name[:idx], name[idx+1:], nil
}

// stageNames returns every stage name currently in target, for
// auto-naming and duplicate-rejection purposes.
func (bt *BuildTargets) stageNames(targetName string) []string {
	t := bt.targets[targetName]
	names := make([]string, len(t.Stages))
	for i, s := range t.Stages {
		names[i] = s.Name
	}
	return names
}

// resolveCursor implements §4.5's cursor-resolution order: an explicit
// prev argument wins; otherwise a ".stage" suffix on targetRef; otherwise
// the tail (last stage) of the target.
func (bt *BuildTargets) resolveCursor(targetRef string, prev string) (targetName string, cursorIdx int, err error) {
	targetName = targetRef
	stageHint := ""
	if target, _, splitErr := SplitTargetName(targetRef); splitErr == nil {
		if _, ok := bt.targets[targetRef]; !ok {
			if _, ok := bt.targets[target]; ok {
				targetName = target
				_, stageHint, _ = SplitTargetName(targetRef)
			}
		}
	}

	t, ok := bt.targets[targetName]
	if !ok {
		return "", 0, cerrors.UnknownStage(targetName)
	}

	cursorName := prev
	if cursorName == "" {
		cursorName = stageHint
	}
	if cursorName == "" {
		return targetName, len(t.Stages) - 1, nil
	}
	for i, s := range t.Stages {
		if s.Name == cursorName {
			return targetName, i, nil
		}
	}
	return "", 0, cerrors.UnknownStage(cursorName)
}

// AddStage inserts value after the resolved cursor in targetRef
// (target name, optionally suffixed ".stage"), auto-naming it
// "<type>-<N>" when name is empty, and rejects a duplicate name.
func (bt *BuildTargets) AddStage(targetRef string, value config.BuildStage, prev string, name string) (string, error) {
	targetName, cursorIdx, err := bt.resolveCursor(targetRef, prev)
	if err != nil {
		return "", err
	}

	if name == "" {
		basename := string(value.Type)
		defaultIdx := 1
		name = util.GenerateNextName(bt.stageNames(targetName), basename, "-", "", &defaultIdx)
	}
	for _, existing := range bt.stageNames(targetName) {
		if existing == name {
			return "", fmt.Errorf("buildtargets: stage %q already exists in target %q", name, targetName)
		}
	}
	value.Name = name
	if err := value.Validate(); err != nil {
		return "", err
	}

	t := bt.targets[targetName]
	inserted := make([]config.BuildStage, 0, len(t.Stages)+1)
	inserted = append(inserted, t.Stages[:cursorIdx+1]...)
	inserted = append(inserted, value)
	inserted = append(inserted, t.Stages[cursorIdx+1:]...)
	t.Stages = inserted
	bt.targets[targetName] = t

	return MakeTargetName(targetName, name), nil
}

// filterKindParam is the Params key a filter stage uses to name its
// plugin, since BuildStage.Kind is reserved (forbidden, in fact) for
// the filter StageType — unlike transform/convert/inference, whose
// Kind field names the plugin directly.
const filterKindParam = "filter"

func (bt *BuildTargets) addKindedStage(targetRef string, stageType config.StageType, kind string, params map[string]interface{}, prev, name string, env environment.Environment) (string, error) {
	if env != nil {
		var known bool
		switch stageType {
		case config.StageTransform, config.StageFilter:
			_, known = env.Transform(kind)
		case config.StageConvert:
			// kind names the sink format, not a transform plugin.
			known = env.IsFormatKnown(kind)
		case config.StageInference:
			_, known = env.Launcher(kind)
		}
		if !known {
			return "", cerrors.UnknownStage(kind)
		}
	}

	stage := config.BuildStage{Type: stageType, Params: params}
	if stageType == config.StageFilter {
		if stage.Params == nil {
			stage.Params = map[string]interface{}{}
		}
		stage.Params[filterKindParam] = kind
	} else {
		stage.Kind = kind
	}
	return bt.AddStage(targetRef, stage, prev, name)
}

// AddTransformStage inserts a transform stage, validating kind against
// env's transform registry (skipped when env is nil, e.g. in tests).
func (bt *BuildTargets) AddTransformStage(targetRef, kind string, params map[string]interface{}, prev, name string, env environment.Environment) (string, error) {
	return bt.addKindedStage(targetRef, config.StageTransform, kind, params, prev, name, env)
}

// AddFilterStage inserts a filter stage.
func (bt *BuildTargets) AddFilterStage(targetRef, kind string, params map[string]interface{}, prev, name string, env environment.Environment) (string, error) {
	return bt.addKindedStage(targetRef, config.StageFilter, kind, params, prev, name, env)
}

// AddConvertStage inserts a convert stage.
func (bt *BuildTargets) AddConvertStage(targetRef, kind string, params map[string]interface{}, prev, name string, env environment.Environment) (string, error) {
	return bt.addKindedStage(targetRef, config.StageConvert, kind, params, prev, name, env)
}

// AddInferenceStage inserts an inference stage, validating kind
// against env's launcher registry.
func (bt *BuildTargets) AddInferenceStage(targetRef, kind string, params map[string]interface{}, prev, name string, env environment.Environment) (string, error) {
	return bt.addKindedStage(targetRef, config.StageInference, kind, params, prev, name, env)
}

// fullPipeline assembles the cross-target DAG per §4.5's _make_full_pipeline:
// the project target aggregates the head stage of every other target;
// every other target chains through its own Parents' head stages. The
// project target itself need not be declared in the config: it is
// always synthesized as the DAG's unique head so an unqualified
// make_dataset call has somewhere to resolve to.
func (bt *BuildTargets) fullPipeline() *pipeline.Pipeline {
	var nodes []pipeline.Node
	var projectParents []string

	for targetName, target := range bt.targets {
		if targetName == ProjectTargetName {
			continue
		}

		var prevStages []string
		for _, parent := range target.Parents {
			if parentTarget, ok := bt.targets[parent]; ok {
				prevStages = append(prevStages, MakeTargetName(parent, parentTarget.Head().Name))
			}
		}

		for _, stage := range target.Stages {
			fqName := MakeTargetName(targetName, stage.Name)
			nodes = append(nodes, pipeline.Node{
				Name:    fqName,
				Parents: append([]string(nil), prevStages...),
				Config:  stage,
			})
			prevStages = []string{fqName}
		}
		projectParents = append(projectParents, prevStages...)
	}

	if target, ok := bt.targets[ProjectTargetName]; ok {
		prevStages := append([]string(nil), projectParents...)
		for _, stage := range target.Stages {
			fqName := MakeTargetName(ProjectTargetName, stage.Name)
			nodes = append(nodes, pipeline.Node{
				Name:    fqName,
				Parents: append([]string(nil), prevStages...),
				Config:  stage,
			})
			prevStages = []string{fqName}
		}
	} else {
		nodes = append(nodes, pipeline.Node{
			Name:    MakeTargetName(ProjectTargetName, ProjectTargetName),
			Parents: projectParents,
			Config:  config.BuildStage{Name: ProjectTargetName, Type: config.StageProject},
		})
	}

	return pipeline.New(nodes)
}

// MakePipeline resolves targetRef to its head stage if bare (no
// ".stage" suffix), then returns the full pipeline sliced to that
// stage — the target plus all transitive predecessors.
func (bt *BuildTargets) MakePipeline(targetRef string) (*pipeline.Pipeline, error) {
	full := bt.fullPipeline()

	fqName := targetRef
	if _, _, err := SplitTargetName(targetRef); err != nil {
		if targetRef == ProjectTargetName {
			fqName = MakeTargetName(ProjectTargetName, ProjectTargetName)
			if t, ok := bt.targets[ProjectTargetName]; ok {
				fqName = MakeTargetName(ProjectTargetName, t.Head().Name)
			}
		} else {
			t, ok := bt.targets[targetRef]
			if !ok {
				return nil, cerrors.UnknownStage(targetRef)
			}
			fqName = MakeTargetName(targetRef, t.Head().Name)
		}
	}

	return full.Slice(fqName)
}
