// Package project implements C9: Tree (a view over a TreeConfig at one
// of four positions) and Project (the on-disk aux directory owning the
// object store and revision backend).
package project

import (
	"context"

	"github.com/hashicorp/go-version"

	"github.com/replicate/cogset/pkg/buildtargets"
	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
	"github.com/replicate/cogset/pkg/executor"
	"github.com/replicate/cogset/pkg/objectstore"
	"github.com/replicate/cogset/pkg/registry"
	"github.com/replicate/cogset/pkg/remote"
)

// Position names which of the four views a Tree presents.
type Position string

const (
	PositionDetached Position = "detached"
	PositionWorking  Position = "working"
	PositionIndex    Position = "index"
	PositionRevision Position = "revision"
)

// Tree is a view over a TreeConfig at one Position, owning the
// per-Tree registries (SourceRegistry, ModelRegistry, RemoteRegistry,
// BuildTargets) that operate on it.
type Tree struct {
	Config   *config.TreeConfig
	Position Position
	Rev      string // set only at PositionRevision: the 40-hex backend hash

	project *Project // nil for a detached tree

	sources *registry.SourceRegistry
	models  *registry.ModelRegistry
	remotes *remote.Registry
	targets *buildtargets.BuildTargets
}

// newTree wires a Tree's registries over cfg. dataDir/stageDir/tmpDir
// name the directories SourceRegistry.Add uses for materialized data,
// stage sidecars, and import scratch space respectively.
func newTree(cfg *config.TreeConfig, position Position, proj *Project, env environment.Environment, engineVersion *version.Version, dataDir, stageDir, tmpDir string) (*Tree, error) {
	remotes, err := remote.NewRegistry(cfg.Remotes)
	if err != nil {
		return nil, err
	}
	targets := buildtargets.New(cfg.BuildTargets)

	t := &Tree{
		Config:   cfg,
		Position: position,
		project:  proj,
		remotes:  remotes,
		targets:  targets,
	}

	t.sources = registry.NewSourceRegistry(cfg.Sources, remotes, targets, env, !t.Readonly(), dataDir, stageDir, tmpDir)
	t.models = registry.NewModelRegistry(cfg.Models, env, cfg.EnvDir, "models", engineVersion)

	return t, nil
}

// IsBound reports whether this Tree is attached to a Project.
func (t *Tree) IsBound() bool { return t.project != nil }

// Readonly implements §9's corrected formula — `readonly = explicit or
// not bound` — in place of the source material's double-negated
// `not self._readonly and self.is_bound`. Index and revision positions
// are inherently read-only; a detached tree is read-only regardless of
// position because it has nothing to persist mutations to.
func (t *Tree) Readonly() bool {
	explicit := t.Position == PositionIndex || t.Position == PositionRevision
	return explicit || !t.IsBound()
}

// Sources returns the Tree's SourceRegistry.
func (t *Tree) Sources() *registry.SourceRegistry { return t.sources }

// Models returns the Tree's ModelRegistry.
func (t *Tree) Models() *registry.ModelRegistry { return t.models }

// Remotes returns the Tree's data-remote registry (C4, distinct from
// the VCS-level ProjectRepositories).
func (t *Tree) Remotes() *remote.Registry { return t.remotes }

// Targets returns the Tree's BuildTargets.
func (t *Tree) Targets() *buildtargets.BuildTargets { return t.targets }

// MakeDataset assembles the pipeline for targetRef (defaulting to the
// reserved "project" target when empty) and executes it, delegating to
// C6 (pipeline assembly) and C8 (execution).
func (t *Tree) MakeDataset(ctx context.Context, targetRef string, store objectstore.Store, env environment.Environment) (interface{}, error) {
	if targetRef == "" {
		targetRef = buildtargets.ProjectTargetName
	}
	p, err := t.targets.MakePipeline(targetRef)
	if err != nil {
		return nil, err
	}
	exec := executor.New(store, env, t.sources)
	return exec.Execute(ctx, p)
}
