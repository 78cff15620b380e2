// Package executor implements the PipelineExecutor (C8): given a sliced
// Pipeline, it hydrates whatever missing sources it needs concurrently,
// then walks the graph single-threaded in post order, consulting the
// object store for cache hits and the environment for plugin dispatch.
package executor

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/replicate/cogset/pkg/buildtargets"
	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
	"github.com/replicate/cogset/pkg/objectstore"
	"github.com/replicate/cogset/pkg/pipeline"
	"github.com/replicate/cogset/pkg/util/console"
)

// SourceProvider is the slice of SourceRegistry the executor needs: name
// lookup, the on-disk data directory, and re-hydration. Declared as an
// interface here (rather than importing pkg/registry) to keep the
// dependency direction pointing from registry → executor's consumers,
// not the reverse.
type SourceProvider interface {
	Get(name string) (config.SourceConfig, error)
	DataDir(name string) string
	Pull(ctx context.Context, names []string, rev string) error
}

// Executor walks a sliced Pipeline to a materialized dataset handle.
type Executor struct {
	store   objectstore.Store
	env     environment.Environment
	sources SourceProvider
}

// New wires an Executor over a project's object store, plugin
// environment, and source registry.
func New(store objectstore.Store, env environment.Environment, sources SourceProvider) *Executor {
	return &Executor{store: store, env: env, sources: sources}
}

// FindMissingSources implements §4.7's find_missing_sources pre-pass:
// walk from head upward; any node whose hash is set and cached prunes
// its whole subtree (it's already satisfied); otherwise recurse into
// parents. A parentless node (necessarily a source stage) that is not a
// generated source is missing and must be downloaded before execution.
func (e *Executor) FindMissingSources(p *pipeline.Pipeline) ([]string, error) {
	head, err := p.Head()
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var missing []string
	var walk func(name string) error
	walk = func(name string) error {
		if seen[name] {
			return nil
		}
		seen[name] = true

		n, ok := p.Node(name)
		if !ok {
			return cerrors.UnknownStage(name)
		}
		if n.Config.Hash != "" {
			if cached, err := e.store.IsCached(n.Config.Hash); err != nil {
				return err
			} else if cached {
				return nil // subtree satisfied, prune
			}
		}
		if len(n.Parents) == 0 {
			if n.Config.Type != config.StageSource {
				return nil
			}
			targetName, _, err := buildtargets.SplitTargetName(name)
			if err != nil {
				return err
			}
			src, err := e.sources.Get(targetName)
			if err != nil {
				return err
			}
			if src.Remote != "" { // not generated
				missing = append(missing, targetName)
			}
			return nil
		}
		for _, parent := range n.Parents {
			if err := walk(parent); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(head.Name); err != nil {
		return nil, err
	}
	return missing, nil
}

// hydrate downloads every missing source concurrently via an errgroup,
// strictly before the single-threaded graph walk begins.
func (e *Executor) hydrate(ctx context.Context, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range missing {
		name := name
		g.Go(func() error {
			console.Debugf("executor: hydrating missing source %q", name)
			return e.sources.Pull(ctx, []string{name}, "")
		})
	}
	return g.Wait()
}

// state tracks one node's execution progress: its dataset once
// initialized, and how many of its children have consumed it so far.
type state struct {
	dataset   interface{}
	done      bool
	useCount  int
	outDegree int
}

// Execute runs p to completion, returning the head's dataset.
func (e *Executor) Execute(ctx context.Context, p *pipeline.Pipeline) (interface{}, error) {
	head, err := p.Head()
	if err != nil {
		return nil, err
	}

	missing, err := e.FindMissingSources(p)
	if err != nil {
		return nil, err
	}
	if err := e.hydrate(ctx, missing); err != nil {
		return nil, err
	}

	states := map[string]*state{}
	for _, n := range p.Nodes() {
		states[n.Name] = &state{outDegree: p.OutDegree(n.Name)}
	}

	toVisit := []string{head.Name}
	for len(toVisit) > 0 {
		name := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]

		st := states[name]
		if st.done {
			continue
		}
		if st.dataset != nil {
			return nil, fmt.Errorf("executor: node %q initialized twice", name)
		}

		n, ok := p.Node(name)
		if !ok {
			return nil, cerrors.UnknownStage(name)
		}

		if n.Config.Hash != "" {
			if cached, err := e.store.IsCached(n.Config.Hash); err != nil {
				return nil, err
			} else if cached {
				ds, err := e.loadCached(ctx, name, n)
				if err != nil {
					return nil, err
				}
				st.dataset = ds
				st.done = true
				e.release(states, n.Parents)
				continue
			}
		}

		var uninitialized []string
		var parentDatasets []interface{}
		for _, parent := range n.Parents {
			ps := states[parent]
			if ps == nil || !ps.done {
				uninitialized = append(uninitialized, parent)
				continue
			}
			parentDatasets = append(parentDatasets, ps.dataset)
		}
		if len(uninitialized) > 0 {
			toVisit = append(toVisit, name)
			toVisit = append(toVisit, uninitialized...)
			continue
		}

		ds, err := e.run(ctx, name, n, parentDatasets)
		if err != nil {
			return nil, err
		}
		st.dataset = ds
		st.done = true
		e.release(states, n.Parents)
	}

	return states[head.Name].dataset, nil
}

// release bumps use_count on every parent and drops its dataset slot
// once every child has consumed it, per §4.7's memory discipline. The
// head itself is never released here (it's returned to the caller).
func (e *Executor) release(states map[string]*state, parents []string) {
	for _, parent := range parents {
		ps := states[parent]
		if ps == nil {
			continue
		}
		ps.useCount++
		if ps.useCount >= ps.outDegree {
			ps.dataset = nil
		}
	}
}

// loadCached loads a cached node's dataset via the source plugin named
// by the owning target's base name.
func (e *Executor) loadCached(ctx context.Context, name string, n pipeline.Node) (interface{}, error) {
	targetName, _, err := buildtargets.SplitTargetName(name)
	if err != nil {
		return nil, err
	}
	src, err := e.sources.Get(targetName)
	if err != nil {
		return nil, err
	}
	format := src.Format
	if format == "" {
		detected, ok := e.env.DetectDataset(e.sources.DataDir(targetName))
		if !ok {
			return nil, cerrors.UnknownStage(format)
		}
		format = detected
	}
	extractor, ok := e.env.Extractor(format)
	if !ok {
		return nil, cerrors.UnknownStage(format)
	}
	return extractor(ctx, e.store.PathFor(n.Config.Hash), src.Options)
}

// run dispatches a fully-initialized node by its stage type.
func (e *Executor) run(ctx context.Context, name string, n pipeline.Node, parents []interface{}) (interface{}, error) {
	switch n.Config.Type {
	case config.StageSource:
		if len(parents) != 0 {
			return nil, fmt.Errorf("executor: source stage %q must have no parents", name)
		}
		targetName, _, err := buildtargets.SplitTargetName(name)
		if err != nil {
			return nil, err
		}
		src, err := e.sources.Get(targetName)
		if err != nil {
			return nil, err
		}
		format := src.Format
		if format == "" {
			detected, ok := e.env.DetectDataset(e.sources.DataDir(targetName))
			if !ok {
				return nil, cerrors.UnknownStage(format)
			}
			format = detected
		}
		extractor, ok := e.env.Extractor(format)
		if !ok {
			return nil, cerrors.UnknownStage(format)
		}
		return extractor(ctx, e.sources.DataDir(targetName), src.Options)

	case config.StageProject:
		return e.join(ctx, n.Parents, parents, true)

	case config.StageConvert:
		// A convert stage only relabels the sink format; the dataset
		// passes through identical in content, so no plugin runs.
		return e.join(ctx, n.Parents, parents, false)

	case config.StageTransform, config.StageFilter:
		kind := n.Config.Kind
		if n.Config.Type == config.StageFilter {
			if k, ok := n.Config.Params["filter"].(string); ok {
				kind = k
			}
		}
		transform, ok := e.env.Transform(kind)
		if !ok {
			return nil, cerrors.UnknownStage(kind)
		}
		joined, err := e.join(ctx, n.Parents, parents, false)
		if err != nil {
			return nil, err
		}
		return transform(ctx, joined, n.Config.Params)

	case config.StageInference:
		launcher, ok := e.env.Launcher(n.Config.Kind)
		if !ok {
			return nil, cerrors.UnknownStage(n.Config.Kind)
		}
		joined, err := e.join(ctx, n.Parents, parents, false)
		if err != nil {
			return nil, err
		}
		return launcher(ctx, joined, n.Config.Params)

	default:
		return nil, fmt.Errorf("executor: unknown stage type %q at %q", n.Config.Type, name)
	}
}

// join merges parents into a single dataset. With force=false and a
// single parent, the parent dataset passes through unchanged; otherwise
// (or with force=true) the environment's merge facility runs, wrapping
// any conflict in cerrors.DatasetMerge annotated with the target names
// of the contributing parent nodes.
func (e *Executor) join(ctx context.Context, parentNames []string, parents []interface{}, force bool) (interface{}, error) {
	if !force && len(parents) == 1 {
		return parents[0], nil
	}
	merged, err := e.env.Merge(ctx, parents)
	if err != nil {
		sources := make([]string, 0, len(parentNames))
		for _, parent := range parentNames {
			if target, _, splitErr := buildtargets.SplitTargetName(parent); splitErr == nil {
				parent = target
			}
			sources = append(sources, parent)
		}
		return nil, cerrors.DatasetMerge(sources, err)
	}
	return merged, nil
}
