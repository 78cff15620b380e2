package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-version"

	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
	"github.com/replicate/cogset/pkg/objectstore"
	"github.com/replicate/cogset/pkg/revisionstore"
	"github.com/replicate/cogset/pkg/util/files"
)

// Layout names the aux-directory paths §6 fixes: config.yml at the
// root, the working tree's own config (often identical), the index
// subtree, the project-wide cache, and import scratch space.
type Layout struct {
	Root string // project root, the directory containing AuxDir
}

const (
	defaultAuxDirName = ".datumaro"
	engineVersionStr  = "0.1.0"
)

func (l Layout) auxDir() string        { return filepath.Join(l.Root, defaultAuxDirName) }
func (l Layout) confFile() string      { return filepath.Join(l.auxDir(), "config.yml") }
func (l Layout) treeConfFile() string  { return filepath.Join(l.auxDir(), "tree", "config.yml") }
func (l Layout) indexDir() string      { return filepath.Join(l.auxDir(), "index") }
func (l Layout) indexConfFile() string { return filepath.Join(l.indexDir(), "tree", "config.yml") }
func (l Layout) indexCacheDir() string { return filepath.Join(l.indexDir(), "cache") }
func (l Layout) cacheDir() string      { return filepath.Join(l.auxDir(), "cache") }
func (l Layout) tmpDir() string        { return filepath.Join(l.auxDir(), "tmp") }
func (l Layout) revDir(hash string) string {
	return filepath.Join(l.cacheDir(), hash[:2], hash[2:])
}

// Project owns the on-disk aux directory, the project-wide object
// store, the index's own (smaller) object store, and the C3 revision
// backend.
type Project struct {
	layout Layout
	store  objectstore.Store
	index  objectstore.Store
	vcs    revisionstore.Backend
	env    environment.Environment
	engine *version.Version
	repos  *ProjectRepositories
}

// Init creates a fresh project rooted at root: the aux directory
// layout, an empty project config at the current format version, and
// the VCS backend's own Init.
func Init(root string, vcs revisionstore.Backend, env environment.Environment) (*Project, error) {
	layout := Layout{Root: root}
	if exists, err := files.Exists(layout.auxDir()); err != nil {
		return nil, err
	} else if exists {
		return nil, cerrors.ProjectAlreadyExists(root)
	}

	for _, dir := range []string{layout.auxDir(), layout.cacheDir(), layout.tmpDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	cfg := config.NewProjectConfig()
	cfg.ProjectName = filepath.Base(root)
	cfg.ProjectDir = root
	if err := config.Save(layout.confFile(), cfg); err != nil {
		return nil, err
	}

	if err := vcs.Init(root); err != nil {
		return nil, cerrors.Vcs("init", err)
	}

	store, err := objectstore.NewFSStore(layout.cacheDir())
	if err != nil {
		return nil, err
	}
	indexStore, err := objectstore.NewFSStore(layout.indexCacheDir())
	if err != nil {
		return nil, err
	}

	engineVersion, err := version.NewVersion(engineVersionStr)
	if err != nil {
		return nil, err
	}

	return &Project{
		layout: layout,
		store:  store,
		index:  indexStore,
		vcs:    vcs,
		env:    env,
		engine: engineVersion,
		repos:  newProjectRepositories(vcs),
	}, nil
}

// Open locates and loads an existing project at or above root, failing
// with cerrors.ProjectNotFound if no aux dir is found.
func Open(root string, vcs revisionstore.Backend, env environment.Environment) (*Project, error) {
	found, err := findAuxDirRoot(root)
	if err != nil {
		return nil, err
	}
	layout := Layout{Root: found}

	store, err := objectstore.NewFSStore(layout.cacheDir())
	if err != nil {
		return nil, err
	}
	indexStore, err := objectstore.NewFSStore(layout.indexCacheDir())
	if err != nil {
		return nil, err
	}
	engineVersion, err := version.NewVersion(engineVersionStr)
	if err != nil {
		return nil, err
	}

	return &Project{
		layout: layout,
		store:  store,
		index:  indexStore,
		vcs:    vcs,
		env:    env,
		engine: engineVersion,
		repos:  newProjectRepositories(vcs),
	}, nil
}

func findAuxDirRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if exists, _ := files.Exists(filepath.Join(dir, defaultAuxDirName)); exists {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", cerrors.ProjectNotFound(start)
		}
		dir = parent
	}
}

// Store returns the project-wide object store (C2).
func (p *Project) Store() objectstore.Store { return p.store }

// Repositories returns the VCS-level named-remote list (§9 supplement,
// distinct from any Tree's RemoteRegistry).
func (p *Project) Repositories() *ProjectRepositories { return p.repos }

// Tag names the current HEAD, supplemented from the original
// GitWrapper.tag.
func (p *Project) Tag(name string) error {
	if err := p.vcs.Tag(name); err != nil {
		return cerrors.Vcs("tag", err)
	}
	return nil
}

// CheckUpdates reports which of remote's refs changed since the last
// fetch, supplemented from the original (commented out in project.py,
// restored here per §9).
func (p *Project) CheckUpdates(remote string) ([]string, error) {
	updated, err := p.vcs.CheckUpdates(remote)
	if err != nil {
		return nil, cerrors.Vcs("check_updates", err)
	}
	return updated, nil
}

// GetRev resolves ref to a Tree per §4.8:
//   - "" → the working tree (read from tree/config.yml, or from the aux
//     dir's own config.yml when that file is absent).
//   - "index" → the index tree's config.
//   - anything else → rev_parse'd, materializing the backend tree into
//     the cache if not already present, then loading its TreeConfig.
//
// Go's == on strings is value equality, not reference identity, so the
// source material's defect (`obj_hash is 'index'`, a Python identity
// comparison that can silently diverge from `==`) has no analogue here.
func (p *Project) GetRev(ref string) (*Tree, error) {
	switch ref {
	case "":
		return p.workingTree()
	case "index":
		return p.indexTree()
	default:
		return p.revisionTree(ref)
	}
}

func (p *Project) workingTree() (*Tree, error) {
	confPath := p.layout.treeConfFile()
	if exists, err := files.Exists(confPath); err != nil {
		return nil, err
	} else if !exists {
		confPath = p.layout.confFile()
	}

	result, err := config.LoadProjectConfig(confPath)
	if err != nil {
		// The working tree's own file may be a bare TreeConfig (no
		// format_version) when it's split from config.yml.
		cfg, terr := config.LoadTreeConfig(confPath)
		if terr != nil {
			return nil, err
		}
		return newTree(cfg, PositionWorking, p, p.env, p.engine, p.layout.Root, p.layout.auxDir(), p.layout.tmpDir())
	}

	cfg := &result.Config.TreeConfig
	return newTree(cfg, PositionWorking, p, p.env, p.engine, p.layout.Root, p.layout.auxDir(), p.layout.tmpDir())
}

func (p *Project) indexTree() (*Tree, error) {
	cfg, err := config.LoadTreeConfig(p.layout.indexConfFile())
	if err != nil {
		return nil, err
	}
	return newTree(cfg, PositionIndex, p, p.env, p.engine, p.layout.indexDir(), p.layout.indexDir(), p.layout.tmpDir())
}

func (p *Project) revisionTree(ref string) (*Tree, error) {
	_, hash, err := p.vcs.RevParse(ref)
	if err != nil {
		return nil, err
	}

	dir := p.layout.revDir(hash)
	// The committed tree keeps its repo-relative layout, so the tree
	// config lands under <dir>/<aux>/tree/config.yml.
	revConf := filepath.Join(dir, defaultAuxDirName, "tree", "config.yml")
	if exists, err := files.Exists(revConf); err != nil {
		return nil, err
	} else if !exists {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		if err := p.vcs.WriteTree(hash, dir); err != nil {
			return nil, cerrors.Vcs("write_tree", err)
		}
	}

	cfg, err := config.LoadTreeConfig(revConf)
	if err != nil {
		return nil, err
	}
	t, err := newTree(cfg, PositionRevision, p, p.env, p.engine, dir, dir, p.layout.tmpDir())
	if err != nil {
		return nil, err
	}
	t.Rev = hash
	return t, nil
}

// Save persists a mutated working Tree's TreeConfig to both the
// project config (config.yml) and the working tree's own file
// (tree/config.yml — §6 notes the two "may be same as above"), the
// step a source/model/remote/build-target registry mutation needs
// before it survives a reload.
func (p *Project) Save(t *Tree) error {
	if t.Position != PositionWorking {
		return fmt.Errorf("project: cannot save a %s tree as working", t.Position)
	}

	cfg := config.NewProjectConfig()
	cfg.TreeConfig = *t.Config
	cfg.ProjectName = filepath.Base(p.layout.Root)
	cfg.ProjectDir = p.layout.Root
	if err := config.Save(p.layout.confFile(), cfg); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.layout.treeConfFile()), 0o755); err != nil {
		return err
	}
	return config.Save(p.layout.treeConfFile(), t.Config)
}

// Add stages the named working-tree sources into the index, per §4.8:
// compute each source's (hash, manifest) and write it into the index's
// own (smaller) object store if not already cached there, then update
// the index TreeConfig's per-source hash field. No data is duplicated
// into the aux tree directory; the index tracks only the hash pointer,
// the same content-addressing discipline the project store itself uses.
func (p *Project) Add(names []string) error {
	working, err := p.workingTree()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.layout.indexConfFile()), 0o755); err != nil {
		return err
	}
	indexCfg, err := p.loadOrInitIndexConfig(working.Config)
	if err != nil {
		return err
	}

	for _, name := range names {
		src, ok := working.Config.Sources[name]
		if !ok {
			return cerrors.UnknownSource(name)
		}

		dataDir := working.sources.DataDir(name)
		hash, _, err := p.index.ComputeHash(dataDir)
		if err != nil {
			return fmt.Errorf("project: hashing source %q: %w", name, err)
		}

		cached, err := p.index.IsCached(hash)
		if err != nil {
			return err
		}
		if !cached {
			if _, err := p.index.Put(dataDir); err != nil {
				return fmt.Errorf("project: storing source %q: %w", name, err)
			}
		}

		src.Hash = hash
		indexCfg.Sources[name] = src
	}

	return config.Save(p.layout.indexConfFile(), indexCfg)
}

func (p *Project) loadOrInitIndexConfig(working *config.TreeConfig) (*config.TreeConfig, error) {
	if exists, err := files.Exists(p.layout.indexConfFile()); err != nil {
		return nil, err
	} else if exists {
		return config.LoadTreeConfig(p.layout.indexConfFile())
	}
	copy := *working
	copy.Sources = cloneSources(working.Sources)
	return &copy, nil
}

// copyObject moves hash from src to dst across two independent content
// stores: a blob is re-hashed in from its on-disk path, a directory
// object's manifest is read directly and re-encoded after every entry
// it names has itself been copied.
func copyObject(dst, src objectstore.Store, hash string) error {
	if objectstore.IsDirHash(hash) {
		data, err := os.ReadFile(src.PathFor(hash))
		if err != nil {
			return err
		}
		manifest, err := objectstore.DecodeManifest(data)
		if err != nil {
			return err
		}
		for _, entry := range manifest {
			if err := copyObject(dst, src, entry.Hash); err != nil {
				return err
			}
		}
		dstPath := dst.PathFor(hash)
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dstPath, data, 0o644)
	}

	cached, err := dst.IsCached(hash)
	if err != nil {
		return err
	}
	if cached {
		return nil
	}
	_, err = dst.Put(src.PathFor(hash))
	return err
}

// stageFilePath names the stable, working-tree-relative sidecar path a
// source's stage file lives at, mirroring registry.SourceRegistry's own
// stageDir convention (the aux dir itself, one "<name>.yaml" per source).
func (p *Project) stageFilePath(name string) string {
	return filepath.Join(p.layout.auxDir(), name+".yaml")
}

func cloneSources(in map[string]config.SourceConfig) map[string]config.SourceConfig {
	out := make(map[string]config.SourceConfig, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Commit promotes the index to a new immutable revision, per §4.8: each
// indexed source's object moves from the index store into the project
// store, the resolved TreeConfig is written to the working tree's
// canonical config path, and that path (plus any per-source stage
// sidecars) is added to the VCS and committed. The index is then
// removed. Returns the new head hash.
func (p *Project) Commit(message string) (string, error) {
	if exists, err := files.Exists(p.layout.indexConfFile()); err != nil {
		return "", err
	} else if !exists {
		return "", fmt.Errorf("project: nothing staged to commit")
	}

	indexCfg, err := config.LoadTreeConfig(p.layout.indexConfFile())
	if err != nil {
		return "", err
	}

	for name, src := range indexCfg.Sources {
		if src.Hash == "" {
			continue
		}
		if err := copyObject(p.store, p.index, src.Hash); err != nil {
			return "", fmt.Errorf("project: promoting source %q: %w", name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(p.layout.treeConfFile()), 0o755); err != nil {
		return "", err
	}
	if err := config.Save(p.layout.treeConfFile(), indexCfg); err != nil {
		return "", err
	}

	paths := []string{filepath.Join(defaultAuxDirName, "tree", "config.yml")}
	for name := range indexCfg.Sources {
		stagePath := p.stageFilePath(name)
		if exists, err := files.Exists(stagePath); err != nil {
			return "", err
		} else if exists {
			rel, err := filepath.Rel(p.layout.Root, stagePath)
			if err != nil {
				return "", err
			}
			paths = append(paths, rel)
		}
	}

	if err := p.vcs.Add(paths, p.layout.Root); err != nil {
		return "", cerrors.Vcs("add", err)
	}
	hash, err := p.vcs.Commit(message)
	if err != nil {
		return "", cerrors.Vcs("commit", err)
	}

	_ = os.RemoveAll(p.layout.indexDir())

	return hash, nil
}

// Checkout restores ref's sources into the working tree. Each target is
// resolved to its on-disk stage-file path (unless already a direct
// filesystem path). VCS restores metadata first, the object cache
// restores data second — the order is load-bearing: cache.Link depends
// on ref's TreeConfig, which vcs.Checkout must have already restored.
func (p *Project) Checkout(ref string, targets []string) error {
	resolved := p.resolveStageFilePaths(targets)
	if err := p.vcs.Checkout(ref, resolved); err != nil {
		return cerrors.Vcs("checkout", err)
	}

	rev, err := p.GetRev(ref)
	if err != nil {
		return err
	}
	working, err := p.workingTree()
	if err != nil {
		return err
	}
	for _, name := range targets {
		src, err := rev.sources.Get(name)
		if err != nil {
			return err
		}
		if src.Hash == "" {
			continue
		}
		if err := p.store.Link(src.Hash, working.sources.DataDir(name)); err != nil {
			return fmt.Errorf("project: checkout %q: %w", name, err)
		}
	}
	return nil
}

// resolveStageFilePaths maps each target name to the stable aux-dir
// path its stage sidecar is committed under, falling back to the name
// itself only when that path cannot be made relative to the project
// root. The tree config path is always included first.
func (p *Project) resolveStageFilePaths(targets []string) []string {
	resolved := make([]string, 0, len(targets)+1)
	resolved = append(resolved, filepath.Join(defaultAuxDirName, "tree", "config.yml"))
	for _, name := range targets {
		rel, err := filepath.Rel(p.layout.Root, p.stageFilePath(name))
		if err != nil {
			resolved = append(resolved, name)
			continue
		}
		resolved = append(resolved, rel)
	}
	return resolved
}

// MakeDataset assembles and executes targetRef's pipeline against this
// project's working tree.
func (p *Project) MakeDataset(ctx context.Context, targetRef string) (interface{}, error) {
	t, err := p.workingTree()
	if err != nil {
		return nil, err
	}
	return t.MakeDataset(ctx, targetRef, p.store, p.env)
}
