package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/replicate/cogset/pkg/buildtargets"
	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
	"github.com/replicate/cogset/pkg/remote"
	"github.com/replicate/cogset/pkg/util"
	"github.com/replicate/cogset/pkg/util/files"
)

// SourceRegistry implements §4.4's source half of _DataSourceBase:
// add/remove/pull over a TreeConfig's sources map, with remote
// creation, data import, and single-file "ensure in dir" rewriting.
type SourceRegistry struct {
	sources    map[string]config.SourceConfig
	remotes    *remote.Registry
	targets    *buildtargets.BuildTargets
	env        environment.Environment
	writable   bool
	projectDir string
	stageDir   string // where per-source stage files live
	tmpDir     string // scratch space for the "ensure in dir" rename dance
}

// NewSourceRegistry wires a SourceRegistry over the owning Tree's live
// maps/registries.
func NewSourceRegistry(
	sources map[string]config.SourceConfig,
	remotes *remote.Registry,
	targets *buildtargets.BuildTargets,
	env environment.Environment,
	writable bool,
	projectDir, stageDir, tmpDir string,
) *SourceRegistry {
	return &SourceRegistry{
		sources: sources, remotes: remotes, targets: targets, env: env,
		writable: writable, projectDir: projectDir, stageDir: stageDir, tmpDir: tmpDir,
	}
}

// Get looks up a source by name.
func (r *SourceRegistry) Get(name string) (config.SourceConfig, error) {
	s, ok := r.sources[name]
	if !ok {
		return config.SourceConfig{}, cerrors.UnknownSource(name)
	}
	return s, nil
}

// DataDir is the directory a source's materialized data lives in.
func (r *SourceRegistry) DataDir(name string) string {
	return filepath.Join(r.projectDir, name)
}

func (r *SourceRegistry) stageFilePath(name string) string {
	return filepath.Join(r.stageDir, name+".yaml")
}

// validateName enforces §4.4's name rules: must survive MakeFileName
// unchanged, and must not start with ".".
func validateName(name string) error {
	if util.MakeFileName(name) != name {
		return fmt.Errorf("registry: name %q contains prohibited characters", name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("registry: name %q cannot start with '.'", name)
	}
	return config.ValidateName(name, false)
}

// Add registers a new source, dispatching on value.URL per §4.4: empty
// URL is a generated source; "remote://name/path" attaches to an
// existing remote; any other URL creates a new remote plus an import.
// On any failure after remote creation, the partially-created remote
// is rolled back.
func (r *SourceRegistry) Add(ctx context.Context, name string, value config.SourceConfig) (config.SourceConfig, error) {
	if err := validateName(name); err != nil {
		return config.SourceConfig{}, err
	}
	if _, exists := r.sources[name]; exists {
		return config.SourceConfig{}, cerrors.SourceExists(name)
	}

	url := value.URL
	var remoteName, path string
	var rollbackRemote func()

	if r.writable {
		switch {
		case url == "":
			remoteName, path = "", ""

		case strings.HasPrefix(url, "remote://"):
			parsedName, parsedPath, ok := remote.ParseRemoteRef(url)
			if !ok {
				return config.SourceConfig{}, fmt.Errorf("registry: malformed remote reference %q", url)
			}
			if _, _, err := r.remotes.Get(parsedName); err != nil {
				return config.SourceConfig{}, err
			}
			remoteName = parsedName
			path = parsedPath

		default:
			if !strings.Contains(url, "://") {
				if exists, err := files.Exists(url); err != nil {
					return config.SourceConfig{}, err
				} else if !exists {
					return config.SourceConfig{}, fmt.Errorf("registry: can't find file or directory %q", url)
				}
			}

			remoteName = name
			if err := r.remotes.Add(remoteName, config.RemoteConfig{URL: url, Type: config.RemoteTypeURL}); err != nil {
				return config.SourceConfig{}, err
			}
			rollbackRemote = func() { _ = r.remotes.Remove(remoteName, true) }
			path = ""
		}

		if remoteName != "" {
			if err := r.importSource(ctx, name, remoteName, path, url); err != nil {
				if rollbackRemote != nil {
					rollbackRemote()
				}
				return config.SourceConfig{}, err
			}
		}
		if path != "" {
			path = filepath.Base(path)
		}
	} else {
		if url == "" {
			remoteName, path = "", url
		} else if exists, err := files.Exists(url); err == nil && exists {
			remoteName, path = "", url
		} else {
			return config.SourceConfig{}, cerrors.DetachedProject("adding a remote-backed source")
		}
	}

	value.URL = path
	value.Remote = remoteName
	r.sources[name] = value

	if err := r.targets.NewTarget(name, config.BuildStage{
		Name: "root",
		Type: config.StageSource,
		Hash: value.Hash,
	}); err != nil {
		delete(r.sources, name)
		if rollbackRemote != nil {
			rollbackRemote()
		}
		return config.SourceConfig{}, err
	}

	return value, nil
}

// importSource dispatches to the environment's repo- or URL-import
// path based on the remote's declared type, then applies the
// "ensure in dir" single-file fixup.
func (r *SourceRegistry) importSource(ctx context.Context, name, remoteName, path, originalURL string) error {
	_, remoteCfg, err := r.remotes.Get(remoteName)
	if err != nil {
		return err
	}

	var scheme string
	switch remoteCfg.Type {
	case config.RemoteTypeURL:
		scheme = "url"
	case config.RemoteTypeGit, config.RemoteTypeDvc:
		scheme = string(remoteCfg.Type)
	default:
		return fmt.Errorf("registry: unknown remote type %q", remoteCfg.Type)
	}

	importer, ok := r.env.Importer(scheme)
	if !ok {
		return cerrors.UnknownStage(scheme)
	}

	sourceDir := r.DataDir(name)
	ref := "remote://" + remoteName + path
	writtenPath, err := importer(ctx, ref, sourceDir)
	if err != nil {
		return err
	}

	stageFile := r.stageFilePath(name)
	if err := writeStageFile(stageFile, sourceDir, filepath.Base(writtenPath)); err != nil {
		return err
	}

	return r.ensureInDir(sourceDir, stageFile, filepath.Base(originalURL))
}

// ensureInDir mirrors the original _ensure_in_dir: when the import
// wrote a single file rather than a directory, move it into a
// directory bearing the source's data-dir path and rewrite the stage
// file's wdir/outs[0].path to match. A no-op when sourcePath is
// already a directory (or nothing was written).
func (r *SourceRegistry) ensureInDir(sourcePath, stageFile, dstName string) error {
	info, err := os.Stat(sourcePath)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}

	tmpDir := r.tmpDir
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(tmpDir, filepath.Base(sourcePath))
	if err := os.Rename(sourcePath, tmp); err != nil {
		return err
	}
	if err := os.MkdirAll(sourcePath, 0o755); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(sourcePath, dstName)); err != nil {
		return err
	}

	return rewriteStageFile(stageFile, sourcePath, dstName)
}

// Remove deletes the config entry and its build target. On a writable
// tree it then, with force && !keepData, wipes the source's data
// directory, and tries to remove the backend stage file and the
// associated remote, swallowing errors when force is set.
func (r *SourceRegistry) Remove(name string, force, keepData bool) error {
	if _, exists := r.sources[name]; !exists && !force {
		return cerrors.UnknownSource(name)
	}
	delete(r.sources, name)
	r.targets.RemoveTarget(name)

	if !r.writable {
		return nil
	}

	if force && !keepData {
		_ = os.RemoveAll(r.DataDir(name))
	}

	stageFile := r.stageFilePath(name)
	if exists, _ := files.Exists(stageFile); exists {
		if err := os.Remove(stageFile); err != nil && !force {
			return err
		}
	}

	if err := r.remotes.Remove(name, force); err != nil && !force && !cerrors.IsUnknownRemote(err) {
		return err
	}
	return nil
}

// Pull re-hydrates the named sources from their remotes. rev scopes a
// single-source pull to one revision; it is an error to pass rev with
// more than one name.
func (r *SourceRegistry) Pull(ctx context.Context, names []string, rev string) error {
	if !r.writable {
		return cerrors.ReadonlyProject("pull")
	}
	if rev != "" && len(names) != 1 {
		return fmt.Errorf("registry: a revision can only be specified for a single source")
	}
	for _, name := range names {
		src, ok := r.sources[name]
		if !ok {
			return cerrors.UnknownSource(name)
		}
		if src.Remote == "" {
			continue // generated source, nothing to pull
		}
		if err := r.importSource(ctx, name, src.Remote, "", src.URL); err != nil {
			return err
		}
	}
	return nil
}
