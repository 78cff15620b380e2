// Package remote implements the RemoteRegistry adapter (C4): named
// remotes with URL validation and scheme dispatch to a concrete data
// transport backend. It is distinct from revisionstore's VCS-level
// remotes — these carry dataset bytes, not commits.
package remote

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-version"
	homedir "github.com/mitchellh/go-homedir"

	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/util/console"
)

// Backend is the data-transport contract a single remote dispatches to.
// Push/Pull move one object identified by key (typically a content
// hash or a relative source path, depending on RemoteType).
type Backend interface {
	Push(ctx context.Context, localPath, key string) error
	Pull(ctx context.Context, key, localPath string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Factory builds a Backend for a validated RemoteConfig.
type Factory func(name string, cfg config.RemoteConfig) (Backend, error)

// Registry owns the named remotes of one TreeConfig, dispatching
// fetch/pull/push to the scheme-appropriate Backend.
type Registry struct {
	mu            sync.Mutex
	remotes       map[string]config.RemoteConfig
	defaultName   string
	engineVersion *version.Version
	factory       Factory
	backendCache  map[string]Backend
}

// EngineVersion is this build's own version, compared against any
// min_engine_version a remote's Options declare.
var EngineVersion = "0.1.0"

// NewRegistry constructs a Registry seeded from an existing
// TreeConfig.Remotes map. The map is shared, not copied: each
// Add/Remove writes through to the map passed in, matching the way
// BuildTargets et al. operate directly on the owning TreeConfig.
func NewRegistry(remotes map[string]config.RemoteConfig) (*Registry, error) {
	ev, err := version.NewVersion(EngineVersion)
	if err != nil {
		return nil, err
	}
	return &Registry{
		remotes:       remotes,
		engineVersion: ev,
		factory:       defaultFactory,
		backendCache:  map[string]Backend{},
	}, nil
}

func defaultFactory(name string, cfg config.RemoteConfig) (Backend, error) {
	scheme := schemeOf(cfg.URL)
	switch scheme {
	case "", "remote":
		return NewLocalBackend(cfg.URL)
	case "s3":
		return NewS3Backend(cfg.URL)
	default:
		return nil, fmt.Errorf("remote: no backend for scheme %q", scheme)
	}
}

func schemeOf(rawURL string) string {
	if idx := strings.Index(rawURL, "://"); idx >= 0 {
		return rawURL[:idx]
	}
	return ""
}

// Add validates and registers a new remote under name. An empty
// scheme is rewritten to the path's absolute, home-expanded form;
// "git://"/"dvc://" prefixes are rejected (those backends are declared
// via Type instead, without a scheme prefix), matching §4.3.
func (r *Registry) Add(name string, cfg config.RemoteConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.remotes[name]; exists {
		return cerrors.RemoteExists(name)
	}

	scheme := schemeOf(cfg.URL)
	if scheme == "git" || scheme == "dvc" {
		return fmt.Errorf("remote: scheme %q is not allowed on a URL; set type=%s instead", scheme, scheme)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if scheme == "" {
		expanded, err := homedir.Expand(cfg.URL)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return err
		}
		cfg.URL = abs
	}

	if err := r.checkEngineCompatibility(cfg); err != nil {
		return err
	}

	r.remotes[name] = cfg
	if r.defaultName == "" {
		r.defaultName = name
	}
	console.Debugf("registered remote %s -> %s", name, cfg.URL)
	return nil
}

// checkEngineCompatibility rejects remotes whose Options declare a
// min_engine_version constraint this registry's engine cannot satisfy
// — an additive safety check beyond spec.md's scheme validation.
func (r *Registry) checkEngineCompatibility(cfg config.RemoteConfig) error {
	raw, ok := cfg.Options["min_engine_version"]
	if !ok {
		return nil
	}
	constraintStr, ok := raw.(string)
	if !ok {
		return fmt.Errorf("remote: min_engine_version must be a string, got %T", raw)
	}
	constraint, err := version.NewConstraint(constraintStr)
	if err != nil {
		return fmt.Errorf("remote: invalid min_engine_version %q: %w", constraintStr, err)
	}
	if !constraint.Check(r.engineVersion) {
		return fmt.Errorf("remote: engine version %s does not satisfy constraint %q", r.engineVersion, constraintStr)
	}
	return nil
}

// Remove deregisters name and drops its cached backend. No backend
// teardown runs, so force has no effect here.
func (r *Registry) Remove(name string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.remotes[name]; !ok {
		return cerrors.UnknownRemote(name)
	}
	delete(r.remotes, name)
	delete(r.backendCache, name)
	if r.defaultName == name {
		r.defaultName = ""
	}
	_ = force // no backend-side teardown is currently stateful enough to fail
	return nil
}

// SetDefault designates name as the default remote for bare
// fetch/pull/push calls.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.remotes[name]; !ok {
		return cerrors.UnknownRemote(name)
	}
	r.defaultName = name
	return nil
}

// GetDefault returns the current default remote name, or "" if none.
func (r *Registry) GetDefault() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultName
}

// Get resolves name (or the default, if name == "") to its Backend.
// A "remote://<name>/<path>" URL is not followed through the named
// remote: the factory hands it to the local backend as a path.
func (r *Registry) Get(name string) (Backend, config.RemoteConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolve(name)
}

func (r *Registry) resolve(name string) (Backend, config.RemoteConfig, error) {
	if name == "" {
		name = r.defaultName
	}
	cfg, ok := r.remotes[name]
	if !ok {
		return nil, config.RemoteConfig{}, cerrors.UnknownRemote(name)
	}
	if cached, ok := r.backendCache[name]; ok {
		return cached, cfg, nil
	}
	backend, err := r.factory(name, cfg)
	if err != nil {
		return nil, cfg, err
	}
	r.backendCache[name] = backend
	return backend, cfg, nil
}

// Push pushes key via the named (or default) remote.
func (r *Registry) Push(ctx context.Context, name, localPath, key string) error {
	backend, _, err := r.Get(name)
	if err != nil {
		return err
	}
	return backend.Push(ctx, localPath, key)
}

// Pull pulls key via the named (or default) remote.
func (r *Registry) Pull(ctx context.Context, name, key, localPath string) error {
	backend, _, err := r.Get(name)
	if err != nil {
		return err
	}
	return backend.Pull(ctx, key, localPath)
}

// Fetch checks for the presence of key without copying it.
func (r *Registry) Fetch(ctx context.Context, name, key string) (bool, error) {
	backend, _, err := r.Get(name)
	if err != nil {
		return false, err
	}
	return backend.Exists(ctx, key)
}

// ParseRemoteRef splits a "remote://<name>/<path>" reference into its
// remote name and path, per §4.4's source-URL dispatch rule. path is
// "" when the reference names the remote's root.
func ParseRemoteRef(ref string) (name, path string, ok bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "remote" {
		return "", "", false
	}
	name = u.Host
	path = strings.TrimPrefix(u.Path, "/")
	return name, path, true
}
