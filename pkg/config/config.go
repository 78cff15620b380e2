// Package config defines the typed, versioned configuration records
// described for trees and projects: sources, models, remotes, build
// targets and their stages. Every type here round-trips through YAML
// with unknown fields rejected (see parse.go) and carries a Validate
// method enforcing the domain invariants (see validate.go).
package config

// StageType is a closed tagged variant naming the kind of work a
// BuildStage performs. Each variant has its own payload rules, enforced
// in Validate: transform/convert/inference require Kind; filter carries
// only Params; source/project carry neither.
type StageType string

const (
	StageSource    StageType = "source"
	StageProject   StageType = "project"
	StageTransform StageType = "transform"
	StageFilter    StageType = "filter"
	StageConvert   StageType = "convert"
	StageInference StageType = "inference"
)

// RemoteType names the backend a RemoteConfig speaks to.
type RemoteType string

const (
	RemoteTypeURL RemoteType = "url"
	RemoteTypeGit RemoteType = "git"
	RemoteTypeDvc RemoteType = "dvc"
)

// AllowedURLSchemes is the closed set of schemes a RemoteConfig.URL may
// declare. The empty scheme means a plain local path.
var AllowedURLSchemes = map[string]bool{
	"":       true,
	"remote": true,
	"s3":     true,
	"ssh":    true,
	"http":   true,
	"https":  true,
}

// ReservedNames may never be used as a user source/model/remote name;
// "project" is reserved for the singleton aggregation target.
var ReservedNames = map[string]bool{
	"dataset": true,
	"build":   true,
	"project": true,
}

// SourceConfig describes one registered data source. Remote == "" marks
// a generated (plugin-produced) or purely local source.
type SourceConfig struct {
	URL     string                 `yaml:"url"`
	Format  string                 `yaml:"format"`
	Options map[string]interface{} `yaml:"options,omitempty"`
	Remote  string                 `yaml:"remote,omitempty"`
	Hash    string                 `yaml:"hash,omitempty"`
}

// ModelConfig describes one registered inference model.
type ModelConfig struct {
	Launcher string                 `yaml:"launcher"`
	URL      string                 `yaml:"url"`
	Options  map[string]interface{} `yaml:"options,omitempty"`
}

// RemoteConfig describes one named remote: where its bytes live and how
// to reach them.
type RemoteConfig struct {
	URL     string                 `yaml:"url"`
	Type    RemoteType             `yaml:"type"`
	Options map[string]interface{} `yaml:"options,omitempty"`
}

// BuildStage is one node's worth of config in a BuildTarget's chain.
type BuildStage struct {
	Name   string                 `yaml:"name"`
	Type   StageType              `yaml:"type"`
	Kind   string                 `yaml:"kind,omitempty"`
	Params map[string]interface{} `yaml:"params,omitempty"`
	Hash   string                 `yaml:"hash,omitempty"`
}

// BuildTarget is an ordered chain of stages plus the set of other
// targets it depends on. Stages[0] is always the immutable root stage.
type BuildTarget struct {
	Stages  []BuildStage `yaml:"stages"`
	Parents []string     `yaml:"parents,omitempty"`
}

// HasParent reports whether name is already recorded as a parent.
func (t *BuildTarget) HasParent(name string) bool {
	for _, p := range t.Parents {
		if p == name {
			return true
		}
	}
	return false
}

// Root returns the target's immutable first stage.
func (t *BuildTarget) Root() BuildStage {
	return t.Stages[0]
}

// Head returns the target's last (most recently appended) stage.
func (t *BuildTarget) Head() BuildStage {
	return t.Stages[len(t.Stages)-1]
}

// TreeConfig is the full configuration of one Tree: its registered
// sources, models, remotes and build targets, plus the directory layout
// it was loaded from.
type TreeConfig struct {
	Sources      map[string]SourceConfig `yaml:"sources,omitempty"`
	Models       map[string]ModelConfig  `yaml:"models,omitempty"`
	Remotes      map[string]RemoteConfig `yaml:"remotes,omitempty"`
	BuildTargets map[string]BuildTarget  `yaml:"build_targets,omitempty"`
	ProjectDir   string                  `yaml:"project_dir,omitempty"`
	EnvDir       string                  `yaml:"env_dir,omitempty"`
	ProjectName  string                  `yaml:"project_name,omitempty"`
}

// CurrentFormatVersion is the format_version this implementation writes.
// FormatVersion 1 is still readable (see load.go's migration path).
const CurrentFormatVersion = 2

// ProjectConfig extends TreeConfig with the fields that only make sense
// at the project root: the default push/pull repo, the index/cache
// locations, and the on-disk schema version.
type ProjectConfig struct {
	TreeConfig    `yaml:",inline"`
	DefaultRepo   string `yaml:"default_repo,omitempty"`
	IndexDir      string `yaml:"index_dir,omitempty"`
	CacheDir      string `yaml:"cache_dir,omitempty"`
	FormatVersion int    `yaml:"format_version,omitempty"`
}

// NewTreeConfig returns a TreeConfig with all maps initialized, ready
// for sources/models/remotes/targets to be added.
func NewTreeConfig() TreeConfig {
	return TreeConfig{
		Sources:      map[string]SourceConfig{},
		Models:       map[string]ModelConfig{},
		Remotes:      map[string]RemoteConfig{},
		BuildTargets: map[string]BuildTarget{},
	}
}

// NewProjectConfig returns a ProjectConfig at the current format
// version with all maps initialized.
func NewProjectConfig() ProjectConfig {
	return ProjectConfig{
		TreeConfig:    NewTreeConfig(),
		FormatVersion: CurrentFormatVersion,
	}
}
