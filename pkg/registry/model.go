package registry

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-version"

	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/config"
	"github.com/replicate/cogset/pkg/environment"
)

// ModelRegistry implements §4.4's ModelRegistry: registered inference
// models plus launcher construction.
type ModelRegistry struct {
	models     map[string]config.ModelConfig
	env        environment.Environment
	envDir     string
	modelsDir  string
	engineVers *version.Version
}

// NewModelRegistry wires a ModelRegistry over the owning Tree's live
// models map.
func NewModelRegistry(models map[string]config.ModelConfig, env environment.Environment, envDir, modelsDir string, engineVersion *version.Version) *ModelRegistry {
	return &ModelRegistry{models: models, env: env, envDir: envDir, modelsDir: modelsDir, engineVers: engineVersion}
}

// Get looks up a model by name.
func (r *ModelRegistry) Get(name string) (config.ModelConfig, error) {
	m, ok := r.models[name]
	if !ok {
		return config.ModelConfig{}, cerrors.UnknownModel(name)
	}
	return m, nil
}

// WorkDir is the per-model working directory a launcher runs in.
func (r *ModelRegistry) WorkDir(name string) string {
	return filepath.Join(r.envDir, r.modelsDir, name)
}

// Add registers a new model. Unlike a source, a model has no build
// target of its own: it only ever appears as an inference stage's
// launcher inside a target some source's pipeline already roots, so
// no target bookkeeping happens here.
func (r *ModelRegistry) Add(name string, value config.ModelConfig) (config.ModelConfig, error) {
	if err := validateName(name); err != nil {
		return config.ModelConfig{}, err
	}
	if _, exists := r.models[name]; exists {
		return config.ModelConfig{}, cerrors.ModelExists(name)
	}
	if err := value.Validate(); err != nil {
		return config.ModelConfig{}, err
	}

	r.models[name] = value
	return value, nil
}

// Remove deregisters a model.
func (r *ModelRegistry) Remove(name string, force bool) error {
	if _, exists := r.models[name]; !exists && !force {
		return cerrors.UnknownModel(name)
	}
	delete(r.models, name)
	return nil
}

// MakeExecutableModel constructs a launcher handle for name, resolving
// go-version compatibility between the launcher's declared minimum
// engine version (model.Options["min_engine_version"], if present) and
// this registry's engine version before invoking the environment.
func (r *ModelRegistry) MakeExecutableModel(name string) (environment.Launcher, map[string]interface{}, error) {
	model, err := r.Get(name)
	if err != nil {
		return nil, nil, err
	}

	if raw, ok := model.Options["min_engine_version"]; ok {
		constraintStr, ok := raw.(string)
		if !ok {
			return nil, nil, fmt.Errorf("registry: min_engine_version must be a string, got %T", raw)
		}
		constraint, err := version.NewConstraint(constraintStr)
		if err != nil {
			return nil, nil, fmt.Errorf("registry: invalid min_engine_version %q: %w", constraintStr, err)
		}
		if !constraint.Check(r.engineVers) {
			return nil, nil, fmt.Errorf("registry: engine %s does not satisfy launcher constraint %q", r.engineVers, constraintStr)
		}
	}

	launcher, ok := r.env.Launcher(model.Launcher)
	if !ok {
		return nil, nil, cerrors.UnknownStage(model.Launcher)
	}

	options := make(map[string]interface{}, len(model.Options)+1)
	for k, v := range model.Options {
		options[k] = v
	}
	options["model_dir"] = r.WorkDir(name)

	return launcher, options, nil
}
