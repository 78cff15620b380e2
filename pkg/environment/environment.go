// Package environment defines the Environment plugin-registry surface
// (§9): the core depends only on these four lookup mappings plus
// format detection, never on a concrete plugin implementation.
package environment

import "context"

// Extractor turns raw source bytes at path into an opaque dataset
// handle the executor can pass along the pipeline. The handle's shape
// is plugin-defined; the core treats it as opaque.
type Extractor func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error)

// Launcher runs an inference model against an input dataset handle.
type Launcher func(ctx context.Context, dataset interface{}, options map[string]interface{}) (interface{}, error)

// Transform applies a named transform/filter/convert operation to a
// dataset handle.
type Transform func(ctx context.Context, dataset interface{}, params map[string]interface{}) (interface{}, error)

// Importer brings an external repository or URL payload into a local
// directory, returning the path it wrote to.
type Importer func(ctx context.Context, url string, dst string) (string, error)

// Merger joins multiple dataset handles into one, the facility backing
// the executor's "join" step (§4.7). A single-element slice must return
// that element's dataset unchanged.
type Merger func(ctx context.Context, datasets []interface{}) (interface{}, error)

// Environment is the external collaborator supplying plugin lookups.
// Every mapping lookup returns ok=false for an unregistered name; the
// core turns that into cerrors.UnknownStage.
type Environment interface {
	Extractor(name string) (Extractor, bool)
	Launcher(name string) (Launcher, bool)
	Transform(name string) (Transform, bool)
	Importer(scheme string) (Importer, bool)

	// IsFormatKnown reports whether name names a registered extractor
	// format.
	IsFormatKnown(name string) bool

	// DetectDataset guesses the format of the data at path, for sources
	// registered without an explicit format.
	DetectDataset(path string) (format string, ok bool)

	// Merge joins several dataset handles into one.
	Merge(ctx context.Context, datasets []interface{}) (interface{}, error)
}

// Registry is a simple in-memory Environment, sufficient for both
// production wiring (registered once at startup by the plugin-loading
// layer, which is out of this engine's scope) and tests.
type Registry struct {
	extractors map[string]Extractor
	launchers  map[string]Launcher
	transforms map[string]Transform
	importers  map[string]Importer
	detectors  []func(path string) (string, bool)
	merger     Merger
}

var _ Environment = (*Registry)(nil)

// NewRegistry returns an empty Registry ready for RegisterX calls.
func NewRegistry() *Registry {
	return &Registry{
		extractors: map[string]Extractor{},
		launchers:  map[string]Launcher{},
		transforms: map[string]Transform{},
		importers:  map[string]Importer{},
	}
}

func (r *Registry) RegisterExtractor(name string, fn Extractor) { r.extractors[name] = fn }
func (r *Registry) RegisterLauncher(name string, fn Launcher)   { r.launchers[name] = fn }
func (r *Registry) RegisterTransform(name string, fn Transform) { r.transforms[name] = fn }
func (r *Registry) RegisterImporter(scheme string, fn Importer) { r.importers[scheme] = fn }

// RegisterDetector adds a format-sniffing function to the chain tried
// by DetectDataset, in registration order.
func (r *Registry) RegisterDetector(fn func(path string) (string, bool)) {
	r.detectors = append(r.detectors, fn)
}

func (r *Registry) Extractor(name string) (Extractor, bool) { fn, ok := r.extractors[name]; return fn, ok }
func (r *Registry) Launcher(name string) (Launcher, bool)   { fn, ok := r.launchers[name]; return fn, ok }
func (r *Registry) Transform(name string) (Transform, bool) { fn, ok := r.transforms[name]; return fn, ok }
func (r *Registry) Importer(scheme string) (Importer, bool) { fn, ok := r.importers[scheme]; return fn, ok }

func (r *Registry) IsFormatKnown(name string) bool {
	_, ok := r.extractors[name]
	return ok
}

func (r *Registry) DetectDataset(path string) (string, bool) {
	for _, detect := range r.detectors {
		if format, ok := detect(path); ok {
			return format, true
		}
	}
	return "", false
}

// SetMerger installs the dataset-joining facility. Without one, Merge
// falls back to a passthrough for a single dataset and a plain slice for
// several — sufficient for tests that never inspect merged content.
func (r *Registry) SetMerger(fn Merger) { r.merger = fn }

func (r *Registry) Merge(ctx context.Context, datasets []interface{}) (interface{}, error) {
	if r.merger != nil {
		return r.merger(ctx, datasets)
	}
	if len(datasets) == 1 {
		return datasets[0], nil
	}
	return datasets, nil
}
