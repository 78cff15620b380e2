package config

import (
	"gopkg.in/yaml.v3"

	"github.com/replicate/cogset/pkg/util"
)

// DefaultSourceFormat is used for a source auto-registered by the
// format_version 1 "dataset_dir" migration.
const DefaultSourceFormat = "datumaro"

// extractLegacyDatasetDir looks for a top-level "dataset_dir" key (not
// part of the current schema) and, if present, strips it from the
// document so the strict decode that follows doesn't reject it as
// unknown, returning its value separately for migration.
func extractLegacyDatasetDir(contents []byte) (dir string, rest []byte, isLegacy bool, err error) {
	if len(contents) == 0 {
		return "", contents, false, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return "", nil, false, err
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return "", contents, false, nil
	}
	root := doc.Content[0]

	kept := make([]*yaml.Node, 0, len(root.Content))
	for i := 0; i < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Value == "dataset_dir" {
			dir = val.Value
			isLegacy = true
			continue
		}
		kept = append(kept, key, val)
	}
	if !isLegacy {
		return "", contents, false, nil
	}
	root.Content = kept

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", nil, false, err
	}
	return dir, out, true, nil
}

// migrateLegacyDatasetDir registers dir as an auto-named source on cfg,
// mirroring the original format_version==1 migration path.
func migrateLegacyDatasetDir(cfg *ProjectConfig, dir string) {
	if cfg.Sources == nil {
		cfg.Sources = map[string]SourceConfig{}
	}
	existing := make([]string, 0, len(cfg.Sources))
	for name := range cfg.Sources {
		existing = append(existing, name)
	}
	name := util.GenerateNextName(existing, "source", "-", "", nil)
	cfg.Sources[name] = SourceConfig{
		URL:    dir,
		Format: DefaultSourceFormat,
	}
}
