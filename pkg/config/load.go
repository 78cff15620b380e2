package config

import (
	"fmt"
	"os"
)

// LoadResult carries a loaded, migrated ProjectConfig plus any
// deprecation warnings collected along the way.
type LoadResult struct {
	Config   *ProjectConfig
	Warnings []DeprecationWarning
}

// LoadProjectConfig reads, parses, schema-validates, semantically
// validates and format-version-migrates the ProjectConfig at path.
//
// format_version 1 documents are migrated in place: a legacy top-level
// "dataset_dir" key (no longer part of the schema, so stripped from the
// document before the strict decode runs) is detected and
// registered as an auto-named source with the default format, per
// §4.8's migration note.
func LoadProjectConfig(path string) (*LoadResult, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Filename: path, Err: err}
	}

	legacyDir, rest, isLegacy, err := extractLegacyDatasetDir(contents)
	if err != nil {
		return nil, &ParseError{Filename: path, Err: err}
	}

	cfg, err := parseProjectConfig(rest)
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.Filename = path
		}
		return nil, err
	}

	result := &LoadResult{Config: cfg}

	switch cfg.FormatVersion {
	case 0, 1:
		if isLegacy {
			migrateLegacyDatasetDir(cfg, legacyDir)
			result.Warnings = append(result.Warnings, DeprecationWarning{
				Field:       "dataset_dir",
				Replacement: "sources",
				Message:     "top-level dataset_dir is deprecated; migrated to an auto-named source",
			})
		}
		cfg.FormatVersion = CurrentFormatVersion
	case CurrentFormatVersion:
	default:
		return nil, &ValidationError{
			Field:   "format_version",
			Value:   fmt.Sprintf("%d", cfg.FormatVersion),
			Message: "unsupported format_version",
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ValidationError{Field: "config", Message: err.Error()}
	}

	return result, nil
}

// LoadTreeConfig reads and validates a bare TreeConfig document (used
// for the index tree's config.yml, which has no format_version of its
// own — it always mirrors its owning project's).
func LoadTreeConfig(path string) (*TreeConfig, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Filename: path, Err: err}
	}
	cfg, err := parseTreeConfig(contents)
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.Filename = path
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ValidationError{Field: "config", Message: err.Error()}
	}
	return cfg, nil
}

// Save serializes cfg to YAML and writes it to path.
func Save(path string, cfg any) error {
	out, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
