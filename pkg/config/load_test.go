package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadProjectConfigRejectsUnknownField(t *testing.T) {
	path := writeTemp(t, "format_version: 2\nbogus_top_level_key: true\n")
	_, err := LoadProjectConfig(path)
	require.Error(t, err)
}

func TestLoadProjectConfigRoundTrip(t *testing.T) {
	path := writeTemp(t, `
format_version: 2
sources:
  s1:
    url: ./data
    format: coco
build_targets:
  s1:
    stages:
      - name: root
        type: source
  project:
    stages:
      - name: root
        type: project
`)
	result, err := LoadProjectConfig(path)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
	require.Equal(t, "./data", result.Config.Sources["s1"].URL)
	require.Equal(t, 2, result.Config.FormatVersion)
}

func TestLoadProjectConfigMigratesLegacyDatasetDir(t *testing.T) {
	path := writeTemp(t, `
format_version: 1
dataset_dir: ./legacy-data
`)
	result, err := LoadProjectConfig(path)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, CurrentFormatVersion, result.Config.FormatVersion)

	var found bool
	for _, src := range result.Config.Sources {
		if src.URL == "./legacy-data" {
			found = true
		}
	}
	require.True(t, found, "legacy dataset_dir should be migrated into a source")
}

func TestLoadProjectConfigRejectsUnsupportedFormatVersion(t *testing.T) {
	path := writeTemp(t, "format_version: 5\n")
	_, err := LoadProjectConfig(path)
	require.Error(t, err)
}
