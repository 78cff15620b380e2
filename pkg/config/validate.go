package config

import (
	"fmt"
	"regexp"
	"strings"
)

// nameRE is the file-name-safe identifier grammar shared by sources,
// models, remotes and targets: lowercase, ASCII-folded, no leading dot.
var nameRE = regexp.MustCompile(`^[a-z0-9._-]+$`)

// hashRE matches a 40-hex content hash, or a 40-hex hash with a ".dir"
// suffix marking a directory object. The empty string is accepted
// separately by ValidHash.
var hashRE = regexp.MustCompile(`^[0-9a-f]{40}(\.dir)?$`)

// ValidName reports whether name satisfies the shared naming grammar:
// it matches nameRE and does not start with '.'.
func ValidName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return nameRE.MatchString(name)
}

// ValidHash reports whether hash is empty or a well-formed content
// address (40 hex chars, optionally ".dir"-suffixed).
func ValidHash(hash string) bool {
	return hash == "" || hashRE.MatchString(hash)
}

// ValidateName checks name against the shared grammar. Reserved names
// are rejected unless allowReserved is true (the "project" target name
// is the one legitimate reserved name in use).
func ValidateName(name string, allowReserved bool) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid name %q: must match %s and not start with '.'", name, nameRE.String())
	}
	if !allowReserved && ReservedNames[name] {
		return fmt.Errorf("name %q is reserved", name)
	}
	return nil
}

// Validate enforces SourceConfig's shape: a well-formed hash, and a
// remote name (if set) that obeys the naming grammar.
func (s SourceConfig) Validate() error {
	if !ValidHash(s.Hash) {
		return fmt.Errorf("source: invalid hash %q", s.Hash)
	}
	if s.Remote != "" && !ValidName(s.Remote) {
		return fmt.Errorf("source: invalid remote name %q", s.Remote)
	}
	return nil
}

// Validate enforces ModelConfig's shape.
func (m ModelConfig) Validate() error {
	if m.Launcher == "" {
		return fmt.Errorf("model: launcher is required")
	}
	return nil
}

// Validate enforces RemoteConfig's shape: URL scheme must lie in the
// allowed set, and Type must be one of the three known backends or
// empty.
func (r RemoteConfig) Validate() error {
	scheme := urlScheme(r.URL)
	if !AllowedURLSchemes[scheme] {
		allowed := make([]string, 0, len(AllowedURLSchemes))
		for s := range AllowedURLSchemes {
			allowed = append(allowed, s)
		}
		return fmt.Errorf("remote: scheme %q not allowed (allowed: %v)", scheme, allowed)
	}
	switch r.Type {
	case RemoteTypeURL, RemoteTypeGit, RemoteTypeDvc, "":
	default:
		return fmt.Errorf("remote: unknown type %q", r.Type)
	}
	return nil
}

// urlScheme extracts the "foo" of "foo://..." or "foo:...", returning ""
// for a bare local path.
func urlScheme(url string) string {
	if idx := strings.Index(url, "://"); idx >= 0 {
		return url[:idx]
	}
	// remote indirection form: "remote://name/path" is covered above;
	// anything with a bare "name:" prefix (e.g. "ftp:x") also counts.
	if idx := strings.Index(url, ":"); idx >= 0 && !strings.Contains(url[:idx], "/") {
		return url[:idx]
	}
	return ""
}

// requiresKind reports whether StageType t must carry a non-empty Kind.
func requiresKind(t StageType) bool {
	switch t {
	case StageTransform, StageConvert, StageInference:
		return true
	default:
		return false
	}
}

// forbidsKind reports whether StageType t must NOT carry a Kind.
func forbidsKind(t StageType) bool {
	switch t {
	case StageSource, StageProject, StageFilter:
		return true
	default:
		return false
	}
}

// Validate enforces BuildStage's shape: a valid name, a known
// StageType, a well-formed hash, and the per-variant Kind payload rule
// from §9 ("tagged-variant stage types").
func (s BuildStage) Validate() error {
	if err := ValidateName(s.Name, true); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	switch s.Type {
	case StageSource, StageProject, StageTransform, StageFilter, StageConvert, StageInference:
	default:
		return fmt.Errorf("stage %q: unknown type %q", s.Name, s.Type)
	}
	if requiresKind(s.Type) && s.Kind == "" {
		return fmt.Errorf("stage %q: type %q requires kind", s.Name, s.Type)
	}
	if forbidsKind(s.Type) && s.Kind != "" {
		return fmt.Errorf("stage %q: type %q must not carry kind", s.Name, s.Type)
	}
	if !ValidHash(s.Hash) {
		return fmt.Errorf("stage %q: invalid hash %q", s.Name, s.Hash)
	}
	return nil
}

// Validate enforces BuildTarget's shape: it has at least a root stage,
// and the root is never itself removable (checked structurally: callers
// must never produce a BuildTarget with zero stages).
func (t BuildTarget) Validate() error {
	if len(t.Stages) == 0 {
		return fmt.Errorf("target: must have at least a root stage")
	}
	for i, st := range t.Stages {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("target: stage[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks every entry of a TreeConfig for internal consistency:
// names, per-entry shapes, and that every target's root stage type
// matches its class (source targets root a "source" stage, the
// "project" target roots a "project" stage).
func (c TreeConfig) Validate() error {
	for name, src := range c.Sources {
		if err := ValidateName(name, false); err != nil {
			return fmt.Errorf("sources[%s]: %w", name, err)
		}
		if err := src.Validate(); err != nil {
			return fmt.Errorf("sources[%s]: %w", name, err)
		}
	}
	for name, mdl := range c.Models {
		if err := ValidateName(name, false); err != nil {
			return fmt.Errorf("models[%s]: %w", name, err)
		}
		if err := mdl.Validate(); err != nil {
			return fmt.Errorf("models[%s]: %w", name, err)
		}
	}
	for name, rem := range c.Remotes {
		if err := ValidateName(name, false); err != nil {
			return fmt.Errorf("remotes[%s]: %w", name, err)
		}
		if err := rem.Validate(); err != nil {
			return fmt.Errorf("remotes[%s]: %w", name, err)
		}
	}
	for name, tgt := range c.BuildTargets {
		allowReserved := name == "project"
		if err := ValidateName(name, allowReserved); err != nil {
			return fmt.Errorf("build_targets[%s]: %w", name, err)
		}
		if err := tgt.Validate(); err != nil {
			return fmt.Errorf("build_targets[%s]: %w", name, err)
		}
		root := tgt.Root()
		if name == "project" {
			if root.Type != StageProject {
				return fmt.Errorf("build_targets[%s]: root stage must have type %q, got %q", name, StageProject, root.Type)
			}
		} else if root.Type != StageSource {
			return fmt.Errorf("build_targets[%s]: root stage must have type %q, got %q", name, StageSource, root.Type)
		}
	}
	return nil
}

// Validate checks ProjectConfig: the embedded TreeConfig plus the
// format_version migration gate (only 1 and 2 are understood).
func (c ProjectConfig) Validate() error {
	if err := c.TreeConfig.Validate(); err != nil {
		return err
	}
	switch c.FormatVersion {
	case 0, 1, 2:
	default:
		return fmt.Errorf("project: unsupported format_version %d", c.FormatVersion)
	}
	return nil
}
