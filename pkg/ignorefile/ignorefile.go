// Package ignorefile implements the shared ignore-file writer
// described in §6 and exercised by the testable ignore-file laws of
// §8's property 8: a single writer maintaining .gitignore-format files
// in three modes (rewrite/append/remove), grounded on the teacher's
// pkg/dockerignore (which reads and compiles a .dockerignore with
// github.com/sabhiram/go-gitignore) generalized from a read-only
// matcher into a read-modify-write set-algebra over patterns.
package ignorefile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/replicate/cogset/pkg/util/files"
)

// Mode names the three write strategies §6 specifies.
type Mode string

const (
	Rewrite Mode = "rewrite"
	Append  Mode = "append"
	Remove  Mode = "remove"
)

// Header is always written as the first line of a managed ignore file.
const Header = "# Autogenerated by the project engine — manual edits outside this block may be lost"

// Write updates the ignore file at path in the given mode with
// patterns, implementing the laws checked by §8's property 8:
//
//	rewrite(P)        == remove(·); append(P)
//	append(P ∪ Q)     == append(P); append(Q)
//	remove(P); append(P) == append(P)
func Write(path string, patterns []string, mode Mode) error {
	normalizedNew := normalizeSet(patterns)

	switch mode {
	case Rewrite:
		return writeLines(path, normalizedNew)

	case Append:
		existing, err := readSet(path)
		if err != nil {
			return err
		}
		for p := range normalizedNew {
			existing[p] = struct{}{}
		}
		return writeLines(path, existing)

	case Remove:
		existing, err := readSet(path)
		if err != nil {
			return err
		}
		for p := range normalizedNew {
			delete(existing, p)
		}
		return writeLines(path, existing)

	default:
		return fmt.Errorf("ignorefile: unknown mode %q", mode)
	}
}

// Matcher compiles the current contents of path into a matcher, for
// callers that need to test paths rather than edit the file — mirrors
// CreateMatcher in the teacher's dockerignore package.
func Matcher(path string) (*ignore.GitIgnore, error) {
	exists, err := files.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return ignore.CompileIgnoreLines(), nil
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	return ignore.CompileIgnoreLines(lines...), nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// readSet reads path's existing patterns into a normalized set. A
// missing file yields an empty set, not an error.
func readSet(path string) (map[string]struct{}, error) {
	exists, err := files.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]struct{}{}, nil
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	return normalizeSet(lines), nil
}

// normalizeSet strips comments, blank lines, and leading path
// separators, as §6 requires before any set operation.
func normalizeSet(lines []string) map[string]struct{} {
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		n := normalizeLine(line)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

func normalizeLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return strings.TrimLeft(line, "/")
}

func writeLines(path string, set map[string]struct{}) error {
	patterns := make([]string, 0, len(set))
	for p := range set {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n")
	for _, p := range patterns {
		b.WriteString(p)
		b.WriteString("\n")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
