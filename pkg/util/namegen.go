package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// MakeFileName slugifies s into a lowercase, ASCII, file-name-safe
// identifier: non-word characters are stripped, runs of whitespace or
// hyphens collapse to a single hyphen.
func MakeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	s = strings.ToLower(strings.TrimSpace(b.String()))
	s = regexp.MustCompile(`[-\s]+`).ReplaceAllString(s, "-")
	return s
}

// GenerateNextName returns the next available name of the form
// "<basename>(<sep><N>)?<suffix>" not already present in names: if no
// existing name matches the basename/suffix pattern, basename+suffix is
// returned bare (or with the given default index, if one was supplied);
// otherwise the highest matching index plus one is used.
func GenerateNextName(names []string, basename string, sep string, suffix string, defaultIdx *int) string {
	pattern := regexp.MustCompile(fmt.Sprintf(`^%s(?:%s(\d+))?%s$`,
		regexp.QuoteMeta(basename), regexp.QuoteMeta(sep), regexp.QuoteMeta(suffix)))

	maxIdx := -1
	found := false
	for _, n := range names {
		m := pattern.FindStringSubmatch(n)
		if m == nil {
			continue
		}
		found = true
		if m[1] == "" {
			// The bare name counts as index 0.
			if maxIdx < 0 {
				maxIdx = 0
			}
			continue
		}
		if v, err := strconv.Atoi(m[1]); err == nil && v > maxIdx {
			maxIdx = v
		}
	}

	if !found || maxIdx < 0 {
		if defaultIdx != nil {
			return basename + sep + strconv.Itoa(*defaultIdx) + suffix
		}
		return basename + suffix
	}
	return basename + sep + strconv.Itoa(maxIdx+1) + suffix
}
