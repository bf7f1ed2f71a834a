package utils

import (
	"regexp"
	"strings"
)

// CompileRegexPatterns compiles regex strings into usable *regexp.Regexp objects.
// Returns an error if any pattern is invalid.
func CompileRegexPatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" { // Skip empty patterns silently
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, WrapErrorf(ErrConfigValidation, "invalid regex pattern #%d ('%s')", i+1, pattern)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// MatchesAny reports whether s matches at least one of the patterns.
func MatchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Submatch returns capture group `group` of the first match of re in s.
// The bool is false when re does not match or the group did not participate.
func Submatch(re *regexp.Regexp, s string, group int) (string, bool) {
	idx := re.FindStringSubmatchIndex(s)
	if idx == nil || 2*group+1 >= len(idx) || idx[2*group] < 0 {
		return "", false
	}
	return s[idx[2*group]:idx[2*group+1]], true
}

// AllSubmatches returns capture group `group` of every match of re in s, in order.
func AllSubmatches(re *regexp.Regexp, s string, group int) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if group < len(m) {
			out = append(out, m[group])
		}
	}
	return out
}

var keyUnsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeKeyPart makes s safe as a path component or a storage key segment.
func SanitizeKeyPart(s string) string {
	cleaned := strings.Trim(keyUnsafeChars.ReplaceAllString(s, "_"), "_")
	if len(cleaned) > 100 {
		cleaned = strings.Trim(cleaned[:100], "_")
	}
	if cleaned == "" {
		return "unnamed"
	}
	return cleaned
}
