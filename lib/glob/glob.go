// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package glob implements the pattern language shared by trigger ref
// rules, cache input patterns, and artifact globs. Names are
// slash-separated; * and ? stay inside one segment; ** crosses
// segment boundaries.
package glob

import (
	"path"
	"strings"
)

// Match checks whether a slash-separated name (branch, tag, or
// workspace-relative file path) matches a pattern:
//
//   - Exact match: "main" matches only "main"
//   - Single-segment wildcard: "release/*" matches "release/2.x" but
//     not "release/2/hotfix"
//   - Recursive wildcard: "release/**" matches "release/2.x" and
//     "release/2/hotfix"
//   - Universal: "**" matches any name
//   - Interior recursive: "release/**/stable" matches "release/stable"
//     and "release/2/stable"
//   - Character wildcards: "?" matches a single non-slash character
//
// The single-segment wildcard "*" does not match "/", matching the
// gitignore convention; use "**" to cross hierarchy boundaries.
//
// Returns false for malformed patterns (unmatched brackets, etc.)
// rather than propagating errors: a pattern that cannot be parsed
// should never match anything.
func Match(pattern, name string) bool {
	if pattern == "**" {
		return true
	}

	// No ** in the pattern: path.Match handles single-segment * and ?
	// correctly (neither matches /).
	if !strings.Contains(pattern, "**") {
		matched, err := path.Match(pattern, name)
		if err != nil {
			return false
		}
		return matched
	}

	// Suffix form "release/**": match the leading segments against the
	// prefix, then accept anything after.
	if rest, ok := strings.CutSuffix(pattern, "/**"); ok && !strings.Contains(rest, "**") {
		if matchSegments(rest, name) {
			// ** consumed zero segments.
			return true
		}
		return matchLeading(rest, name)
	}

	// Prefix form "**/stable": accept anything before, match the
	// trailing segments against the suffix.
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok && !strings.Contains(rest, "**") {
		if matchSegments(rest, name) {
			return true
		}
		return matchTrailing(rest, name)
	}

	// Interior form "release/**/stable": split on the first /**/ and
	// match both sides independently.
	if before, after, ok := strings.Cut(pattern, "/**/"); ok && !strings.Contains(after, "**") {
		// Zero-segment case: prefix and suffix adjacent.
		if matchSegments(before+"/"+after, name) {
			return true
		}

		beforeDepth := strings.Count(before, "/") + 1
		afterDepth := strings.Count(after, "/") + 1
		segments := strings.Split(name, "/")
		if len(segments) < beforeDepth+1+afterDepth {
			return false
		}
		if !matchSegments(before, strings.Join(segments[:beforeDepth], "/")) {
			return false
		}
		if !matchSegments(after, strings.Join(segments[len(segments)-afterDepth:], "/")) {
			return false
		}
		// Segments consumed by ** must be non-empty: reject names with
		// consecutive slashes in the middle.
		for _, segment := range segments[beforeDepth : len(segments)-afterDepth] {
			if segment == "" {
				return false
			}
		}
		return true
	}

	// Multiple ** segments or other unsupported shapes: deny.
	return false
}

// MatchAny checks the name against every pattern, true on the first
// match. An empty pattern list matches nothing.
func MatchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if Match(pattern, name) {
			return true
		}
	}
	return false
}

// matchSegments matches with path.Match semantics (* and ? stay inside
// one segment), treating malformed patterns as non-matches.
func matchSegments(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	return err == nil && matched
}

// matchLeading reports whether the name's leading segments match the
// pattern with at least one further segment remaining for ** to
// consume.
func matchLeading(pattern, name string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(name, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	return matchSegments(pattern, strings.Join(segments[:depth], "/"))
}

// matchTrailing reports whether the name's trailing segments match the
// pattern with at least one earlier segment for ** to consume.
func matchTrailing(pattern, name string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(name, "/")
	if len(segments) <= depth {
		return false
	}
	return matchSegments(pattern, strings.Join(segments[len(segments)-depth:], "/"))
}
