// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package respath implements glob matching for resource identifiers:
// filesystem paths, operation names, and network hosts. Patterns use
// the conventions shared by the whole kernel:
//
//   - "*" matches a single path segment (never "/")
//   - "?" matches a single non-slash character
//   - "**" matches any number of segments
//   - anything else matches literally
//
// A hostname has no "/" separators, so for host patterns "*" behaves
// like a conventional wildcard label: "*.example.com" matches
// "api.example.com".
//
// Malformed patterns never match. A pattern that cannot be parsed must
// not grant access, so errors from the underlying matcher are folded
// into a deny.
package respath

import (
	"path"
	"strings"
)

// Match reports whether value matches the glob pattern.
//
//	"*.txt"          matches "a.txt", not "a.csv" or "dir/a.txt"
//	"/tmp/*.txt"     matches "/tmp/a.txt", not "/tmp/sub/a.txt"
//	"/tmp/**"        matches "/tmp/a.txt" and "/tmp/sub/a.txt"
//	"**/secrets"     matches "etc/secrets", "a/b/secrets", "secrets"
//	"/var/**/cache"  matches "/var/cache", "/var/lib/app/cache"
//	"**"             matches everything
//
// Patterns containing more than one "**" group are unsupported and
// never match.
func Match(pattern, value string) bool {
	if pattern == "**" {
		return true
	}

	// Without "**" the stdlib matcher implements the single-segment
	// semantics exactly: "*" and "?" stop at "/".
	if !strings.Contains(pattern, "**") {
		matched, err := path.Match(pattern, value)
		if err != nil {
			return false
		}
		return matched
	}

	// Trailing "**": the prefix must match the leading segments, and
	// "**" absorbs zero or more trailing segments.
	if rest, ok := strings.CutSuffix(pattern, "/**"); ok && !strings.Contains(rest, "**") {
		if matchSegments(rest, value) {
			return true
		}
		return matchLeading(rest, value)
	}

	// Leading "**": mirror image of the trailing case.
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok && !strings.Contains(rest, "**") {
		if matchSegments(rest, value) {
			return true
		}
		return matchTrailing(rest, value)
	}

	// Interior "**": split once, match both halves independently.
	if before, after, ok := strings.Cut(pattern, "/**/"); ok &&
		!strings.Contains(before, "**") && !strings.Contains(after, "**") {
		// "**" absorbing zero segments makes the halves adjacent.
		if matchSegments(before+"/"+after, value) {
			return true
		}

		beforeDepth := strings.Count(before, "/") + 1
		afterDepth := strings.Count(after, "/") + 1
		segments := strings.Split(value, "/")
		if len(segments) < beforeDepth+1+afterDepth {
			return false
		}
		if !matchSegments(before, strings.Join(segments[:beforeDepth], "/")) {
			return false
		}
		if !matchSegments(after, strings.Join(segments[len(segments)-afterDepth:], "/")) {
			return false
		}
		// Segments absorbed by "**" must be real segments, not the
		// gaps left by consecutive slashes.
		for _, segment := range segments[beforeDepth : len(segments)-afterDepth] {
			if segment == "" {
				return false
			}
		}
		return true
	}

	// Repeated "**" groups or other unsupported shapes: deny.
	return false
}

// MatchAny reports whether value matches any of the patterns. An empty
// pattern list matches nothing; "empty means unrestricted" is a policy
// decision that belongs to the constraint layer, not the matcher.
func MatchAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if Match(pattern, value) {
			return true
		}
	}
	return false
}

// matchSegments applies path.Match semantics, treating a malformed
// pattern as a non-match.
func matchSegments(pattern, value string) bool {
	matched, err := path.Match(pattern, value)
	return err == nil && matched
}

// matchLeading reports whether the leading segments of value match
// pattern with at least one further segment left over for "**".
func matchLeading(pattern, value string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(value, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	return matchSegments(pattern, strings.Join(segments[:depth], "/"))
}

// matchTrailing reports whether the trailing segments of value match
// pattern with at least one segment before them for "**".
func matchTrailing(pattern, value string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(value, "/")
	if len(segments) <= depth {
		return false
	}
	return matchSegments(pattern, strings.Join(segments[len(segments)-depth:], "/"))
}
