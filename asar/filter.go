// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// entryMatcher holds compiled ordered rules for entry selection.
type entryMatcher struct {
	matcher *pathrules.Matcher
}

// newEntryMatcher compiles entry path rules. Empty rule set yields nil matcher.
func newEntryMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*entryMatcher, error) {
	rules = normalizeRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidRules, err)
	}

	return &entryMatcher{matcher: matcher}, nil
}

// normalizeRules normalizes rule patterns and drops empty patterns.
func normalizeRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// included reports whether entry path passes the rules.
func (m *entryMatcher) included(entry *Entry) bool {
	if m == nil || m.matcher == nil {
		return false
	}

	return m.matcher.Included(entry.Path, entry.Kind == EntryDirectory)
}

// Match returns files (in header order) included by ordered rules.
// Directories and links are never returned. Empty rules match nothing.
func (a *Archive) Match(rules []pathrules.Rule, opts pathrules.MatcherOptions) ([]Entry, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	m, err := newEntryMatcher(rules, opts)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}

	var out []Entry
	for i := range a.entries {
		e := &a.entries[i]
		if e.Kind != EntryFile || !m.included(e) {
			continue
		}

		out = append(out, e.clone())
	}

	return out, nil
}
