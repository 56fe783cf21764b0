// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts a virtual path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, `/`)
	p = strings.TrimPrefix(p, "./")
	return p
}

// normalizeEntryPath converts input path to canonical lookup form.
func normalizeEntryPath(raw string) (string, error) {
	normalized := NormalizePath(raw)
	if normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	return normalized, nil
}

// validateEntryName rejects header names that cannot form a virtual path segment.
func validateEntryName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: entry name %q", ErrFormat, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: entry name %q contains a separator", ErrFormat, name)
	case strings.IndexByte(name, 0) >= 0:
		return fmt.Errorf("%w: entry name %q contains NUL", ErrFormat, name)
	}

	return nil
}

// joinEntryPath appends one header segment to a parent path.
func joinEntryPath(parent, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}
