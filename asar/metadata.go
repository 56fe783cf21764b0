// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import (
	"fmt"
	"os"
)

// ReadFile loads and parses an archive from disk.
func ReadFile(path string) (*Archive, error) {
	b, err := os.ReadFile(path) //nolint:gosec // caller-provided archive path
	if err != nil {
		return nil, fmt.Errorf("open ASAR: %w", err)
	}

	return Parse(b)
}

// ListEntries opens an archive and returns entry metadata in header order.
func ListEntries(path string) ([]Entry, error) {
	a, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	return a.Entries(), nil
}
