// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import "errors"

// Sentinel errors for ASAR operations. Use errors.Is in callers.
var (
	// ErrFormat means the archive prefix, header pickle or header tree is malformed.
	ErrFormat = errors.New("invalid ASAR archive")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrShape means the header cannot be rebuilt consistently after an edit.
	ErrShape = errors.New("archive header cannot be rebuilt")
	// ErrNotAFile means the entry is a directory or a link.
	ErrNotAFile = errors.New("entry is not a file")
	// ErrUnpackedEntry means the entry content lives outside the archive in app.asar.unpacked.
	ErrUnpackedEntry = errors.New("entry is stored unpacked")
	// ErrInvalidEntryPath means a path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrInvalidRules means one or more entry match rules are invalid.
	ErrInvalidRules = errors.New("invalid entry match rules")
	// ErrUnsupportedIntegrity means the integrity algorithm cannot be recomputed.
	ErrUnsupportedIntegrity = errors.New("unsupported integrity algorithm")
	// ErrNilArchive means the archive is nil.
	ErrNilArchive = errors.New("archive is nil")
)
