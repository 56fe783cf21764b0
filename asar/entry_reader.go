// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import (
	"bytes"
	"fmt"

	"github.com/opencontainers/go-digest"
)

// Entries returns a copy of parsed entries in header order.
func (a *Archive) Entries() []Entry {
	if a == nil {
		return nil
	}

	entries := make([]Entry, len(a.entries))
	for i := range a.entries {
		entries[i] = a.entries[i].clone()
	}

	return entries
}

// Entry returns metadata for the named entry.
func (a *Archive) Entry(name string) (Entry, error) {
	info, err := a.findEntry(name)
	if err != nil {
		return Entry{}, err
	}

	return info.clone(), nil
}

// Content returns a copy of the named file content.
func (a *Archive) Content(name string) ([]byte, error) {
	info, err := a.findEntry(name)
	if err != nil {
		return nil, err
	}

	if info.Kind != EntryFile {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotAFile, info.Path, info.Kind)
	}
	if info.Unpacked {
		return nil, fmt.Errorf("%w: %s", ErrUnpackedEntry, info.Path)
	}

	return bytes.Clone(a.data[info.Offset:info.end()]), nil
}

// Header returns a copy of the header JSON as serialized.
func (a *Archive) Header() []byte {
	if a == nil {
		return nil
	}

	return bytes.Clone(a.rawHeader)
}

// HeaderDigest returns SHA256 of the header JSON, the value Electron records
// for archive header integrity.
func (a *Archive) HeaderDigest() digest.Digest {
	if a == nil {
		return ""
	}

	return digest.SHA256.FromBytes(a.rawHeader)
}

// findEntry resolves one entry by normalized path.
func (a *Archive) findEntry(name string) (*Entry, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	lookup, err := normalizeEntryPath(name)
	if err != nil {
		return nil, err
	}

	idx, ok := a.index[lookup]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return &a.entries[idx], nil
}
