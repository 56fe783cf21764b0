// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
)

// Archive is an immutable parsed ASAR archive: ordered header tree plus data region.
// Accessors return copies; edits produce a new Archive.
type Archive struct {
	// header is the ordered header tree; never mutated after construction.
	header *object
	// index maps normalized path to position in entries.
	index map[string]int
	// rawHeader is header JSON exactly as it is serialized.
	rawHeader []byte
	// data is the data region following the header pickle.
	data []byte
	// entries are header nodes in depth-first header order.
	entries []Entry
}

// Parse decodes an archive from its full byte content.
// The data region is copied, so later changes to b do not affect the result.
func Parse(b []byte) (*Archive, error) {
	if len(b) < minArchiveSize {
		return nil, fmt.Errorf("%w: short prefix (%d bytes)", ErrFormat, len(b))
	}

	if n := binary.LittleEndian.Uint32(b[0:4]); n != pickleFieldSize {
		return nil, fmt.Errorf("%w: size pickle payload is %d, want %d", ErrFormat, n, pickleFieldSize)
	}

	headerSize := uint64(binary.LittleEndian.Uint32(b[4:8]))
	if headerSize < 2*pickleFieldSize {
		return nil, fmt.Errorf("%w: header pickle size %d is too small", ErrFormat, headerSize)
	}
	if prefixSize+headerSize > uint64(len(b)) {
		return nil, fmt.Errorf("%w: header pickle size %d exceeds file size %d", ErrFormat, headerSize, len(b))
	}

	pickle := b[prefixSize : prefixSize+headerSize]
	payloadSize := uint64(binary.LittleEndian.Uint32(pickle[0:4]))
	if payloadSize+pickleFieldSize != headerSize {
		return nil, fmt.Errorf("%w: header payload size %d does not match pickle size %d", ErrFormat, payloadSize, headerSize)
	}

	jsonLen := uint64(binary.LittleEndian.Uint32(pickle[4:8]))
	if alignPickle(jsonLen+pickleFieldSize) != payloadSize {
		return nil, fmt.Errorf("%w: header string length %d does not match payload size %d", ErrFormat, jsonLen, payloadSize)
	}

	raw := pickle[2*pickleFieldSize : 2*pickleFieldSize+jsonLen]
	padding := pickle[2*pickleFieldSize+jsonLen:]
	if bytes.IndexFunc(padding, func(r rune) bool { return r != 0 }) >= 0 {
		return nil, fmt.Errorf("%w: non-zero header padding", ErrFormat)
	}

	root, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}

	return newArchive(root, bytes.Clone(raw), bytes.Clone(b[prefixSize+headerSize:]))
}

// newArchive derives entries from the header tree and validates packed ranges.
func newArchive(root *object, rawHeader []byte, data []byte) (*Archive, error) {
	files, ok := root.child(keyFiles)
	if !ok {
		return nil, fmt.Errorf("%w: header root has no files object", ErrFormat)
	}

	a := &Archive{
		header:    root,
		rawHeader: rawHeader,
		data:      data,
		entries:   make([]Entry, 0, estimateEntryCapacity(len(rawHeader))),
	}

	if err := a.collectEntries(files, ""); err != nil {
		return nil, err
	}

	if err := validateRanges(a.entries, uint64(len(data))); err != nil {
		return nil, err
	}

	a.index = make(map[string]int, len(a.entries))
	for i := range a.entries {
		a.index[a.entries[i].Path] = i
	}

	return a, nil
}

// collectEntries walks one directory node depth-first in key order.
func (a *Archive) collectEntries(files *object, parent string) error {
	for _, name := range files.keys {
		if err := validateEntryName(name); err != nil {
			return err
		}

		entryPath := joinEntryPath(parent, name)
		node, ok := files.values[name].(*object)
		if !ok {
			return fmt.Errorf("%w: entry %s is not an object", ErrFormat, entryPath)
		}

		entry, err := parseEntryNode(entryPath, node)
		if err != nil {
			return err
		}

		a.entries = append(a.entries, entry)

		if entry.Kind == EntryDirectory {
			children, _ := node.child(keyFiles)
			if err := a.collectEntries(children, entryPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// parseEntryNode decodes one header node into its tagged Entry value.
func parseEntryNode(entryPath string, node *object) (Entry, error) {
	entry := Entry{Path: entryPath}

	if v, ok := node.get(keyFiles); ok {
		if _, ok := v.(*object); !ok {
			return entry, fmt.Errorf("%w: entry %s files is not an object", ErrFormat, entryPath)
		}

		entry.Kind = EntryDirectory
		return entry, nil
	}

	if v, ok := node.get(keyLink); ok {
		link, ok := v.(string)
		if !ok {
			return entry, fmt.Errorf("%w: entry %s link is not a string", ErrFormat, entryPath)
		}

		entry.Kind = EntryLink
		entry.Link = link
		return entry, nil
	}

	v, ok := node.get(keySize)
	if !ok {
		return entry, fmt.Errorf("%w: entry %s is neither file, directory nor link", ErrFormat, entryPath)
	}

	entry.Kind = EntryFile
	size, err := parseUintValue(v)
	if err != nil {
		return entry, fmt.Errorf("%w: entry %s size: %w", ErrFormat, entryPath, err)
	}
	entry.Size = size

	entry.Unpacked, err = parseBoolField(node, keyUnpacked)
	if err != nil {
		return entry, fmt.Errorf("%w: entry %s: %w", ErrFormat, entryPath, err)
	}

	entry.Executable, err = parseBoolField(node, keyExecutable)
	if err != nil {
		return entry, fmt.Errorf("%w: entry %s: %w", ErrFormat, entryPath, err)
	}

	if ov, ok := node.get(keyOffset); ok {
		offset, err := parseUintValue(ov)
		if err != nil {
			return entry, fmt.Errorf("%w: entry %s offset: %w", ErrFormat, entryPath, err)
		}
		entry.Offset = offset
	} else if !entry.Unpacked {
		return entry, fmt.Errorf("%w: entry %s has no offset", ErrFormat, entryPath)
	}

	if iv, ok := node.get(keyIntegrity); ok {
		in, ok := iv.(*object)
		if !ok {
			return entry, fmt.Errorf("%w: entry %s integrity is not an object", ErrFormat, entryPath)
		}

		entry.Integrity, err = parseIntegrity(entryPath, in)
		if err != nil {
			return entry, err
		}
	}

	return entry, nil
}

// parseUintValue accepts decimal strings (offsets) and JSON numbers (sizes).
func parseUintValue(v any) (uint64, error) {
	var text string
	switch t := v.(type) {
	case string:
		text = t
	case json.Number:
		text = t.String()
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}

	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a decimal integer: %q", text)
	}

	return n, nil
}

// parseBoolField reads optional boolean field.
func parseBoolField(node *object, key string) (bool, error) {
	v, ok := node.get(key)
	if !ok {
		return false, nil
	}

	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s is not a boolean", key)
	}

	return b, nil
}

// validateRanges checks that every packed file lies within the data region.
// Overlapping ranges are tolerated on read.
func validateRanges(entries []Entry, dataSize uint64) error {
	for i := range entries {
		e := &entries[i]
		if !e.IsPacked() {
			continue
		}

		end := e.end()
		if end < e.Offset || end > dataSize {
			return fmt.Errorf("%w: entry %s range [%d, %d) outside data region of %d bytes",
				ErrFormat, e.Path, e.Offset, end, dataSize)
		}
	}

	return nil
}

// estimateEntryCapacity returns a conservative initial capacity for parsed entry metadata.
func estimateEntryCapacity(headerBytes int) int {
	const (
		minCap = 16
		maxCap = 8192
		// typical compact node is name + size + offset, sometimes integrity
		avgEntryBytes = 64
	)

	estimated := headerBytes / avgEntryBytes
	if estimated < minCap {
		return minCap
	}
	if estimated > maxCap {
		return maxCap
	}

	return estimated
}

// alignPickle rounds n up to pickle alignment.
func alignPickle(n uint64) uint64 {
	return (n + pickleAlign - 1) &^ (pickleAlign - 1)
}
