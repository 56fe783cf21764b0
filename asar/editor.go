// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Editor accumulates entry replacements and applies them in one rebuild on Commit.
// The source archive is never modified.
type Editor struct {
	src      *Archive
	replaced map[string][]byte
}

// NewEditor creates staged editor over archive.
func NewEditor(a *Archive) *Editor {
	return &Editor{
		src:      a,
		replaced: make(map[string][]byte, 2),
	}
}

// Replace schedules replacing content of an existing packed file.
// A later Replace of the same path wins.
func (e *Editor) Replace(name string, content []byte) error {
	if e == nil || e.src == nil {
		return ErrNilArchive
	}

	info, err := e.src.findEntry(name)
	if err != nil {
		return err
	}

	switch {
	case info.Kind != EntryFile:
		return fmt.Errorf("%w: %s is a %s", ErrShape, info.Path, info.Kind)
	case info.Unpacked:
		return fmt.Errorf("%w: %w: %s", ErrShape, ErrUnpackedEntry, info.Path)
	}

	e.replaced[info.Path] = bytes.Clone(content)
	return nil
}

// Commit builds a new archive with all staged replacements applied.
func (e *Editor) Commit() (*Archive, error) {
	if e == nil || e.src == nil {
		return nil, ErrNilArchive
	}

	src := e.src
	layout := planLayout(src.entries, e.replaced)
	data := layout.build(src.data, e.replaced)

	root := src.header.clone()
	for idx, offset := range layout.offsets {
		entry := src.entries[idx]
		node, err := lookupNode(root, entry.Path)
		if err != nil {
			return nil, err
		}

		node.set(keyOffset, strconv.FormatUint(offset, 10))

		content, replaced := e.replaced[entry.Path]
		if !replaced {
			continue
		}

		node.set(keySize, json.Number(strconv.Itoa(len(content))))
		if entry.Integrity == nil {
			continue
		}

		in, err := ComputeIntegrity(content, entry.Integrity.Algorithm, entry.Integrity.BlockSize)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %w", ErrShape, entry.Path, err)
		}

		integrityNode, ok := node.child(keyIntegrity)
		if !ok {
			return nil, fmt.Errorf("%w: entry %s integrity node missing", ErrShape, entry.Path)
		}
		storeIntegrity(integrityNode, in)
	}

	rawHeader, err := encodeHeader(root)
	if err != nil {
		return nil, err
	}

	if _, err := buildPrefix(rawHeader); err != nil {
		return nil, err
	}

	out, err := newArchive(root, rawHeader, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShape, err)
	}

	if err := verifyRebuild(src, out, layout, e.replaced); err != nil {
		return nil, err
	}

	return out, nil
}

// Replace returns a new archive where the named file holds content.
func (a *Archive) Replace(name string, content []byte) (*Archive, error) {
	editor := NewEditor(a)
	if err := editor.Replace(name, content); err != nil {
		return nil, err
	}

	return editor.Commit()
}

// dataLayout is the new placement of every packed file.
type dataLayout struct {
	// offsets maps entry index to new offset.
	offsets map[int]uint64
	// items are packed files ordered by old offset.
	items []layoutItem
	// compact drops gaps and trailing bytes; set when old ranges alias.
	compact bool
}

// layoutItem is one packed file range in the source data region.
type layoutItem struct {
	path   string
	offset uint64
	size   uint64
	index  int
}

// planLayout orders packed files by their old offset. When no two ranges
// overlap the old gaps are preserved, which shifts every file after an edited
// range by the size delta. Aliased ranges force compaction so each file owns
// distinct bytes in the result.
func planLayout(entries []Entry, replaced map[string][]byte) *dataLayout {
	items := make([]layoutItem, 0, len(entries))
	for i := range entries {
		if entries[i].IsPacked() {
			items = append(items, layoutItem{
				path:   entries[i].Path,
				offset: entries[i].Offset,
				size:   entries[i].Size,
				index:  i,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].offset < items[j].offset
	})

	layout := &dataLayout{
		items:   items,
		offsets: make(map[int]uint64, len(items)),
	}

	var prevEnd uint64
	for n, it := range items {
		if n > 0 && it.size > 0 && it.offset < prevEnd {
			layout.compact = true
		}
		if it.offset+it.size > prevEnd {
			prevEnd = it.offset + it.size
		}
	}

	var cursor, next uint64
	for _, it := range items {
		if !layout.compact && it.offset > cursor {
			next += it.offset - cursor
		}

		layout.offsets[it.index] = next
		if content, ok := replaced[it.path]; ok {
			next += uint64(len(content))
		} else {
			next += it.size
		}

		if it.offset+it.size > cursor {
			cursor = it.offset + it.size
		}
	}

	return layout
}

// build writes the new data region following the planned layout.
func (l *dataLayout) build(old []byte, replaced map[string][]byte) []byte {
	var out bytes.Buffer
	out.Grow(len(old))

	var cursor uint64
	for _, it := range l.items {
		if !l.compact && it.offset > cursor {
			out.Write(old[cursor:it.offset])
		}

		if content, ok := replaced[it.path]; ok {
			out.Write(content)
		} else {
			out.Write(old[it.offset : it.offset+it.size])
		}

		if it.offset+it.size > cursor {
			cursor = it.offset + it.size
		}
	}

	if !l.compact && cursor < uint64(len(old)) {
		out.Write(old[cursor:])
	}

	return out.Bytes()
}

// lookupNode walks the header tree to the node for entryPath.
func lookupNode(root *object, entryPath string) (*object, error) {
	node := root
	for _, segment := range strings.Split(entryPath, "/") {
		files, ok := node.child(keyFiles)
		if !ok {
			return nil, fmt.Errorf("%w: %s: parent has no files object", ErrShape, entryPath)
		}

		node, ok = files.child(segment)
		if !ok {
			return nil, fmt.Errorf("%w: %s: segment %q missing", ErrShape, entryPath, segment)
		}
	}

	return node, nil
}

// verifyRebuild checks that the rebuilt archive matches the plan and that
// untouched files kept their content.
func verifyRebuild(src, out *Archive, layout *dataLayout, replaced map[string][]byte) error {
	if len(src.entries) != len(out.entries) {
		return fmt.Errorf("%w: entry count changed from %d to %d", ErrShape, len(src.entries), len(out.entries))
	}

	for idx, offset := range layout.offsets {
		before := &src.entries[idx]
		after := &out.entries[idx]
		if before.Path != after.Path || after.Offset != offset {
			return fmt.Errorf("%w: entry %s placed at %d, planned %d", ErrShape, after.Path, after.Offset, offset)
		}

		want, isReplaced := replaced[before.Path]
		if !isReplaced {
			want = src.data[before.Offset:before.end()]
		}

		if !bytes.Equal(out.data[after.Offset:after.end()], want) {
			return fmt.Errorf("%w: entry %s content mismatch after rebuild", ErrShape, after.Path)
		}
	}

	return nil
}
