// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

// Internal binary layout and format limits.
const (
	prefixSize      = 8  // size pickle: u32 payload size (always 4) + u32 header pickle size
	pickleFieldSize = 4  // u32 field width inside pickles
	pickleAlign     = 4  // pickle payload alignment
	minArchiveSize  = 16 // size pickle + header pickle length fields
	maxHeaderSize   = 1<<32 - 1
)

// Header JSON keys.
const (
	keyFiles      = "files"
	keySize       = "size"
	keyOffset     = "offset"
	keyUnpacked   = "unpacked"
	keyExecutable = "executable"
	keyLink       = "link"
	keyIntegrity  = "integrity"
	keyAlgorithm  = "algorithm"
	keyHash       = "hash"
	keyBlockSize  = "blockSize"
	keyBlocks     = "blocks"
)

// Integrity defaults used by Electron's asar packer.
const (
	IntegrityAlgorithmSHA256 = "SHA256"
	DefaultIntegrityBlock    = 4 * 1024 * 1024
)

// EntryKind distinguishes header nodes.
type EntryKind uint8

// Entry kinds.
const (
	// EntryFile is a regular file with a byte range (or an unpacked file).
	EntryFile EntryKind = iota + 1
	// EntryDirectory is a node holding child entries.
	EntryDirectory
	// EntryLink is a symbolic link to another path.
	EntryLink
)

// String returns a short kind name.
func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryDirectory:
		return "directory"
	case EntryLink:
		return "link"
	default:
		return "unknown"
	}
}

// Integrity is the optional per-file digest written by the asar packer.
type Integrity struct {
	// Algorithm is the digest algorithm name, "SHA256" for all known archives.
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	// Hash is hex digest of the full file content.
	Hash string `json:"hash" yaml:"hash"`
	// BlockSize is the block length used for Blocks.
	BlockSize int64 `json:"block_size" yaml:"block_size"`
	// Blocks are hex digests of consecutive BlockSize chunks.
	Blocks []string `json:"blocks,omitempty" yaml:"blocks,omitempty"`
}

// Entry describes a single parsed header node.
type Entry struct {
	// Integrity is nil when the header carries no digest for the entry.
	Integrity *Integrity `json:"integrity,omitempty" yaml:"integrity,omitempty"`
	// Path is the slash-separated virtual path.
	Path string `json:"path" yaml:"path"`
	// Link is the link target for EntryLink.
	Link string `json:"link,omitempty" yaml:"link,omitempty"`
	// Offset is the byte offset relative to the data region start.
	Offset uint64 `json:"offset" yaml:"offset"`
	// Size is the content length in bytes.
	Size uint64 `json:"size" yaml:"size"`
	// Kind is the node variant.
	Kind EntryKind `json:"kind" yaml:"kind"`
	// Executable marks files with the executable bit.
	Executable bool `json:"executable,omitempty" yaml:"executable,omitempty"`
	// Unpacked marks files stored in the sibling app.asar.unpacked directory.
	Unpacked bool `json:"unpacked,omitempty" yaml:"unpacked,omitempty"`
}

// IsPacked reports whether the entry owns a byte range in the data region.
func (e *Entry) IsPacked() bool {
	return e.Kind == EntryFile && !e.Unpacked
}

// end returns the exclusive end of the packed range.
func (e *Entry) end() uint64 {
	return e.Offset + e.Size
}

// clone returns a deep copy of entry.
func (e Entry) clone() Entry {
	if e.Integrity != nil {
		in := *e.Integrity
		in.Blocks = append([]string(nil), e.Integrity.Blocks...)
		e.Integrity = &in
	}

	return e
}
