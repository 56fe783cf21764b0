// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Serialize returns the archive bytes: size pickle, header pickle, data region.
func (a *Archive) Serialize() []byte {
	if a == nil {
		return nil
	}

	var buf bytes.Buffer
	buf.Grow(int(prefixSize + a.HeaderSize() + uint64(len(a.data)))) //nolint:gosec // header size bounded at build time
	_, _ = a.WriteTo(&buf)

	return buf.Bytes()
}

// WriteTo streams the serialized archive to w.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	if a == nil {
		return 0, ErrNilArchive
	}

	prefix, err := buildPrefix(a.rawHeader)
	if err != nil {
		return 0, err
	}

	var written int64
	n, err := w.Write(prefix)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("write header pickle: %w", err)
	}

	n, err = w.Write(a.data)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("write data region: %w", err)
	}

	return written, nil
}

// HeaderSize returns the header pickle size stored in the size prefix.
func (a *Archive) HeaderSize() uint64 {
	if a == nil {
		return 0
	}

	return alignPickle(uint64(len(a.rawHeader))+pickleFieldSize) + pickleFieldSize
}

// DataOffset returns the absolute file offset of the data region.
func (a *Archive) DataOffset() uint64 {
	return prefixSize + a.HeaderSize()
}

// buildPrefix encodes size pickle and header pickle for header JSON.
func buildPrefix(rawHeader []byte) ([]byte, error) {
	jsonLen := uint64(len(rawHeader))
	payloadSize := alignPickle(jsonLen + pickleFieldSize)
	headerSize := payloadSize + pickleFieldSize
	if headerSize > maxHeaderSize {
		return nil, fmt.Errorf("%w: header pickle size %d exceeds 4 GiB", ErrShape, headerSize)
	}

	out := make([]byte, prefixSize+headerSize)
	binary.LittleEndian.PutUint32(out[0:4], pickleFieldSize)
	binary.LittleEndian.PutUint32(out[4:8], uint32(headerSize))   //nolint:gosec // checked above
	binary.LittleEndian.PutUint32(out[8:12], uint32(payloadSize)) //nolint:gosec // checked above
	binary.LittleEndian.PutUint32(out[12:16], uint32(jsonLen))    //nolint:gosec // checked above
	copy(out[16:], rawHeader)

	return out, nil
}
