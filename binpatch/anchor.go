// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package binpatch

import (
	"bytes"
	"debug/pe"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Anchor derivation limits.
const (
	defaultWindow   = 16
	maxWindow       = 64
	functionAlign   = 16
	maxFunctionSpan = 64 * 1024
	int3            = 0xCC
	opRet           = 0xC3
)

// defaultStub is "xor eax, eax; ret".
var defaultStub = []byte{0x31, 0xC0, 0xC3}

// Anchor describes how to derive a Signature from a PE image: find a unique
// string, the first instruction addressing it (RIP-relative operand or
// absolute immediate), and the function holding that instruction. The function entry is then overwritten with Stub.
type Anchor struct {
	// Name identifies the anchor in logs and reports.
	Name string `yaml:"name"`
	// String is the unique text referenced by the target function.
	String string `yaml:"string"`
	// Stub replaces the function entry; default "31 C0 C3".
	Stub Pattern `yaml:"stub,omitempty"`
	// Window is the initial match length, extended up to 64 bytes until unique.
	Window int `yaml:"window,omitempty"`
}

// Validate checks anchor shape.
func (a Anchor) Validate() error {
	switch {
	case a.String == "":
		return fmt.Errorf("%w: anchor %s: empty string", ErrInvalidSignature, a.Name)
	case a.Window < 0 || a.Window > maxWindow:
		return fmt.Errorf("%w: anchor %s: window %d outside [0, %d]", ErrInvalidSignature, a.Name, a.Window, maxWindow)
	case a.Stub.Len() > maxWindow:
		return fmt.Errorf("%w: anchor %s: stub longer than %d bytes", ErrInvalidSignature, a.Name, maxWindow)
	}

	for i := range a.Stub.fixed {
		if !a.Stub.fixed[i] {
			return fmt.Errorf("%w: anchor %s: stub has wildcards", ErrInvalidSignature, a.Name)
		}
	}

	return nil
}

// stub returns configured stub bytes.
func (a Anchor) stub() []byte {
	if a.Stub.IsZero() {
		return defaultStub
	}

	return a.Stub.bytes
}

// window returns initial match length, never shorter than the stub.
func (a Anchor) window() int {
	w := a.Window
	if w == 0 {
		w = defaultWindow
	}
	if n := len(a.stub()); w < n {
		w = n
	}

	return w
}

// image is the subset of a PE image used for reference search.
type image struct {
	sections  []*pe.Section
	imageBase uint64
	is64      bool
}

// openImage reads PE headers from bin.
func openImage(bin []byte) (*image, error) {
	f, err := pe.NewFile(bytes.NewReader(bin))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotPE, err)
	}
	defer func() { _ = f.Close() }()

	img := &image{sections: f.Sections}
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		img.imageBase = oh.ImageBase
		img.is64 = true
	case *pe.OptionalHeader32:
		img.imageBase = uint64(oh.ImageBase)
	default:
		return nil, fmt.Errorf("%w: missing optional header", ErrNotPE)
	}

	return img, nil
}

// rvaOf maps a file offset to its relative virtual address.
func (img *image) rvaOf(off int) (uint32, bool) {
	for _, s := range img.sections {
		start := int(s.Offset)
		if off >= start && off < start+int(s.Size) {
			return s.VirtualAddress + uint32(off-start), true //nolint:gosec // bounded by section size
		}
	}

	return 0, false
}

// sectionBytes returns raw section data when it lies inside bin.
func sectionBytes(bin []byte, s *pe.Section) ([]byte, bool) {
	start, size := int(s.Offset), int(s.Size)
	if size == 0 || start < 0 || start+size > len(bin) {
		return nil, false
	}

	return bin[start : start+size], true
}

// findReference returns the section offset of the first instruction in an
// executable section that loads the address at rva.
func (img *image) findReference(bin []byte, rva uint32) (section *pe.Section, pos int, ok bool) {
	mode := 32
	if img.is64 {
		mode = 64
	}

	for _, s := range img.sections {
		if s.Characteristics&pe.IMAGE_SCN_MEM_EXECUTE == 0 {
			continue
		}

		code, ok := sectionBytes(bin, s)
		if !ok {
			continue
		}

		if at := img.scanReferences(code, s.VirtualAddress, mode, rva); at >= 0 {
			return s, at, true
		}
	}

	return nil, -1, false
}

// scanReferences sweeps code linearly and returns the offset of the first
// instruction with a RIP-relative memory operand or an immediate that
// resolves to rva. Undecodable bytes are skipped one at a time.
func (img *image) scanReferences(code []byte, sectionRVA uint32, mode int, rva uint32) int {
	va := img.imageBase + uint64(rva)

	for i := 0; i < len(code); {
		inst, err := x86asm.Decode(code[i:], mode)
		if err != nil || inst.Len == 0 {
			i++
			continue
		}

		next := int64(sectionRVA) + int64(i) + int64(inst.Len)
		for _, arg := range inst.Args {
			switch v := arg.(type) {
			case x86asm.Mem:
				if v.Base == x86asm.RIP && next+v.Disp == int64(rva) {
					return i
				}
			case x86asm.Imm:
				if mode == 32 && uint32(v) == uint32(va) { //nolint:gosec // 32-bit address
					return i
				}
				if mode == 64 && uint64(v) == va { //nolint:gosec // 64-bit address
					return i
				}
			}
		}

		i += inst.Len
	}

	return -1
}

// functionStart walks back from pos to an aligned address preceded by int3
// padding, or the section start. Padding is two int3 bytes, or ret and one
// int3; a lone int3 may be the tail of an immediate.
func functionStart(code []byte, pos int) (int, bool) {
	limit := pos - maxFunctionSpan
	if limit < 0 {
		limit = 0
	}

	for c := pos &^ (functionAlign - 1); c >= limit; c -= functionAlign {
		if c == 0 {
			return c, true
		}
		if c >= 2 && code[c-1] == int3 && (code[c-2] == int3 || code[c-2] == opRet) {
			return c, true
		}
	}

	return -1, false
}

// Derive builds a Signature for bin. Bins whose function entry already holds
// the stub report ErrAlreadyPatched.
func (a Anchor) Derive(bin []byte) (Signature, error) {
	if err := a.Validate(); err != nil {
		return Signature{}, err
	}

	img, err := openImage(bin)
	if err != nil {
		return Signature{}, err
	}

	strOff, err := Locate(bin, Literal([]byte(a.String)))
	if err != nil {
		return Signature{}, fmt.Errorf("anchor %s string: %w", a.Name, err)
	}

	rva, ok := img.rvaOf(strOff)
	if !ok {
		return Signature{}, fmt.Errorf("%w: anchor %s string at 0x%x is outside sections", ErrNoReference, a.Name, strOff)
	}

	section, refPos, ok := img.findReference(bin, rva)
	if !ok {
		return Signature{}, fmt.Errorf("anchor %s: %w", a.Name, ErrNoReference)
	}

	code, _ := sectionBytes(bin, section)
	start, ok := functionStart(code, refPos)
	if !ok {
		return Signature{}, fmt.Errorf("anchor %s: %w", a.Name, ErrFunctionStart)
	}

	stub := a.stub()
	if bytes.HasPrefix(code[start:], stub) {
		return Signature{}, fmt.Errorf("%w: anchor %s at 0x%x", ErrAlreadyPatched, a.Name, int(section.Offset)+start)
	}
	if refPos-start < len(stub) {
		return Signature{}, fmt.Errorf("anchor %s: %w: reference inside entry stub", a.Name, ErrFunctionStart)
	}

	fileStart := int(section.Offset) + start
	match, err := uniqueWindow(bin, fileStart, a.window(), int(section.Offset)+len(code))
	if err != nil {
		return Signature{}, fmt.Errorf("anchor %s: %w", a.Name, err)
	}

	return buildStubSignature(a.Name, match, stub), nil
}

// uniqueWindow returns the shortest literal window at off, doubling from
// initial up to maxWindow, that occurs once in bin.
func uniqueWindow(bin []byte, off, initial, end int) ([]byte, error) {
	var lastErr error
	for w := initial; w <= maxWindow; w *= 2 {
		if off+w > end {
			break
		}

		candidate := bin[off : off+w]
		_, err := Locate(bin, Literal(candidate))
		if err == nil {
			return bytes.Clone(candidate), nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ErrOutOfRange
	}

	return nil, lastErr
}

// buildStubSignature overwrites the entry with stub and keeps remaining bytes.
func buildStubSignature(name string, match, stub []byte) Signature {
	replacement := Pattern{
		bytes: make([]byte, len(match)),
		fixed: make([]bool, len(match)),
	}
	copy(replacement.bytes, stub)
	for i := range stub {
		replacement.fixed[i] = true
	}

	patched := bytes.Clone(match)
	copy(patched, stub)

	return Signature{
		Name:        name,
		Match:       Literal(match),
		Replacement: replacement,
		Patched:     Literal(patched),
	}
}
