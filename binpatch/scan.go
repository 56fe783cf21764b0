// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package binpatch

import (
	"bytes"
	"fmt"
)

// Signature pairs the bytes to find with the bytes to write.
// Wildcards in Replacement keep the original byte.
type Signature struct {
	// Name identifies the signature in logs and reports.
	Name string `yaml:"name"`
	// Match is the original code to find; it must occur exactly once.
	Match Pattern `yaml:"match"`
	// Replacement has the same length as Match.
	Replacement Pattern `yaml:"replacement"`
	// Patched identifies a binary this signature was already applied to.
	// Empty means Replacement laid over the fixed bytes of Match.
	Patched Pattern `yaml:"patched,omitempty"`
}

// Validate checks signature shape.
func (s Signature) Validate() error {
	switch {
	case s.Match.IsZero():
		return fmt.Errorf("%w: %s: empty match", ErrInvalidSignature, s.Name)
	case s.Match.Len() != s.Replacement.Len():
		return fmt.Errorf("%w: %s: match is %d bytes, replacement is %d",
			ErrInvalidSignature, s.Name, s.Match.Len(), s.Replacement.Len())
	}

	if _, run := s.Match.longestRun(); len(run) == 0 {
		return fmt.Errorf("%w: %s: match is only wildcards", ErrInvalidSignature, s.Name)
	}

	if _, run := s.Replacement.longestRun(); len(run) == 0 {
		return fmt.Errorf("%w: %s: replacement is only wildcards", ErrInvalidSignature, s.Name)
	}

	if _, run := s.patched().longestRun(); len(run) == 0 {
		return fmt.Errorf("%w: %s: patched signature is only wildcards", ErrInvalidSignature, s.Name)
	}

	return nil
}

// patched returns the pattern used for already-patched detection: the
// explicit Patched, or what Apply leaves behind where Match is fixed.
func (s Signature) patched() Pattern {
	if !s.Patched.IsZero() {
		return s.Patched
	}
	if s.Match.Len() != s.Replacement.Len() {
		return s.Replacement
	}

	out := Pattern{
		bytes: make([]byte, s.Match.Len()),
		fixed: make([]bool, s.Match.Len()),
	}
	for i := range out.bytes {
		switch {
		case s.Replacement.fixed[i]:
			out.bytes[i], out.fixed[i] = s.Replacement.bytes[i], true
		case s.Match.fixed[i]:
			out.bytes[i], out.fixed[i] = s.Match.bytes[i], true
		}
	}

	return out
}

// FindAll returns up to limit match offsets of p in bin, limit <= 0 means all.
func FindAll(bin []byte, p Pattern, limit int) []int {
	if p.IsZero() || len(bin) < p.Len() {
		return nil
	}

	runStart, run := p.longestRun()
	if len(run) == 0 {
		return nil
	}

	var out []int
	pos := runStart
	for pos <= len(bin)-len(run) {
		idx := bytes.Index(bin[pos:], run)
		if idx < 0 {
			break
		}

		at := pos + idx - runStart
		if p.matchAt(bin, at) {
			out = append(out, at)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		pos += idx + 1
	}

	return out
}

// Locate returns the offset of the only match of p in bin.
// Zero matches and more than one match are both errors.
func Locate(bin []byte, p Pattern) (int, error) {
	matches := FindAll(bin, p, 2)
	switch len(matches) {
	case 0:
		return -1, ErrPatternNotFound
	case 1:
		return matches[0], nil
	default:
		return -1, fmt.Errorf("%w: at 0x%x and 0x%x", ErrAmbiguousPattern, matches[0], matches[1])
	}
}

// Apply returns a copy of bin with sig.Replacement written at off.
// The result always has the input length.
func Apply(bin []byte, off int, sig Signature) ([]byte, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	if off < 0 || off+sig.Replacement.Len() > len(bin) {
		return nil, fmt.Errorf("%w: 0x%x+%d in %d bytes", ErrOutOfRange, off, sig.Replacement.Len(), len(bin))
	}

	if !sig.Match.matchAt(bin, off) {
		return nil, fmt.Errorf("%w: %s does not match at 0x%x", ErrPatternNotFound, sig.Name, off)
	}

	out := bytes.Clone(bin)
	sig.Replacement.overlay(out, off)

	return out, nil
}

// Patch detects a previous application, locates the signature and applies it.
// It returns the patched copy and the offset written.
func Patch(bin []byte, sig Signature) ([]byte, int, error) {
	if err := sig.Validate(); err != nil {
		return nil, -1, err
	}

	if err := CheckPatched(bin, sig); err != nil {
		return nil, -1, err
	}

	off, err := Locate(bin, sig.Match)
	if err != nil {
		return nil, -1, fmt.Errorf("%s: %w", sig.Name, err)
	}

	out, err := Apply(bin, off, sig)
	if err != nil {
		return nil, -1, err
	}

	return out, off, nil
}

// CheckPatched returns ErrAlreadyPatched when the already-patched signature
// occurs exactly once and the original code is gone.
func CheckPatched(bin []byte, sig Signature) error {
	marks := FindAll(bin, sig.patched(), 2)
	if len(marks) != 1 {
		return nil
	}

	if len(FindAll(bin, sig.Match, 1)) != 0 {
		return nil
	}

	return fmt.Errorf("%w: %s at 0x%x", ErrAlreadyPatched, sig.Name, marks[0])
}
