// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package binpatch

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// wildcardToken marks a byte that matches anything (or is kept on replace).
const wildcardToken = "??"

// Pattern is a byte sequence where some positions are wildcards.
type Pattern struct {
	bytes []byte
	// fixed[i] is false for wildcard positions.
	fixed []bool
}

// ParsePattern parses space separated hex bytes, "??" for wildcards:
// "48 8D 05 ?? ?? ?? ??".
func ParsePattern(text string) (Pattern, error) {
	fields := strings.Fields(text)
	p := Pattern{
		bytes: make([]byte, 0, len(fields)),
		fixed: make([]bool, 0, len(fields)),
	}

	for _, f := range fields {
		if f == wildcardToken || f == "?" {
			p.bytes = append(p.bytes, 0)
			p.fixed = append(p.fixed, false)
			continue
		}

		b, err := hex.DecodeString(f)
		if err != nil || len(b) != 1 {
			return Pattern{}, fmt.Errorf("%w: token %q", ErrInvalidPattern, f)
		}

		p.bytes = append(p.bytes, b[0])
		p.fixed = append(p.fixed, true)
	}

	return p, nil
}

// MustParsePattern is ParsePattern that panics on error.
func MustParsePattern(text string) Pattern {
	p, err := ParsePattern(text)
	if err != nil {
		panic(err)
	}

	return p
}

// Literal returns pattern without wildcards.
func Literal(b []byte) Pattern {
	fixed := make([]bool, len(b))
	for i := range fixed {
		fixed[i] = true
	}

	return Pattern{bytes: bytes.Clone(b), fixed: fixed}
}

// Len returns pattern length in bytes.
func (p Pattern) Len() int {
	return len(p.bytes)
}

// IsZero reports whether pattern is empty.
func (p Pattern) IsZero() bool {
	return len(p.bytes) == 0
}

// String formats pattern as upper-case hex with "??" wildcards.
func (p Pattern) String() string {
	var sb strings.Builder
	for i := range p.bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}

		if !p.fixed[i] {
			sb.WriteString(wildcardToken)
			continue
		}

		fmt.Fprintf(&sb, "%02X", p.bytes[i])
	}

	return sb.String()
}

// UnmarshalYAML decodes pattern from its hex text form.
func (p *Pattern) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}

	parsed, err := ParsePattern(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*p = parsed
	return nil
}

// MarshalYAML encodes pattern as hex text.
func (p Pattern) MarshalYAML() (any, error) {
	return p.String(), nil
}

// matchAt reports whether pattern matches b at off.
func (p Pattern) matchAt(b []byte, off int) bool {
	if off < 0 || off+len(p.bytes) > len(b) {
		return false
	}

	for i := range p.bytes {
		if p.fixed[i] && b[off+i] != p.bytes[i] {
			return false
		}
	}

	return true
}

// longestRun returns the longest wildcard-free run used to seed scanning.
func (p Pattern) longestRun() (start int, run []byte) {
	bestStart, bestLen := 0, 0
	for i := 0; i < len(p.bytes); {
		if !p.fixed[i] {
			i++
			continue
		}

		j := i
		for j < len(p.bytes) && p.fixed[j] {
			j++
		}

		if j-i > bestLen {
			bestStart, bestLen = i, j-i
		}
		i = j
	}

	return bestStart, p.bytes[bestStart : bestStart+bestLen]
}

// overlay writes fixed bytes of p over dst starting at off.
func (p Pattern) overlay(dst []byte, off int) {
	for i := range p.bytes {
		if p.fixed[i] {
			dst[off+i] = p.bytes[i]
		}
	}
}
