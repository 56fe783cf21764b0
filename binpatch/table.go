// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package binpatch

import (
	"bytes"
	"debug/pe"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var defaultTableYAML []byte

// Platform values reported by DetectPlatform.
const (
	PlatformWindowsAMD64 = "windows/amd64"
	PlatformWindows386   = "windows/386"
	PlatformWindowsARM64 = "windows/arm64"
	// AnyVersion matches every launcher version.
	AnyVersion = "*"
)

// TableEntry groups signatures and anchors for one platform and launcher version.
type TableEntry struct {
	// Platform is a path.Match pattern such as "windows/*".
	Platform string `yaml:"platform"`
	// Version is a launcher version or "*".
	Version    string      `yaml:"version"`
	Signatures []Signature `yaml:"signatures,omitempty"`
	Anchors    []Anchor    `yaml:"anchors,omitempty"`
}

// Table is an ordered list of patch entries; earlier entries win.
type Table struct {
	Entries []TableEntry `yaml:"entries"`
}

// Resolution is the signature chosen for a binary and where it applies.
type Resolution struct {
	Signature Signature
	// Source is "signature" or "anchor".
	Source string
	Offset int
}

// DefaultTable returns the embedded signature table.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultTableYAML)
}

// ParseTable decodes and validates a YAML signature table.
func ParseTable(b []byte) (*Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var t Table
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return &t, nil
}

// LoadTable reads a YAML signature table from disk.
func LoadTable(filePath string) (*Table, error) {
	b, err := os.ReadFile(filePath) //nolint:gosec // caller-provided table path
	if err != nil {
		return nil, fmt.Errorf("read signature table: %w", err)
	}

	return ParseTable(b)
}

// Validate checks every entry, signature and anchor.
func (t *Table) Validate() error {
	for i, e := range t.Entries {
		if e.Platform == "" {
			return fmt.Errorf("%w: entry %d: empty platform", ErrInvalidTable, i)
		}
		if _, err := path.Match(e.Platform, ""); err != nil {
			return fmt.Errorf("%w: entry %d: platform %q: %w", ErrInvalidTable, i, e.Platform, err)
		}
		if len(e.Signatures) == 0 && len(e.Anchors) == 0 {
			return fmt.Errorf("%w: entry %d: no signatures or anchors", ErrInvalidTable, i)
		}

		for _, s := range e.Signatures {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("%w: entry %d: %w", ErrInvalidTable, i, err)
			}
		}
		for _, a := range e.Anchors {
			if err := a.Validate(); err != nil {
				return fmt.Errorf("%w: entry %d: %w", ErrInvalidTable, i, err)
			}
		}
	}

	return nil
}

// Merge returns a table with entries of t placed before entries of next.
func (t *Table) Merge(next *Table) *Table {
	out := &Table{}
	if t != nil {
		out.Entries = append(out.Entries, t.Entries...)
	}
	if next != nil {
		out.Entries = append(out.Entries, next.Entries...)
	}

	return out
}

// applies reports whether the entry targets platform and version.
func (e TableEntry) applies(platform, version string) bool {
	if ok, _ := path.Match(e.Platform, platform); !ok {
		return false
	}

	return e.Version == "" || e.Version == AnyVersion || version == "" || e.Version == version
}

// Resolve picks the first applicable signature, then the first anchor, that
// locates exactly once in bin. An already-patched binary yields ErrAlreadyPatched.
func (t *Table) Resolve(bin []byte, platform, version string) (Resolution, error) {
	var errs []error

	for _, e := range t.Entries {
		if !e.applies(platform, version) {
			continue
		}

		for _, sig := range e.Signatures {
			res, err := resolveSignature(bin, sig, "signature")
			if err == nil || errors.Is(err, ErrAlreadyPatched) {
				return res, err
			}
			errs = append(errs, err)
		}

		for _, a := range e.Anchors {
			sig, err := a.Derive(bin)
			if err != nil {
				if errors.Is(err, ErrAlreadyPatched) {
					return Resolution{Source: "anchor", Signature: Signature{Name: a.Name}, Offset: -1}, err
				}
				errs = append(errs, err)
				continue
			}

			res, err := resolveSignature(bin, sig, "anchor")
			if err == nil || errors.Is(err, ErrAlreadyPatched) {
				return res, err
			}
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return Resolution{Offset: -1}, fmt.Errorf("%w: no table entry for %s version %q", ErrPatternNotFound, platform, version)
	}

	for _, err := range errs {
		if errors.Is(err, ErrAmbiguousPattern) {
			return Resolution{Offset: -1}, err
		}
	}

	return Resolution{Offset: -1}, fmt.Errorf("%w: %w", ErrPatternNotFound, errors.Join(errs...))
}

// resolveSignature checks one signature against bin.
func resolveSignature(bin []byte, sig Signature, source string) (Resolution, error) {
	res := Resolution{Signature: sig, Source: source, Offset: -1}
	if err := CheckPatched(bin, sig); err != nil {
		return res, err
	}

	off, err := Locate(bin, sig.Match)
	if err != nil {
		return res, fmt.Errorf("%s: %w", sig.Name, err)
	}

	res.Offset = off
	return res, nil
}

// Patch resolves a signature for bin and returns the patched copy.
func (t *Table) Patch(bin []byte, platform, version string) ([]byte, Resolution, error) {
	res, err := t.Resolve(bin, platform, version)
	if err != nil {
		return nil, res, err
	}

	out, err := Apply(bin, res.Offset, res.Signature)
	if err != nil {
		return nil, res, err
	}

	return out, res, nil
}

// DetectPlatform returns the platform of a PE image, such as "windows/amd64".
func DetectPlatform(bin []byte) (string, error) {
	f, err := pe.NewFile(bytes.NewReader(bin))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotPE, err)
	}
	defer func() { _ = f.Close() }()

	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return PlatformWindowsAMD64, nil
	case pe.IMAGE_FILE_MACHINE_I386:
		return PlatformWindows386, nil
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return PlatformWindowsARM64, nil
	default:
		return "", fmt.Errorf("%w: machine 0x%x", ErrNotPE, f.Machine)
	}
}
