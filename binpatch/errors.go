// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package binpatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for binary patching. Use errors.Is in callers.
var (
	// ErrPatternNotFound means a signature has no match; usually a different launcher build.
	ErrPatternNotFound = errors.New("pattern not found")
	// ErrAmbiguousPattern means a signature matched more than once and must not be applied.
	ErrAmbiguousPattern = fmt.Errorf("%w: ambiguous match", ErrPatternNotFound)
	// ErrAlreadyPatched means the already-patched signature was found.
	ErrAlreadyPatched = errors.New("binary already patched")
	// ErrInvalidPattern means hex pattern text is malformed.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrInvalidSignature means match and replacement do not form a valid patch.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidTable means a signature table cannot be decoded or validated.
	ErrInvalidTable = errors.New("invalid signature table")
	// ErrOutOfRange means the patch offset does not fit the binary.
	ErrOutOfRange = errors.New("patch offset out of range")
	// ErrNotPE means the binary is not a readable PE image.
	ErrNotPE = errors.New("not a PE image")
	// ErrNoReference means no code references the anchor string.
	ErrNoReference = fmt.Errorf("%w: no code reference to anchor", ErrPatternNotFound)
	// ErrFunctionStart means the enclosing function start cannot be determined.
	ErrFunctionStart = fmt.Errorf("%w: function start not found", ErrPatternNotFound)
)
