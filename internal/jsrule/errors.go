// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package jsrule

import "errors"

var (
	// ErrAlreadyPatched means the script already carries the rewrite marker.
	ErrAlreadyPatched = errors.New("script already patched")
	// ErrPatternNotFound means an expected source fragment is missing, usually a launcher update.
	ErrPatternNotFound = errors.New("script fragment not found")
)
