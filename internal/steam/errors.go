// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package steam

import "errors"

var (
	// ErrAppNotFound means no Steam library holds an installed copy of the app.
	ErrAppNotFound = errors.New("steam app not installed")
	// ErrManifest means a library or app manifest cannot be decoded.
	ErrManifest = errors.New("invalid steam manifest")
)
