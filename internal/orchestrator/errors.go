// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package orchestrator

import "errors"

var (
	// ErrScriptNotFound means no archive entry matches the script rules.
	ErrScriptNotFound = errors.New("launcher script not found in archive")
	// ErrAmbiguousScript means more than one archive entry matches the script rules.
	ErrAmbiguousScript = errors.New("several archive entries match the launcher script rules")
	// ErrUnknownKind means a target has an unsupported kind.
	ErrUnknownKind = errors.New("unknown target kind")
)
