// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package backup

import "errors"

var (
	// ErrVerify means the file read back after a write differs from what was written.
	ErrVerify = errors.New("written file does not match content")
	// ErrRestore means restoring the snapshot after a failed write also failed.
	ErrRestore = errors.New("restore after failed write")
	// ErrNotRegular means the target is not a regular file.
	ErrNotRegular = errors.New("not a regular file")
)
