// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

//go:build windows

package backup

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// isSharingViolation reports whether err means another process holds the file.
// Access denied is included: rename over an open image fails with it.
func isSharingViolation(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	switch errno {
	case windows.ERROR_SHARING_VIOLATION, windows.ERROR_LOCK_VIOLATION, windows.ERROR_ACCESS_DENIED:
		return true
	default:
		return false
	}
}
