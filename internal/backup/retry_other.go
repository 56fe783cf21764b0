// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

//go:build !windows

package backup

import (
	"errors"
	"syscall"
)

// isSharingViolation reports whether err means another process holds the file.
func isSharingViolation(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY)
}
