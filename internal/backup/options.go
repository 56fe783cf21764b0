// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package backup

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/woozymasta/asarpatch/internal/logging"
)

// Defaults for Options.
const (
	DefaultSuffix          = ".bak"
	DefaultMaxRetries      = 5
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
)

// Options controls backup naming and write retries.
type Options struct {
	// Logger receives retry and restore entries; nil discards.
	Logger logrus.FieldLogger
	// rename replaces os.Rename in tests.
	rename func(oldPath, newPath string) error
	// Suffix is appended to the target path for the backup copy.
	Suffix string
	// MaxRetries bounds retries of a write blocked by another process.
	MaxRetries uint64
	// InitialInterval is the first retry delay; it grows exponentially.
	InitialInterval time.Duration
	// MaxInterval caps a single retry delay.
	MaxInterval time.Duration
}

// applyDefaults fills zero values.
func (o *Options) applyDefaults() {
	o.Logger = logging.OrDiscard(o.Logger)
	if o.rename == nil {
		o.rename = os.Rename
	}
	if o.Suffix == "" {
		o.Suffix = DefaultSuffix
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = DefaultInitialInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = DefaultMaxInterval
	}
}

// BackupPath returns the backup location for path.
func (o Options) BackupPath(path string) string {
	o.applyDefaults()
	return path + o.Suffix
}
