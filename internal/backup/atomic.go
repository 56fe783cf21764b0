// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// WriteFile atomically replaces path with data: a temporary sibling is
// written, synced and renamed over path. Writes blocked by another process
// are retried with exponential backoff.
func WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode, opts Options) error {
	opts.applyDefaults()

	op := func() error {
		err := writeOnce(path, data, perm, opts.rename)
		if err != nil && !isSharingViolation(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		opts.Logger.WithFields(logrus.Fields{
			"path":  path,
			"retry": wait.String(),
		}).WithError(err).Warn("file is in use, retrying")
	}

	return backoff.RetryNotify(op, newBackOff(ctx, opts), notify)
}

// newBackOff builds the bounded exponential policy.
func newBackOff(ctx context.Context, opts Options) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.InitialInterval
	exp.MaxInterval = opts.MaxInterval
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, opts.MaxRetries), ctx)
}

// writeOnce performs one temp-file write and rename.
func writeOnce(path string, data []byte, perm os.FileMode, rename func(string, string) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}
