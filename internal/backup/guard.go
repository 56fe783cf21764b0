// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

// Package backup keeps a one-time copy of a file before it is patched and
// replaces files atomically, restoring the previous content on failure.
package backup

import (
	"context"
	_ "crypto/sha256" // registers the hash used by go-digest
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/opencontainers/go-digest"
)

// Record describes the backup kept for one target.
type Record struct {
	// OriginalPath is the patched file.
	OriginalPath string `json:"original_path" yaml:"original_path"`
	// BackupPath is the sibling copy.
	BackupPath string `json:"backup_path" yaml:"backup_path"`
	// Created is true when this run made the backup.
	Created bool `json:"created" yaml:"created"`
	// Restored is true when a failed write was rolled back.
	Restored bool `json:"restored" yaml:"restored"`
}

// Acquire copies path to its backup location unless a backup already exists.
// An existing backup is never overwritten.
func Acquire(ctx context.Context, path string, opts Options) (Record, error) {
	opts.applyDefaults()

	rec := Record{OriginalPath: path, BackupPath: opts.BackupPath(path)}
	if _, err := os.Lstat(rec.BackupPath); err == nil {
		opts.Logger.WithField("backup", rec.BackupPath).Debug("backup already exists")
		return rec, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return rec, fmt.Errorf("stat backup: %w", err)
	}

	data, mode, err := readRegular(path)
	if err != nil {
		return rec, err
	}

	if err := WriteFile(ctx, rec.BackupPath, data, mode, opts); err != nil {
		return rec, fmt.Errorf("create backup: %w", err)
	}

	rec.Created = true
	opts.Logger.WithField("backup", rec.BackupPath).Info("backup created")

	return rec, nil
}

// Guard protects writes to one file with a backup and rollback.
type Guard struct {
	opts   Options
	path   string
	record Record
}

// NewGuard creates a guard for path. No file is touched until Write.
func NewGuard(path string, opts Options) *Guard {
	opts.applyDefaults()

	return &Guard{
		path:   path,
		opts:   opts,
		record: Record{OriginalPath: path, BackupPath: opts.BackupPath(path)},
	}
}

// Write acquires the backup, then atomically replaces the file with data and
// verifies it. On failure the pre-write content is restored when the file
// changed, and the triggering error is returned.
func (g *Guard) Write(ctx context.Context, data []byte) error {
	log := g.opts.Logger.WithField("path", g.path)

	before, mode, err := readRegular(g.path)
	if err != nil {
		return err
	}
	snapshot := digest.FromBytes(before)

	rec, err := Acquire(ctx, g.path, g.opts)
	g.record.Created = rec.Created
	if err != nil {
		return err
	}

	writeErr := WriteFile(ctx, g.path, data, mode, g.opts)
	if writeErr == nil {
		writeErr = verify(g.path, digest.FromBytes(data))
	}
	if writeErr == nil {
		log.WithField("digest", digest.FromBytes(data).String()).Debug("file written")
		return nil
	}

	current, err := os.ReadFile(g.path)
	if err == nil && digest.FromBytes(current) == snapshot {
		return writeErr
	}

	log.WithError(writeErr).Warn("write failed, restoring previous content")
	if err := WriteFile(context.WithoutCancel(ctx), g.path, before, mode, g.opts); err != nil {
		return errors.Join(writeErr, fmt.Errorf("%w: %w", ErrRestore, err))
	}
	g.record.Restored = true

	return writeErr
}

// Record returns the backup record.
func (g *Guard) Record() Record {
	return g.record
}

// verify reads path back and compares its digest.
func verify(path string, want digest.Digest) error {
	got, err := os.ReadFile(path) //nolint:gosec // guarded target path
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}

	if d := digest.FromBytes(got); d != want {
		return fmt.Errorf("%w: %s has %s, want %s", ErrVerify, path, d, want)
	}

	return nil
}

// readRegular reads a regular file and its permission bits.
func readRegular(path string) ([]byte, os.FileMode, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("stat target: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // guarded target path
	if err != nil {
		return nil, 0, fmt.Errorf("read target: %w", err)
	}

	return data, fi.Mode().Perm(), nil
}
