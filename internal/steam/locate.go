// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

// Package steam finds an app's install directory from Steam library manifests.
package steam

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/woozymasta/asarpatch/internal/logging"
)

// EnvSteamPath overrides Steam root discovery.
const EnvSteamPath = "STEAM_PATH"

// Options controls discovery.
type Options struct {
	// Logger receives search entries; nil discards.
	Logger logrus.FieldLogger
	// Roots are Steam installation roots; empty means DefaultRoots.
	Roots []string
	// AppID is the Steam application id.
	AppID int
}

// Locate returns the install directory of opts.AppID:
// <library>/steamapps/common/<installdir>.
func Locate(opts Options) (string, error) {
	log := logging.OrDiscard(opts.Logger)
	roots := opts.Roots
	if len(roots) == 0 {
		roots = DefaultRoots()
	}

	seen := make(map[string]struct{})
	for _, root := range roots {
		libs, err := LibraryFolders(root)
		if err != nil {
			log.WithField("root", root).WithError(err).Debug("skip steam root")
			continue
		}

		for _, lib := range libs {
			key := filepath.Clean(lib)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			dir, err := AppInstallDir(lib, opts.AppID)
			if err == nil {
				log.WithFields(logrus.Fields{"library": lib, "dir": dir}).Info("found install through steam")
				return dir, nil
			}
			log.WithField("library", lib).WithError(err).Debug("app not in library")
		}
	}

	return "", fmt.Errorf("%w: app %d", ErrAppNotFound, opts.AppID)
}

// LibraryFolders returns library paths listed in steamapps/libraryfolders.vdf
// of a Steam root. The root itself is always the first library.
func LibraryFolders(root string) ([]string, error) {
	manifest := filepath.Join(root, "steamapps", "libraryfolders.vdf")
	doc, err := parseFile(manifest)
	if err != nil {
		return nil, err
	}

	libs := []string{root}
	folders := doc.Child("libraryfolders")
	if folders == nil {
		return nil, fmt.Errorf("%w: %s has no libraryfolders", ErrManifest, manifest)
	}

	for _, entry := range folders.Children {
		if _, err := strconv.Atoi(entry.Key); err != nil {
			continue
		}

		switch {
		case entry.Value != "":
			libs = append(libs, entry.Value)
		case entry.Child("path") != nil:
			libs = append(libs, entry.Child("path").Value)
		}
	}

	return libs, nil
}

// AppInstallDir reads appmanifest_<id>.acf in library and returns the install
// directory when it exists on disk.
func AppInstallDir(library string, appID int) (string, error) {
	manifest := filepath.Join(library, "steamapps", "appmanifest_"+strconv.Itoa(appID)+".acf")
	doc, err := parseFile(manifest)
	if err != nil {
		return "", err
	}

	installDir := doc.Lookup("AppState", "installdir")
	if installDir == nil || installDir.Value == "" {
		return "", fmt.Errorf("%w: %s has no installdir", ErrManifest, manifest)
	}

	dir := filepath.Join(library, "steamapps", "common", installDir.Value)
	fi, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrAppNotFound, dir)
		}
		return "", err
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrAppNotFound, dir)
	}

	return dir, nil
}

// parseFile opens and parses one KeyValues file.
func parseFile(p string) (*Node, error) {
	f, err := os.Open(p) //nolint:gosec // steam manifest path
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	doc, err := ParseVDF(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	return doc, nil
}
