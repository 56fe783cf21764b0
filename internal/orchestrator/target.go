// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package orchestrator

import "path/filepath"

// Install layout defaults.
const (
	// ArchivePath is the launcher archive relative to the install root.
	ArchivePath = "resources/app.asar"
	// DefaultExecutable is the launcher executable name in the install root.
	DefaultExecutable = "The Jackbox Megapicker.exe"
	// DefaultScriptEntry is the bundled main process script inside the archive.
	DefaultScriptEntry = ".vite/build/main.js"
	// ScriptDumpName is written next to the archive when script dumping is on.
	ScriptDumpName = "main.js"
)

// Kind selects the patch unit for a target.
type Kind uint8

// Target kinds.
const (
	KindArchive Kind = iota + 1
	KindExecutable
)

// String returns kind name.
func (k Kind) String() string {
	switch k {
	case KindArchive:
		return "archive"
	case KindExecutable:
		return "executable"
	default:
		return "unknown"
	}
}

// Target is one file to patch.
type Target struct {
	Name    string
	Path    string
	Kind    Kind
	Enabled bool
}

// InstallTargets returns the archive and executable targets of an install root.
// An empty exeName means DefaultExecutable.
func InstallTargets(root, exeName string, archive, executable bool) []Target {
	if exeName == "" {
		exeName = DefaultExecutable
	}

	return []Target{
		{
			Name:    KindArchive.String(),
			Path:    filepath.Join(root, filepath.FromSlash(ArchivePath)),
			Kind:    KindArchive,
			Enabled: archive,
		},
		{
			Name:    KindExecutable.String(),
			Path:    filepath.Join(root, exeName),
			Kind:    KindExecutable,
			Enabled: executable,
		},
	}
}
