// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

//go:build windows

package steam

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows/registry"
)

// platformRoots reads the Steam client registry keys, then well-known folders.
func platformRoots() []string {
	var roots []string

	keys := []struct {
		root registry.Key
		path string
		name string
	}{
		{registry.CURRENT_USER, `Software\Valve\Steam`, "SteamPath"},
		{registry.LOCAL_MACHINE, `SOFTWARE\WOW6432Node\Valve\Steam`, "InstallPath"},
		{registry.LOCAL_MACHINE, `SOFTWARE\Valve\Steam`, "InstallPath"},
	}
	for _, k := range keys {
		key, err := registry.OpenKey(k.root, k.path, registry.QUERY_VALUE)
		if err != nil {
			continue
		}

		v, _, err := key.GetStringValue(k.name)
		_ = key.Close()
		if err == nil && v != "" {
			roots = append(roots, filepath.FromSlash(v))
		}
	}

	for _, env := range []string{"ProgramFiles(x86)", "ProgramFiles"} {
		if base := os.Getenv(env); base != "" {
			roots = append(roots, filepath.Join(base, "Steam"))
		}
	}

	return roots
}
