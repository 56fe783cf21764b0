// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package steam

import "os"

// DefaultRoots returns candidate Steam roots: STEAM_PATH first, then
// platform locations.
func DefaultRoots() []string {
	var roots []string
	if p := os.Getenv(EnvSteamPath); p != "" {
		roots = append(roots, p)
	}

	return append(roots, platformRoots()...)
}
