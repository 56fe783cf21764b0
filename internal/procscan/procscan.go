// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

// Package procscan finds running processes started from a given executable.
package procscan

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Process is a running process matched by executable path.
type Process struct {
	Name string
	Exe  string
	PID  int32
}

// Running returns processes whose executable is exePath. Processes that
// cannot be inspected are matched by name only.
func Running(ctx context.Context, exePath string) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	want := cleanPath(exePath)
	wantName := filepath.Base(exePath)

	var out []Process
	for _, p := range procs {
		exe, exeErr := p.ExeWithContext(ctx)
		name, _ := p.NameWithContext(ctx)

		if exeErr == nil && exe != "" {
			if samePath(cleanPath(exe), want) {
				out = append(out, Process{PID: p.Pid, Name: name, Exe: exe})
			}
			continue
		}

		if name != "" && samePath(name, wantName) {
			out = append(out, Process{PID: p.Pid, Name: name})
		}
	}

	return out, nil
}

// cleanPath returns an absolute clean path when possible.
func cleanPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}

	return filepath.Clean(p)
}

// samePath compares paths the way the host filesystem does.
func samePath(a, b string) bool {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.EqualFold(a, b)
	}

	return a == b
}
