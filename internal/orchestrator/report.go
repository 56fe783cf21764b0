// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package orchestrator

import (
	"fmt"
	"io"

	"github.com/woozymasta/asarpatch/internal/backup"
)

// Status is the outcome of one target.
type Status uint8

// Target outcomes.
const (
	StatusPatched Status = iota + 1
	StatusSkipped
	StatusFailed
)

// String returns status name.
func (s Status) String() string {
	switch s {
	case StatusPatched:
		return "patched"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Skip reasons.
const (
	ReasonDisabled       = "disabled"
	ReasonAlreadyPatched = "already patched"
)

// Result is the outcome of one target.
type Result struct {
	Err    error
	Target Target
	// Reason explains a skip.
	Reason string
	// Detail describes what was patched.
	Detail string
	Backup backup.Record
	Status Status
}

// String formats one report line.
func (r Result) String() string {
	switch r.Status {
	case StatusPatched:
		if r.Detail != "" {
			return fmt.Sprintf("%s: patched (%s)", r.Target.Name, r.Detail)
		}
		return r.Target.Name + ": patched"
	case StatusSkipped:
		return fmt.Sprintf("%s: skipped (%s)", r.Target.Name, r.Reason)
	default:
		return fmt.Sprintf("%s: failed: %v", r.Target.Name, r.Err)
	}
}

// Report holds results in target order.
type Report struct {
	Results []Result
}

// Failed reports whether any target failed.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return true
		}
	}

	return false
}

// ExitCode is 1 when any target failed, else 0. Skips never fail a run.
func (r Report) ExitCode() int {
	if r.Failed() {
		return 1
	}

	return 0
}

// WriteTo prints one line per target.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, res := range r.Results {
		n, err := fmt.Fprintln(w, res.String())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}
