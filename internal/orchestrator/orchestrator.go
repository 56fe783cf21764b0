// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

// Package orchestrator runs the archive and executable patch units against
// an install and collects one result per target.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/woozymasta/pathrules"

	"github.com/woozymasta/asarpatch/asar"
	"github.com/woozymasta/asarpatch/binpatch"
	"github.com/woozymasta/asarpatch/internal/backup"
	"github.com/woozymasta/asarpatch/internal/jsrule"
	"github.com/woozymasta/asarpatch/internal/logging"
	"github.com/woozymasta/asarpatch/internal/procscan"
)

// Options configures a run.
type Options struct {
	Logger logrus.FieldLogger
	// Signatures is the executable patch table; nil loads the embedded table.
	Signatures *binpatch.Table
	// GamesRoot is written into the launcher script; empty means jsrule.DefaultGamesRoot.
	GamesRoot string
	// Platform overrides PE machine detection, such as "windows/amd64".
	Platform string
	// Version selects versioned table entries; empty matches any.
	Version string
	// ScriptRules select the launcher script inside the archive.
	// Empty means DefaultScriptEntry.
	ScriptRules []pathrules.Rule
	// ScriptMatcher default action falls back to exclude.
	ScriptMatcher pathrules.MatcherOptions
	Backup        backup.Options
	// DumpScript writes the patched script next to the archive.
	DumpScript bool
	// WarnRunning logs a warning when a target executable is running.
	WarnRunning bool
}

// Orchestrator runs patch units.
type Orchestrator struct {
	log  logrus.FieldLogger
	opts Options
}

// New validates options and loads the default signature table when none is given.
func New(opts Options) (*Orchestrator, error) {
	opts.Logger = logging.OrDiscard(opts.Logger)
	if opts.Backup.Logger == nil {
		opts.Backup.Logger = opts.Logger
	}

	if opts.Signatures == nil {
		table, err := binpatch.DefaultTable()
		if err != nil {
			return nil, fmt.Errorf("load signature table: %w", err)
		}
		opts.Signatures = table
	} else if err := opts.Signatures.Validate(); err != nil {
		return nil, err
	}

	if len(opts.ScriptRules) == 0 {
		opts.ScriptRules = []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: DefaultScriptEntry}}
	}
	if opts.ScriptMatcher.DefaultAction == pathrules.ActionUnknown {
		opts.ScriptMatcher.DefaultAction = pathrules.ActionExclude
	}

	return &Orchestrator{log: opts.Logger, opts: opts}, nil
}

// Run processes targets in order. A failing target never stops the others.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) Report {
	report := Report{Results: make([]Result, 0, len(targets))}

	for _, t := range targets {
		res := o.runOne(ctx, t)
		entry := o.log.WithFields(logrus.Fields{
			"target": t.Name,
			"path":   t.Path,
			"status": res.Status.String(),
		})

		switch res.Status {
		case StatusFailed:
			entry.WithError(res.Err).Error("target failed")
		case StatusSkipped:
			entry.WithField("reason", res.Reason).Info("target skipped")
		default:
			entry.WithField("detail", res.Detail).Info("target patched")
		}

		report.Results = append(report.Results, res)
	}

	return report
}

// runOne dispatches one target to its unit.
func (o *Orchestrator) runOne(ctx context.Context, t Target) Result {
	if !t.Enabled {
		return Result{Target: t, Status: StatusSkipped, Reason: ReasonDisabled}
	}
	if err := ctx.Err(); err != nil {
		return failed(t, err)
	}

	switch t.Kind {
	case KindArchive:
		return o.patchArchive(ctx, t)
	case KindExecutable:
		return o.patchExecutable(ctx, t)
	default:
		return failed(t, fmt.Errorf("%w: %d", ErrUnknownKind, t.Kind))
	}
}

// patchArchive rewrites the launcher script inside the archive.
func (o *Orchestrator) patchArchive(ctx context.Context, t Target) Result {
	log := o.log.WithField("target", t.Name)

	a, err := asar.ReadFile(t.Path)
	if err != nil {
		return failed(t, err)
	}

	script, err := o.scriptEntry(a)
	if err != nil {
		return failed(t, err)
	}
	log.WithField("entry", script.Path).Debug("launcher script selected")

	src, err := a.Content(script.Path)
	if err != nil {
		return failed(t, err)
	}

	rule := jsrule.Rule{Logger: log, GamesRoot: o.opts.GamesRoot}
	out, err := rule.Apply(string(src))
	if errors.Is(err, jsrule.ErrAlreadyPatched) {
		return Result{Target: t, Status: StatusSkipped, Reason: ReasonAlreadyPatched}
	}
	if err != nil {
		return failed(t, err)
	}

	patched, err := a.Replace(script.Path, []byte(out))
	if err != nil {
		return failed(t, err)
	}

	guard := backup.NewGuard(t.Path, o.opts.Backup)
	if err := guard.Write(ctx, patched.Serialize()); err != nil {
		return Result{Target: t, Status: StatusFailed, Err: err, Backup: guard.Record()}
	}

	res := Result{
		Target: t,
		Status: StatusPatched,
		Detail: script.Path,
		Backup: guard.Record(),
	}

	if o.opts.DumpScript {
		dump := filepath.Join(filepath.Dir(t.Path), ScriptDumpName)
		if err := backup.WriteFile(ctx, dump, []byte(out), 0o644, o.opts.Backup); err != nil {
			log.WithError(err).WithField("dump", dump).Warn("script dump failed")
		} else {
			log.WithField("dump", dump).Info("patched script written")
		}
	}

	return res
}

// scriptEntry selects exactly one script entry by rules.
func (o *Orchestrator) scriptEntry(a *asar.Archive) (asar.Entry, error) {
	matches, err := a.Match(o.opts.ScriptRules, o.opts.ScriptMatcher)
	if err != nil {
		return asar.Entry{}, err
	}

	switch len(matches) {
	case 0:
		return asar.Entry{}, ErrScriptNotFound
	case 1:
		return matches[0], nil
	default:
		return asar.Entry{}, fmt.Errorf("%w: %s and %d more", ErrAmbiguousScript, matches[0].Path, len(matches)-1)
	}
}

// patchExecutable disables the embedded archive integrity check.
func (o *Orchestrator) patchExecutable(ctx context.Context, t Target) Result {
	log := o.log.WithField("target", t.Name)

	if o.opts.WarnRunning {
		o.warnRunning(ctx, log, t.Path)
	}

	bin, err := os.ReadFile(t.Path)
	if err != nil {
		return failed(t, fmt.Errorf("read executable: %w", err))
	}

	platform := o.opts.Platform
	if platform == "" {
		platform, err = binpatch.DetectPlatform(bin)
		if err != nil {
			return failed(t, err)
		}
	}
	log.WithField("platform", platform).Debug("executable platform")

	out, resolution, err := o.opts.Signatures.Patch(bin, platform, o.opts.Version)
	if errors.Is(err, binpatch.ErrAlreadyPatched) {
		return Result{Target: t, Status: StatusSkipped, Reason: ReasonAlreadyPatched}
	}
	if err != nil {
		return failed(t, err)
	}

	guard := backup.NewGuard(t.Path, o.opts.Backup)
	if err := guard.Write(ctx, out); err != nil {
		return Result{Target: t, Status: StatusFailed, Err: err, Backup: guard.Record()}
	}

	return Result{
		Target: t,
		Status: StatusPatched,
		Detail: fmt.Sprintf("%s %s at 0x%x", resolution.Source, resolution.Signature.Name, resolution.Offset),
		Backup: guard.Record(),
	}
}

// warnRunning logs running instances of the executable. Lookup errors are
// logged and otherwise ignored.
func (o *Orchestrator) warnRunning(ctx context.Context, log logrus.FieldLogger, exePath string) {
	procs, err := procscan.Running(ctx, exePath)
	if err != nil {
		log.WithError(err).Debug("process scan failed")
		return
	}

	for _, p := range procs {
		log.WithFields(logrus.Fields{"pid": p.PID, "name": p.Name}).
			Warn("executable is running, close it before patching")
	}
}

// failed builds a failed result.
func failed(t Target, err error) Result {
	return Result{Target: t, Status: StatusFailed, Err: err}
}
