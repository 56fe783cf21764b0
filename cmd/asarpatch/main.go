// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

// Command asarpatch patches a Jackbox Megapicker install to launch games from
// a local directory and disables the launcher's archive integrity check.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/woozymasta/asarpatch/binpatch"
	"github.com/woozymasta/asarpatch/internal/backup"
	"github.com/woozymasta/asarpatch/internal/jsrule"
	"github.com/woozymasta/asarpatch/internal/logging"
	"github.com/woozymasta/asarpatch/internal/orchestrator"
	"github.com/woozymasta/asarpatch/internal/steam"
)

// version is set at build time.
var version = "dev"

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// Config keys, shared by flags, config file and ASARPATCH_* environment.
const (
	keyNoArchive    = "asar"
	keyNoExecutable = "executable"
	keyConfig       = "config"
	keyGamesRoot    = "games-root"
	keySignatures   = "signatures"
	keyDumpScript   = "dump-script"
	keyLogLevel     = "log-level"
	keyExeName      = "exe-name"
	keyPlatform     = "platform"
	keyAppVersion   = "app-version"
	keyHelp         = "help"
	keyVersion      = "version"
	envPrefix       = "ASARPATCH"
)

// errUsage marks argument and discovery failures reported before any target runs.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// config is the resolved command configuration.
type config struct {
	root        string
	gamesRoot   string
	signatures  string
	logLevel    string
	exeName     string
	platform    string
	appVersion  string
	noArchive   bool
	noExe       bool
	dumpScript  bool
	showHelp    bool
	showVersion bool
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(stderr)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "asarpatch: %v\n", err)
		return exitUsage
	}

	switch {
	case cfg.showHelp:
		fs.SetOutput(stdout)
		usage(fs)()
		return exitOK
	case cfg.showVersion:
		_, _ = fmt.Fprintf(stdout, "asarpatch %s\n", version)
		return exitOK
	}

	log, err := logging.New(stderr, cfg.logLevel)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "asarpatch: %v\n", err)
		return exitUsage
	}

	opts, targets, err := prepare(cfg, log)
	if err != nil {
		log.WithError(err).Error("cannot start")
		return exitUsage
	}

	o, err := orchestrator.New(opts)
	if err != nil {
		log.WithError(err).Error("cannot start")
		return exitUsage
	}

	report := o.Run(ctx, targets)
	if _, err := report.WriteTo(stdout); err != nil {
		log.WithError(err).Warn("write report")
	}

	if report.Failed() {
		return exitFailed
	}
	return exitOK
}

// newFlagSet declares command flags.
func newFlagSet(output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("asarpatch", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.SortFlags = false
	fs.Usage = usage(fs)

	fs.BoolP(keyNoArchive, "a", false, "disable the app.asar patch")
	fs.BoolP(keyNoExecutable, "e", false, "disable the executable patch")
	fs.StringP(keyConfig, "c", "", "config file (yaml, toml or json)")
	fs.String(keyGamesRoot, jsrule.DefaultGamesRoot, "directory holding games, one folder per Steam app id")
	fs.String(keySignatures, "", "extra signature table (yaml) tried before the embedded one")
	fs.Bool(keyDumpScript, false, "also write the patched main.js next to the archive")
	fs.String(keyLogLevel, logrus.InfoLevel.String(), "log level")
	fs.String(keyExeName, orchestrator.DefaultExecutable, "launcher executable file name")
	fs.String(keyPlatform, "", "executable platform, detected from the PE header when empty")
	fs.String(keyAppVersion, "", "launcher version for versioned signature entries")
	fs.BoolP(keyHelp, "h", false, "show help")
	fs.BoolP(keyVersion, "V", false, "show version")

	return fs
}

// usage prints synopsis and flag defaults.
func usage(fs *pflag.FlagSet) func() {
	return func() {
		out := fs.Output()
		_, _ = fmt.Fprintf(out, "Usage: asarpatch [flags] [PATH]\n\n")
		_, _ = fmt.Fprintf(out, "PATH is the Jackbox Megapicker install directory.\n")
		_, _ = fmt.Fprintf(out, "When omitted it is looked up through Steam (app %d).\n\n", jsrule.SteamAppID)
		_, _ = fmt.Fprintf(out, "Every flag can be set as %s_<FLAG> in the environment.\n\nFlags:\n", envPrefix)
		fs.PrintDefaults()
	}
}

// loadConfig merges flags, environment and the optional config file.
func loadConfig(fs *pflag.FlagSet, args []string) (config, error) {
	if err := fs.Parse(args); err != nil {
		return config{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 1 {
		return config{}, fmt.Errorf("%w: expected at most one PATH, got %d", errUsage, fs.NArg())
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return config{}, fmt.Errorf("bind flags: %w", err)
	}

	if file := v.GetString(keyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("%w: read config %s: %w", errUsage, file, err)
		}
	}

	return config{
		root:        fs.Arg(0),
		noArchive:   v.GetBool(keyNoArchive),
		noExe:       v.GetBool(keyNoExecutable),
		gamesRoot:   v.GetString(keyGamesRoot),
		signatures:  v.GetString(keySignatures),
		dumpScript:  v.GetBool(keyDumpScript),
		logLevel:    v.GetString(keyLogLevel),
		exeName:     v.GetString(keyExeName),
		platform:    v.GetString(keyPlatform),
		appVersion:  v.GetString(keyAppVersion),
		showHelp:    v.GetBool(keyHelp),
		showVersion: v.GetBool(keyVersion),
	}, nil
}

// prepare resolves the install root and builds orchestrator options.
func prepare(cfg config, log *logrus.Logger) (orchestrator.Options, []orchestrator.Target, error) {
	opts := orchestrator.Options{
		Logger:      log,
		GamesRoot:   cfg.gamesRoot,
		Platform:    cfg.platform,
		Version:     cfg.appVersion,
		DumpScript:  cfg.dumpScript,
		WarnRunning: true,
		Backup:      backup.Options{Logger: log},
	}

	if cfg.signatures != "" {
		extra, err := binpatch.LoadTable(cfg.signatures)
		if err != nil {
			return opts, nil, err
		}
		builtin, err := binpatch.DefaultTable()
		if err != nil {
			return opts, nil, err
		}
		opts.Signatures = extra.Merge(builtin)
	}

	root := cfg.root
	if root == "" {
		var err error
		root, err = steam.Locate(steam.Options{Logger: log, AppID: jsrule.SteamAppID})
		if err != nil {
			return opts, nil, fmt.Errorf("install path not given and steam lookup failed: %w", err)
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return opts, nil, fmt.Errorf("install path: %w", err)
	}
	if !info.IsDir() {
		return opts, nil, fmt.Errorf("install path %s is not a directory", root)
	}
	log.WithField("root", root).Info("patching install")

	return opts, orchestrator.InstallTargets(root, cfg.exeName, !cfg.noArchive, !cfg.noExe), nil
}
