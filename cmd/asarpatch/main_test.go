package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_HelpAndVersion(t *testing.T) {
	t.Parallel()

	code, out, _ := runCmd(t, "--help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Usage: asarpatch [flags] [PATH]")
	assert.Contains(t, out, "--games-root")

	code, out, _ = runCmd(t, "-V")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "asarpatch dev\n", out)
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := map[string][]string{
		"unknown flag":      {"--bogus"},
		"two paths":         {dir, dir},
		"bad log level":     {"--log-level", "loud", dir},
		"missing path":      {filepath.Join(dir, "absent")},
		"missing config":    {"-c", filepath.Join(dir, "absent.yaml"), dir},
		"missing signature": {"--signatures", filepath.Join(dir, "absent.yaml"), dir},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			code, _, _ := runCmd(t, args...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestRun_AllDisabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	code, out, _ := runCmd(t, "-a", "-e", dir)

	assert.Equal(t, exitOK, code)
	assert.Equal(t, "archive: skipped (disabled)\nexecutable: skipped (disabled)\n", out)
}

func TestRun_MissingFilesFail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	code, out, _ := runCmd(t, "--log-level", "error", dir)

	assert.Equal(t, exitFailed, code)
	assert.Contains(t, out, "archive: failed:")
	assert.Contains(t, out, "executable: failed:")
}

func TestRun_ConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "asarpatch.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("asar: true\nexecutable: true\n"), 0o644))

	code, out, _ := runCmd(t, "-c", cfg, dir)
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "archive: skipped (disabled)\nexecutable: skipped (disabled)\n", out)
}

func TestRun_Environment(t *testing.T) {
	t.Setenv("ASARPATCH_ASAR", "true")
	t.Setenv("ASARPATCH_EXECUTABLE", "1")

	code, out, _ := runCmd(t, t.TempDir())
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "archive: skipped (disabled)\nexecutable: skipped (disabled)\n", out)
}
