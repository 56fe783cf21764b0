package orchestrator

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/asarpatch/asar"
	"github.com/woozymasta/asarpatch/binpatch"
	"github.com/woozymasta/asarpatch/internal/jsrule"
)

const launcherScript = `const a=require("node:path"),b=require("node:fs"),c=require("child_process");` + "\n" +
	`function q(e){if(!e.entitlements||!e.products||!e.storage)return null;const r=[1,2];return r}` + "\n" +
	`for(const n of l)m[n.steamId]={isInstalled:i,installDir:d};` + "\n" +
	"async function go(A,R){let S;S=`steam://run/${A.data.steamId}// -launchTo ${R} -jbg.config isBundle=false`;" +
	`console.log(S);if(await U.shell.check()&&!O.user)return;await U.shell.openExternal(S);}` + "\n"

const testTable = `
entries:
  - platform: "windows/amd64"
    version: "*"
    signatures:
      - name: integrity-check
        match:       "48 89 5C 24 ?? 57 48 83 EC 20"
        replacement: "31 C0 C3 ?? ?? ?? ?? ?? ?? ??"
`

// makeArchive frames header JSON and data the way the asar packer does.
func makeArchive(t *testing.T, header string, data []byte) []byte {
	t.Helper()

	jsonLen := uint32(len(header))
	payload := (jsonLen + 4 + 3) &^ 3
	pickle := payload + 4

	out := make([]byte, 8+pickle)
	binary.LittleEndian.PutUint32(out[0:4], 4)
	binary.LittleEndian.PutUint32(out[4:8], pickle)
	binary.LittleEndian.PutUint32(out[8:12], payload)
	binary.LittleEndian.PutUint32(out[12:16], jsonLen)
	copy(out[16:], header)

	return append(out, data...)
}

func launcherArchive(t *testing.T, script string) []byte {
	t.Helper()

	pkg := `{"name":"megapicker"}`
	header := fmt.Sprintf(
		`{"files":{".vite":{"files":{"build":{"files":{"main.js":{"size":%d,"offset":"0"}}}}},"package.json":{"size":%d,"offset":"%d"}}}`,
		len(script), len(pkg), len(script))

	return makeArchive(t, header, []byte(script+pkg))
}

func launcherExecutable() []byte {
	var b bytes.Buffer
	b.WriteString("MZ")
	b.Write(bytes.Repeat([]byte{0x90}, 30))
	b.Write([]byte{0x48, 0x89, 0x5C, 0x24, 0x08, 0x57, 0x48, 0x83, 0xEC, 0x20})
	b.Write(bytes.Repeat([]byte{0xCC}, 16))
	b.Write(unrelatedHelper)
	return b.Bytes()
}

// unrelatedHelper starts with the same bytes as the stub the signature writes.
var unrelatedHelper = append([]byte{0x31, 0xC0, 0xC3}, bytes.Repeat([]byte{0xCC}, 13)...)

type install struct {
	root    string
	archive string
	exe     string
}

func newInstall(t *testing.T, archive []byte) install {
	t.Helper()

	root := t.TempDir()
	in := install{
		root:    root,
		archive: filepath.Join(root, "resources", "app.asar"),
		exe:     filepath.Join(root, DefaultExecutable),
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(in.archive), 0o755))
	require.NoError(t, os.WriteFile(in.archive, archive, 0o644))
	require.NoError(t, os.WriteFile(in.exe, launcherExecutable(), 0o755))

	return in
}

func newOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()

	table, err := binpatch.ParseTable([]byte(testTable))
	require.NoError(t, err)

	opts.Signatures = table
	opts.Platform = binpatch.PlatformWindowsAMD64

	o, err := New(opts)
	require.NoError(t, err)
	return o
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func TestInstallTargets(t *testing.T) {
	t.Parallel()

	targets := InstallTargets("/opt/megapicker", "", true, false)
	require.Len(t, targets, 2)

	assert.Equal(t, KindArchive, targets[0].Kind)
	assert.Equal(t, filepath.Join("/opt/megapicker", "resources", "app.asar"), targets[0].Path)
	assert.True(t, targets[0].Enabled)

	assert.Equal(t, KindExecutable, targets[1].Kind)
	assert.Equal(t, filepath.Join("/opt/megapicker", DefaultExecutable), targets[1].Path)
	assert.False(t, targets[1].Enabled)
}

func TestRun_DisabledTargetsTouchNothing(t *testing.T) {
	t.Parallel()

	original := launcherArchive(t, launcherScript)
	in := newInstall(t, original)
	o := newOrchestrator(t, Options{})

	report := o.Run(context.Background(), InstallTargets(in.root, "", false, false))

	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.Equal(t, StatusSkipped, res.Status)
		assert.Equal(t, ReasonDisabled, res.Reason)
	}
	assert.Equal(t, 0, report.ExitCode())

	assert.Equal(t, original, readFile(t, in.archive))
	assert.Equal(t, launcherExecutable(), readFile(t, in.exe))
	assert.NoFileExists(t, in.archive+".bak")
	assert.NoFileExists(t, in.exe+".bak")
}

func TestRun_PatchesThenSkips(t *testing.T) {
	t.Parallel()

	original := launcherArchive(t, launcherScript)
	in := newInstall(t, original)
	o := newOrchestrator(t, Options{GamesRoot: "D:/Games", WarnRunning: true})
	targets := InstallTargets(in.root, "", true, true)

	first := o.Run(context.Background(), targets)
	require.Len(t, first.Results, 2)
	for _, res := range first.Results {
		require.Equal(t, StatusPatched, res.Status, res.String())
		assert.True(t, res.Backup.Created)
	}
	assert.Equal(t, 0, first.ExitCode())

	assert.Equal(t, original, readFile(t, in.archive+".bak"))
	assert.Equal(t, launcherExecutable(), readFile(t, in.exe+".bak"))

	a, err := asar.ReadFile(in.archive)
	require.NoError(t, err)
	script, err := a.Content(DefaultScriptEntry)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(script), jsrule.Marker))
	assert.Contains(t, string(script), `"D:/Games"`)

	pkg, err := a.Content("package.json")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"megapicker"}`, string(pkg))

	exe := readFile(t, in.exe)
	assert.Equal(t, []byte{0x31, 0xC0, 0xC3, 0x24, 0x08, 0x57}, exe[32:38])

	patchedArchive := readFile(t, in.archive)
	second := o.Run(context.Background(), targets)
	for _, res := range second.Results {
		assert.Equal(t, StatusSkipped, res.Status, res.String())
		assert.Equal(t, ReasonAlreadyPatched, res.Reason)
	}
	assert.Equal(t, 0, second.ExitCode())
	assert.Equal(t, patchedArchive, readFile(t, in.archive))
	assert.Equal(t, exe, readFile(t, in.exe))
}

func TestRun_FailureIsIsolated(t *testing.T) {
	t.Parallel()

	broken := []byte("not an archive at all")
	in := newInstall(t, broken)
	o := newOrchestrator(t, Options{})

	report := o.Run(context.Background(), InstallTargets(in.root, "", true, true))
	require.Len(t, report.Results, 2)

	assert.Equal(t, StatusFailed, report.Results[0].Status)
	require.ErrorIs(t, report.Results[0].Err, asar.ErrFormat)
	assert.Equal(t, StatusPatched, report.Results[1].Status)
	assert.Equal(t, 1, report.ExitCode())

	assert.Equal(t, broken, readFile(t, in.archive))
	assert.NoFileExists(t, in.archive+".bak")
}

func TestRun_ScriptSelection(t *testing.T) {
	t.Parallel()

	in := newInstall(t, makeArchive(t, `{"files":{"index.js":{"size":2,"offset":"0"}}}`, []byte("//")))
	o := newOrchestrator(t, Options{})

	report := o.Run(context.Background(), []Target{{Name: "archive", Path: in.archive, Kind: KindArchive, Enabled: true}})
	require.Len(t, report.Results, 1)
	require.ErrorIs(t, report.Results[0].Err, ErrScriptNotFound)
}

func TestRun_UnpatchableScript(t *testing.T) {
	t.Parallel()

	original := launcherArchive(t, "console.log('hello')\n")
	in := newInstall(t, original)
	o := newOrchestrator(t, Options{})

	report := o.Run(context.Background(), InstallTargets(in.root, "", true, false))
	require.ErrorIs(t, report.Results[0].Err, jsrule.ErrPatternNotFound)
	assert.Equal(t, original, readFile(t, in.archive))
}

func TestRun_DumpScript(t *testing.T) {
	t.Parallel()

	in := newInstall(t, launcherArchive(t, launcherScript))
	o := newOrchestrator(t, Options{DumpScript: true})

	report := o.Run(context.Background(), InstallTargets(in.root, "", true, false))
	require.Equal(t, StatusPatched, report.Results[0].Status)

	dump := readFile(t, filepath.Join(in.root, "resources", ScriptDumpName))
	assert.True(t, bytes.HasPrefix(dump, []byte(jsrule.Marker)))
}

func TestRun_UnknownKind(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, Options{})
	report := o.Run(context.Background(), []Target{{Name: "odd", Path: "x", Enabled: true}})
	require.ErrorIs(t, report.Results[0].Err, ErrUnknownKind)
}

func TestReport_WriteTo(t *testing.T) {
	t.Parallel()

	report := Report{Results: []Result{
		{Target: Target{Name: "archive"}, Status: StatusPatched, Detail: DefaultScriptEntry},
		{Target: Target{Name: "executable"}, Status: StatusSkipped, Reason: ReasonDisabled},
		{Target: Target{Name: "other"}, Status: StatusFailed, Err: ErrUnknownKind},
	}}

	var buf bytes.Buffer
	_, err := report.WriteTo(&buf)
	require.NoError(t, err)

	assert.Equal(t,
		"archive: patched (.vite/build/main.js)\n"+
			"executable: skipped (disabled)\n"+
			"other: failed: unknown target kind\n",
		buf.String())
	assert.Equal(t, 1, report.ExitCode())
}

func TestRun_ExecutableTwiceWithLookalikeStub(t *testing.T) {
	t.Parallel()

	in := newInstall(t, launcherArchive(t, launcherScript))
	o := newOrchestrator(t, Options{})
	targets := InstallTargets(in.root, "", false, true)

	first := o.Run(context.Background(), targets)
	require.Len(t, first.Results, 2)
	require.Equal(t, StatusPatched, first.Results[1].Status, first.Results[1].String())

	exe := readFile(t, in.exe)
	helperAt := len(exe) - len(unrelatedHelper)
	assert.Equal(t, unrelatedHelper, exe[helperAt:])

	second := o.Run(context.Background(), targets)
	require.Len(t, second.Results, 2)
	assert.Equal(t, StatusSkipped, second.Results[1].Status, second.Results[1].String())
	assert.Equal(t, ReasonAlreadyPatched, second.Results[1].Reason)
	assert.Equal(t, 0, second.ExitCode())
	assert.Equal(t, exe, readFile(t, in.exe))
}
