package binpatch

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	t.Parallel()

	table, err := DefaultTable()
	require.NoError(t, err)
	require.NotEmpty(t, table.Entries)
	require.NotEmpty(t, table.Entries[0].Anchors)
	assert.Equal(t, testAnchorText, table.Entries[0].Anchors[0].String)
}

func TestTablePatch_DefaultTableOnPE(t *testing.T) {
	t.Parallel()

	bin := buildPE(t, true, 0x140000000, []peSection{
		{name: ".text", rva: testTextRVA, data: x64Text(), exec: true},
		rdataSection(),
	})

	table, err := DefaultTable()
	require.NoError(t, err)

	out, res, err := table.Patch(bin, PlatformWindowsAMD64, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "anchor", res.Source)
	assert.Len(t, out, len(bin))

	_, res, err = table.Patch(out, PlatformWindowsAMD64, "1.0.0")
	assert.ErrorIs(t, err, ErrAlreadyPatched)
	assert.Equal(t, "validate-integrity-or-die", res.Signature.Name)

	_, _, err = table.Patch(bin, "linux/amd64", "1.0.0")
	assert.ErrorIs(t, err, ErrPatternNotFound)
}

const customTable = `
entries:
  - platform: "windows/amd64"
    version: "2.1.0"
    signatures:
      - name: explicit
        match:       "48 89 5C 24 ?? 57"
        replacement: "31 C0 C3 ?? ?? ??"
`

func TestParseTable_SignaturesFirst(t *testing.T) {
	t.Parallel()

	custom, err := ParseTable([]byte(customTable))
	require.NoError(t, err)

	def, err := DefaultTable()
	require.NoError(t, err)

	table := custom.Merge(def)
	require.Len(t, table.Entries, len(def.Entries)+1)

	bin := buildPE(t, true, 0x140000000, []peSection{
		{name: ".text", rva: testTextRVA, data: x64Text(), exec: true},
		rdataSection(),
	})

	res, err := table.Resolve(bin, PlatformWindowsAMD64, "2.1.0")
	require.NoError(t, err)
	assert.Equal(t, "signature", res.Source)
	assert.Equal(t, "explicit", res.Signature.Name)

	res, err = table.Resolve(bin, PlatformWindowsAMD64, "3.0.0")
	require.NoError(t, err)
	assert.Equal(t, "anchor", res.Source)
}

func TestParseTable_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown field": "entries:\n  - platform: x\n    bogus: 1\n",
		"bad hex":       "entries:\n  - platform: x\n    signatures:\n      - {name: a, match: \"ZZ\", replacement: \"90\"}\n",
		"length":        "entries:\n  - platform: x\n    signatures:\n      - {name: a, match: \"90 90\", replacement: \"90\"}\n",
		"empty entry":   "entries:\n  - platform: x\n",
		"no platform":   "entries:\n  - anchors: [{name: a, string: s}]\n",
		"bad platform":  "entries:\n  - platform: \"[\"\n    anchors: [{name: a, string: s}]\n",
	}

	for name, text := range cases {
		_, err := ParseTable([]byte(text))
		assert.ErrorIs(t, err, ErrInvalidTable, name)
	}
}

func TestLoadTable(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "sig.yaml")
	require.NoError(t, os.WriteFile(p, []byte(customTable), 0o600))

	table, err := LoadTable(p)
	require.NoError(t, err)
	require.Len(t, table.Entries, 1)
	assert.Equal(t, "48 89 5C 24 ?? 57", table.Entries[0].Signatures[0].Match.String())

	bin := append(bytes.Repeat([]byte{0}, 8), 0x48, 0x89, 0x5C, 0x24, 0x08, 0x57)
	out, res, err := table.Patch(bin, PlatformWindowsAMD64, "")
	require.NoError(t, err)
	assert.Equal(t, 8, res.Offset)
	assert.Equal(t, []byte{0x31, 0xC0, 0xC3, 0x24, 0x08, 0x57}, out[8:])
}
