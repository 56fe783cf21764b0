package binpatch

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAnchorText = "Unsupported hashing algorithm in ValidateIntegrityOrDie"
	testTextRVA    = 0x1000
	testDataRVA    = 0x2000
	testStringOff  = 0x10
	testFileAlign  = 0x200
)

type peSection struct {
	name string
	data []byte
	rva  uint32
	exec bool
}

// buildPE assembles a minimal PE image readable by debug/pe.
func buildPE(t *testing.T, is64 bool, imageBase uint64, sections []peSection) []byte {
	t.Helper()

	const (
		lfanew        = 0x40
		coffSize      = 20
		sectionHdrLen = 40
	)

	optSize := 224
	machine := uint16(0x14c)
	if is64 {
		optSize = 240
		machine = 0x8664
	}

	headersEnd := lfanew + 4 + coffSize + optSize + sectionHdrLen*len(sections)
	require.Less(t, headersEnd, testFileAlign)

	out := make([]byte, testFileAlign)
	out[0], out[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(out[0x3C:], lfanew)
	copy(out[lfanew:], "PE\x00\x00")

	coff := out[lfanew+4:]
	binary.LittleEndian.PutUint16(coff[0:], machine)
	binary.LittleEndian.PutUint16(coff[2:], uint16(len(sections)))
	binary.LittleEndian.PutUint16(coff[16:], uint16(optSize))
	binary.LittleEndian.PutUint16(coff[18:], 0x0022)

	opt := coff[coffSize:]
	if is64 {
		binary.LittleEndian.PutUint16(opt[0:], 0x20b)
		binary.LittleEndian.PutUint64(opt[24:], imageBase)
		binary.LittleEndian.PutUint32(opt[108:], 16)
	} else {
		binary.LittleEndian.PutUint16(opt[0:], 0x10b)
		binary.LittleEndian.PutUint32(opt[28:], uint32(imageBase))
		binary.LittleEndian.PutUint32(opt[92:], 16)
	}
	binary.LittleEndian.PutUint32(opt[32:], 0x1000)
	binary.LittleEndian.PutUint32(opt[36:], testFileAlign)

	hdr := opt[optSize:]
	raw := uint32(testFileAlign)
	var body []byte
	for i, s := range sections {
		size := (uint32(len(s.data)) + testFileAlign - 1) &^ (testFileAlign - 1)
		h := hdr[i*sectionHdrLen:]
		copy(h[0:8], s.name)
		binary.LittleEndian.PutUint32(h[8:], uint32(len(s.data)))
		binary.LittleEndian.PutUint32(h[12:], s.rva)
		binary.LittleEndian.PutUint32(h[16:], size)
		binary.LittleEndian.PutUint32(h[20:], raw)

		characteristics := uint32(0x40000040) // initialized data, readable
		if s.exec {
			characteristics = 0x60000020 // code, execute, read
		}
		binary.LittleEndian.PutUint32(h[36:], characteristics)

		chunk := make([]byte, size)
		copy(chunk, s.data)
		body = append(body, chunk...)
		raw += size
	}

	return append(out, body...)
}

func rdataSection() peSection {
	data := make([]byte, testStringOff, 0x80)
	data = append(data, testAnchorText...)
	data = append(data, 0)

	return peSection{name: ".rdata", rva: testDataRVA, data: data}
}

// x64Text holds padding, the target function referencing the anchor string
// with lea rcx, [rip+disp32], and a second function.
func x64Text() []byte {
	return x64TextWith(nil, ripRef(0x8D))
}

// x64TextWith builds x64Text with body placed after the prologue and ref
// encoding the instruction that addresses the anchor string.
func x64TextWith(body []byte, ref func(pos int) []byte) []byte {
	code := bytes.Repeat([]byte{0xCC}, 16)
	code = append(code, 0x48, 0x89, 0x5C, 0x24, 0x08, 0x57, 0x48, 0x83, 0xEC, 0x20) // prologue
	code = append(code, body...)
	code = append(code, ref(len(code))...)

	code = append(code, 0xE8, 0x10, 0x00, 0x00, 0x00, 0x48, 0x83, 0xC4, 0x20, 0x5F, 0xC3)
	for len(code)%16 != 0 {
		code = append(code, 0xCC)
	}

	return append(code, 0x55, 0x48, 0x89, 0xE5, 0x5D, 0xC3)
}

// ripRef encodes "<op> rcx, [rip+disp32]" pointing at the anchor string.
func ripRef(op byte) func(pos int) []byte {
	return func(pos int) []byte {
		disp := int32(testDataRVA+testStringOff) - int32(testTextRVA+pos+7)
		b := []byte{0x48, op, 0x0D, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(b[3:], uint32(disp))
		return b
	}
}

// imm64Ref encodes "mov rcx, imm64" with the anchor string address.
func imm64Ref(imageBase uint64) func(pos int) []byte {
	return func(int) []byte {
		b := []byte{0x48, 0xB9, 0, 0, 0, 0, 0, 0, 0, 0}
		binary.LittleEndian.PutUint64(b[2:], imageBase+testDataRVA+testStringOff)
		return b
	}
}

// x86TextWith references the anchor string with a one-byte opcode followed
// by an imm32, such as push or mov r32.
func x86TextWith(imageBase uint32, op byte) []byte {
	code := bytes.Repeat([]byte{0xCC}, 16)
	code = append(code, 0x55, 0x8B, 0xEC, 0x83, 0xEC, 0x08)

	refPos := len(code)
	code = append(code, op, 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(code[refPos+1:], imageBase+testDataRVA+testStringOff)

	return append(code, 0xE8, 0x00, 0x00, 0x00, 0x00, 0x8B, 0xE5, 0x5D, 0xC3, 0xCC, 0xCC)
}

func testAnchor() Anchor {
	return Anchor{Name: "validate", String: testAnchorText}
}

func TestAnchorDerive_X64(t *testing.T) {
	t.Parallel()

	const base = 0x140000000
	cases := map[string]struct {
		ref  func(pos int) []byte
		head string
	}{
		"lea rip":   {ref: ripRef(0x8D), head: "48 8D 0D"},
		"mov rip":   {ref: ripRef(0x8B), head: "48 8B 0D"},
		"mov imm64": {ref: imm64Ref(base), head: "48 B9 10"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			bin := buildPE(t, true, base, []peSection{
				{name: ".text", rva: testTextRVA, data: x64TextWith(nil, tc.ref), exec: true},
				rdataSection(),
			})

			platform, err := DetectPlatform(bin)
			require.NoError(t, err)
			assert.Equal(t, PlatformWindowsAMD64, platform)

			sig, err := testAnchor().Derive(bin)
			require.NoError(t, err)
			assert.Equal(t, defaultWindow, sig.Match.Len())
			assert.Equal(t, "48 89 5C 24 08 57 48 83 EC 20 "+tc.head, sig.Match.String()[:38])

			out, off, err := Patch(bin, sig)
			require.NoError(t, err)
			assert.Equal(t, testFileAlign+16, off)
			assert.Len(t, out, len(bin))
			assert.Equal(t, []byte{0x31, 0xC0, 0xC3, 0x24, 0x08}, out[off:off+5])

			_, err = testAnchor().Derive(out)
			assert.ErrorIs(t, err, ErrAlreadyPatched)

			_, _, err = Patch(out, sig)
			assert.ErrorIs(t, err, ErrAlreadyPatched)
		})
	}
}

func TestAnchorDerive_ImmediateEndingInInt3(t *testing.T) {
	t.Parallel()

	// add ecx, 0xCC332211 leaves a lone 0xCC right before an aligned address
	body := []byte{0x81, 0xC1, 0x11, 0x22, 0x33, 0xCC}
	code := x64TextWith(body, ripRef(0x8D))
	require.Equal(t, byte(0xCC), code[31])

	bin := buildPE(t, true, 0x140000000, []peSection{
		{name: ".text", rva: testTextRVA, data: code, exec: true},
		rdataSection(),
	})

	sig, err := testAnchor().Derive(bin)
	require.NoError(t, err)

	off, err := Locate(bin, sig.Match)
	require.NoError(t, err)
	assert.Equal(t, testFileAlign+16, off)
}

func TestFunctionStart(t *testing.T) {
	t.Parallel()

	pad := func(tail ...byte) []byte {
		code := bytes.Repeat([]byte{0x90}, 32)
		copy(code[16-len(tail):], tail)
		return code
	}

	start, ok := functionStart(pad(0xCC, 0xCC), 20)
	require.True(t, ok)
	assert.Equal(t, 16, start)

	start, ok = functionStart(pad(0xC3, 0xCC), 20)
	require.True(t, ok)
	assert.Equal(t, 16, start)

	start, ok = functionStart(pad(0x33, 0xCC), 20)
	require.True(t, ok)
	assert.Equal(t, 0, start)
}

func TestAnchorDerive_X86(t *testing.T) {
	t.Parallel()

	const base = 0x400000
	for name, op := range map[string]byte{"push imm32": 0x68, "mov eax imm32": 0xB8} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			bin := buildPE(t, false, base, []peSection{
				{name: ".text", rva: testTextRVA, data: x86TextWith(base, op), exec: true},
				rdataSection(),
			})

			platform, err := DetectPlatform(bin)
			require.NoError(t, err)
			assert.Equal(t, PlatformWindows386, platform)

			sig, err := testAnchor().Derive(bin)
			require.NoError(t, err)

			off, err := Locate(bin, sig.Match)
			require.NoError(t, err)
			assert.Equal(t, testFileAlign+16, off)
		})
	}
}

func TestAnchorDerive_Errors(t *testing.T) {
	t.Parallel()

	_, err := testAnchor().Derive([]byte("definitely not a PE image, just some bytes for the header read"))
	assert.ErrorIs(t, err, ErrNotPE)

	noRef := buildPE(t, true, 0x140000000, []peSection{
		{name: ".text", rva: testTextRVA, data: bytes.Repeat([]byte{0xCC}, 64), exec: true},
		rdataSection(),
	})
	_, err = testAnchor().Derive(noRef)
	assert.ErrorIs(t, err, ErrNoReference)
	assert.ErrorIs(t, err, ErrPatternNotFound)

	noString := buildPE(t, true, 0x140000000, []peSection{
		{name: ".text", rva: testTextRVA, data: x64Text(), exec: true},
	})
	_, err = testAnchor().Derive(noString)
	assert.ErrorIs(t, err, ErrPatternNotFound)

	assert.ErrorIs(t, Anchor{Name: "x"}.Validate(), ErrInvalidSignature)
	assert.ErrorIs(t, Anchor{Name: "x", String: "s", Window: 65}.Validate(), ErrInvalidSignature)
}
