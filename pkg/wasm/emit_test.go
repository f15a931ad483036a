package wasm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/nacho/pkg/ir"
	"github.com/chazu/nacho/pkg/wasm/leb128"
)

func TestCompileEmptySequence(t *testing.T) {
	module, err := Compile(nil)
	require.NoError(t, err)
	require.NoError(t, Validate(module))

	sections, err := WalkSections(module)
	require.NoError(t, err)

	// The trivial body still calls the diagnostic import once.
	code := sections[len(sections)-1]
	assert.Equal(t, SectionIDCode, code.ID)
	assert.True(t, bytes.Contains(code.Payload, []byte{OpcodeI64Const, 0x00, OpcodeCall, 0x00}),
		"empty module body missing baseline diagnostic call")
	assert.Equal(t, OpcodeEnd, code.Payload[len(code.Payload)-1])
}

func TestCompileSectionSizesExact(t *testing.T) {
	module, err := Compile([]ir.Instruction{
		{Op: ir.OpPush, Operand1: 42},
	})
	require.NoError(t, err)

	sections, err := WalkSections(module)
	require.NoError(t, err)
	for _, s := range sections {
		assert.Equal(t, s.Size, uint32(len(s.Payload)), "section %d size mismatch", s.ID)
	}
	require.NoError(t, Validate(module))
}

func TestCompileImportContract(t *testing.T) {
	module, err := Compile(nil)
	require.NoError(t, err)

	sections, err := WalkSections(module)
	require.NoError(t, err)

	var imports []byte
	for _, s := range sections {
		if s.ID == SectionIDImport {
			imports = s.Payload
		}
	}
	require.NotNil(t, imports)
	assert.True(t, bytes.Contains(imports, encodeName(ImportModule)), "missing module name")
	assert.True(t, bytes.Contains(imports, encodeName(MemoryFieldName)), "missing memory import")
	assert.True(t, bytes.Contains(imports, encodeName(PrintFieldName)), "missing print import")
}

func TestCompileExportsStart(t *testing.T) {
	module, err := Compile(nil)
	require.NoError(t, err)

	sections, err := WalkSections(module)
	require.NoError(t, err)

	var export []byte
	for _, s := range sections {
		if s.ID == SectionIDExport {
			export = s.Payload
		}
	}
	require.NotNil(t, export)

	want := append(leb128.EncodeUint32(1), encodeName(StartExportName)...)
	want = append(want, ExportKindFunc)
	want = append(want, leb128.EncodeUint32(StartFuncIndex)...)
	assert.Equal(t, want, export)
}

func TestCompilePushAddLowering(t *testing.T) {
	module, err := Compile([]ir.Instruction{
		{Op: ir.OpPush, Operand1: 1337},
		{Op: ir.OpPush, Operand1: 5},
		{Op: ir.OpAdd, Operand1: 1337, Operand2: 5},
	})
	require.NoError(t, err)
	require.NoError(t, Validate(module))

	sections, err := WalkSections(module)
	require.NoError(t, err)
	code := sections[len(sections)-1].Payload

	const1337 := append([]byte{OpcodeI64Const}, leb128.EncodeInt64(1337)...)
	const5 := append([]byte{OpcodeI64Const}, leb128.EncodeInt64(5)...)
	callPrint := []byte{OpcodeCall, PrintFuncIndex}

	// Two diagnostic calls, one per push.
	assert.True(t, bytes.Contains(code, append(const1337, callPrint...)), "push 1337 lowering missing")
	assert.True(t, bytes.Contains(code, append(const5, callPrint...)), "push 5 lowering missing")

	// The add re-materializes both constants, adds, and stores to the
	// scratch local.
	addSeq := append(append([]byte{}, const1337...), const5...)
	addSeq = append(addSeq, OpcodeI64Add, OpcodeLocalSet, 0x00)
	assert.True(t, bytes.Contains(code, addSeq), "add lowering missing")
}

func TestCompileSkipsUnsupportedOpcodes(t *testing.T) {
	withUnsupported, err := Compile([]ir.Instruction{
		{Op: ir.OpPush, Operand1: 9},
		{Op: ir.OpSyscall, Operand1: 1},
		{Op: ir.OpRet},
	})
	require.NoError(t, err)

	onlyPush, err := Compile([]ir.Instruction{
		{Op: ir.OpPush, Operand1: 9},
	})
	require.NoError(t, err)

	// Unsupported opcodes contribute no bytes at all.
	assert.Equal(t, onlyPush, withUnsupported)
	require.NoError(t, Validate(withUnsupported))
}

func TestCodeBodyStripsLocals(t *testing.T) {
	module, err := Compile([]ir.Instruction{
		{Op: ir.OpPush, Operand1: 7},
	})
	require.NoError(t, err)

	body, err := CodeBody(module)
	require.NoError(t, err)

	want := append([]byte{OpcodeI64Const}, leb128.EncodeInt64(7)...)
	want = append(want, OpcodeCall, PrintFuncIndex, OpcodeEnd)
	assert.Equal(t, want, body)
}

func TestCodeBodyRejectsNonModules(t *testing.T) {
	_, err := CodeBody([]byte{0x00, 0x61, 0x73})
	assert.Error(t, err)
}

// Section sizes crossing the one-byte and two-byte LEB128 boundaries must
// still decode to the exact payload length.
func TestCompileMultiByteSectionSizes(t *testing.T) {
	for _, count := range []int{40, 2000} { // ~>127 and ~>16383 byte code sections
		instrs := make([]ir.Instruction, count)
		for i := range instrs {
			instrs[i] = ir.Instruction{Op: ir.OpPush, Operand1: uint64(1 << 40), Addr: uint64(i)}
		}

		module, err := Compile(instrs)
		require.NoError(t, err)

		sections, err := WalkSections(module)
		require.NoError(t, err)
		require.NoError(t, Validate(module))

		code := sections[len(sections)-1]
		assert.Equal(t, uint32(len(code.Payload)), code.Size)
		if count == 2000 {
			assert.Greater(t, len(code.Payload), 16383, "payload should need a 3-byte LEB128 size")
		} else {
			assert.Greater(t, len(code.Payload), 127, "payload should need a 2-byte LEB128 size")
		}
	}
}
