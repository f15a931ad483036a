package wasm

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/nacho/pkg/ir"
	"github.com/chazu/nacho/pkg/wasm/leb128"
)

var log = commonlog.GetLogger("nacho.wasm")

// Compile lowers a flattened IR instruction sequence (one basic block)
// into a complete wasm module. IR opcodes without a lowering are skipped,
// mirroring the decoder's forward-progress policy; the result is always a
// structurally valid module, even for an empty input sequence.
func Compile(instrs []ir.Instruction) ([]byte, error) {
	module := append([]byte{}, Magic...)
	module = append(module, Version...)

	module = append(module, encodeTypeSection()...)
	module = append(module, encodeImportSection()...)
	module = append(module, encodeFunctionSection()...)
	// The memory section slot stays empty: linear memory is imported, not
	// defined.
	module = append(module, encodeExportSection()...)
	module = append(module, encodeCodeSection(lowerBody(instrs))...)

	return module, nil
}

// encodeSection writes the tag byte, then the LEB128 byte length of the
// finalized payload, then the payload. The size is always computed from
// the payload actually written, never assumed at a fixed width.
func encodeSection(id SectionID, contents []byte) []byte {
	out := append([]byte{byte(id)}, leb128.EncodeUint32(uint32(len(contents)))...)
	return append(out, contents...)
}

// encodeTypeSection declares the two signatures the module uses:
// type 0 is (i64) -> () for the print import, type 1 is () -> () for the
// generated start function.
func encodeTypeSection() []byte {
	contents := leb128.EncodeUint32(2)
	contents = append(contents, FuncTypeTag, 1, ValueTypeI64, 0) // (i64) -> ()
	contents = append(contents, FuncTypeTag, 0, 0)               // () -> ()
	return encodeSection(SectionIDType, contents)
}

// encodeImportSection declares env.memory (min one page) and
// env.print (type 0).
func encodeImportSection() []byte {
	contents := leb128.EncodeUint32(2)

	contents = append(contents, encodeName(ImportModule)...)
	contents = append(contents, encodeName(MemoryFieldName)...)
	contents = append(contents, ImportKindMemory)
	contents = append(contents, 0x00) // limits: min only
	contents = append(contents, leb128.EncodeUint32(1)...)

	contents = append(contents, encodeName(ImportModule)...)
	contents = append(contents, encodeName(PrintFieldName)...)
	contents = append(contents, ImportKindFunc)
	contents = append(contents, leb128.EncodeUint32(0)...) // type 0

	return encodeSection(SectionIDImport, contents)
}

func encodeFunctionSection() []byte {
	contents := leb128.EncodeUint32(1)
	contents = append(contents, leb128.EncodeUint32(1)...) // start: type 1
	return encodeSection(SectionIDFunction, contents)
}

func encodeExportSection() []byte {
	contents := leb128.EncodeUint32(1)
	contents = append(contents, encodeName(StartExportName)...)
	contents = append(contents, ExportKindFunc)
	contents = append(contents, leb128.EncodeUint32(StartFuncIndex)...)
	return encodeSection(SectionIDExport, contents)
}

func encodeCodeSection(body []byte) []byte {
	// One local declaration run: a single i64 scratch local.
	code := leb128.EncodeUint32(1)
	code = append(code, leb128.EncodeUint32(1)...)
	code = append(code, ValueTypeI64)
	code = append(code, body...)
	code = append(code, OpcodeEnd)

	contents := leb128.EncodeUint32(1) // one function body
	contents = append(contents, leb128.EncodeUint32(uint32(len(code)))...)
	contents = append(contents, code...)
	return encodeSection(SectionIDCode, contents)
}

// encodeName writes a size-prefixed UTF-8 name.
func encodeName(s string) []byte {
	return append(leb128.EncodeUint32(uint32(len(s))), s...)
}

// lowerBody translates the IR sequence into function-body instructions.
// An empty input still produces one diagnostic call so instantiating and
// running the module observably does something.
func lowerBody(instrs []ir.Instruction) []byte {
	var body []byte
	for _, in := range instrs {
		switch in.Op {
		case ir.OpPush:
			// Push the constant and hand it to the diagnostic import.
			body = append(body, OpcodeI64Const)
			body = append(body, leb128.EncodeInt64(int64(in.Operand1))...)
			body = append(body, OpcodeCall)
			body = append(body, leb128.EncodeUint32(PrintFuncIndex)...)

		case ir.OpAdd:
			// Add the two constants and park the result in the scratch
			// local.
			body = append(body, OpcodeI64Const)
			body = append(body, leb128.EncodeInt64(int64(in.Operand1))...)
			body = append(body, OpcodeI64Const)
			body = append(body, leb128.EncodeInt64(int64(in.Operand2))...)
			body = append(body, OpcodeI64Add)
			body = append(body, OpcodeLocalSet)
			body = append(body, leb128.EncodeUint32(0)...)

		default:
			log.Debugf("wasm: no lowering for %v at 0x%x, skipping", in.Op, in.Addr)
		}
	}

	if len(body) == 0 {
		body = append(body, OpcodeI64Const, 0x00)
		body = append(body, OpcodeCall)
		body = append(body, leb128.EncodeUint32(PrintFuncIndex)...)
	}
	return body
}
