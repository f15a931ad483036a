// Package wasm serializes IR instruction sequences into WebAssembly 1.0
// binary modules. Every emitted module imports the same two things — a
// linear memory and a diagnostic print function — so any host can
// instantiate it by supplying exactly those imports.
package wasm

// Magic is the 4-byte preamble ("\0asm") of the binary format.
var Magic = []byte{0x00, 0x61, 0x73, 0x6D}

// Version is the format version; constant across known spec versions.
var Version = []byte{0x01, 0x00, 0x00, 0x00}

// SectionID identifies a module section.
type SectionID byte

const (
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDMemory   SectionID = 5
	SectionIDExport   SectionID = 7
	SectionIDCode     SectionID = 10
)

// Import kinds.
const (
	ImportKindFunc   byte = 0x00
	ImportKindMemory byte = 0x02
)

// Export kinds.
const (
	ExportKindFunc byte = 0x00
)

// Value and function types.
const (
	ValueTypeI64 byte = 0x7E
	FuncTypeTag  byte = 0x60
)

// Instruction opcodes used by the lowering.
const (
	OpcodeEnd      byte = 0x0B
	OpcodeCall     byte = 0x10
	OpcodeLocalSet byte = 0x21
	OpcodeI64Const byte = 0x42
	OpcodeI64Add   byte = 0x7C
)

// The import/export contract every emitted module adheres to.
const (
	ImportModule    = "env"    // module name for both imports
	MemoryFieldName = "memory" // linear memory import field
	PrintFieldName  = "print"  // diagnostic (i64) -> () import field
	StartExportName = "start"  // sole exported function
)

// Function indices inside the emitted module: imported functions come
// first in the index space.
const (
	PrintFuncIndex = 0
	StartFuncIndex = 1
)
