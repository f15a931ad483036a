// Package decode turns foreign instruction bytes into IR basic blocks.
//
// Each architecture has one stateless, reentrant decoder implementing the
// same contract: decode exactly one basic block starting at the given
// buffer offset, ending at the first control transfer or after a bounded
// number of instructions. Unrecognized encodings lower to nops and are
// logged rather than failing the decode, so lifting keeps making forward
// progress over incompletely specified input.
package decode

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/nacho/pkg/ir"
)

var log = commonlog.GetLogger("nacho.decode")

// Arch identifies which decoder to use for a code buffer. It is supplied
// by the loader and immutable for the lifetime of a translation.
type Arch uint8

const (
	ArchX64     Arch = iota // native ISA, variable-length encoding
	ArchA64                 // native ISA, fixed 4-byte words
	ArchManaged             // stack bytecode with per-opcode operand widths
)

// String returns the architecture tag name.
func (a Arch) String() string {
	switch a {
	case ArchX64:
		return "x64"
	case ArchA64:
		return "a64"
	case ArchManaged:
		return "managed"
	default:
		return fmt.Sprintf("Arch(%d)", a)
	}
}

// ParseArch resolves an architecture tag name as used in nacho.toml and on
// the command line.
func ParseArch(s string) (Arch, error) {
	switch s {
	case "x64":
		return ArchX64, nil
	case "a64":
		return ArchA64, nil
	case "managed":
		return ArchManaged, nil
	default:
		return 0, fmt.Errorf("decode: unknown architecture %q", s)
	}
}

// MaxBlockInstructions bounds a single block so a buffer of valid
// straight-line code cannot produce an unbounded block. Overridable from
// nacho.toml at startup, before any decoding begins.
var MaxBlockInstructions = 128

// Decoder decodes one basic block per call. Implementations hold no
// mutable state, so a single instance may be shared across concurrent
// lifts.
type Decoder interface {
	// Decode reads instructions from buf starting at offset, labeling them
	// with addresses starting at addr. If offset is at or past the end of
	// buf the result is an empty block with no successors.
	Decode(buf []byte, offset int, addr uint64) (*ir.Block, error)
	// Arch returns the tag this decoder serves.
	Arch() Arch
}

// decoders is the registry of concrete decoder instances keyed by
// architecture tag, built at startup.
var decoders = map[Arch]Decoder{
	ArchX64:     x64Decoder{},
	ArchA64:     a64Decoder{},
	ArchManaged: managedDecoder{},
}

// For returns the decoder registered for the architecture.
func For(arch Arch) (Decoder, error) {
	d, ok := decoders[arch]
	if !ok {
		return nil, fmt.Errorf("decode: no decoder registered for %v", arch)
	}
	return d, nil
}
