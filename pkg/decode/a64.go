package decode

import (
	"encoding/binary"

	"github.com/chazu/nacho/pkg/ir"
)

// a64Decoder decodes a subset of AArch64. Instructions are fixed 4-byte
// little-endian words, which makes truncation detection trivial: fewer
// than four bytes remaining is a truncated word.
type a64Decoder struct{}

func (a64Decoder) Arch() Arch { return ArchA64 }

const a64WordSize = 4

func (a64Decoder) Decode(buf []byte, offset int, addr uint64) (*ir.Block, error) {
	block := ir.NewBlock(addr)
	if offset >= len(buf) {
		return block, nil
	}

	pc := offset
	for len(block.Instructions) < MaxBlockInstructions && pc < len(buf) {
		iaddr := addr + uint64(pc-offset)
		if pc+a64WordSize > len(buf) {
			remaining := uint8(len(buf) - pc)
			log.Debugf("a64: truncated word at 0x%x, lowering %d byte(s) to nop", iaddr, remaining)
			block.Append(ir.OpNop, 0, 0, iaddr, remaining)
			return block, nil
		}

		word := binary.LittleEndian.Uint32(buf[pc:])
		op, op1, op2 := decodeA64Word(word, iaddr)
		block.Append(op, op1, op2, iaddr, a64WordSize)
		pc += a64WordSize

		if op.IsControlTransfer() {
			next := iaddr + a64WordSize
			switch op {
			case ir.OpRet:
				// no successors
			case ir.OpBranch:
				block.AddSuccessor(op1)
				if op2 != 0 {
					block.AddSuccessor(next)
				}
			case ir.OpCall:
				block.AddSuccessor(op1)
				block.AddSuccessor(next)
			}
			return block, nil
		}
	}

	if pc < len(buf) {
		block.AddSuccessor(addr + uint64(pc-offset))
	}
	return block, nil
}

// decodeA64Word maps one 32-bit instruction word to IR.
func decodeA64Word(word uint32, iaddr uint64) (op ir.Opcode, op1, op2 uint64) {
	switch {
	case word == 0xD503201F: // nop
		return ir.OpNop, 0, 0

	case word == 0xD65F03C0: // ret
		return ir.OpRet, 0, 0

	case word>>26 == 0x05: // b imm26
		return ir.OpBranch, branchTarget(word, iaddr), 0

	case word>>26 == 0x25: // bl imm26
		return ir.OpCall, branchTarget(word, iaddr), 0

	case word&0x7F000000 == 0x34000000: // cbz Rt, imm19
		imm19 := int64(int32(word<<8) >> 13) // sign-extend bits [23:5]
		target := uint64(int64(iaddr) + imm19*4)
		return ir.OpBranch, target, 1

	case word>>24 == 0x91: // add Xd, Xn, #imm12
		imm12 := uint64(word >> 10 & 0xFFF)
		return ir.OpAdd, uint64(word & 0x1F), imm12

	case word>>24 == 0xD2: // movz Xd, #imm16
		return ir.OpMov, uint64(word & 0x1F), uint64(word >> 5 & 0xFFFF)

	default:
		log.Debugf("a64: unrecognized word 0x%08x at 0x%x", word, iaddr)
		return ir.OpNop, 0, 0
	}
}

// branchTarget resolves a b/bl imm26 word-offset target relative to the
// instruction's own address.
func branchTarget(word uint32, iaddr uint64) uint64 {
	imm26 := int64(int32(word<<6) >> 6) // sign-extend bits [25:0]
	return uint64(int64(iaddr) + imm26*4)
}
