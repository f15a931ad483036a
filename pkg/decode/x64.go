package decode

import (
	"encoding/binary"

	"github.com/chazu/nacho/pkg/ir"
)

// x64Decoder decodes the x86-64 subset the translator recognizes. The
// coverage is deliberately partial: anything outside the table lowers to a
// one-byte nop so lifting never stalls on an exotic encoding.
type x64Decoder struct{}

func (x64Decoder) Arch() Arch { return ArchX64 }

func (x64Decoder) Decode(buf []byte, offset int, addr uint64) (*ir.Block, error) {
	block := ir.NewBlock(addr)
	if offset >= len(buf) {
		return block, nil
	}

	pc := offset
	for len(block.Instructions) < MaxBlockInstructions && pc < len(buf) {
		iaddr := addr + uint64(pc-offset)
		op, op1, op2, size, ok := decodeX64One(buf, pc, iaddr)
		if !ok {
			// Truncated instruction at buffer end: consume the remainder
			// as a nop and stop.
			remaining := uint8(len(buf) - pc)
			log.Debugf("x64: truncated instruction at 0x%x, lowering %d byte(s) to nop", iaddr, remaining)
			block.Append(ir.OpNop, 0, 0, iaddr, remaining)
			return block, nil
		}

		block.Append(op, op1, op2, iaddr, size)
		pc += int(size)

		if op.IsControlTransfer() {
			next := iaddr + uint64(size)
			switch op {
			case ir.OpRet:
				// no successors
			case ir.OpBranch:
				block.AddSuccessor(op1)
				if op2 != 0 { // conditional: fall-through is also reachable
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
		// Block length bound hit mid-stream: the rest of the run continues
		// at the next address.
		block.AddSuccessor(addr + uint64(pc-offset))
	}
	return block, nil
}

// decodeX64One decodes the single instruction at buf[pc], labeled with
// address iaddr. ok is false when the encoding needs more bytes than the
// buffer holds.
func decodeX64One(buf []byte, pc int, iaddr uint64) (op ir.Opcode, op1, op2 uint64, size uint8, ok bool) {
	b := buf[pc]
	switch {
	case b == 0x90: // nop
		return ir.OpNop, 0, 0, 1, true

	case b == 0xC3: // ret
		return ir.OpRet, 0, 0, 1, true

	case b == 0xE9: // jmp rel32
		if pc+5 > len(buf) {
			return 0, 0, 0, 0, false
		}
		rel := int32(binary.LittleEndian.Uint32(buf[pc+1:]))
		target := uint64(int64(iaddr) + 5 + int64(rel))
		return ir.OpBranch, target, 0, 5, true

	case b == 0xE8: // call rel32
		if pc+5 > len(buf) {
			return 0, 0, 0, 0, false
		}
		rel := int32(binary.LittleEndian.Uint32(buf[pc+1:]))
		target := uint64(int64(iaddr) + 5 + int64(rel))
		return ir.OpCall, target, 0, 5, true

	case b == 0x74 || b == 0x75: // jz/jnz rel8
		if pc+2 > len(buf) {
			return 0, 0, 0, 0, false
		}
		rel := int8(buf[pc+1])
		target := uint64(int64(iaddr) + 2 + int64(rel))
		return ir.OpBranch, target, 1, 2, true

	case b == 0xB8: // mov eax, imm32
		if pc+5 > len(buf) {
			return 0, 0, 0, 0, false
		}
		return ir.OpMov, 0, uint64(binary.LittleEndian.Uint32(buf[pc+1:])), 5, true

	case b >= 0x50 && b <= 0x57: // push reg (operand is the register number)
		return ir.OpPush, uint64(b - 0x50), 0, 1, true

	case b == 0x6A: // push imm8
		if pc+2 > len(buf) {
			return 0, 0, 0, 0, false
		}
		return ir.OpPush, uint64(buf[pc+1]), 0, 2, true

	case b == 0x68: // push imm32
		if pc+5 > len(buf) {
			return 0, 0, 0, 0, false
		}
		return ir.OpPush, uint64(binary.LittleEndian.Uint32(buf[pc+1:])), 0, 5, true

	case b == 0x48: // REX.W prefix
		if pc+3 <= len(buf) && buf[pc+1] == 0x89 && buf[pc+2] == 0xE5 {
			// mov rbp, rsp
			return ir.OpMov, 0, 1, 3, true
		}
		// Unhandled REX-prefixed instruction: skip the prefix byte.
		log.Debugf("x64: unhandled REX-prefixed encoding at 0x%x", iaddr)
		return ir.OpNop, 0, 0, 1, true

	case b == 0x01: // add r/m, r
		if pc+2 > len(buf) {
			return 0, 0, 0, 0, false
		}
		modrm := buf[pc+1]
		return ir.OpAdd, uint64(modrm & 0x07), uint64(modrm >> 3 & 0x07), 2, true

	default:
		log.Debugf("x64: unrecognized opcode 0x%02x at 0x%x", b, iaddr)
		return ir.OpNop, 0, 0, 1, true
	}
}
