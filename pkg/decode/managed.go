package decode

import (
	"fmt"

	"github.com/chazu/nacho/pkg/ir"
)

// MOpcode is one instruction of the managed bytecode format. Operand data
// follows the opcode byte inline; the width is fixed per opcode (0 to 3
// bytes). Multi-byte operands are big-endian.
type MOpcode byte

const (
	// Stack operations (0x00-0x0F)
	MOpNop MOpcode = 0x00 // no operation
	MOpPop MOpcode = 0x01 // discard top of stack
	MOpDup MOpcode = 0x02 // duplicate top of stack

	// Constants (0x10-0x1F)
	MOpPush1 MOpcode = 0x10 // push 8-bit immediate
	MOpPush2 MOpcode = 0x11 // push 16-bit immediate
	MOpPush3 MOpcode = 0x12 // push 24-bit immediate

	// Arithmetic (0x20-0x2F)
	MOpAdd MOpcode = 0x20 // pop two, push sum
	MOpSub MOpcode = 0x21 // pop two, push difference

	// Slots (0x30-0x3F)
	MOpLoad  MOpcode = 0x30 // push slot value (16-bit slot index)
	MOpStore MOpcode = 0x31 // pop into slot (16-bit slot index)

	// Control flow (0x40-0x4F)
	MOpJump  MOpcode = 0x40 // unconditional jump (16-bit absolute target)
	MOpJumpZ MOpcode = 0x41 // pop, jump if zero (16-bit absolute target)
	MOpCall  MOpcode = 0x42 // call (16-bit absolute target)
	MOpRet   MOpcode = 0x43 // return

	// Host services (0x50-0x5F)
	MOpSyscall MOpcode = 0x50 // invoke host service (8-bit number)
)

// String returns the bytecode mnemonic.
func (op MOpcode) String() string {
	switch op {
	case MOpNop:
		return "m.nop"
	case MOpPop:
		return "m.pop"
	case MOpDup:
		return "m.dup"
	case MOpPush1:
		return "m.push1"
	case MOpPush2:
		return "m.push2"
	case MOpPush3:
		return "m.push3"
	case MOpAdd:
		return "m.add"
	case MOpSub:
		return "m.sub"
	case MOpLoad:
		return "m.load"
	case MOpStore:
		return "m.store"
	case MOpJump:
		return "m.jump"
	case MOpJumpZ:
		return "m.jumpz"
	case MOpCall:
		return "m.call"
	case MOpRet:
		return "m.ret"
	case MOpSyscall:
		return "m.syscall"
	default:
		return fmt.Sprintf("MOpcode(0x%02x)", byte(op))
	}
}

// operandWidth returns the number of operand bytes following the opcode,
// or -1 for unrecognized opcodes.
func (op MOpcode) operandWidth() int {
	switch op {
	case MOpNop, MOpPop, MOpDup, MOpAdd, MOpSub, MOpRet:
		return 0
	case MOpPush1, MOpSyscall:
		return 1
	case MOpPush2, MOpLoad, MOpStore, MOpJump, MOpJumpZ, MOpCall:
		return 2
	case MOpPush3:
		return 3
	default:
		return -1
	}
}

// managedDecoder decodes the stack bytecode format. Addresses are logical:
// an instruction's address is its offset into the code stream, so addr and
// offset advance in lockstep.
type managedDecoder struct{}

func (managedDecoder) Arch() Arch { return ArchManaged }

func (managedDecoder) Decode(buf []byte, offset int, addr uint64) (*ir.Block, error) {
	block := ir.NewBlock(addr)
	if offset >= len(buf) {
		return block, nil
	}

	pc := offset
	for len(block.Instructions) < MaxBlockInstructions && pc < len(buf) {
		iaddr := addr + uint64(pc-offset)
		op := MOpcode(buf[pc])

		width := op.operandWidth()
		if width < 0 {
			log.Debugf("managed: unrecognized opcode 0x%02x at 0x%x", byte(op), iaddr)
			block.Append(ir.OpNop, 0, 0, iaddr, 1)
			pc++
			continue
		}
		if pc+1+width > len(buf) {
			// Operand runs past the buffer end: truncated instruction.
			remaining := uint8(len(buf) - pc)
			log.Debugf("managed: truncated %v at 0x%x, lowering %d byte(s) to nop", op, iaddr, remaining)
			block.Append(ir.OpNop, 0, 0, iaddr, remaining)
			return block, nil
		}

		operand := uint64(0)
		for i := 0; i < width; i++ { // big-endian
			operand = operand<<8 | uint64(buf[pc+1+i])
		}
		size := uint8(1 + width)

		irOp, op1, op2 := lowerManaged(op, operand)
		block.Append(irOp, op1, op2, iaddr, size)
		pc += int(size)

		if irOp.IsControlTransfer() {
			next := iaddr + uint64(size)
			switch irOp {
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

// lowerManaged maps one managed bytecode instruction to IR.
func lowerManaged(op MOpcode, operand uint64) (irOp ir.Opcode, op1, op2 uint64) {
	switch op {
	case MOpNop, MOpPop, MOpDup:
		return ir.OpNop, 0, 0
	case MOpPush1, MOpPush2, MOpPush3:
		return ir.OpPush, operand, 0
	case MOpAdd:
		return ir.OpAdd, 0, 0
	case MOpSub:
		return ir.OpSub, 0, 0
	case MOpLoad:
		return ir.OpLoad, 0, operand
	case MOpStore:
		return ir.OpStore, operand, 0
	case MOpJump:
		return ir.OpBranch, operand, 0
	case MOpJumpZ:
		return ir.OpBranch, operand, 1
	case MOpCall:
		return ir.OpCall, operand, 0
	case MOpRet:
		return ir.OpRet, 0, 0
	case MOpSyscall:
		return ir.OpSyscall, operand, 0
	default:
		return ir.OpNop, 0, 0
	}
}
