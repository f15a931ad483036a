package engine

import (
	"github.com/chazu/nacho/pkg/ir"
)

// interpret evaluates one block on a small value stack and returns the
// continuation address. This is the cold tier: correct and slow, and
// the semantics every compiled module must agree with.
func (e *Engine) interpret(block *ir.Block) uint64 {
	var stack []int64

	pop := func() int64 {
		if len(stack) == 0 {
			return 0
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for _, in := range block.Instructions {
		switch in.Op {
		case ir.OpPush:
			stack = append(stack, int64(in.Operand1))
			e.diag(int64(in.Operand1))

		case ir.OpAdd:
			if in.Operand1 == 0 && in.Operand2 == 0 {
				b, a := pop(), pop()
				stack = append(stack, a+b)
			} else {
				stack = append(stack, int64(in.Operand1)+int64(in.Operand2))
			}

		case ir.OpSub:
			if in.Operand1 == 0 && in.Operand2 == 0 {
				b, a := pop(), pop()
				stack = append(stack, a-b)
			} else {
				stack = append(stack, int64(in.Operand1)-int64(in.Operand2))
			}

		case ir.OpSyscall:
			e.diag(pop())

		case ir.OpRet:
			return 0

		case ir.OpCall:
			return in.Operand1

		case ir.OpBranch:
			if in.Operand2 == 1 {
				// Conditional: taken when the top of stack is zero.
				if pop() == 0 {
					return in.Operand1
				}
				return block.EndAddr
			}
			return in.Operand1

		case ir.OpNop, ir.OpMov, ir.OpLoad, ir.OpStore, ir.OpCmp:
			// No stack effect modeled.
		}
	}

	// Block ended at the instruction bound without a control transfer.
	return block.EndAddr
}

// staticNext is the compile-time continuation for a block. Conditional
// branches resolve to the not-taken edge; taking the branch is handled
// by speculation on the compiled tier or by the interpreter.
func staticNext(block *ir.Block) uint64 {
	n := len(block.Instructions)
	if n == 0 {
		return block.EndAddr
	}
	last := block.Instructions[n-1]
	switch last.Op {
	case ir.OpRet:
		return 0
	case ir.OpCall:
		return last.Operand1
	case ir.OpBranch:
		if last.Operand2 == 1 {
			return block.EndAddr
		}
		return last.Operand1
	default:
		return block.EndAddr
	}
}
