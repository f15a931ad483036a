package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble returns a human-readable listing of the function's blocks in
// address order.
func (f *Function) Disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; === %s ===\n", f.Name))
	sb.WriteString(fmt.Sprintf("; entry 0x%x, %d block(s)\n\n", f.Entry, len(f.Blocks)))

	addrs := make([]uint64, 0, len(f.Blocks))
	for addr := range f.Blocks {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	for _, addr := range addrs {
		sb.WriteString(f.Blocks[addr].disassemble())
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Block) disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("block_%x:  ; [0x%x, 0x%x)\n", b.ID, b.StartAddr, b.EndAddr))
	for _, in := range b.Instructions {
		sb.WriteString(fmt.Sprintf("  0x%08x  %-8s", in.Addr, in.Op))
		switch in.Op {
		case OpNop, OpRet:
			// no operands
		case OpPush, OpCall, OpSyscall:
			sb.WriteString(fmt.Sprintf(" 0x%x", in.Operand1))
		case OpBranch:
			sb.WriteString(fmt.Sprintf(" 0x%x", in.Operand1))
			if in.Operand2 != 0 {
				sb.WriteString(" [cond]")
			}
		default:
			sb.WriteString(fmt.Sprintf(" 0x%x, 0x%x", in.Operand1, in.Operand2))
		}
		sb.WriteString("\n")
	}
	if len(b.Successors) > 0 {
		sb.WriteString("  ; ->")
		for _, s := range b.Successors {
			sb.WriteString(fmt.Sprintf(" 0x%x", s))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
