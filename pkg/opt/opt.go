// Package opt implements the IR transforms applied when an address is
// promoted to the optimized tier. Each pass has a stable name that the
// engine records on the compiled module it produced.
package opt

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/nacho/pkg/ir"
)

var log = commonlog.GetLogger("nacho.opt")

// Pass names. Loop unrolling and inlining need a multi-block unit of
// compilation; with single-block modules these three are the passes that
// have something to work on.
const (
	PassNopElide     = "nop-elide"
	PassConstantFold = "constant-fold"
	PassPushCombine  = "push-combine"
)

// DefaultPasses returns the transform list for the optimized tier.
func DefaultPasses() []string {
	return []string{PassNopElide, PassConstantFold, PassPushCombine}
}

// Apply runs the named passes in order over a copy of the instruction
// sequence, returning the transformed sequence and the names of the
// passes that ran. Unknown pass names are logged and skipped.
func Apply(instrs []ir.Instruction, passes ...string) ([]ir.Instruction, []string) {
	out := make([]ir.Instruction, len(instrs))
	copy(out, instrs)

	var applied []string
	for _, name := range passes {
		switch name {
		case PassNopElide:
			out = elideNops(out)
		case PassConstantFold:
			out = foldConstants(out)
		case PassPushCombine:
			out = combinePushes(out)
		default:
			log.Warningf("opt: unknown pass %q, skipping", name)
			continue
		}
		applied = append(applied, name)
	}
	return renumber(out), applied
}

// elideNops drops instructions with no effect.
func elideNops(instrs []ir.Instruction) []ir.Instruction {
	out := instrs[:0]
	for _, in := range instrs {
		if in.Op == ir.OpNop {
			continue
		}
		out = append(out, in)
	}
	return out
}

// foldConstants replaces a push/push/add triple with a single push of the
// sum. Only operand-less adds fold (the form the stack-bytecode decoder
// emits); an add that already carries operands is its own computation.
// Folding against the output tail lets chains like push/push/add/push/add
// collapse in one pass.
func foldConstants(instrs []ir.Instruction) []ir.Instruction {
	var out []ir.Instruction
	for _, in := range instrs {
		if in.Op == ir.OpAdd && in.Operand1 == 0 && in.Operand2 == 0 && len(out) >= 2 &&
			out[len(out)-1].Op == ir.OpPush && out[len(out)-2].Op == ir.OpPush {
			b := out[len(out)-1]
			a := out[len(out)-2]
			folded := ir.Instruction{
				Op:       ir.OpPush,
				Operand1: a.Operand1 + b.Operand1,
				Addr:     a.Addr,
				Size:     a.Size + b.Size + in.Size,
			}
			out = append(out[:len(out)-2], folded)
			continue
		}
		out = append(out, in)
	}
	return out
}

// combinePushes merges adjacent pushes of the same constant into one,
// dropping the redundant re-materialization.
func combinePushes(instrs []ir.Instruction) []ir.Instruction {
	var out []ir.Instruction
	for _, in := range instrs {
		if in.Op == ir.OpPush && len(out) > 0 {
			last := &out[len(out)-1]
			if last.Op == ir.OpPush && last.Operand1 == in.Operand1 {
				last.Size += in.Size
				continue
			}
		}
		out = append(out, in)
	}
	return out
}

// renumber restores the sequence-local ID invariant after passes that
// drop instructions.
func renumber(instrs []ir.Instruction) []ir.Instruction {
	for i := range instrs {
		instrs[i].ID = i
	}
	return instrs
}
