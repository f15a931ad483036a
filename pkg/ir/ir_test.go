package ir

import (
	"strings"
	"testing"
)

func TestBlockAppend(t *testing.T) {
	b := NewBlock(0x1000)

	if b.ID != 0x1000 || b.StartAddr != 0x1000 {
		t.Fatalf("block id/start = %#x/%#x, want 0x1000", b.ID, b.StartAddr)
	}
	if b.EndAddr != b.StartAddr {
		t.Errorf("empty block EndAddr = %#x, want StartAddr", b.EndAddr)
	}

	b.Append(OpPush, 42, 0, 0x1000, 5)
	b.Append(OpRet, 0, 0, 0x1005, 1)

	if len(b.Instructions) != 2 {
		t.Fatalf("len(Instructions) = %d, want 2", len(b.Instructions))
	}
	if b.Instructions[0].ID != 0 || b.Instructions[1].ID != 1 {
		t.Errorf("instruction IDs = %d, %d, want 0, 1", b.Instructions[0].ID, b.Instructions[1].ID)
	}
	if b.EndAddr != 0x1006 {
		t.Errorf("EndAddr = %#x, want 0x1006", b.EndAddr)
	}
	if b.Len() != 6 {
		t.Errorf("Len() = %d, want 6", b.Len())
	}
}

func TestBlockAddSuccessorDedup(t *testing.T) {
	b := NewBlock(0)
	b.AddSuccessor(0x10)
	b.AddSuccessor(0x20)
	b.AddSuccessor(0x10)

	if len(b.Successors) != 2 {
		t.Errorf("Successors = %v, want two distinct entries", b.Successors)
	}
}

func TestNewFunctionEntryInvariant(t *testing.T) {
	f := NewFunction(0x4000)

	if f.Name != "sub_4000" {
		t.Errorf("Name = %q, want sub_4000", f.Name)
	}
	if f.EntryBlock() == nil {
		t.Fatal("entry block missing from Blocks")
	}
	if f.EntryBlock().ID != 0x4000 {
		t.Errorf("entry block id = %#x, want 0x4000", f.EntryBlock().ID)
	}
}

func TestReachableHandlesCycles(t *testing.T) {
	f := NewFunction(0x100)
	f.EntryBlock().AddSuccessor(0x200)

	b2 := NewBlock(0x200)
	b2.AddSuccessor(0x100) // loop back to entry
	b2.AddSuccessor(0x300) // dead edge: block was never lifted
	f.Blocks[0x200] = b2

	order := f.Reachable()
	if len(order) != 2 {
		t.Fatalf("Reachable() = %v, want 2 blocks", order)
	}
	if order[0] != 0x100 || order[1] != 0x200 {
		t.Errorf("Reachable() order = %v, want [0x100 0x200]", order)
	}
}

func TestOpcodeString(t *testing.T) {
	if OpPush.String() != "push" {
		t.Errorf("OpPush.String() = %q", OpPush.String())
	}
	if !strings.HasPrefix(Opcode(200).String(), "Opcode(") {
		t.Errorf("unknown opcode String() = %q", Opcode(200).String())
	}
}

func TestControlTransferOpcodes(t *testing.T) {
	for _, op := range []Opcode{OpCall, OpBranch, OpRet} {
		if !op.IsControlTransfer() {
			t.Errorf("%v.IsControlTransfer() = false", op)
		}
	}
	for _, op := range []Opcode{OpNop, OpPush, OpAdd, OpMov} {
		if op.IsControlTransfer() {
			t.Errorf("%v.IsControlTransfer() = true", op)
		}
	}
}

func TestDisassemble(t *testing.T) {
	f := NewFunction(0x1000)
	f.EntryBlock().Append(OpPush, 1337, 0, 0x1000, 5)
	f.EntryBlock().Append(OpBranch, 0x1004, 0, 0x1005, 5)
	f.EntryBlock().AddSuccessor(0x1004)

	listing := f.Disassemble()
	for _, want := range []string{"sub_1000", "block_1000", "push", "0x539", "branch", "-> 0x1004"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}
