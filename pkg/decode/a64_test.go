package decode

import (
	"encoding/binary"
	"testing"

	"github.com/chazu/nacho/pkg/ir"
)

func a64Words(words ...uint32) []byte {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	return buf
}

func TestA64NopAndRet(t *testing.T) {
	d, err := For(ArchA64)
	if err != nil {
		t.Fatalf("For(ArchA64): %v", err)
	}

	block, err := d.Decode(a64Words(0xD503201F, 0xD65F03C0), 0, 0x4000)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(block.Instructions) != 2 {
		t.Fatalf("len(Instructions) = %d, want 2", len(block.Instructions))
	}
	if block.Instructions[0].Op != ir.OpNop || block.Instructions[0].Size != 4 {
		t.Errorf("first = %v size %d, want nop size 4", block.Instructions[0].Op, block.Instructions[0].Size)
	}
	if block.Instructions[1].Op != ir.OpRet {
		t.Errorf("second = %v, want ret", block.Instructions[1].Op)
	}
	if len(block.Successors) != 0 {
		t.Errorf("Successors = %v, want none", block.Successors)
	}
}

func TestA64ForwardBranch(t *testing.T) {
	d, _ := For(ArchA64)

	// b +2 words from address 0x1000: target 0x1008.
	word := uint32(0x05)<<26 | 2
	block, err := d.Decode(a64Words(word), 0, 0x1000)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(block.Successors) != 1 || block.Successors[0] != 0x1008 {
		t.Errorf("Successors = %v, want [0x1008]", block.Successors)
	}
}

func TestA64BackwardBranch(t *testing.T) {
	d, _ := For(ArchA64)

	// b -1 word from address 0x1004: target 0x1000.
	word := uint32(0x05)<<26 | (0x3FFFFFF & uint32(0x4000000-1))
	block, err := d.Decode(a64Words(word), 0, 0x1004)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(block.Successors) != 1 || block.Successors[0] != 0x1000 {
		t.Errorf("Successors = %v, want [0x1000]", block.Successors)
	}
}

func TestA64CBZBothEdges(t *testing.T) {
	d, _ := For(ArchA64)

	// cbz x0, +4 words from 0x2000: target 0x2010, fall-through 0x2004.
	word := uint32(0xB4000000) | 4<<5
	block, err := d.Decode(a64Words(word), 0, 0x2000)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[uint64]bool{0x2010: true, 0x2004: true}
	if len(block.Successors) != 2 {
		t.Fatalf("Successors = %v, want two", block.Successors)
	}
	for _, s := range block.Successors {
		if !want[s] {
			t.Errorf("unexpected successor %#x", s)
		}
	}
	if block.Instructions[0].Operand2 != 1 {
		t.Error("cbz not marked conditional")
	}
}

func TestA64MovzAndAdd(t *testing.T) {
	d, _ := For(ArchA64)

	movz := uint32(0xD2)<<24 | 42<<5 | 3 // movz x3, #42
	add := uint32(0x91)<<24 | 7<<10 | 5  // add x5, xn, #7
	ret := uint32(0xD65F03C0)

	block, err := d.Decode(a64Words(movz, add, ret), 0, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if block.Instructions[0].Op != ir.OpMov || block.Instructions[0].Operand2 != 42 {
		t.Errorf("movz lowered to %v operand %d", block.Instructions[0].Op, block.Instructions[0].Operand2)
	}
	if block.Instructions[1].Op != ir.OpAdd || block.Instructions[1].Operand2 != 7 {
		t.Errorf("add lowered to %v operand %d", block.Instructions[1].Op, block.Instructions[1].Operand2)
	}
}

func TestA64TruncatedWord(t *testing.T) {
	d, _ := For(ArchA64)

	block, err := d.Decode([]byte{0x1F, 0x20}, 0, 0x100)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(block.Instructions) != 1 {
		t.Fatalf("len(Instructions) = %d, want 1", len(block.Instructions))
	}
	if block.Instructions[0].Op != ir.OpNop || block.Instructions[0].Size != 2 {
		t.Errorf("truncated word = %v size %d, want nop size 2",
			block.Instructions[0].Op, block.Instructions[0].Size)
	}
}
