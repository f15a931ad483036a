// Package lift drives an architecture decoder over a binary, discovering
// control flow by recursive descent and producing an IR function.
package lift

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/nacho/pkg/decode"
	"github.com/chazu/nacho/pkg/ir"
)

var log = commonlog.GetLogger("nacho.lift")

// Lift disassembles from entry with addresses interpreted as buffer
// offsets (base 0). Bytecode entry addresses are logical, which is the
// same thing for the managed architecture.
func Lift(binary []byte, arch decode.Arch, entry uint64) (*ir.Function, error) {
	return LiftAt(binary, arch, 0, entry)
}

// LiftAt disassembles from entry, mapping address a to buffer offset
// a-base. The worklist is seeded with the entry address; each popped
// address is decoded into one basic block and that block's successors are
// pushed if not yet visited. Addresses are deduplicated, so the worklist
// drains for any finite binary.
//
// A failed decode costs exactly one block: the failure is logged, the
// address's block is absent from the result, and any successor edge
// pointing at it is a dead end the caller must tolerate.
func LiftAt(binary []byte, arch decode.Arch, base, entry uint64) (*ir.Function, error) {
	dec, err := decode.For(arch)
	if err != nil {
		return nil, fmt.Errorf("lift: %w", err)
	}

	fn := ir.NewFunction(entry)
	visited := map[uint64]bool{}
	work := []uint64{entry}

	for len(work) > 0 {
		addr := work[0]
		work = work[1:]
		if visited[addr] {
			continue
		}
		visited[addr] = true

		block := liftOne(dec, binary, base, addr)
		if block == nil {
			continue
		}
		if overlaps(fn, block) {
			log.Warningf("lift: block at 0x%x overlaps an existing block, skipping", addr)
			continue
		}
		fn.Blocks[block.ID] = block

		for _, succ := range block.Successors {
			if !visited[succ] {
				work = append(work, succ)
			}
		}
	}

	return fn, nil
}

// liftOne decodes a single block, confining any decoder failure to this
// one address.
func liftOne(dec decode.Decoder, binary []byte, base, addr uint64) (block *ir.Block) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("lift: decoder panic at 0x%x: %v", addr, r)
			block = nil
		}
	}()

	if addr < base {
		log.Warningf("lift: address 0x%x below base 0x%x, skipping", addr, base)
		return nil
	}
	offset := addr - base
	if offset > uint64(len(binary)) {
		log.Warningf("lift: address 0x%x outside binary bounds, skipping", addr)
		return nil
	}

	block, err := dec.Decode(binary, int(offset), addr)
	if err != nil {
		log.Errorf("lift: decode failed at 0x%x: %v", addr, err)
		return nil
	}
	return block
}

// overlaps reports whether the block's address range intersects a
// different already-discovered block. Jumps into the middle of a lifted
// block are left as dead-end edges rather than producing two blocks that
// cover the same bytes.
func overlaps(fn *ir.Function, block *ir.Block) bool {
	for id, existing := range fn.Blocks {
		if id == block.ID || existing.Len() == 0 || block.Len() == 0 {
			continue
		}
		if block.StartAddr < existing.EndAddr && existing.StartAddr < block.EndAddr {
			return true
		}
	}
	return false
}
