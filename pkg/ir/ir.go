// Package ir defines the architecture-neutral instruction model shared by
// the decoders, the control-flow lifter and the wasm emitter. Decoders lift
// foreign instructions into ir.Instruction values grouped into basic
// blocks; the emitter lowers them without ever looking back at the foreign
// encoding.
package ir

import "fmt"

// Opcode identifies a single IR operation.
type Opcode uint8

const (
	OpNop     Opcode = iota // no effect, placeholder for unrecognized encodings
	OpLoad                  // operand1 = register, operand2 = address
	OpStore                 // operand1 = address, operand2 = register
	OpMov                   // operand1 = destination, operand2 = source/immediate
	OpPush                  // operand1 = value pushed
	OpAdd                   // operand1, operand2 = addends
	OpSub                   // operand1, operand2 = minuend, subtrahend
	OpCmp                   // operand1, operand2 = compared values
	OpCall                  // operand1 = target address
	OpBranch                // operand1 = target address, operand2 = 1 if conditional
	OpRet                   // return to caller
	OpSyscall               // operand1 = syscall number
)

// String returns the IR mnemonic.
func (op Opcode) String() string {
	switch op {
	case OpNop:
		return "nop"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpMov:
		return "mov"
	case OpPush:
		return "push"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpCmp:
		return "cmp"
	case OpCall:
		return "call"
	case OpBranch:
		return "branch"
	case OpRet:
		return "ret"
	case OpSyscall:
		return "syscall"
	default:
		return fmt.Sprintf("Opcode(%d)", op)
	}
}

// IsControlTransfer reports whether the opcode ends a basic block.
func (op Opcode) IsControlTransfer() bool {
	switch op {
	case OpCall, OpBranch, OpRet:
		return true
	default:
		return false
	}
}

// Instruction is one lifted operation. Operands are 64-bit values whose
// meaning depends on the opcode (immediates for Push/Add, target addresses
// for Call/Branch). Addr and Size locate the originating foreign
// instruction so the engine can advance its logical instruction pointer.
type Instruction struct {
	ID       int    `cbor:"1,keyasint"` // sequence-local, unique within the owning block
	Op       Opcode `cbor:"2,keyasint"`
	Operand1 uint64 `cbor:"3,keyasint"`
	Operand2 uint64 `cbor:"4,keyasint"`
	Addr     uint64 `cbor:"5,keyasint"` // origin address in the foreign binary
	Size     uint8  `cbor:"6,keyasint"` // encoded length of the foreign instruction
}

// Block is a straight-line run of instructions discovered at StartAddr.
// Successors hold addresses, not block pointers, so a control-flow graph
// with loops never forms an ownership cycle.
type Block struct {
	ID           uint64        `cbor:"1,keyasint"` // always equal to StartAddr
	StartAddr    uint64        `cbor:"2,keyasint"`
	EndAddr      uint64        `cbor:"3,keyasint"`
	Instructions []Instruction `cbor:"4,keyasint"`
	Successors   []uint64      `cbor:"5,keyasint"`
}

// NewBlock creates an empty block at the given address.
func NewBlock(addr uint64) *Block {
	return &Block{ID: addr, StartAddr: addr, EndAddr: addr}
}

// Append adds an instruction, assigning its block-local ID and extending
// the block's address range past the instruction.
func (b *Block) Append(op Opcode, operand1, operand2, addr uint64, size uint8) {
	b.Instructions = append(b.Instructions, Instruction{
		ID:       len(b.Instructions),
		Op:       op,
		Operand1: operand1,
		Operand2: operand2,
		Addr:     addr,
		Size:     size,
	})
	if end := addr + uint64(size); end > b.EndAddr {
		b.EndAddr = end
	}
}

// AddSuccessor records a control-flow edge to the given address,
// deduplicating repeated targets.
func (b *Block) AddSuccessor(addr uint64) {
	for _, s := range b.Successors {
		if s == addr {
			return
		}
	}
	b.Successors = append(b.Successors, addr)
}

// Len returns the byte length of the foreign code range covered by the
// block.
func (b *Block) Len() uint64 {
	return b.EndAddr - b.StartAddr
}

// Signature describes the calling convention of a lifted function. Lifted
// entry points take no parameters; the descriptor exists so later decoders
// can attach richer conventions without changing Function.
type Signature struct {
	Params  int `cbor:"1,keyasint"`
	Results int `cbor:"2,keyasint"`
}

// Function is the result of lifting one entry point: an arena of blocks
// indexed by start address. The graph may contain cycles (loops), so any
// traversal must carry a visited set.
type Function struct {
	Name      string            `cbor:"1,keyasint"`
	Entry     uint64            `cbor:"2,keyasint"`
	Blocks    map[uint64]*Block `cbor:"3,keyasint"`
	Signature Signature         `cbor:"4,keyasint"`
}

// NewFunction creates a function with a name derived from its entry
// address and an empty entry block so the Blocks[Entry] invariant holds
// from the start.
func NewFunction(entry uint64) *Function {
	f := &Function{
		Name:   fmt.Sprintf("sub_%x", entry),
		Entry:  entry,
		Blocks: map[uint64]*Block{},
	}
	f.Blocks[entry] = NewBlock(entry)
	return f
}

// EntryBlock returns the block at the function's entry address.
func (f *Function) EntryBlock() *Block {
	return f.Blocks[f.Entry]
}

// EntryInstructions returns the flattened instruction sequence of the
// entry block, the unit handed to the wasm emitter.
func (f *Function) EntryInstructions() []Instruction {
	b := f.EntryBlock()
	if b == nil {
		return nil
	}
	return b.Instructions
}

// BlockCount returns the number of discovered blocks.
func (f *Function) BlockCount() int {
	return len(f.Blocks)
}

// Reachable walks the graph from the entry with a visited set and returns
// the addresses of every block actually present; successor edges pointing
// at addresses that were never lifted (failed decodes) are skipped.
func (f *Function) Reachable() []uint64 {
	visited := map[uint64]bool{}
	var order []uint64
	work := []uint64{f.Entry}
	for len(work) > 0 {
		addr := work[0]
		work = work[1:]
		if visited[addr] {
			continue
		}
		visited[addr] = true
		b, ok := f.Blocks[addr]
		if !ok {
			continue
		}
		order = append(order, addr)
		work = append(work, b.Successors...)
	}
	return order
}
