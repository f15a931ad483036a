package engine

import (
	"bytes"
	"fmt"

	"github.com/chazu/nacho/pkg/wasm"
	"github.com/chazu/nacho/pkg/wasm/leb128"
)

// Instance is one instantiated compiled module, runnable from the
// dispatch loop as many times as its address stays cached.
type Instance interface {
	Run() error
}

// newInstance is the default Instantiator: it checks the module
// structurally, binds the print import to the engine's diagnostic sink,
// and returns an instance that executes the start function body. The
// lowering only ever emits straight-line constants, arithmetic and
// diagnostic calls, so the executor covers exactly that instruction set
// and rejects anything else.
func (e *Engine) newInstance(code []byte) (Instance, error) {
	if err := wasm.Validate(code); err != nil {
		return nil, err
	}
	body, err := wasm.CodeBody(code)
	if err != nil {
		return nil, err
	}
	return &hostInstance{body: body, print: func(v int64) { e.diag(v) }}, nil
}

// hostInstance executes a start function body over a small operand stack
// and the module's single scratch local.
type hostInstance struct {
	body  []byte
	print Diagnostic
}

func (h *hostInstance) Run() error {
	r := bytes.NewReader(h.body)
	var stack []int64
	locals := make([]int64, 1)

	pop := func() (int64, error) {
		if len(stack) == 0 {
			return 0, fmt.Errorf("engine: start body underflows its operand stack")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	for {
		op, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("engine: start body ran past its end marker")
		}
		switch op {
		case wasm.OpcodeEnd:
			return nil

		case wasm.OpcodeI64Const:
			v, _, err := leb128.DecodeInt64(r)
			if err != nil {
				return fmt.Errorf("engine: bad i64 immediate: %w", err)
			}
			stack = append(stack, v)

		case wasm.OpcodeCall:
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return fmt.Errorf("engine: bad call index: %w", err)
			}
			if idx != wasm.PrintFuncIndex {
				return fmt.Errorf("engine: call to unresolvable function %d", idx)
			}
			v, err := pop()
			if err != nil {
				return err
			}
			h.print(v)

		case wasm.OpcodeI64Add:
			b, err := pop()
			if err != nil {
				return err
			}
			a, err := pop()
			if err != nil {
				return err
			}
			stack = append(stack, a+b)

		case wasm.OpcodeLocalSet:
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return fmt.Errorf("engine: bad local index: %w", err)
			}
			if int(idx) >= len(locals) {
				return fmt.Errorf("engine: local %d out of range", idx)
			}
			v, err := pop()
			if err != nil {
				return err
			}
			locals[idx] = v

		default:
			return fmt.Errorf("engine: unsupported opcode 0x%02x in start body", op)
		}
	}
}
