package wasm

import (
	"bytes"
	"fmt"

	"github.com/chazu/nacho/pkg/wasm/leb128"
)

// Section describes one decoded section boundary.
type Section struct {
	ID      SectionID
	Size    uint32 // declared payload size
	Payload []byte
}

// WalkSections decodes the module's section boundaries, verifying the
// header and that every declared size matches the payload actually
// present. It is the structural-validity check used by tests and by the
// engine before accepting a freshly compiled module.
func WalkSections(module []byte) ([]Section, error) {
	if len(module) < 8 {
		return nil, fmt.Errorf("wasm: module too short: %d bytes", len(module))
	}
	if !bytes.Equal(module[0:4], Magic) {
		return nil, fmt.Errorf("wasm: invalid magic %x", module[0:4])
	}
	if !bytes.Equal(module[4:8], Version) {
		return nil, fmt.Errorf("wasm: unsupported version %x", module[4:8])
	}

	var sections []Section
	r := bytes.NewReader(module[8:])
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("wasm: read section id: %w", err)
		}
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("wasm: read section size: %w", err)
		}
		if uint32(r.Len()) < size {
			return nil, fmt.Errorf("wasm: section %d declares %d bytes, %d remain", id, size, r.Len())
		}
		payload := make([]byte, size)
		if _, err := r.Read(payload); err != nil {
			return nil, fmt.Errorf("wasm: read section payload: %w", err)
		}
		sections = append(sections, Section{ID: SectionID(id), Size: size, Payload: payload})
	}
	return sections, nil
}

// CodeBody returns the instruction expression of the module's single
// function body with the local declarations stripped, terminating end
// opcode included. Hosts executing the module read the start function
// from here.
func CodeBody(module []byte) ([]byte, error) {
	sections, err := WalkSections(module)
	if err != nil {
		return nil, err
	}
	for _, s := range sections {
		if s.ID != SectionIDCode {
			continue
		}
		r := bytes.NewReader(s.Payload)
		count, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("wasm: read body count: %w", err)
		}
		if count != 1 {
			return nil, fmt.Errorf("wasm: %d function bodies, want 1", count)
		}
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("wasm: read body size: %w", err)
		}
		if uint32(r.Len()) < size {
			return nil, fmt.Errorf("wasm: body declares %d bytes, %d remain", size, r.Len())
		}
		body := make([]byte, size)
		if _, err := r.Read(body); err != nil {
			return nil, fmt.Errorf("wasm: read body: %w", err)
		}

		// Skip the local declaration runs preceding the expression.
		br := bytes.NewReader(body)
		decls, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, fmt.Errorf("wasm: read local declarations: %w", err)
		}
		for i := uint32(0); i < decls; i++ {
			if _, _, err := leb128.DecodeUint32(br); err != nil {
				return nil, fmt.Errorf("wasm: read local run length: %w", err)
			}
			if _, err := br.ReadByte(); err != nil {
				return nil, fmt.Errorf("wasm: read local value type: %w", err)
			}
		}
		return body[len(body)-br.Len():], nil
	}
	return nil, fmt.Errorf("wasm: module has no code section")
}

// Validate walks the module and checks the section order the emitter
// guarantees: type, import, function, export, code.
func Validate(module []byte) error {
	sections, err := WalkSections(module)
	if err != nil {
		return err
	}
	want := []SectionID{SectionIDType, SectionIDImport, SectionIDFunction, SectionIDExport, SectionIDCode}
	if len(sections) != len(want) {
		return fmt.Errorf("wasm: %d sections, want %d", len(sections), len(want))
	}
	for i, s := range sections {
		if s.ID != want[i] {
			return fmt.Errorf("wasm: section %d has id %d, want %d", i, s.ID, want[i])
		}
	}
	return nil
}
