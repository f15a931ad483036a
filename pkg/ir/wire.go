package ir

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical encoding so the same function always
// serializes to the same bytes regardless of map iteration order.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ir: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalFunction serializes a Function to CBOR bytes.
func MarshalFunction(f *Function) ([]byte, error) {
	return cborEncMode.Marshal(f)
}

// UnmarshalFunction deserializes a Function from CBOR bytes.
func UnmarshalFunction(data []byte) (*Function, error) {
	var f Function
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ir: unmarshal function: %w", err)
	}
	return &f, nil
}

// MarshalBlock serializes a single Block to CBOR bytes.
func MarshalBlock(b *Block) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// UnmarshalBlock deserializes a Block from CBOR bytes.
func UnmarshalBlock(data []byte) (*Block, error) {
	var b Block
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("ir: unmarshal block: %w", err)
	}
	return &b, nil
}
