// Package leb128 implements the variable-length integer encoding used by
// the WebAssembly binary format for all section sizes, vector counts and
// integer immediates.
package leb128

import (
	"fmt"
	"io"
)

// EncodeUint32 encodes the value into a buffer in unsigned LEB128 format.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes the value into a buffer in unsigned LEB128 format.
func EncodeUint64(v uint64) (buf []byte) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return
		}
	}
}

// EncodeInt32 encodes the value into a buffer in signed LEB128 format.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes the value into a buffer in signed LEB128 format.
func EncodeInt64(v int64) (buf []byte) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// DecodeUint32 reads an unsigned LEB128 encoded uint32 from r, returning
// the value and the number of bytes consumed. Encodings longer than five
// bytes are rejected.
func DecodeUint32(r io.Reader) (uint32, uint64, error) {
	v, n, err := decodeUnsigned(r, 5)
	return uint32(v), n, err
}

// DecodeUint64 reads an unsigned LEB128 encoded uint64 from r, returning
// the value and the number of bytes consumed. Encodings longer than ten
// bytes are rejected.
func DecodeUint64(r io.Reader) (uint64, uint64, error) {
	return decodeUnsigned(r, 10)
}

func decodeUnsigned(r io.Reader, maxBytes int) (uint64, uint64, error) {
	var v uint64
	for i := 0; i < maxBytes; i++ {
		b, err := readByte(r)
		if err != nil {
			return 0, 0, fmt.Errorf("leb128: truncated unsigned value: %w", err)
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, uint64(i + 1), nil
		}
	}
	return 0, 0, fmt.Errorf("leb128: unsigned value longer than %d bytes", maxBytes)
}

// DecodeInt64 reads a signed LEB128 encoded int64 from r, returning the
// value and the number of bytes consumed. Encodings longer than ten bytes
// are rejected.
func DecodeInt64(r io.Reader) (int64, uint64, error) {
	var v int64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := readByte(r)
		if err != nil {
			return 0, 0, fmt.Errorf("leb128: truncated signed value: %w", err)
		}
		v |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			// Sign-extend when the final byte carries the sign bit and
			// the value does not already fill 64 bits.
			if shift < 64 && b&0x40 != 0 {
				v |= -1 << shift
			}
			return v, uint64(i + 1), nil
		}
	}
	return 0, 0, fmt.Errorf("leb128: signed value longer than 10 bytes")
}

func readByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}
