// Package wire reads and writes the Protocol Buffers binary wire format
// at the level of tags, varints, fixed-width integers and length-delimited
// payloads. It has no notion of messages or fields; the dynamic package
// layers schema-driven encoding on top of it.
package wire

import (
	"errors"
)

// Type represents the 3-bit wire type carried in the low bits of a field tag.
type Type int8

const (
	TypeVarint     Type = 0
	TypeFixed64    Type = 1
	TypeBytes      Type = 2
	TypeStartGroup Type = 3
	TypeEndGroup   Type = 4
	TypeFixed32    Type = 5
)

// String returns the conventional name of the wire type.
func (t Type) String() string {
	switch t {
	case TypeVarint:
		return "varint"
	case TypeFixed64:
		return "fixed64"
	case TypeBytes:
		return "bytes"
	case TypeStartGroup:
		return "start_group"
	case TypeEndGroup:
		return "end_group"
	case TypeFixed32:
		return "fixed32"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the six defined wire types.
func (t Type) Valid() bool {
	switch t {
	case TypeVarint, TypeFixed64, TypeBytes, TypeStartGroup, TypeEndGroup, TypeFixed32:
		return true
	default:
		return false
	}
}

// Field numbers must fit in 29 bits so that the tag (number<<3 | type)
// fits in a signed 32-bit integer.
const (
	MinFieldNumber int32 = 1
	MaxFieldNumber int32 = 1<<29 - 1
)

var (
	// ErrOverflow is returned when a varint does not fit in 64 bits.
	ErrOverflow = errors.New("wire: varint overflows a 64-bit integer")

	// ErrInvalidFieldNumber is returned when a decoded tag carries a field
	// number outside [1, 2^29-1].
	ErrInvalidFieldNumber = errors.New("wire: invalid field number")

	// ErrGroupMismatch is returned when an end-group tag does not match the
	// innermost open start-group tag, or is missing entirely.
	ErrGroupMismatch = errors.New("wire: mismatched group tags")

	// ErrInvalidType is returned when a tag carries an undefined wire type.
	ErrInvalidType = errors.New("wire: invalid wire type")
)

// EncodeZigZag32 converts a signed 32-bit integer to its zig-zag form so
// that small negative values stay small as varints.
func EncodeZigZag32(v int32) uint64 {
	return uint64(uint32(v<<1) ^ uint32(v>>31))
}

// EncodeZigZag64 converts a signed 64-bit integer to its zig-zag form.
func EncodeZigZag64(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// DecodeZigZag32 reverses EncodeZigZag32. Varints wider than 32 bits are
// truncated first, matching the reference decoders.
func DecodeZigZag32(v uint64) int32 {
	return int32(uint32(v)>>1 ^ -uint32(v&1))
}

// DecodeZigZag64 reverses EncodeZigZag64.
func DecodeZigZag64(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
