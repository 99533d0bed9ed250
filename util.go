package protostream

import (
	"encoding/binary"

	"golang.org/x/exp/constraints"
)

// LE is the byte order of fixed32/fixed64 values on the wire.
var LE = binary.LittleEndian

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T { return &v }

// SizeOfVarint returns the encoded size of any integer written as a varint.
// Negative signed values take the full ten bytes, as they are sign-extended.
func SizeOfVarint[T constraints.Integer](v T) int {
	if v < 0 {
		return maxVarintLen
	}
	return SizeVarint(uint64(v))
}
