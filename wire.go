package protostream

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// WireType is the 3-bit encoding kind carried by every tag.
type WireType uint8

const (
	VarintType     WireType = 0
	Fixed64Type    WireType = 1
	BytesType      WireType = 2
	StartGroupType WireType = 3 // legacy, decode only
	EndGroupType   WireType = 4 // legacy, decode only
	Fixed32Type    WireType = 5
)

func (t WireType) String() string {
	switch t {
	case VarintType:
		return "varint"
	case Fixed64Type:
		return "fixed64"
	case BytesType:
		return "length-delimited"
	case StartGroupType:
		return "start-group"
	case EndGroupType:
		return "end-group"
	case Fixed32Type:
		return "fixed32"
	}
	return fmt.Sprintf("wiretype(%d)", uint8(t))
}

// Valid reports whether t is one of the six wire types defined by the format.
func (t WireType) Valid() bool { return t <= Fixed32Type }

const (
	MinFieldNumber      = 1
	MaxFieldNumber      = 1<<29 - 1
	FirstReservedNumber = 19000
	LastReservedNumber  = 19999
	maxVarintLen        = 10

	// MaxMessageSize is the largest length prefix accepted by the decoder.
	MaxMessageSize = math.MaxInt32

	// DefaultMaxNestedMessageDepth bounds recursion while decoding nested
	// messages and groups. It is the main guard against hostile input.
	DefaultMaxNestedMessageDepth = 100
)

// ValidFieldNumber reports whether n may be used as a field number.
func ValidFieldNumber(n int32) bool {
	return n >= MinFieldNumber && n <= MaxFieldNumber && (n < FirstReservedNumber || n > LastReservedNumber)
}

// Tag is a field number combined with a wire type.
type Tag uint32

// MakeTag combines a field number and wire type.
func MakeTag(number int32, typ WireType) Tag {
	return Tag(uint32(number)<<3 | uint32(typ&7))
}

func (t Tag) Number() int32      { return int32(t >> 3) }
func (t Tag) WireType() WireType { return WireType(t & 7) }

func (t Tag) String() string {
	return fmt.Sprintf("%d:%s", t.Number(), t.WireType())
}

// EncodeZigZag maps signed integers to unsigned so that small magnitudes stay small.
func EncodeZigZag(n int64) uint64 {
	return uint64(n<<1) ^ uint64(n>>63)
}

// DecodeZigZag is the inverse of EncodeZigZag.
func DecodeZigZag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// AppendVarint appends v in base-128 little-endian groups.
func AppendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// ConsumeVarint decodes a varint from the front of b and reports the number
// of bytes consumed. A tenth byte may only carry the 64th bit.
func ConsumeVarint(b []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < maxVarintLen; i++ {
		if i >= len(b) {
			return 0, 0, ErrTruncatedInput
		}
		c := b[i]
		if i == maxVarintLen-1 && c > 1 {
			return 0, 0, ErrMalformedVarint
		}
		v |= uint64(c&0x7f) << (7 * i)
		if c < 0x80 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrMalformedVarint
}

// SizeVarint returns the encoded size of v.
func SizeVarint(v uint64) int {
	return int(9*uint32(bits.Len64(v))+64) / 64
}

// AppendTag appends the varint form of a tag.
func AppendTag(b []byte, number int32, typ WireType) []byte {
	return AppendVarint(b, uint64(MakeTag(number, typ)))
}

// SizeTag returns the encoded size of a tag for the given field number.
func SizeTag(number int32) int {
	return SizeVarint(uint64(MakeTag(number, VarintType)))
}

func AppendFixed32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }
func AppendFixed64(b []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(b, v) }

// AppendBytes appends a length-delimited value.
func AppendBytes(b []byte, v []byte) []byte {
	return append(AppendVarint(b, uint64(len(v))), v...)
}

// SizeBytes returns the size of a length-delimited value of n payload bytes.
func SizeBytes(n int) int {
	return SizeVarint(uint64(n)) + n
}

// ConsumeBytes decodes a length-delimited value from the front of b.
func ConsumeBytes(b []byte) ([]byte, int, error) {
	l, n, err := ConsumeVarint(b)
	if err != nil {
		return nil, 0, err
	}
	if l > uint64(len(b)-n) {
		return nil, 0, ErrTruncatedInput
	}
	return b[n : n+int(l)], n + int(l), nil
}

// IEEE 754 bit conversions for fixed32/fixed64 floating point kinds.
func Float32Bits(f float32) uint32     { return math.Float32bits(f) }
func Float32FromBits(u uint32) float32 { return math.Float32frombits(u) }
func Float64Bits(f float64) uint64     { return math.Float64bits(f) }
func Float64FromBits(u uint64) float64 { return math.Float64frombits(u) }
