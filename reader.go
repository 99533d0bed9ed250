package protostream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ReaderPro is the minimal source a Reader decodes from.
type ReaderPro interface {
	io.Reader
	io.ByteReader
	io.Closer
	Size() int
}

// Reader decodes protobuf wire primitives from a stream.
// It tracks the first error; subsequent reads become no-ops returning zero
// values, so callers may check Err once after a run of reads.
//
// A Reader is per-call state: it carries the current message limit, the
// nesting depth and an optional capture buffer, and must not be shared
// between goroutines.
type Reader struct {
	r        ReaderPro
	count    int64 // total bytes read
	err      error // first error encountered.
	limit    int64 // absolute offset where the current message ends, -1 when unbounded
	depth    int
	maxDepth int
	field    int32   // field being decoded, for error context
	capture  *[]byte // raw bytes consumed while skipping a field
}

// NewReaderSize creates a new Reader with a specified buffer size.
func NewReaderSize(r io.Reader, size int) (*Reader, error) {
	if r == nil {
		return nil, ErrNilIO
	}

	rd := &Reader{limit: -1, maxDepth: DefaultMaxNestedMessageDepth}
	switch reader := r.(type) {
	// Reuse the underlying source if it's already a Reader.
	case *Reader:
		rd.r = reader.r
		rd.maxDepth = reader.maxDepth
		return rd, nil

	// prevent unpredictable double-buffering.
	case *bufio.Reader:
		if reader.Size() >= size {
			rd.r = &bufioReaderAdapter{Reader: reader}
			return rd, nil
		}
		return nil, ErrAlreadyBuffered

	// underlying is a buf so we don't need buffering
	case *BytesReader:
		rd.r = reader
		return rd, nil
	case *bytes.Reader:
		rd.r = &bytesReaderAdapter{reader}
		return rd, nil
	case *bytes.Buffer:
		rd.r = &bytesBufferReaderAdapter{Buffer: reader}
		return rd, nil
	}

	if size < 16 {
		size = 4096
	}
	rd.r = &bufioReaderAdapter{Reader: bufio.NewReaderSize(r, size)}
	return rd, nil
}

// NewReader creates a new Reader with a default buffer size.
func NewReader(r io.Reader) (*Reader, error) {
	return NewReaderSize(r, 0)
}

// NewBytesDecoder returns a Reader over an in-memory buffer.
func NewBytesDecoder(b []byte) *Reader {
	return &Reader{r: NewBytesReader(b), limit: -1, maxDepth: DefaultMaxNestedMessageDepth}
}

// WithMaxDepth sets the maximum nested message depth and returns
// the Reader for chaining. Values below 1 keep the default.
func (r *Reader) WithMaxDepth(depth int) *Reader {
	if depth > 0 {
		r.maxDepth = depth
	}
	return r
}

// Close closes the underlying reader if it implements io.Closer.
func (r *Reader) Close() error {
	return r.r.Close()
}

func (r *Reader) Size() int     { return r.r.Size() }
func (r *Reader) Count() int64  { return r.count }
func (r *Reader) Err() error    { return r.err }
func (r *Reader) Depth() int    { return r.depth }
func (r *Reader) MaxDepth() int { return r.maxDepth }

// Result returns the total bytes read and the final error state.
func (r *Reader) Result() (int64, error) {
	return r.count, r.err
}

// setError records the first non-nil error.
func (r *Reader) setError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// fail records a wire format error with the current position.
func (r *Reader) fail(op string, err error) {
	if r.err != nil {
		return
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = ErrTruncatedInput
	}
	r.err = &WireFormatError{Op: op, Field: r.field, Offset: r.count, Err: err}
}

// Fail lets marshallers report a semantic decode failure with position context.
func (r *Reader) Fail(op string, err error) {
	r.fail(op, err)
}

// Remaining returns the number of bytes left in the current message, or in
// the whole input when it is known, and -1 otherwise.
func (r *Reader) Remaining() int64 {
	if r.limit >= 0 {
		return r.limit - r.count
	}
	if rm, ok := r.r.(remainer); ok {
		return rm.Remaining()
	}
	return -1
}

// Read implements the io.Reader interface. It never reads past the current
// message limit.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.limit >= 0 {
		left := r.limit - r.count
		if left <= 0 {
			return 0, io.EOF
		}
		if int64(len(p)) > left {
			p = p[:left]
		}
	}
	n, err := r.r.Read(p)
	if r.capture != nil {
		*r.capture = append(*r.capture, p[:n]...)
	}
	r.count += int64(n)
	if err != nil && err != io.EOF {
		r.setError(err)
	}
	return n, err
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.limit >= 0 && r.count >= r.limit {
		return 0, io.EOF
	}
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, err
	}
	if r.capture != nil {
		*r.capture = append(*r.capture, b)
	}
	r.count++
	return b, nil
}

// readFull is an internal helper to read an exact number of bytes.
func (r *Reader) readFull(op string, n int) []byte {
	if r.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		r.fail(op, err)
		return nil
	}
	return buf
}

// atEnd reports whether the current message (or the input) is exhausted.
func (r *Reader) atEnd() bool {
	if r.limit >= 0 {
		return r.count >= r.limit
	}
	return false
}

// --- Primitive Read Operations ---

// ReadVarint reads a base-128 varint.
func (r *Reader) ReadVarint() uint64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	for i := 0; i < maxVarintLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			r.fail("read varint", err)
			return 0
		}
		if i == maxVarintLen-1 && b > 1 {
			break
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b < 0x80 {
			return v
		}
	}
	r.fail("read varint", ErrMalformedVarint)
	return 0
}

// ReadTag reads the next field tag. It returns 0 without error at the end of
// the current message or at a clean end of the input.
func (r *Reader) ReadTag() Tag {
	if r.err != nil || r.atEnd() {
		return 0
	}
	b, err := r.ReadByte()
	if err != nil {
		if err == io.EOF && r.limit < 0 {
			return 0
		}
		r.fail("read tag", err)
		return 0
	}
	v := uint64(b)
	if b >= 0x80 {
		v = uint64(b & 0x7f)
		for i := 1; ; i++ {
			if i == maxVarintLen {
				r.fail("read tag", ErrMalformedVarint)
				return 0
			}
			c, err := r.ReadByte()
			if err != nil {
				r.fail("read tag", err)
				return 0
			}
			v |= uint64(c&0x7f) << (7 * i)
			if c < 0x80 {
				break
			}
		}
	}
	tag := Tag(v)
	if v > uint64(MakeTag(MaxFieldNumber, 7)) || tag.Number() < MinFieldNumber {
		r.fail("read tag", ErrInvalidFieldNumber)
		return 0
	}
	if !tag.WireType().Valid() {
		r.field = tag.Number()
		r.fail("read tag", ErrUnknownWireType)
		return 0
	}
	r.field = tag.Number()
	return tag
}

func (r *Reader) ReadBool() bool     { return r.ReadVarint() != 0 }
func (r *Reader) ReadInt32() int32   { return int32(r.ReadVarint()) }
func (r *Reader) ReadInt64() int64   { return int64(r.ReadVarint()) }
func (r *Reader) ReadUint32() uint32 { return uint32(r.ReadVarint()) }
func (r *Reader) ReadUint64() uint64 { return r.ReadVarint() }
func (r *Reader) ReadSint32() int32  { return int32(DecodeZigZag(r.ReadVarint() & 0xffffffff)) }
func (r *Reader) ReadSint64() int64  { return DecodeZigZag(r.ReadVarint()) }

// ReadFixed32 reads four little-endian bytes.
func (r *Reader) ReadFixed32() uint32 {
	buf := r.readFull("read fixed32", 4)
	if r.err != nil {
		return 0
	}
	return LE.Uint32(buf)
}

// ReadFixed64 reads eight little-endian bytes.
func (r *Reader) ReadFixed64() uint64 {
	buf := r.readFull("read fixed64", 8)
	if r.err != nil {
		return 0
	}
	return LE.Uint64(buf)
}

func (r *Reader) ReadSfixed32() int32 { return int32(r.ReadFixed32()) }
func (r *Reader) ReadSfixed64() int64 { return int64(r.ReadFixed64()) }
func (r *Reader) ReadFloat() float32  { return Float32FromBits(r.ReadFixed32()) }
func (r *Reader) ReadDouble() float64 { return Float64FromBits(r.ReadFixed64()) }

// ReadLength reads a length prefix and checks it against the bytes left.
func (r *Reader) ReadLength() int {
	l := r.ReadVarint()
	if r.err != nil {
		return 0
	}
	if l > MaxMessageSize {
		r.fail("read length", ErrInvalidLength)
		return 0
	}
	if rem := r.Remaining(); rem >= 0 && int64(l) > rem {
		r.fail("read length", ErrTruncatedInput)
		return 0
	}
	return int(l)
}

// ReadBytes reads a length-delimited value and returns a new byte slice.
func (r *Reader) ReadBytes() []byte {
	n := r.ReadLength()
	if r.err != nil {
		return nil
	}
	if n == 0 {
		return []byte{}
	}
	return r.readFull("read bytes", n)
}

// ReadString reads a length-delimited UTF-8 string.
func (r *Reader) ReadString() string {
	return string(r.ReadBytes())
}

// --- Nesting ---

// PushLimit restricts reads to the next n bytes and returns the previous
// limit, which must be handed back to PopLimit.
func (r *Reader) PushLimit(n int) int64 {
	old := r.limit
	if r.err != nil {
		return old
	}
	next := r.count + int64(n)
	if old >= 0 && next > old {
		r.fail("push limit", ErrTruncatedInput)
		return old
	}
	r.limit = next
	return old
}

// PopLimit restores a limit returned by PushLimit. Any bytes the nested
// decoder left unread are consumed.
func (r *Reader) PopLimit(old int64) {
	if r.err == nil && r.limit >= 0 && r.count < r.limit {
		r.readFull("skip message tail", int(r.limit-r.count))
	}
	r.limit = old
}

// EnterMessage increments the nesting depth. It fails with
// ErrNestedMessageDepthExceeded, without recursing, once the depth goes past
// the configured maximum.
func (r *Reader) EnterMessage() bool {
	if r.err != nil {
		return false
	}
	if r.depth >= r.maxDepth {
		r.fail("enter message", ErrNestedMessageDepthExceeded)
		return false
	}
	r.depth++
	return true
}

// ExitMessage decrements the nesting depth.
func (r *Reader) ExitMessage() {
	if r.depth > 0 {
		r.depth--
	}
}

// ReadMessage runs fn over the next length-delimited payload as a nested message.
func (r *Reader) ReadMessage(fn func(*Reader) error) {
	n := r.ReadLength()
	if r.err != nil {
		return
	}
	if !r.EnterMessage() {
		return
	}
	field := r.field
	old := r.PushLimit(n)
	if err := fn(r); err != nil {
		r.setError(err)
	}
	r.PopLimit(old)
	r.ExitMessage()
	r.field = field
}

// SkipField consumes the value belonging to tag and returns its raw encoded
// bytes (without the tag), so unknown fields can be preserved verbatim.
func (r *Reader) SkipField(tag Tag) []byte {
	if r.err != nil {
		return nil
	}
	var raw []byte
	prev := r.capture
	r.capture = &raw
	r.skipValue(tag)
	r.capture = prev
	if prev != nil {
		*prev = append(*prev, raw...)
	}
	if r.err != nil {
		return nil
	}
	return raw
}

func (r *Reader) skipValue(tag Tag) {
	switch tag.WireType() {
	case VarintType:
		r.ReadVarint()
	case Fixed64Type:
		r.readFull("skip fixed64", 8)
	case Fixed32Type:
		r.readFull("skip fixed32", 4)
	case BytesType:
		n := r.ReadLength()
		if r.err == nil && n > 0 {
			r.readFull("skip bytes", n)
		}
	case StartGroupType:
		if !r.EnterMessage() {
			return
		}
		for {
			t := r.ReadTag()
			if r.err != nil {
				return
			}
			if t == 0 {
				r.fail("skip group", ErrTruncatedInput)
				return
			}
			if t.WireType() == EndGroupType {
				if t.Number() != tag.Number() {
					r.fail("skip group", ErrMismatchedEndGroup)
				}
				break
			}
			r.skipValue(t)
		}
		r.ExitMessage()
	case EndGroupType:
		r.fail("skip field", ErrMismatchedEndGroup)
	default:
		r.fail("skip field", ErrUnknownWireType)
	}
}
