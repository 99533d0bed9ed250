package protostream

import "io"

// BytesReader reads from an in-memory slice. It reports how many bytes are
// left, so a Reader over it rejects oversized length prefixes before
// allocating.
type BytesReader struct {
	buf []byte
	off int
}

func NewBytesReader(b []byte) *BytesReader { return &BytesReader{buf: b} }

func (r *BytesReader) Read(p []byte) (int, error) {
	if r.off >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.off:])
	r.off += n
	return n, nil
}

func (r *BytesReader) ReadByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, io.EOF
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// Reset rewinds the reader over b.
func (r *BytesReader) Reset(b []byte) { r.buf, r.off = b, 0 }

func (r *BytesReader) Close() error     { return nil }
func (r *BytesReader) Size() int        { return len(r.buf) }
func (r *BytesReader) Remaining() int64 { return int64(max(len(r.buf)-r.off, 0)) }
