package protostream

import "io"

// BytesWriter writes into a fixed slice and never grows it. A write that
// does not fit stores what it can and fails with io.ErrShortWrite.
// AppendMarshal uses it to encode straight into the caller's slice.
type BytesWriter struct {
	buf []byte
	n   int
}

// NewBytesWriter returns a writer over the full capacity of p.
func NewBytesWriter(p []byte) *BytesWriter {
	return &BytesWriter{buf: p[:cap(p)]}
}

func (w *BytesWriter) Write(p []byte) (int, error) {
	return w.advance(len(p), copy(w.buf[w.n:], p))
}

func (w *BytesWriter) WriteString(s string) (int, error) {
	return w.advance(len(s), copy(w.buf[w.n:], s))
}

func (w *BytesWriter) WriteByte(c byte) error {
	if w.n == len(w.buf) {
		return io.ErrShortWrite
	}
	w.buf[w.n] = c
	w.n++
	return nil
}

// advance moves past the n bytes copied out of want.
func (w *BytesWriter) advance(want, n int) (int, error) {
	w.n += n
	if n < want {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (w *BytesWriter) Close() error  { return nil }
func (w *BytesWriter) Flush() error  { return nil }
func (w *BytesWriter) Size() int     { return len(w.buf) }
func (w *BytesWriter) Len() int      { return w.n }
func (w *BytesWriter) Bytes() []byte { return w.buf[:w.n] }
