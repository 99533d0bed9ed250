package protostream

import (
	"fmt"
	"io"
	"slices"
)

// Message is a value that encodes itself as a run of tagged fields, with no
// length prefix of its own.
type Message interface {
	// Size returns the encoded size of the fields.
	Size() int
	// WriteFields writes every field to w.
	WriteFields(w *Writer)
	// ReadFields reads fields from r until the input ends.
	ReadFields(r *Reader)
}

// Marshal encodes m into a slice of exactly m.Size() bytes.
func Marshal(m Message) ([]byte, error) {
	return AppendMarshal(nil, m)
}

// AppendMarshal appends the encoding of m to b. A Size that disagrees with
// what WriteFields writes is reported as io.ErrShortWrite.
func AppendMarshal(b []byte, m Message) ([]byte, error) {
	size := m.Size()
	start := len(b)
	b = slices.Grow(b, size)[:start+size]

	dst := NewBytesWriter(b[start:])
	w, _ := NewWriter(dst)
	m.WriteFields(w)
	if _, err := w.Result(); err != nil {
		return b[:start], err
	}
	if dst.Len() != size {
		return b[:start], fmt.Errorf("%w: sized %d bytes, wrote %d", io.ErrShortWrite, size, dst.Len())
	}
	return b, nil
}

// Unmarshal decodes b into m. Input left over after m stops reading is an
// error.
func Unmarshal(b []byte, m Message) error {
	r := NewBytesDecoder(b)
	m.ReadFields(r)
	n, err := r.Result()
	if err != nil {
		return err
	}
	if n != int64(len(b)) {
		return &WireFormatError{Op: "unmarshal", Offset: n, Err: ErrTruncatedInput}
	}
	return nil
}

// WriteMessageTo streams the fields of m to w.
func WriteMessageTo(w io.Writer, m Message) (int64, error) {
	if w == nil {
		return 0, ErrWriteToNil
	}
	pw, err := NewWriter(w)
	if err != nil {
		return 0, err
	}
	m.WriteFields(pw)
	return pw.Result()
}

// ReadMessageFrom reads the fields of m from r until end of input.
func ReadMessageFrom(r io.Reader, m Message) (int64, error) {
	pr, err := NewReader(r)
	if err != nil {
		return 0, err
	}
	m.ReadFields(pr)
	return pr.Result()
}
