package protostream

import (
	"bufio"
	"bytes"
	"io"
)

type writer interface {
	io.Writer
	io.Closer
}

type WriterPro interface {
	writer
	io.ByteWriter
	io.StringWriter
	Size() int
	Flush() error
}

// Writer provides a buffered writer that emits protobuf wire primitives.
// It wraps bufio.Writer for efficiency and tracks the first error that occurs.
// After an error, all subsequent write operations become no-ops.
type Writer struct {
	w     WriterPro
	count int64 // total bytes written
	err   error // first error encountered. Subsequent writes become no-ops.
	depth int
}

var _ WriterPro = (*Writer)(nil)

// NewWriterSize creates a new Writer with a specified buffer size.
// It returns an error to prevent double-buffering, a common source of bugs.
func NewWriterSize(w io.Writer, size int) (*Writer, error) {
	if w == nil {
		return nil, ErrNilIO
	}

	switch bw := w.(type) {
	// Reuse the underlying buffer if it's already a compatible Writer.
	case *Writer:
		if bw.w.Size() >= size {
			return &Writer{w: bw.w, depth: bw.depth + 1}, nil
		}

	// prevent unpredictable double-buffering.
	case *bufio.Writer:
		if bw.Size() >= size {
			return &Writer{w: &bufioWriterAdapter{bw}, depth: 1}, nil
		}
		return nil, ErrAlreadyBuffered

	// underlying is a buf so we don't need buffering
	case *BytesWriter:
		return &Writer{w: bw}, nil
	case *bytes.Buffer:
		return &Writer{w: &bytesBufferWriterAdapter{bw}}, nil
	}

	// default use bufio
	return &Writer{w: &bufioWriterAdapter{bufio.NewWriterSize(w, size)}}, nil
}

// NewWriter creates a new Writer with a default buffer size.
func NewWriter(w io.Writer) (*Writer, error) {
	return NewWriterSize(w, 0)
}

// Close closes the underlying writer if it implements io.Closer.
func (w *Writer) Close() error {
	return w.w.Close()
}

// Write implements the io.Writer interface.
func (w *Writer) Write(buf []byte) (int, error) {
	if buf == nil || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(buf)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

// WriteString implements the io.StringWriter interface.
func (w *Writer) WriteString(str string) (int, error) {
	if str == "" || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.WriteString(str)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

// WriteByte implements io.ByteWriter.
func (w *Writer) WriteByte(v byte) error {
	if w.err != nil {
		return w.err
	}
	err := w.w.WriteByte(v)
	if err == nil {
		w.count++
	} else {
		w.err = err
	}
	return err
}

func (w *Writer) Size() int    { return w.w.Size() }
func (w *Writer) Count() int64 { return w.count }
func (w *Writer) Err() error   { return w.err }

// setError records the first non-nil error.
// This preserves the root cause of a failure chain instead of a later,
// less relevant error.
func (w *Writer) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Fail lets marshallers abort an encode with their own error.
func (w *Writer) Fail(err error) {
	w.setError(err)
}

// Result flushes the buffer and returns the final count and error state.
func (w *Writer) Result() (int64, error) {
	w.Flush()
	return w.count, w.err
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	// Only the outermost writer should be responsible for the final flush.
	if w.depth > 0 || w.err != nil {
		return w.err
	}
	err := w.w.Flush()
	w.setError(err)
	return err
}

// --- Primitive Write Operations ---

// WriteVarint writes v as a base-128 varint.
func (w *Writer) WriteVarint(v uint64) {
	if w.err != nil {
		return
	}
	var buf [maxVarintLen]byte
	_, _ = w.Write(AppendVarint(buf[:0], v))
}

// WriteTag writes the tag for a field number and wire type.
func (w *Writer) WriteTag(number int32, typ WireType) {
	w.WriteVarint(uint64(MakeTag(number, typ)))
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteVarint(1)
	} else {
		w.WriteVarint(0)
	}
}

// WriteInt32 sign-extends negative values to ten bytes, as the format requires.
func (w *Writer) WriteInt32(v int32)   { w.WriteVarint(uint64(int64(v))) }
func (w *Writer) WriteInt64(v int64)   { w.WriteVarint(uint64(v)) }
func (w *Writer) WriteUint32(v uint32) { w.WriteVarint(uint64(v)) }
func (w *Writer) WriteUint64(v uint64) { w.WriteVarint(v) }
func (w *Writer) WriteSint32(v int32)  { w.WriteVarint(uint64(uint32(v<<1) ^ uint32(v>>31))) }
func (w *Writer) WriteSint64(v int64)  { w.WriteVarint(EncodeZigZag(v)) }

func (w *Writer) WriteFixed32(v uint32) {
	if w.err != nil {
		return
	}
	var buf [4]byte
	LE.PutUint32(buf[:], v)
	_, _ = w.Write(buf[:])
}

func (w *Writer) WriteFixed64(v uint64) {
	if w.err != nil {
		return
	}
	var buf [8]byte
	LE.PutUint64(buf[:], v)
	_, _ = w.Write(buf[:])
}

func (w *Writer) WriteSfixed32(v int32) { w.WriteFixed32(uint32(v)) }
func (w *Writer) WriteSfixed64(v int64) { w.WriteFixed64(uint64(v)) }
func (w *Writer) WriteFloat(v float32)  { w.WriteFixed32(Float32Bits(v)) }
func (w *Writer) WriteDouble(v float64) { w.WriteFixed64(Float64Bits(v)) }

// WriteBytes writes a length-delimited byte slice.
func (w *Writer) WriteBytes(v []byte) {
	w.WriteVarint(uint64(len(v)))
	if len(v) > 0 {
		_, _ = w.Write(v)
	}
}

// WriteStringValue writes a length-delimited string.
func (w *Writer) WriteStringValue(v string) {
	w.WriteVarint(uint64(len(v)))
	_, _ = w.WriteString(v)
}

// WriteRaw writes pre-encoded bytes without a length prefix.
func (w *Writer) WriteRaw(v []byte) {
	if len(v) > 0 {
		_, _ = w.Write(v)
	}
}

// WriteMessage encodes a nested message with fn into a pooled buffer and
// writes it length-delimited.
func (w *Writer) WriteMessage(fn func(*Writer) error) {
	if w.err != nil {
		return
	}
	buf := GetBuffer()
	defer PutBuffer(buf)

	nested := &Writer{w: &bytesBufferWriterAdapter{buf}}
	if err := fn(nested); err != nil {
		w.setError(err)
		return
	}
	if nested.err != nil {
		w.setError(nested.err)
		return
	}
	w.WriteBytes(buf.Bytes())
}
