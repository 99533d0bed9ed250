package protostream

import (
	"bufio"
	"bytes"
)

// remainer is implemented by sources that know how many unread bytes they hold.
// It lets the Reader reject an oversized length prefix before allocating.
type remainer interface {
	Remaining() int64
}

type (
	bytesReaderAdapter       struct{ *bytes.Reader }
	bytesBufferWriterAdapter struct{ *bytes.Buffer }
	bytesBufferReaderAdapter struct{ *bytes.Buffer }
	bufioWriterAdapter       struct{ *bufio.Writer }
	bufioReaderAdapter       struct{ *bufio.Reader }
)

func (r *bytesReaderAdapter) Close() error       { return nil }
func (r *bufioReaderAdapter) Close() error       { return nil }
func (w *bufioWriterAdapter) Close() error       { return nil }
func (r *bytesBufferReaderAdapter) Close() error { return nil }
func (w *bytesBufferWriterAdapter) Close() error { return nil }
func (w *bytesBufferWriterAdapter) Flush() error { return nil }
func (w *bytesBufferWriterAdapter) Size() int    { return w.Available() }
func (r *bytesBufferReaderAdapter) Size() int    { return r.Len() }
func (r *bytesReaderAdapter) Size() int          { return int(r.Reader.Size()) }
func (b *bufioReaderAdapter) Size() int          { return b.Reader.Size() }

func (r *bytesReaderAdapter) Remaining() int64       { return int64(r.Len()) }
func (r *bytesBufferReaderAdapter) Remaining() int64 { return int64(r.Len()) }
