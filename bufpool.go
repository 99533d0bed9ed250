package protostream

import (
	"bytes"
	"sync"
)

// bytesBufPool reuses buffers for encoding nested messages.
// This reduces GC pressure by avoiding frequent allocations. We pool *bytes.Buffer
// because they are easily reset and resized.
var bytesBufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// GetBuffer returns an empty pooled buffer. Hand it back with PutBuffer.
func GetBuffer() *bytes.Buffer {
	buf := bytesBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool. Oversized buffers are dropped so a
// single large message does not pin memory.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1<<20 {
		return
	}
	bytesBufPool.Put(buf)
}
