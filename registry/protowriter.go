package registry

import (
	"github.com/oy3o/protostream"
)

// ProtoWriter is handed to message marshallers to write their fields.
// Scalar writers encode the tag and the value; errors are latched and
// reported once by the encode call that created the writer.
type ProtoWriter struct {
	ctx *Context
	w   *protostream.Writer
}

// Context returns the context driving the encode.
func (w *ProtoWriter) Context() *Context { return w.ctx }

// Raw exposes the underlying wire writer.
func (w *ProtoWriter) Raw() *protostream.Writer { return w.w }

// Err returns the first error recorded by the writer.
func (w *ProtoWriter) Err() error { return w.w.Err() }

func (w *ProtoWriter) WriteInt32(number int32, v int32) {
	w.w.WriteTag(number, protostream.VarintType)
	w.w.WriteInt32(v)
}

func (w *ProtoWriter) WriteInt64(number int32, v int64) {
	w.w.WriteTag(number, protostream.VarintType)
	w.w.WriteInt64(v)
}

func (w *ProtoWriter) WriteUint32(number int32, v uint32) {
	w.w.WriteTag(number, protostream.VarintType)
	w.w.WriteUint32(v)
}

func (w *ProtoWriter) WriteUint64(number int32, v uint64) {
	w.w.WriteTag(number, protostream.VarintType)
	w.w.WriteUint64(v)
}

func (w *ProtoWriter) WriteSint32(number int32, v int32) {
	w.w.WriteTag(number, protostream.VarintType)
	w.w.WriteSint32(v)
}

func (w *ProtoWriter) WriteSint64(number int32, v int64) {
	w.w.WriteTag(number, protostream.VarintType)
	w.w.WriteSint64(v)
}

func (w *ProtoWriter) WriteFixed32(number int32, v uint32) {
	w.w.WriteTag(number, protostream.Fixed32Type)
	w.w.WriteFixed32(v)
}

func (w *ProtoWriter) WriteFixed64(number int32, v uint64) {
	w.w.WriteTag(number, protostream.Fixed64Type)
	w.w.WriteFixed64(v)
}

func (w *ProtoWriter) WriteSfixed32(number int32, v int32) {
	w.w.WriteTag(number, protostream.Fixed32Type)
	w.w.WriteSfixed32(v)
}

func (w *ProtoWriter) WriteSfixed64(number int32, v int64) {
	w.w.WriteTag(number, protostream.Fixed64Type)
	w.w.WriteSfixed64(v)
}

func (w *ProtoWriter) WriteFloat(number int32, v float32) {
	w.w.WriteTag(number, protostream.Fixed32Type)
	w.w.WriteFloat(v)
}

func (w *ProtoWriter) WriteDouble(number int32, v float64) {
	w.w.WriteTag(number, protostream.Fixed64Type)
	w.w.WriteDouble(v)
}

func (w *ProtoWriter) WriteBool(number int32, v bool) {
	w.w.WriteTag(number, protostream.VarintType)
	w.w.WriteBool(v)
}

func (w *ProtoWriter) WriteString(number int32, v string) {
	w.w.WriteTag(number, protostream.BytesType)
	w.w.WriteStringValue(v)
}

func (w *ProtoWriter) WriteBytes(number int32, v []byte) {
	w.w.WriteTag(number, protostream.BytesType)
	w.w.WriteBytes(v)
}

// WriteEnum writes v, a value with a registered enum marshaller or a plain
// int32 number.
func (w *ProtoWriter) WriteEnum(number int32, v any) error {
	n, err := w.enumNumber(number, v)
	if err != nil {
		return err
	}
	w.w.WriteTag(number, protostream.VarintType)
	w.w.WriteInt32(n)
	return w.Err()
}

// WriteMessage writes v as a nested message through its registered
// marshaller. A nil v writes nothing.
func (w *ProtoWriter) WriteMessage(number int32, v any) error {
	if v == nil {
		return nil
	}
	m, ok := w.ctx.marshallerFor(v)
	if !ok {
		return registrationErr("", ErrNoMarshaller, "no marshaller for %T in field %d", v, number)
	}
	mm, ok := m.(messageMarshaller)
	if !ok {
		return registrationErr(m.TypeName(), ErrKindMismatch, "%T in field %d is not a message", v, number)
	}
	w.w.WriteTag(number, protostream.BytesType)
	w.nested(func(nw *ProtoWriter) error { return mm.writeMessage(nw, v) })
	return w.Err()
}

// WriteWrapped writes v as a nested WrappedMessage, for fields declared as
// protostream.WrappedMessage.
func (w *ProtoWriter) WriteWrapped(number int32, v any) error {
	w.w.WriteTag(number, protostream.BytesType)
	w.nested(func(nw *ProtoWriter) error { return nw.writeWrapped(v) })
	return w.Err()
}

// WriteUnknown writes back fields preserved on decode.
func (w *ProtoWriter) WriteUnknown(set *protostream.UnknownFieldSet) {
	if !set.IsEmpty() {
		set.WriteFields(w.w)
	}
}

// nested encodes a length-delimited message body with fn.
func (w *ProtoWriter) nested(fn func(*ProtoWriter) error) {
	w.w.WriteMessage(func(nw *protostream.Writer) error {
		return fn(&ProtoWriter{ctx: w.ctx, w: nw})
	})
}

func (w *ProtoWriter) enumNumber(field int32, v any) (int32, error) {
	if n, ok := v.(int32); ok {
		return n, nil
	}
	m, ok := w.ctx.marshallerFor(v)
	if !ok {
		return 0, registrationErr("", ErrNoMarshaller, "no enum marshaller for %T in field %d", v, field)
	}
	em, ok := m.(enumMarshaller)
	if !ok {
		return 0, registrationErr(m.TypeName(), ErrKindMismatch, "%T in field %d is not an enum", v, field)
	}
	n, ok := em.encode(v)
	if !ok {
		return 0, valueErr("write enum", field, "%T is not %s", v, em.GoType())
	}
	return n, nil
}
