package registry

import (
	"fmt"
	"reflect"

	"github.com/oy3o/protostream"
)

// ProtoReader is handed to message marshallers to read their fields. A
// marshaller loops on ReadTag until it returns 0 and skips fields it does not
// know with SkipField.
type ProtoReader struct {
	ctx *Context
	r   *protostream.Reader

	// dynamicOnly decodes every nested type as a DynamicMessage, ignoring
	// registered marshallers. The JSON projection needs the schema view.
	dynamicOnly bool
}

// Context returns the context driving the decode.
func (r *ProtoReader) Context() *Context { return r.ctx }

// Raw exposes the underlying wire reader.
func (r *ProtoReader) Raw() *protostream.Reader { return r.r }

// Err returns the first error recorded by the reader.
func (r *ProtoReader) Err() error { return r.r.Err() }

// Fail aborts the decode with err.
func (r *ProtoReader) Fail(err error) { r.r.Fail("read message", err) }

// ReadTag returns the next tag, or 0 at the end of the message.
func (r *ProtoReader) ReadTag() protostream.Tag { return r.r.ReadTag() }

// SkipField discards the value of a field the marshaller does not handle.
func (r *ProtoReader) SkipField(tag protostream.Tag) { r.r.SkipField(tag) }

// Capture records the value of an unhandled field in set.
func (r *ProtoReader) Capture(set *protostream.UnknownFieldSet, tag protostream.Tag) {
	set.Capture(r.r, tag)
}

func (r *ProtoReader) ReadInt32() int32      { return r.r.ReadInt32() }
func (r *ProtoReader) ReadInt64() int64      { return r.r.ReadInt64() }
func (r *ProtoReader) ReadUint32() uint32    { return r.r.ReadUint32() }
func (r *ProtoReader) ReadUint64() uint64    { return r.r.ReadUint64() }
func (r *ProtoReader) ReadSint32() int32     { return r.r.ReadSint32() }
func (r *ProtoReader) ReadSint64() int64     { return r.r.ReadSint64() }
func (r *ProtoReader) ReadFixed32() uint32   { return r.r.ReadFixed32() }
func (r *ProtoReader) ReadFixed64() uint64   { return r.r.ReadFixed64() }
func (r *ProtoReader) ReadSfixed32() int32   { return r.r.ReadSfixed32() }
func (r *ProtoReader) ReadSfixed64() int64   { return r.r.ReadSfixed64() }
func (r *ProtoReader) ReadFloat() float32    { return r.r.ReadFloat() }
func (r *ProtoReader) ReadDouble() float64   { return r.r.ReadDouble() }
func (r *ProtoReader) ReadBool() bool        { return r.r.ReadBool() }
func (r *ProtoReader) ReadString() string    { return r.r.ReadString() }
func (r *ProtoReader) ReadBytes() []byte     { return r.r.ReadBytes() }
func (r *ProtoReader) ReadEnumNumber() int32 { return r.r.ReadInt32() }

// ReadEnum reads an enum number and maps it through the marshaller of the
// named enum. Numbers without a matching value are returned as int32.
func (r *ProtoReader) ReadEnum(typeName string) (any, error) {
	n := r.r.ReadInt32()
	if err := r.r.Err(); err != nil {
		return nil, err
	}
	d, err := r.ctx.delegate(typeName)
	if err != nil {
		return nil, err
	}
	return r.decodeEnum(d, n), nil
}

// ReadMessage reads a nested message of the named type.
func (r *ProtoReader) ReadMessage(typeName string) (any, error) {
	d, err := r.ctx.delegate(typeName)
	if err != nil {
		return nil, err
	}
	if d.msg == nil {
		return nil, registrationErr(typeName, ErrKindMismatch, "not a message")
	}
	return r.nested(func() (any, error) { return r.readMessageBody(d) })
}

// ReadWrapped reads a nested WrappedMessage and returns the value it carries.
func (r *ProtoReader) ReadWrapped() (any, error) {
	return r.nested(r.readWrapped)
}

// nested runs fn over the next length-delimited payload.
func (r *ProtoReader) nested(fn func() (any, error)) (any, error) {
	var out any
	r.r.ReadMessage(func(*protostream.Reader) error {
		v, err := fn()
		out = v
		return err
	})
	if err := r.r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// readMessageBody decodes the fields of one message of type d up to the
// current limit.
func (r *ProtoReader) readMessageBody(d *delegate) (any, error) {
	if mm, ok := d.m.(messageMarshaller); ok && !r.dynamicOnly {
		return mm.readMessage(r)
	}
	m, err := r.readDynamic(d)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *ProtoReader) decodeEnum(d *delegate, n int32) any {
	if r.dynamicOnly {
		return n
	}
	if em, ok := d.m.(enumMarshaller); ok {
		if v, ok := em.decode(n); ok {
			return v
		}
	}
	return n
}

// ReadMessage reads a nested message with the marshaller registered for T.
func ReadMessage[T any](r *ProtoReader) (T, error) {
	var zero T
	m, ok := r.ctx.byType.Load(reflect.TypeFor[T]())
	if !ok {
		return zero, registrationErr("", ErrNoMarshaller, "no marshaller for %s", reflect.TypeFor[T]())
	}
	v, err := r.ReadMessage(m.TypeName())
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, registrationErr(m.TypeName(), ErrKindMismatch, "decoded %T, want %s", v, reflect.TypeFor[T]())
	}
	return t, nil
}

// ReadEnum reads an enum value with the marshaller registered for T.
func ReadEnum[T any](r *ProtoReader) (T, error) {
	var zero T
	m, ok := r.ctx.byType.Load(reflect.TypeFor[T]())
	if !ok {
		return zero, registrationErr("", ErrNoMarshaller, "no marshaller for %s", reflect.TypeFor[T]())
	}
	em, ok := m.(enumMarshaller)
	if !ok {
		return zero, registrationErr(m.TypeName(), ErrKindMismatch, "%s is not an enum", reflect.TypeFor[T]())
	}
	n := r.r.ReadInt32()
	if err := r.r.Err(); err != nil {
		return zero, err
	}
	v, ok := em.decode(n)
	if !ok {
		r.r.Fail("read enum", fmt.Errorf("%w: %d is not a value of %s", ErrInvalidValue, n, m.TypeName()))
		return zero, r.r.Err()
	}
	return v.(T), nil
}
