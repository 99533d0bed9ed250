package registry

import (
	"fmt"
	"iter"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream"
)

const (
	// WrappingFile is the name of the built-in schema every context holds.
	WrappingFile = "protostream/message-wrapping.proto"
	// WrappedMessageType is the envelope that makes a value self-describing.
	WrappedMessageType = "protostream.WrappedMessage"
)

// Field numbers of protostream.WrappedMessage.
const (
	wrappedTypeName          = 1
	wrappedMessage           = 2
	wrappedDouble            = 3
	wrappedFloat             = 4
	wrappedInt64             = 5
	wrappedUint64            = 6
	wrappedInt32             = 7
	wrappedFixed64           = 8
	wrappedFixed32           = 9
	wrappedBool              = 10
	wrappedString            = 11
	wrappedBytes             = 12
	wrappedUint32            = 13
	wrappedSfixed32          = 14
	wrappedSfixed64          = 15
	wrappedSint32            = 16
	wrappedSint64            = 17
	wrappedEnum              = 18
	wrappedTypeID            = 19
	wrappedUint16            = 20
	wrappedInt16             = 21
	wrappedInt8              = 22
	wrappedDateMillis        = 23
	wrappedInstantSeconds    = 24
	wrappedInstantNanos      = 25
	wrappedContainerSize     = 26
	wrappedContainerTypeName = 27
	wrappedContainerTypeID   = 28
	wrappedContainerMessage  = 29
	wrappedEmpty             = 30
	wrappedContainerElement  = 31
)

const wrappingSchema = `syntax = "proto2";

package protostream;

// Carries one value together with the name or id of its type, so it can be
// decoded without knowing the type in advance. Exactly one group of fields
// is set: a scalar, an instant, an enum or message with its type, a
// container header followed by its elements, or wrappedEmpty for nil.
message WrappedMessage {
  optional string wrappedDescriptorFullName = 1;
  optional bytes wrappedMessage = 2;
  optional double wrappedDouble = 3;
  optional float wrappedFloat = 4;
  optional int64 wrappedInt64 = 5;
  optional uint64 wrappedUInt64 = 6;
  optional int32 wrappedInt32 = 7;
  optional fixed64 wrappedFixed64 = 8;
  optional fixed32 wrappedFixed32 = 9;
  optional bool wrappedBool = 10;
  optional string wrappedString = 11;
  optional bytes wrappedBytes = 12;
  optional uint32 wrappedUInt32 = 13;
  optional sfixed32 wrappedSFixed32 = 14;
  optional sfixed64 wrappedSFixed64 = 15;
  optional sint32 wrappedSInt32 = 16;
  optional sint64 wrappedSInt64 = 17;
  optional int32 wrappedEnum = 18;
  optional int32 wrappedTypeId = 19;
  optional uint32 wrappedUInt16 = 20;
  optional int32 wrappedInt16 = 21;
  optional int32 wrappedInt8 = 22;
  optional int64 wrappedDateMillis = 23;
  optional int64 wrappedInstantSeconds = 24;
  optional int32 wrappedInstantNanos = 25;
  optional int32 wrappedContainerSize = 26;
  optional string wrappedContainerTypeName = 27;
  optional int32 wrappedContainerTypeId = 28;
  optional bytes wrappedContainerMessage = 29;
  optional bool wrappedEmpty = 30;
  repeated WrappedMessage wrappedContainerElement = 31;
}
`

// writeWrapped writes the envelope fields for v.
func (w *ProtoWriter) writeWrapped(v any) error {
	switch x := v.(type) {
	case nil:
		w.WriteBool(wrappedEmpty, true)
	case string:
		w.WriteString(wrappedString, x)
	case []byte:
		w.WriteBytes(wrappedBytes, x)
	case bool:
		w.WriteBool(wrappedBool, x)
	case float64:
		w.WriteDouble(wrappedDouble, x)
	case float32:
		w.WriteFloat(wrappedFloat, x)
	case int64:
		w.WriteInt64(wrappedInt64, x)
	case int:
		w.WriteInt64(wrappedInt64, int64(x))
	case uint64:
		w.WriteUint64(wrappedUint64, x)
	case uint:
		w.WriteUint64(wrappedUint64, uint64(x))
	case int32:
		w.WriteInt32(wrappedInt32, x)
	case uint32:
		w.WriteUint32(wrappedUint32, x)
	case uint8:
		w.WriteUint32(wrappedUint32, uint32(x))
	case uint16:
		w.WriteUint32(wrappedUint16, uint32(x))
	case int16:
		w.WriteInt32(wrappedInt16, int32(x))
	case int8:
		w.WriteInt32(wrappedInt8, int32(x))
	case time.Time:
		w.WriteInt64(wrappedInstantSeconds, x.Unix())
		w.WriteInt32(wrappedInstantNanos, int32(x.Nanosecond()))
	default:
		return w.writeWrappedObject(v)
	}
	return w.Err()
}

func (w *ProtoWriter) writeWrappedObject(v any) error {
	m, ok := w.ctx.marshallerFor(v)
	if !ok {
		return registrationErr("", ErrNoMarshaller, "no marshaller for %T", v)
	}
	d, err := w.ctx.delegate(m.TypeName())
	if err != nil {
		return err
	}
	switch mm := m.(type) {
	case enumMarshaller:
		n, ok := mm.encode(v)
		if !ok {
			return valueErr("write wrapped", wrappedEnum, "%T is not %s", v, mm.GoType())
		}
		w.writeTypeRef(d, wrappedTypeName, wrappedTypeID)
		w.WriteInt32(wrappedEnum, n)
	case containerMarshaller:
		return w.writeContainer(d, v)
	case messageMarshaller:
		w.writeTypeRef(d, wrappedTypeName, wrappedTypeID)
		w.w.WriteTag(wrappedMessage, protostream.BytesType)
		w.nested(func(nw *ProtoWriter) error { return mm.writeMessage(nw, v) })
	}
	return w.Err()
}

// writeTypeRef names the type of the wrapped value, by id when one is
// assigned and ids are preferred.
func (w *ProtoWriter) writeTypeRef(d *delegate, nameField, idField int32) {
	if d.id.Valid && w.ctx.opts.PreferTypeIDs.Bool {
		w.WriteInt32(idField, int32(d.id.Int64))
		return
	}
	w.WriteString(nameField, d.name)
}

// writeContainer writes the container header and then every element as a
// nested envelope. Map containers write each key followed by its value.
func (w *ProtoWriter) writeContainer(d *delegate, v any) error {
	var (
		size int
		each iter.Seq[any]
	)
	switch c := v.(type) {
	case IndexedContainer:
		size = c.NumElements()
		each = func(yield func(any) bool) {
			for i := range size {
				if !yield(c.Element(i)) {
					return
				}
			}
		}
	case AppendableContainer:
		size, each = c.NumElements(), c.All()
	case MapContainer:
		size = c.NumElements()
		each = func(yield func(any) bool) {
			for k, e := range c.Entries() {
				if !yield(k) || !yield(e) {
					return
				}
			}
		}
	default:
		return valueErr("write container", 0, "%T is not a container", v)
	}
	w.WriteInt32(wrappedContainerSize, int32(size))
	w.writeTypeRef(d, wrappedContainerTypeName, wrappedContainerTypeID)
	for e := range each {
		if err := w.WriteWrapped(wrappedContainerElement, e); err != nil {
			return err
		}
	}
	return w.Err()
}

// envelope collects the fields of one WrappedMessage while they are read.
type envelope struct {
	typeName string
	typeID   null.Int

	payload []byte
	message any
	decoded bool

	enum      null.Int
	scalar    any
	hasScalar bool

	seconds, nanos int64
	hasInstant     bool
	millis         null.Int
	empty          bool

	containerSize null.Int
	containerName string
	containerID   null.Int
	elements      []any
}

func (e *envelope) setScalar(v any) {
	e.scalar, e.hasScalar = v, true
}

func (e *envelope) hasType() bool { return e.typeName != "" || e.typeID.Valid }

// readWrapped decodes the envelope fields up to the current limit and
// returns the carried value.
func (r *ProtoReader) readWrapped() (any, error) {
	var env envelope
	for {
		tag := r.r.ReadTag()
		if tag == 0 {
			break
		}
		if err := r.readEnvelopeField(&env, tag); err != nil {
			return nil, err
		}
	}
	if err := r.r.Err(); err != nil {
		return nil, err
	}
	return r.unwrap(&env)
}

var wrappedWireTypes = map[int32]protostream.WireType{
	wrappedTypeName:          protostream.BytesType,
	wrappedMessage:           protostream.BytesType,
	wrappedDouble:            protostream.Fixed64Type,
	wrappedFloat:             protostream.Fixed32Type,
	wrappedFixed64:           protostream.Fixed64Type,
	wrappedFixed32:           protostream.Fixed32Type,
	wrappedString:            protostream.BytesType,
	wrappedBytes:             protostream.BytesType,
	wrappedSfixed32:          protostream.Fixed32Type,
	wrappedSfixed64:          protostream.Fixed64Type,
	wrappedContainerTypeName: protostream.BytesType,
	wrappedContainerMessage:  protostream.BytesType,
	wrappedContainerElement:  protostream.BytesType,
}

func (r *ProtoReader) readEnvelopeField(env *envelope, tag protostream.Tag) error {
	in := r.r
	num := tag.Number()
	if num > wrappedContainerElement {
		in.SkipField(tag)
		return in.Err()
	}
	want, ok := wrappedWireTypes[num]
	if !ok {
		want = protostream.VarintType
	}
	if tag.WireType() != want {
		in.Fail("read wrapped", fmt.Errorf("%w: field %d sent as %s", protostream.ErrUnknownWireType, num, tag.WireType()))
		return in.Err()
	}

	switch num {
	case wrappedTypeName:
		env.typeName = in.ReadString()
	case wrappedTypeID:
		env.typeID = null.IntFrom(int64(in.ReadInt32()))
	case wrappedMessage:
		// Only a known id can settle the type before the envelope ends.
		_, known := r.ctx.TypeNameByID(env.typeID.Int64)
		if !env.typeID.Valid || !known {
			env.payload = in.ReadBytes()
			break
		}
		d, err := r.envelopeType(env.typeName, env.typeID)
		if err != nil {
			return err
		}
		if d.msg == nil {
			return registrationErr(d.name, ErrKindMismatch, "wrapped message payload for an enum")
		}
		v, err := r.nested(func() (any, error) { return r.readMessageBody(d) })
		if err != nil {
			return err
		}
		env.message, env.decoded = v, true
	case wrappedDouble:
		env.setScalar(in.ReadDouble())
	case wrappedFloat:
		env.setScalar(in.ReadFloat())
	case wrappedInt64:
		env.setScalar(in.ReadInt64())
	case wrappedUint64:
		env.setScalar(in.ReadUint64())
	case wrappedInt32:
		env.setScalar(in.ReadInt32())
	case wrappedFixed64:
		env.setScalar(in.ReadFixed64())
	case wrappedFixed32:
		env.setScalar(in.ReadFixed32())
	case wrappedBool:
		env.setScalar(in.ReadBool())
	case wrappedString:
		env.setScalar(in.ReadString())
	case wrappedBytes:
		env.setScalar(in.ReadBytes())
	case wrappedUint32:
		env.setScalar(in.ReadUint32())
	case wrappedSfixed32:
		env.setScalar(in.ReadSfixed32())
	case wrappedSfixed64:
		env.setScalar(in.ReadSfixed64())
	case wrappedSint32:
		env.setScalar(in.ReadSint32())
	case wrappedSint64:
		env.setScalar(in.ReadSint64())
	case wrappedEnum:
		env.enum = null.IntFrom(int64(in.ReadInt32()))
	case wrappedUint16:
		env.setScalar(uint16(in.ReadUint32()))
	case wrappedInt16:
		env.setScalar(int16(in.ReadInt32()))
	case wrappedInt8:
		env.setScalar(int8(in.ReadInt32()))
	case wrappedDateMillis:
		env.millis = null.IntFrom(in.ReadInt64())
	case wrappedInstantSeconds:
		env.seconds, env.hasInstant = in.ReadInt64(), true
	case wrappedInstantNanos:
		env.nanos, env.hasInstant = int64(in.ReadInt32()), true
	case wrappedContainerSize:
		env.containerSize = null.IntFrom(int64(in.ReadInt32()))
	case wrappedContainerTypeName:
		env.containerName = in.ReadString()
	case wrappedContainerTypeID:
		env.containerID = null.IntFrom(int64(in.ReadInt32()))
	case wrappedContainerMessage:
		in.ReadBytes()
	case wrappedEmpty:
		env.empty = in.ReadBool()
	case wrappedContainerElement:
		v, err := r.ReadWrapped()
		if err != nil {
			return err
		}
		env.elements = append(env.elements, v)
	}
	return in.Err()
}

func (r *ProtoReader) unwrap(env *envelope) (any, error) {
	switch {
	case env.hasScalar:
		return env.scalar, nil
	case env.hasInstant:
		return time.Unix(env.seconds, env.nanos).UTC(), nil
	case env.millis.Valid:
		return time.UnixMilli(env.millis.Int64).UTC(), nil
	case env.empty:
		return nil, nil
	case env.containerSize.Valid:
		d, err := r.envelopeType(env.containerName, env.containerID)
		if err != nil {
			return nil, err
		}
		return r.buildContainer(d, int(env.containerSize.Int64), env.elements)
	case env.hasType():
		d, err := r.envelopeType(env.typeName, env.typeID)
		if err != nil {
			return nil, err
		}
		if env.enum.Valid {
			if d.enum == nil {
				return nil, registrationErr(d.name, ErrKindMismatch, "wrapped enum value for a message")
			}
			return r.decodeEnum(d, int32(env.enum.Int64)), nil
		}
		if env.decoded {
			return env.message, nil
		}
		if d.msg == nil {
			return nil, registrationErr(d.name, ErrKindMismatch, "wrapped message payload for an enum")
		}
		return r.decodePayload(d, env.payload)
	}
	r.r.Fail("read wrapped", errEmptyWrapper)
	return nil, r.r.Err()
}

// envelopeType resolves the type of an envelope by id, falling back to the
// name when the id is absent or unknown.
func (r *ProtoReader) envelopeType(name string, id null.Int) (*delegate, error) {
	if id.Valid {
		if n, ok := r.ctx.TypeNameByID(id.Int64); ok {
			return r.ctx.delegate(n)
		}
		if name == "" {
			return nil, registrationErr("", ErrUnknownType, "no type with id %d", id.Int64)
		}
	}
	return r.ctx.delegate(name)
}

// decodePayload decodes a message payload that arrived before its type, one
// nesting level below the envelope.
func (r *ProtoReader) decodePayload(d *delegate, payload []byte) (any, error) {
	remaining := r.r.MaxDepth() - r.r.Depth()
	if remaining < 1 {
		r.r.Fail("read wrapped", protostream.ErrNestedMessageDepthExceeded)
		return nil, r.r.Err()
	}
	sub := &ProtoReader{
		ctx:         r.ctx,
		r:           protostream.NewBytesDecoder(payload).WithMaxDepth(remaining),
		dynamicOnly: r.dynamicOnly,
	}
	sub.r.EnterMessage()
	v, err := sub.readMessageBody(d)
	if err == nil {
		err = sub.r.Err()
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// buildContainer creates the container through its marshaller and fills it
// with the decoded elements.
func (r *ProtoReader) buildContainer(d *delegate, size int, elements []any) (any, error) {
	cm, ok := d.m.(containerMarshaller)
	if !ok {
		return nil, registrationErr(d.name, ErrNoMarshaller, "no container marshaller registered")
	}
	want := size
	if isMapContainer(cm) {
		want = 2 * size
	}
	if size < 0 || len(elements) != want {
		r.r.Fail("read container", fmt.Errorf("%w: container %s declares %d elements, got %d", ErrInvalidValue, d.name, size, len(elements)))
		return nil, r.r.Err()
	}

	switch c := cm.newContainer(size).(type) {
	case IndexedContainer:
		for i, e := range elements {
			c.SetElement(i, e)
		}
		return c, nil
	case AppendableContainer:
		for _, e := range elements {
			c.Append(e)
		}
		return c, nil
	case MapContainer:
		for i := 0; i < len(elements); i += 2 {
			c.Put(elements[i], elements[i+1])
		}
		return c, nil
	default:
		return nil, registrationErr(d.name, ErrKindMismatch, "%s implements no container interface", cm.GoType())
	}
}

// isMapContainer reports whether cm creates map containers, which carry two
// elements per entry. Indexed and appendable take precedence, matching the
// write side.
func isMapContainer(cm containerMarshaller) bool {
	t := cm.GoType()
	return !t.Implements(indexedType) && !t.Implements(appendableType) && t.Implements(mapType)
}
