package registry

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/descriptor"
)

// DynamicMessage holds the field values of a message type known only by its
// descriptor.
//
// Values use fixed Go types per field kind: int32, int64, uint32, uint64,
// float32, float64, bool, string and []byte for scalars, int32 for enums
// without a registered marshaller, *DynamicMessage or a marshalled Go value
// for messages. Repeated fields hold []any and map fields map[any]any.
type DynamicMessage struct {
	desc    *descriptor.Descriptor
	values  map[int32]any
	unknown protostream.UnknownFieldSet
}

// NewDynamicMessage returns an empty message of type d.
func NewDynamicMessage(d *descriptor.Descriptor) *DynamicMessage {
	return &DynamicMessage{desc: d, values: make(map[int32]any)}
}

// Descriptor returns the message type.
func (m *DynamicMessage) Descriptor() *descriptor.Descriptor { return m.desc }

// Unknown returns the fields read from the wire that the type does not
// declare. They are written back on encode.
func (m *DynamicMessage) Unknown() *protostream.UnknownFieldSet { return &m.unknown }

// Has reports whether the named field holds a value.
func (m *DynamicMessage) Has(name string) bool {
	fd := m.desc.FieldByName(name)
	if fd == nil {
		return false
	}
	_, ok := m.values[fd.Number]
	return ok
}

// Get returns the value of the named field, or its default when unset.
func (m *DynamicMessage) Get(name string) any {
	fd := m.desc.FieldByName(name)
	if fd == nil {
		return nil
	}
	return m.get(fd)
}

// GetByNumber returns the value of field n, or its default when unset.
func (m *DynamicMessage) GetByNumber(n int32) any {
	fd := m.desc.FieldByNumber(n)
	if fd == nil {
		return nil
	}
	return m.get(fd)
}

func (m *DynamicMessage) get(fd *descriptor.FieldDescriptor) any {
	if v, ok := m.values[fd.Number]; ok {
		return v
	}
	return defaultValue(fd)
}

// Set stores v in the named field. Setting a oneof member clears the others.
func (m *DynamicMessage) Set(name string, v any) error {
	fd := m.desc.FieldByName(name)
	if fd == nil {
		return valueErr("set field", 0, "%s has no field %q", m.desc.FullName, name)
	}
	return m.set(fd, v)
}

// SetByNumber stores v in field n.
func (m *DynamicMessage) SetByNumber(n int32, v any) error {
	fd := m.desc.FieldByNumber(n)
	if fd == nil {
		return valueErr("set field", n, "%s has no field %d", m.desc.FullName, n)
	}
	return m.set(fd, v)
}

func (m *DynamicMessage) set(fd *descriptor.FieldDescriptor, v any) error {
	if err := checkValue(fd, v); err != nil {
		return err
	}
	m.store(fd, v)
	return nil
}

// store sets a value that is already known to fit the field.
func (m *DynamicMessage) store(fd *descriptor.FieldDescriptor, v any) {
	if o := fd.ContainingOneof(); o != nil && !o.Synthetic {
		for _, member := range o.Fields {
			delete(m.values, member.Number)
		}
	}
	m.values[fd.Number] = v
}

// Clear unsets the named field.
func (m *DynamicMessage) Clear(name string) {
	if fd := m.desc.FieldByName(name); fd != nil {
		delete(m.values, fd.Number)
	}
}

// WhichOneof returns the member of the named oneof that is set, or nil.
func (m *DynamicMessage) WhichOneof(name string) *descriptor.FieldDescriptor {
	for _, o := range m.desc.Oneofs {
		if o.Name != name {
			continue
		}
		for _, fd := range o.Fields {
			if _, ok := m.values[fd.Number]; ok {
				return fd
			}
		}
	}
	return nil
}

// Range calls fn for every set field in declaration order.
func (m *DynamicMessage) Range(fn func(fd *descriptor.FieldDescriptor, v any) bool) {
	for _, fd := range m.desc.Fields {
		v, ok := m.values[fd.Number]
		if ok && !fn(fd, v) {
			return
		}
	}
}

func checkValue(fd *descriptor.FieldDescriptor, v any) error {
	switch {
	case fd.IsMap():
		entries, ok := v.(map[any]any)
		if !ok {
			return valueErr("set field", fd.Number, "map field %s takes map[any]any, got %T", fd.FullName(), v)
		}
		for k, e := range entries {
			if err := checkSingle(fd.MapKey(), k); err != nil {
				return err
			}
			if err := checkSingle(fd.MapValue(), e); err != nil {
				return err
			}
		}
	case fd.IsRepeated():
		list, ok := v.([]any)
		if !ok {
			return valueErr("set field", fd.Number, "repeated field %s takes []any, got %T", fd.FullName(), v)
		}
		for _, e := range list {
			if err := checkSingle(fd, e); err != nil {
				return err
			}
		}
	default:
		return checkSingle(fd, v)
	}
	return nil
}

func checkSingle(fd *descriptor.FieldDescriptor, v any) error {
	if v == nil {
		return valueErr("set field", fd.Number, "nil value for %s", fd.FullName())
	}
	switch fd.Kind {
	case descriptor.KindEnum:
		return nil
	case descriptor.KindMessage, descriptor.KindGroup:
		md := fd.Message()
		if dm, ok := v.(*DynamicMessage); ok && md != nil && md.FullName != WrappedMessageType && dm.desc.FullName != md.FullName {
			return valueErr("set field", fd.Number, "%s takes %s, got %s", fd.FullName(), md.FullName, dm.desc.FullName)
		}
		return nil
	}
	if reflect.TypeOf(v) != reflect.TypeOf(zeroValue(fd.Kind)) {
		return valueErr("set field", fd.Number, "%s field %s takes %T, got %T", fd.Kind, fd.FullName(), zeroValue(fd.Kind), v)
	}
	return nil
}

// zeroValue returns the Go zero value used for a scalar kind.
func zeroValue(k descriptor.Kind) any {
	switch k {
	case descriptor.KindInt32, descriptor.KindSint32, descriptor.KindSfixed32, descriptor.KindEnum:
		return int32(0)
	case descriptor.KindInt64, descriptor.KindSint64, descriptor.KindSfixed64:
		return int64(0)
	case descriptor.KindUint32, descriptor.KindFixed32:
		return uint32(0)
	case descriptor.KindUint64, descriptor.KindFixed64:
		return uint64(0)
	case descriptor.KindFloat:
		return float32(0)
	case descriptor.KindDouble:
		return float64(0)
	case descriptor.KindBool:
		return false
	case descriptor.KindString:
		return ""
	case descriptor.KindBytes:
		return []byte(nil)
	}
	return nil
}

// defaultValue is what Get returns for an unset field: nil for repeated,
// map and message fields, the declared default, or the kind's zero value.
func defaultValue(fd *descriptor.FieldDescriptor) any {
	if fd.IsRepeated() {
		return nil
	}
	switch fd.Kind {
	case descriptor.KindMessage, descriptor.KindGroup:
		return nil
	case descriptor.KindEnum:
		e := fd.Enum()
		if e == nil {
			return int32(0)
		}
		if fd.Default.Valid {
			if v := e.ValueByName(fd.Default.String); v != nil {
				return v.Number
			}
		}
		if v := e.Default(); v != nil {
			return v.Number
		}
		return int32(0)
	}
	if !fd.Default.Valid {
		return zeroValue(fd.Kind)
	}
	v, err := parseScalar(fd.Kind, fd.Default.String)
	if err != nil {
		return zeroValue(fd.Kind)
	}
	return v
}

// parseScalar converts the text form of a scalar to its Go value.
func parseScalar(k descriptor.Kind, s string) (any, error) {
	switch k {
	case descriptor.KindInt32, descriptor.KindSint32, descriptor.KindSfixed32:
		n, err := strconv.ParseInt(s, 0, 32)
		return int32(n), err
	case descriptor.KindInt64, descriptor.KindSint64, descriptor.KindSfixed64:
		return strconv.ParseInt(s, 0, 64)
	case descriptor.KindUint32, descriptor.KindFixed32:
		n, err := strconv.ParseUint(s, 0, 32)
		return uint32(n), err
	case descriptor.KindUint64, descriptor.KindFixed64:
		return strconv.ParseUint(s, 0, 64)
	case descriptor.KindFloat:
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), err
	case descriptor.KindDouble:
		return strconv.ParseFloat(s, 64)
	case descriptor.KindBool:
		return strconv.ParseBool(s)
	case descriptor.KindString:
		return s, nil
	case descriptor.KindBytes:
		return []byte(s), nil
	}
	return nil, fmt.Errorf("%w: %s is not a scalar kind", ErrInvalidValue, k)
}

// isZero reports whether v is the zero value of its scalar kind. Negative
// zero floats are not zero.
func isZero(v any) bool {
	switch x := v.(type) {
	case int32:
		return x == 0
	case int64:
		return x == 0
	case uint32:
		return x == 0
	case uint64:
		return x == 0
	case float32:
		return math.Float32bits(x) == 0
	case float64:
		return math.Float64bits(x) == 0
	case bool:
		return !x
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	}
	return false
}

// --- encoding ---

func (w *ProtoWriter) writeDynamic(m *DynamicMessage) error {
	d, err := w.ctx.delegate(m.desc.FullName)
	if err != nil {
		return err
	}
	for _, fd := range d.fields {
		v, ok := m.values[fd.Number]
		if !ok {
			if fd.IsRequired() {
				return valueErr("write message", fd.Number, "required field %s is not set", fd.FullName())
			}
			continue
		}
		if !fd.IsRepeated() && !fd.HasPresence() && isZero(v) {
			continue
		}
		if err := w.writeField(fd, v); err != nil {
			return err
		}
	}
	w.WriteUnknown(&m.unknown)
	return w.Err()
}

func (w *ProtoWriter) writeField(fd *descriptor.FieldDescriptor, v any) error {
	switch {
	case fd.IsMap():
		entries, _ := v.(map[any]any)
		kf, vf := fd.MapKey(), fd.MapValue()
		for _, k := range sortedKeys(entries) {
			w.w.WriteTag(fd.Number, protostream.BytesType)
			w.nested(func(nw *ProtoWriter) error {
				if err := nw.writeSingle(kf, k); err != nil {
					return err
				}
				return nw.writeSingle(vf, entries[k])
			})
			if err := w.Err(); err != nil {
				return err
			}
		}
	case fd.IsRepeated():
		list, _ := v.([]any)
		if fd.IsPacked() {
			if len(list) == 0 {
				return nil
			}
			w.w.WriteTag(fd.Number, protostream.BytesType)
			w.nested(func(nw *ProtoWriter) error {
				for _, e := range list {
					if err := nw.writeValue(fd, e); err != nil {
						return err
					}
				}
				return nil
			})
			return w.Err()
		}
		for _, e := range list {
			if err := w.writeSingle(fd, e); err != nil {
				return err
			}
		}
	default:
		return w.writeSingle(fd, v)
	}
	return w.Err()
}

// writeSingle writes one tagged value of fd.
func (w *ProtoWriter) writeSingle(fd *descriptor.FieldDescriptor, v any) error {
	if fd.Kind == descriptor.KindGroup {
		dm, ok := v.(*DynamicMessage)
		if !ok {
			return valueErr("write group", fd.Number, "group %s takes *DynamicMessage, got %T", fd.FullName(), v)
		}
		w.w.WriteTag(fd.Number, protostream.StartGroupType)
		if err := w.writeDynamic(dm); err != nil {
			return err
		}
		w.w.WriteTag(fd.Number, protostream.EndGroupType)
		return w.Err()
	}
	w.w.WriteTag(fd.Number, fd.WireType())
	return w.writeValue(fd, v)
}

// writeValue writes one untagged value of fd.
func (w *ProtoWriter) writeValue(fd *descriptor.FieldDescriptor, v any) error {
	switch fd.Kind {
	case descriptor.KindEnum:
		n, err := w.enumNumber(fd.Number, v)
		if err != nil {
			return err
		}
		w.w.WriteInt32(n)
	case descriptor.KindMessage:
		dm, isDynamic := v.(*DynamicMessage)
		if md := fd.Message(); md != nil && md.FullName == WrappedMessageType && (!isDynamic || dm.desc.FullName != WrappedMessageType) {
			w.nested(func(nw *ProtoWriter) error { return nw.writeWrapped(v) })
			break
		}
		if isDynamic {
			w.nested(func(nw *ProtoWriter) error { return nw.writeDynamic(dm) })
			break
		}
		m, ok := w.ctx.marshallerFor(v)
		if !ok {
			return registrationErr("", ErrNoMarshaller, "no marshaller for %T in %s", v, fd.FullName())
		}
		mm, ok := m.(messageMarshaller)
		if !ok {
			return registrationErr(m.TypeName(), ErrKindMismatch, "%T in %s is not a message", v, fd.FullName())
		}
		w.nested(func(nw *ProtoWriter) error { return mm.writeMessage(nw, v) })
	default:
		if !writeScalar(w.w, fd.Kind, v) {
			return valueErr("write field", fd.Number, "%s field %s takes %T, got %T", fd.Kind, fd.FullName(), zeroValue(fd.Kind), v)
		}
	}
	return w.Err()
}

// writeScalar writes v untagged and reports false when v is not the Go type
// of kind k.
func writeScalar(out *protostream.Writer, k descriptor.Kind, v any) bool {
	switch x := v.(type) {
	case int32:
		switch k {
		case descriptor.KindInt32:
			out.WriteInt32(x)
		case descriptor.KindSint32:
			out.WriteSint32(x)
		case descriptor.KindSfixed32:
			out.WriteSfixed32(x)
		default:
			return false
		}
	case int64:
		switch k {
		case descriptor.KindInt64:
			out.WriteInt64(x)
		case descriptor.KindSint64:
			out.WriteSint64(x)
		case descriptor.KindSfixed64:
			out.WriteSfixed64(x)
		default:
			return false
		}
	case uint32:
		switch k {
		case descriptor.KindUint32:
			out.WriteUint32(x)
		case descriptor.KindFixed32:
			out.WriteFixed32(x)
		default:
			return false
		}
	case uint64:
		switch k {
		case descriptor.KindUint64:
			out.WriteUint64(x)
		case descriptor.KindFixed64:
			out.WriteFixed64(x)
		default:
			return false
		}
	case float32:
		if k != descriptor.KindFloat {
			return false
		}
		out.WriteFloat(x)
	case float64:
		if k != descriptor.KindDouble {
			return false
		}
		out.WriteDouble(x)
	case bool:
		if k != descriptor.KindBool {
			return false
		}
		out.WriteBool(x)
	case string:
		if k != descriptor.KindString {
			return false
		}
		out.WriteStringValue(x)
	case []byte:
		if k != descriptor.KindBytes {
			return false
		}
		out.WriteBytes(x)
	default:
		return false
	}
	return true
}

// sortedKeys returns map keys in ascending order so map fields encode
// deterministically.
func sortedKeys(entries map[any]any) []any {
	keys := make([]any, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b any) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return cmp.Compare(x, y)
	case int32:
		y, _ := b.(int32)
		return cmp.Compare(x, y)
	case int64:
		y, _ := b.(int64)
		return cmp.Compare(x, y)
	case uint32:
		y, _ := b.(uint32)
		return cmp.Compare(x, y)
	case uint64:
		y, _ := b.(uint64)
		return cmp.Compare(x, y)
	case bool:
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	}
	return 0
}

// --- decoding ---

func (r *ProtoReader) readDynamic(d *delegate) (*DynamicMessage, error) {
	m := NewDynamicMessage(d.msg)
	for {
		tag := r.r.ReadTag()
		if tag == 0 {
			break
		}
		if err := r.readDynamicField(m, d, tag); err != nil {
			return nil, err
		}
	}
	if err := r.r.Err(); err != nil {
		return nil, err
	}
	if err := r.checkRequired(m, d); err != nil {
		return nil, err
	}
	return m, nil
}

// readGroup decodes a group body up to its matching end tag.
func (r *ProtoReader) readGroup(fd *descriptor.FieldDescriptor) (*DynamicMessage, error) {
	d, err := r.ctx.delegate(fd.Message().FullName)
	if err != nil {
		return nil, err
	}
	if !r.r.EnterMessage() {
		return nil, r.r.Err()
	}
	defer r.r.ExitMessage()

	m := NewDynamicMessage(d.msg)
	for {
		tag := r.r.ReadTag()
		if tag == 0 {
			r.r.Fail("read group", protostream.ErrTruncatedInput)
			return nil, r.r.Err()
		}
		if tag.WireType() == protostream.EndGroupType {
			if tag.Number() != fd.Number {
				r.r.Fail("read group", protostream.ErrMismatchedEndGroup)
				return nil, r.r.Err()
			}
			break
		}
		if err := r.readDynamicField(m, d, tag); err != nil {
			return nil, err
		}
	}
	if err := r.checkRequired(m, d); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *ProtoReader) checkRequired(m *DynamicMessage, d *delegate) error {
	for _, fd := range d.fields {
		if _, ok := m.values[fd.Number]; fd.IsRequired() && !ok {
			r.r.Fail("read message", fmt.Errorf("%w: required field %s is missing", ErrInvalidValue, fd.FullName()))
			return r.r.Err()
		}
	}
	return nil
}

func (r *ProtoReader) readDynamicField(m *DynamicMessage, d *delegate, tag protostream.Tag) error {
	fd := d.msg.FieldByNumber(tag.Number())
	if fd == nil {
		m.unknown.Capture(r.r, tag)
		return r.r.Err()
	}

	switch {
	case fd.IsMap():
		if !r.expectWireType(fd, tag, protostream.BytesType) {
			return r.r.Err()
		}
		k, v, err := r.readMapEntry(fd)
		if err != nil {
			return err
		}
		entries, _ := m.values[fd.Number].(map[any]any)
		if entries == nil {
			entries = make(map[any]any)
			m.values[fd.Number] = entries
		}
		entries[k] = v
	case fd.IsRepeated():
		list, _ := m.values[fd.Number].([]any)
		if tag.WireType() == protostream.BytesType && fd.Kind.IsPackable() {
			n := r.r.ReadLength()
			old := r.r.PushLimit(n)
			for r.r.Err() == nil && r.r.Remaining() > 0 {
				v, err := r.readValue(fd)
				if err != nil {
					return err
				}
				list = append(list, v)
			}
			r.r.PopLimit(old)
		} else {
			if !r.expectWireType(fd, tag, fd.WireType()) {
				return r.r.Err()
			}
			v, err := r.readSingle(fd)
			if err != nil {
				return err
			}
			list = append(list, v)
		}
		m.values[fd.Number] = list
	default:
		if !r.expectWireType(fd, tag, fd.WireType()) {
			return r.r.Err()
		}
		v, err := r.readSingle(fd)
		if err != nil {
			return err
		}
		m.store(fd, v)
	}
	return r.r.Err()
}

func (r *ProtoReader) expectWireType(fd *descriptor.FieldDescriptor, tag protostream.Tag, want protostream.WireType) bool {
	if tag.WireType() == want {
		return true
	}
	r.r.Fail("read field", fmt.Errorf("%w: %s field %s sent as %s", protostream.ErrUnknownWireType, fd.Kind, fd.FullName(), tag.WireType()))
	return false
}

func (r *ProtoReader) readMapEntry(fd *descriptor.FieldDescriptor) (key, val any, err error) {
	kf, vf := fd.MapKey(), fd.MapValue()
	_, err = r.nested(func() (any, error) {
		for {
			tag := r.r.ReadTag()
			if tag == 0 {
				return nil, r.r.Err()
			}
			var err error
			switch tag.Number() {
			case 1:
				if r.expectWireType(kf, tag, kf.WireType()) {
					key, err = r.readValue(kf)
				}
			case 2:
				if r.expectWireType(vf, tag, vf.WireType()) {
					val, err = r.readSingle(vf)
				}
			default:
				r.r.SkipField(tag)
			}
			if err != nil {
				return nil, err
			}
			if err := r.r.Err(); err != nil {
				return nil, err
			}
		}
	})
	if err != nil {
		return nil, nil, err
	}
	if key == nil {
		key = zeroValue(kf.Kind)
	}
	if val == nil {
		val, err = r.missingMapValue(vf)
	}
	return key, val, err
}

// missingMapValue is the value of a map entry that omitted it.
func (r *ProtoReader) missingMapValue(vf *descriptor.FieldDescriptor) (any, error) {
	if vf.Kind != descriptor.KindMessage {
		return defaultValue(vf), nil
	}
	if md := vf.Message(); md != nil && md.FullName == WrappedMessageType && !r.dynamicOnly {
		return nil, nil
	}
	d, err := r.ctx.delegate(vf.Message().FullName)
	if err != nil {
		return nil, err
	}
	return r.decodePayload(d, nil)
}

func (r *ProtoReader) readSingle(fd *descriptor.FieldDescriptor) (any, error) {
	if fd.Kind == descriptor.KindGroup {
		m, err := r.readGroup(fd)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return r.readValue(fd)
}

// readValue reads one untagged value of fd.
func (r *ProtoReader) readValue(fd *descriptor.FieldDescriptor) (any, error) {
	switch fd.Kind {
	case descriptor.KindEnum:
		n := r.r.ReadInt32()
		if err := r.r.Err(); err != nil {
			return nil, err
		}
		d, err := r.ctx.delegate(fd.Enum().FullName)
		if err != nil {
			return nil, err
		}
		return r.decodeEnum(d, n), nil
	case descriptor.KindMessage:
		md := fd.Message()
		if md.FullName == WrappedMessageType && !r.dynamicOnly {
			return r.ReadWrapped()
		}
		d, err := r.ctx.delegate(md.FullName)
		if err != nil {
			return nil, err
		}
		return r.nested(func() (any, error) { return r.readMessageBody(d) })
	}
	v := readScalar(r.r, fd.Kind)
	if err := r.r.Err(); err != nil {
		return nil, err
	}
	return v, nil
}

func readScalar(in *protostream.Reader, k descriptor.Kind) any {
	switch k {
	case descriptor.KindInt32:
		return in.ReadInt32()
	case descriptor.KindSint32:
		return in.ReadSint32()
	case descriptor.KindSfixed32:
		return in.ReadSfixed32()
	case descriptor.KindInt64:
		return in.ReadInt64()
	case descriptor.KindSint64:
		return in.ReadSint64()
	case descriptor.KindSfixed64:
		return in.ReadSfixed64()
	case descriptor.KindUint32:
		return in.ReadUint32()
	case descriptor.KindFixed32:
		return in.ReadFixed32()
	case descriptor.KindUint64:
		return in.ReadUint64()
	case descriptor.KindFixed64:
		return in.ReadFixed64()
	case descriptor.KindFloat:
		return in.ReadFloat()
	case descriptor.KindDouble:
		return in.ReadDouble()
	case descriptor.KindBool:
		return in.ReadBool()
	case descriptor.KindString:
		return in.ReadString()
	case descriptor.KindBytes:
		return in.ReadBytes()
	}
	in.Fail("read field", fmt.Errorf("%w: %s is not a scalar kind", ErrInvalidValue, k))
	return nil
}
