package registry

import (
	"encoding/base64"
	"math"
	"slices"
	"time"

	"github.com/mailru/easyjson/jwriter"
	"github.com/tidwall/gjson"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/descriptor"
)

// scalarLabels names the "_type" of values carried by envelope scalar
// fields.
var scalarLabels = map[int32]string{
	wrappedDouble:   "double",
	wrappedFloat:    "float",
	wrappedInt64:    "int64",
	wrappedUint64:   "uint64",
	wrappedInt32:    "int32",
	wrappedFixed64:  "fixed64",
	wrappedFixed32:  "fixed32",
	wrappedBool:     "bool",
	wrappedString:   "string",
	wrappedBytes:    "bytes",
	wrappedUint32:   "uint32",
	wrappedSfixed32: "sfixed32",
	wrappedSfixed64: "sfixed64",
	wrappedSint32:   "sint32",
	wrappedSint64:   "sint64",
	wrappedUint16:   "uint16",
	wrappedInt16:    "int16",
	wrappedInt8:     "int8",
}

var scalarFields = func() map[string]int32 {
	m := make(map[string]int32, len(scalarLabels))
	for n, label := range scalarLabels {
		m[label] = n
	}
	return m
}()

// scalarOrder fixes which scalar field wins when a foreign writer set more
// than one.
var scalarOrder = func() []int32 {
	nums := make([]int32, 0, len(scalarLabels))
	for n := range scalarLabels {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	return nums
}()

const (
	instantLabel = "instant"
	dateLabel    = "date"
)

// jsonState carries one projection in either direction.
type jsonState struct {
	c     *Context
	out   jwriter.Writer
	depth int
}

func (st *jsonState) enter() error {
	st.depth++
	if st.depth > st.c.maxDepth() {
		return &protostream.WireFormatError{Op: "json", Err: protostream.ErrNestedMessageDepthExceeded}
	}
	return nil
}

func (st *jsonState) exit() { st.depth-- }

// ToCanonicalJSON renders wrapped bytes as canonical JSON. Registered
// marshallers are not involved: the projection follows the schema only.
//
// Scalars render as {"_type":"int32","_value":7}, messages as an object with
// "_type" and one member per set field, enums by value name, bytes as
// base64, and nil as null.
func (c *Context) ToCanonicalJSON(b []byte) (string, error) {
	wd, err := c.delegate(WrappedMessageType)
	if err != nil {
		return "", err
	}
	in := c.newReader(protostream.NewBytesDecoder(b), true)
	env, err := in.readDynamic(wd)
	if err != nil {
		return "", err
	}
	st := &jsonState{c: c}
	if err := st.writeWrapped(env); err != nil {
		return "", err
	}
	data, err := st.out.BuildBytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (st *jsonState) writeWrapped(env *DynamicMessage) error {
	if err := st.enter(); err != nil {
		return err
	}
	defer st.exit()

	out := &st.out
	vals := env.values
	switch {
	case has(vals, wrappedEmpty):
		out.RawString("null")
	case has(vals, wrappedContainerSize):
		name, err := st.c.envelopeTypeName(env, wrappedContainerTypeName, wrappedContainerTypeID)
		if err != nil {
			return err
		}
		out.RawString(`{"_type":`)
		out.String(name)
		out.RawString(`,"_value":[`)
		elements, _ := vals[wrappedContainerElement].([]any)
		for i, e := range elements {
			if i > 0 {
				out.RawByte(',')
			}
			if err := st.writeWrapped(e.(*DynamicMessage)); err != nil {
				return err
			}
		}
		out.RawString("]}")
	case has(vals, wrappedInstantSeconds) || has(vals, wrappedInstantNanos):
		secs, _ := vals[wrappedInstantSeconds].(int64)
		nanos, _ := vals[wrappedInstantNanos].(int32)
		st.writeTime(instantLabel, time.Unix(secs, int64(nanos)))
	case has(vals, wrappedDateMillis):
		st.writeTime(dateLabel, time.UnixMilli(vals[wrappedDateMillis].(int64)))
	case has(vals, wrappedTypeName) || has(vals, wrappedTypeID):
		return st.writeTyped(env)
	default:
		for _, n := range scalarOrder {
			v, ok := vals[n]
			if !ok {
				continue
			}
			out.RawString(`{"_type":`)
			out.String(scalarLabels[n])
			out.RawString(`,"_value":`)
			writeJSONScalar(out, v)
			out.RawByte('}')
			return nil
		}
		return &protostream.WireFormatError{Op: "json", Err: errEmptyWrapper}
	}
	return nil
}

func (st *jsonState) writeTime(label string, t time.Time) {
	st.out.RawString(`{"_type":`)
	st.out.String(label)
	st.out.RawString(`,"_value":`)
	st.out.String(t.UTC().Format(time.RFC3339Nano))
	st.out.RawByte('}')
}

// writeTyped renders an enum or message envelope.
func (st *jsonState) writeTyped(env *DynamicMessage) error {
	name, err := st.c.envelopeTypeName(env, wrappedTypeName, wrappedTypeID)
	if err != nil {
		return err
	}
	d, err := st.c.delegate(name)
	if err != nil {
		return err
	}
	out := &st.out
	if n, ok := env.values[wrappedEnum].(int32); ok {
		if d.enum == nil {
			return registrationErr(name, ErrKindMismatch, "wrapped enum value for a message")
		}
		out.RawString(`{"_type":`)
		out.String(name)
		out.RawString(`,"_value":`)
		writeJSONEnum(out, d.enum, n)
		out.RawByte('}')
		return nil
	}
	if d.msg == nil {
		return registrationErr(name, ErrKindMismatch, "wrapped message payload for an enum")
	}
	payload, _ := env.values[wrappedMessage].([]byte)
	in := &ProtoReader{
		ctx:         st.c,
		r:           protostream.NewBytesDecoder(payload).WithMaxDepth(st.c.maxDepth() - st.depth + 1),
		dynamicOnly: true,
	}
	m, err := in.readDynamic(d)
	if err != nil {
		return err
	}
	return st.writeMessage(m, name)
}

// envelopeTypeName returns the type named in env, by id first and then by
// name.
func (c *Context) envelopeTypeName(env *DynamicMessage, nameField, idField int32) (string, error) {
	if id, ok := env.values[idField].(int32); ok {
		if name, ok := c.TypeNameByID(int64(id)); ok {
			return name, nil
		}
	}
	if name, ok := env.values[nameField].(string); ok && name != "" {
		return name, nil
	}
	id, _ := env.values[idField].(int32)
	return "", registrationErr("", ErrUnknownType, "no type with id %d", id)
}

func (st *jsonState) writeMessage(m *DynamicMessage, typeName string) error {
	if err := st.enter(); err != nil {
		return err
	}
	defer st.exit()

	out := &st.out
	out.RawByte('{')
	first := true
	if typeName != "" {
		out.RawString(`"_type":`)
		out.String(typeName)
		first = false
	}
	var err error
	m.Range(func(fd *descriptor.FieldDescriptor, v any) bool {
		if !first {
			out.RawByte(',')
		}
		first = false
		out.String(fd.Name)
		out.RawByte(':')
		err = st.writeField(fd, v)
		return err == nil
	})
	out.RawByte('}')
	return err
}

func (st *jsonState) writeField(fd *descriptor.FieldDescriptor, v any) error {
	out := &st.out
	switch {
	case fd.IsMap():
		entries, _ := v.(map[any]any)
		keys := sortedKeys(entries)
		vf := fd.MapValue()
		if fd.MapKey().Kind == descriptor.KindString {
			out.RawByte('{')
			for i, k := range keys {
				if i > 0 {
					out.RawByte(',')
				}
				out.String(k.(string))
				out.RawByte(':')
				if err := st.writeSingle(vf, entries[k]); err != nil {
					return err
				}
			}
			out.RawByte('}')
			return nil
		}
		out.RawByte('[')
		for i, k := range keys {
			if i > 0 {
				out.RawByte(',')
			}
			out.RawString(`{"_key":`)
			writeJSONScalar(out, k)
			out.RawString(`,"_value":`)
			if err := st.writeSingle(vf, entries[k]); err != nil {
				return err
			}
			out.RawByte('}')
		}
		out.RawByte(']')
	case fd.IsRepeated():
		list, _ := v.([]any)
		out.RawByte('[')
		for i, e := range list {
			if i > 0 {
				out.RawByte(',')
			}
			if err := st.writeSingle(fd, e); err != nil {
				return err
			}
		}
		out.RawByte(']')
	default:
		return st.writeSingle(fd, v)
	}
	return nil
}

func (st *jsonState) writeSingle(fd *descriptor.FieldDescriptor, v any) error {
	switch fd.Kind {
	case descriptor.KindEnum:
		n, _ := v.(int32)
		writeJSONEnum(&st.out, fd.Enum(), n)
	case descriptor.KindMessage, descriptor.KindGroup:
		m, ok := v.(*DynamicMessage)
		if !ok {
			return valueErr("json", fd.Number, "%s holds %T", fd.FullName(), v)
		}
		if m.desc.FullName == WrappedMessageType {
			return st.writeWrapped(m)
		}
		return st.writeMessage(m, "")
	default:
		writeJSONScalar(&st.out, v)
	}
	return nil
}

func writeJSONEnum(out *jwriter.Writer, e *descriptor.EnumDescriptor, n int32) {
	if v := e.ValueByNumber(n); v != nil {
		out.String(v.Name)
		return
	}
	out.Int32(n)
}

// writeJSONScalar writes a scalar. Non-finite floats are written as the
// strings "NaN", "Infinity" and "-Infinity".
func writeJSONScalar(out *jwriter.Writer, v any) {
	switch x := v.(type) {
	case int32:
		out.Int32(x)
	case int64:
		out.Int64(x)
	case uint32:
		out.Uint32(x)
	case uint64:
		out.Uint64(x)
	case int16:
		out.Int16(x)
	case int8:
		out.Int8(x)
	case uint16:
		out.Uint16(x)
	case float32:
		if !writeNonFinite(out, float64(x)) {
			out.Float32(x)
		}
	case float64:
		if !writeNonFinite(out, x) {
			out.Float64(x)
		}
	case bool:
		out.Bool(x)
	case string:
		out.String(x)
	case []byte:
		out.Base64Bytes(x)
	default:
		out.RawString("null")
	}
}

func writeNonFinite(out *jwriter.Writer, f float64) bool {
	switch {
	case math.IsNaN(f):
		out.String("NaN")
	case math.IsInf(f, 1):
		out.String("Infinity")
	case math.IsInf(f, -1):
		out.String("-Infinity")
	default:
		return false
	}
	return true
}

func has(vals map[int32]any, n int32) bool {
	_, ok := vals[n]
	return ok
}

// FromCanonicalJSON converts canonical JSON back to wrapped bytes. Container
// values cannot be converted.
func (c *Context) FromCanonicalJSON(s string) ([]byte, error) {
	if !gjson.Valid(s) {
		return nil, jsonErr("input is not valid json")
	}
	st := &jsonState{c: c}
	env, err := st.readWrapped(gjson.Parse(s))
	if err != nil {
		return nil, err
	}
	return c.encode(func(w *ProtoWriter) error { return w.writeDynamic(env) })
}

func (st *jsonState) readWrapped(v gjson.Result) (*DynamicMessage, error) {
	if err := st.enter(); err != nil {
		return nil, err
	}
	defer st.exit()

	wd, err := st.c.delegate(WrappedMessageType)
	if err != nil {
		return nil, err
	}
	env := NewDynamicMessage(wd.msg)
	if v.Type == gjson.Null {
		env.values[wrappedEmpty] = true
		return env, nil
	}
	if !v.IsObject() {
		return nil, jsonErr("wrapped value must be an object or null, got %s", v.Raw)
	}
	t := v.Get("_type")
	if t.Type != gjson.String {
		return nil, jsonErr("missing _type in %s", v.Raw)
	}
	label := t.String()
	val := v.Get("_value")

	if n, ok := scalarFields[label]; ok {
		x, err := jsonScalar(wd.msg.FieldByNumber(n).Kind, val)
		if err != nil {
			return nil, err
		}
		env.values[n] = x
		return env, nil
	}
	switch label {
	case instantLabel, dateLabel:
		ts, err := time.Parse(time.RFC3339Nano, val.String())
		if err != nil {
			return nil, jsonErr("%s value %q: %v", label, val.String(), err)
		}
		if label == dateLabel {
			env.values[wrappedDateMillis] = ts.UnixMilli()
		} else {
			env.values[wrappedInstantSeconds] = ts.Unix()
			env.values[wrappedInstantNanos] = int32(ts.Nanosecond())
		}
		return env, nil
	}

	d, err := st.c.delegate(label)
	if err != nil {
		return nil, err
	}
	if _, ok := d.m.(containerMarshaller); ok {
		return nil, jsonErr("container %s cannot be read from json", label)
	}
	if d.id.Valid && st.c.opts.PreferTypeIDs.Bool {
		env.values[wrappedTypeID] = int32(d.id.Int64)
	} else {
		env.values[wrappedTypeName] = label
	}
	if d.enum != nil {
		n, err := jsonEnum(d.enum, val)
		if err != nil {
			return nil, err
		}
		env.values[wrappedEnum] = n
		return env, nil
	}
	m, err := st.readMessage(d.msg, v)
	if err != nil {
		return nil, err
	}
	payload, err := st.c.encode(func(w *ProtoWriter) error { return w.writeDynamic(m) })
	if err != nil {
		return nil, err
	}
	env.values[wrappedMessage] = payload
	return env, nil
}

func (st *jsonState) readMessage(md *descriptor.Descriptor, obj gjson.Result) (*DynamicMessage, error) {
	if !obj.IsObject() {
		return nil, jsonErr("%s must be an object, got %s", md.FullName, obj.Raw)
	}
	if err := st.enter(); err != nil {
		return nil, err
	}
	defer st.exit()

	m := NewDynamicMessage(md)
	var err error
	obj.ForEach(func(key, val gjson.Result) bool {
		name := key.String()
		if name == "_type" {
			return true
		}
		fd := md.FieldByName(name)
		if fd == nil {
			fd = fieldByJSONName(md, name)
		}
		if fd == nil {
			err = jsonErr("%s has no field %q", md.FullName, name)
			return false
		}
		if val.Type == gjson.Null {
			return true
		}
		var x any
		if x, err = st.readField(fd, val); err != nil {
			return false
		}
		m.store(fd, x)
		return true
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func fieldByJSONName(md *descriptor.Descriptor, name string) *descriptor.FieldDescriptor {
	for _, fd := range md.Fields {
		if fd.JSONFieldName() == name {
			return fd
		}
	}
	return nil
}

func (st *jsonState) readField(fd *descriptor.FieldDescriptor, val gjson.Result) (any, error) {
	switch {
	case fd.IsMap():
		kf, vf := fd.MapKey(), fd.MapValue()
		entries := make(map[any]any)
		var err error
		switch {
		case val.IsObject():
			val.ForEach(func(k, e gjson.Result) bool {
				var key, x any
				if key, err = parseScalar(kf.Kind, k.String()); err != nil {
					err = jsonErr("map key %q of %s: %v", k.String(), fd.FullName(), err)
					return false
				}
				if x, err = st.readSingle(vf, e); err != nil {
					return false
				}
				entries[key] = x
				return true
			})
		case val.IsArray():
			for _, e := range val.Array() {
				var key, x any
				if key, err = jsonScalar(kf.Kind, e.Get("_key")); err != nil {
					break
				}
				if x, err = st.readSingle(vf, e.Get("_value")); err != nil {
					break
				}
				entries[key] = x
			}
		default:
			return nil, jsonErr("map field %s must be an object or array", fd.FullName())
		}
		if err != nil {
			return nil, err
		}
		return entries, nil
	case fd.IsRepeated():
		if !val.IsArray() {
			return nil, jsonErr("repeated field %s must be an array", fd.FullName())
		}
		items := val.Array()
		list := make([]any, 0, len(items))
		for _, e := range items {
			x, err := st.readSingle(fd, e)
			if err != nil {
				return nil, err
			}
			list = append(list, x)
		}
		return list, nil
	}
	return st.readSingle(fd, val)
}

func (st *jsonState) readSingle(fd *descriptor.FieldDescriptor, val gjson.Result) (any, error) {
	switch fd.Kind {
	case descriptor.KindEnum:
		return jsonEnum(fd.Enum(), val)
	case descriptor.KindMessage, descriptor.KindGroup:
		if fd.Message().FullName == WrappedMessageType {
			return st.readWrapped(val)
		}
		return st.readMessage(fd.Message(), val)
	}
	return jsonScalar(fd.Kind, val)
}

func jsonEnum(e *descriptor.EnumDescriptor, val gjson.Result) (int32, error) {
	switch val.Type {
	case gjson.String:
		v := e.ValueByName(val.String())
		if v == nil {
			return 0, jsonErr("%s has no value %q", e.FullName, val.String())
		}
		return v.Number, nil
	case gjson.Number:
		n, err := parseScalar(descriptor.KindInt32, val.String())
		if err != nil {
			return 0, jsonErr("%s value %s: %v", e.FullName, val.Raw, err)
		}
		return n.(int32), nil
	}
	return 0, jsonErr("%s value must be a name or number, got %s", e.FullName, val.Raw)
}

// jsonScalar converts a JSON value to the Go value of kind k. Numbers may
// also arrive as strings, which is how non-finite floats are written.
func jsonScalar(k descriptor.Kind, val gjson.Result) (any, error) {
	switch k {
	case descriptor.KindBool:
		if val.Type != gjson.True && val.Type != gjson.False {
			return nil, jsonErr("bool value expected, got %s", val.Raw)
		}
		return val.Bool(), nil
	case descriptor.KindString:
		if val.Type != gjson.String {
			return nil, jsonErr("string value expected, got %s", val.Raw)
		}
		return val.String(), nil
	case descriptor.KindBytes:
		if val.Type != gjson.String {
			return nil, jsonErr("base64 string expected, got %s", val.Raw)
		}
		b, err := base64.StdEncoding.DecodeString(val.String())
		if err != nil {
			return nil, jsonErr("bytes value: %v", err)
		}
		return b, nil
	}
	if val.Type != gjson.Number && val.Type != gjson.String {
		return nil, jsonErr("%s value expected, got %s", k, val.Raw)
	}
	v, err := parseScalar(k, val.String())
	if err != nil {
		return nil, jsonErr("%s value %s: %v", k, val.Raw, err)
	}
	return v, nil
}
