package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/config"
)

func sampleDynamicPerson(t *testing.T, c *Context) *DynamicMessage {
	t.Helper()
	addr := dynamicOf(t, c, "demo.Address")
	require.NoError(t, addr.Set("street", "St James's Square"))
	require.NoError(t, addr.Set("zip", uint32(12)))

	p := dynamicOf(t, c, "demo.Person")
	require.NoError(t, p.Set("name", "Ada"))
	require.NoError(t, p.Set("age", int32(36)))
	require.NoError(t, p.Set("emails", []any{"ada@example.com", "countess@example.com"}))
	require.NoError(t, p.Set("address", addr))
	require.NoError(t, p.Set("scores", map[any]any{"alice": int32(3), "bob": int32(5)}))
	require.NoError(t, p.Set("favorite", int32(2)))
	require.NoError(t, p.Set("extra", "hi"))
	require.NoError(t, p.Set("balance", int64(-5)))
	require.NoError(t, p.Set("lucky", []any{int32(7), int32(13), int32(-1)}))
	require.NoError(t, p.Set("phone", "555-0100"))
	return p
}

// oracleFiles converts every file of the context's pool into the official
// protobuf runtime.
func oracleFiles(t *testing.T, c *Context) *protoregistry.Files {
	t.Helper()
	files := new(protoregistry.Files)
	for _, f := range c.Pool().Files() {
		fd, err := protodesc.NewFile(f.ToProto(), files)
		require.NoError(t, err, f.Name)
		require.NoError(t, files.RegisterFile(fd))
	}
	return files
}

func oracleMessage(t *testing.T, files *protoregistry.Files, name string) *dynamicpb.Message {
	t.Helper()
	d, err := files.FindDescriptorByName(protoreflect.FullName(name))
	require.NoError(t, err)
	return dynamicpb.NewMessage(d.(protoreflect.MessageDescriptor))
}

func TestDynamicMatchesProtobufRuntime(t *testing.T) {
	c := newDynamicContext(t)
	files := oracleFiles(t, c)
	p := sampleDynamicPerson(t, c)

	b, err := c.ToBytes(p)
	require.NoError(t, err)

	msg := oracleMessage(t, files, "demo.Person")
	require.NoError(t, proto.Unmarshal(b, msg))
	fields := msg.Descriptor().Fields()
	get := func(name string) protoreflect.Value { return msg.Get(fields.ByName(protoreflect.Name(name))) }

	assert.Equal(t, "Ada", get("name").String())
	assert.Equal(t, int64(36), get("age").Int())
	assert.Equal(t, 2, get("emails").List().Len())
	assert.Equal(t, "countess@example.com", get("emails").List().Get(1).String())
	street := get("address").Message().Descriptor().Fields().ByName("street")
	assert.Equal(t, "St James's Square", get("address").Message().Get(street).String())
	assert.Equal(t, int64(5), get("scores").Map().Get(protoreflect.ValueOfString("bob").MapKey()).Int())
	assert.Equal(t, protoreflect.EnumNumber(2), get("favorite").Enum())
	assert.True(t, msg.Has(fields.ByName("balance")))
	assert.Equal(t, int64(-5), get("balance").Int())
	assert.Equal(t, 3, get("lucky").List().Len())
	assert.Equal(t, int64(-1), get("lucky").List().Get(2).Int())
	assert.Equal(t, "555-0100", get("phone").String())
	extra := get("extra").Message()
	assert.Equal(t, "hi", extra.Get(extra.Descriptor().Fields().ByNumber(wrappedString)).String())

	// And back: bytes written by the official runtime decode to the same values.
	again, err := proto.Marshal(msg)
	require.NoError(t, err)
	v, err := c.FromBytes(again, "demo.Person")
	require.NoError(t, err)
	got := v.(*DynamicMessage)
	for _, name := range []string{"name", "age", "emails", "scores", "favorite", "extra", "balance", "lucky", "phone"} {
		assert.Equal(t, p.Get(name), got.Get(name), name)
	}
	assert.Equal(t, "St James's Square", got.Get("address").(*DynamicMessage).Get("street"))
	assert.Equal(t, "phone", got.WhichOneof("contact").Name)
}

func TestDynamicTypedAndDynamicAgree(t *testing.T) {
	typed := newTestContext(t)
	dynamic := newDynamicContext(t)

	b, err := typed.ToBytes(samplePerson())
	require.NoError(t, err)
	v, err := dynamic.FromBytes(b, "demo.Person")
	require.NoError(t, err)
	again, err := dynamic.ToBytes(v)
	require.NoError(t, err)
	assert.Equal(t, b, again)

	back, err := Unmarshal[*Person](typed, again)
	require.NoError(t, err)
	assert.Equal(t, samplePerson(), back)
}

func TestDynamicUnknownFieldsSurvive(t *testing.T) {
	c := newDynamicContext(t)
	b := encodeRaw(t, func(w *protostream.Writer) {
		w.WriteTag(1, protostream.BytesType)
		w.WriteStringValue("Main")
		w.WriteTag(99, protostream.VarintType)
		w.WriteVarint(7)
		w.WriteTag(100, protostream.BytesType)
		w.WriteBytes([]byte("later"))
	})

	v, err := c.FromBytes(b, "demo.Address")
	require.NoError(t, err)
	m := v.(*DynamicMessage)
	assert.Equal(t, "Main", m.Get("street"))
	assert.Equal(t, 2, m.Unknown().Len())

	again, err := c.ToBytes(m)
	require.NoError(t, err)
	assert.Equal(t, b, again)
}

func TestDynamicPresence(t *testing.T) {
	c := newDynamicContext(t)
	p := dynamicOf(t, c, "demo.Person")
	require.NoError(t, p.Set("age", int32(0)))
	require.NoError(t, p.Set("balance", int64(0)))

	b, err := c.ToBytes(p)
	require.NoError(t, err)
	// Only the explicit-presence balance field is written.
	assert.Equal(t, []byte{0x40, 0x00}, b)

	assert.Equal(t, int32(0), p.Get("age"))
	assert.True(t, p.Has("age"))
	p.Clear("age")
	assert.False(t, p.Has("age"))
	assert.Equal(t, "", p.Get("name"))
	assert.Nil(t, p.Get("address"))
	assert.Nil(t, p.Get("emails"))
}

func TestDynamicOneof(t *testing.T) {
	c := newDynamicContext(t)
	p := dynamicOf(t, c, "demo.Person")
	require.NoError(t, p.Set("phone", "555"))
	require.NoError(t, p.Set("pager", []byte{1}))
	assert.False(t, p.Has("phone"))
	assert.Equal(t, "pager", p.WhichOneof("contact").Name)
	assert.Nil(t, p.WhichOneof("missing"))

	b, err := c.ToBytes(p)
	require.NoError(t, err)
	v, err := c.FromBytes(b, "demo.Person")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, v.(*DynamicMessage).Get("pager"))
}

func TestDynamicSetChecksTypes(t *testing.T) {
	c := newDynamicContext(t)
	p := dynamicOf(t, c, "demo.Person")

	tests := []struct {
		field string
		value any
	}{
		{"age", "thirty"},
		{"age", int64(30)},
		{"emails", []string{"a"}},
		{"emails", []any{1}},
		{"scores", map[string]int32{"a": 1}},
		{"scores", map[any]any{"a": "b"}},
		{"address", dynamicOf(t, c, "demo.Node")},
		{"name", nil},
		{"nope", "x"},
	}
	for _, tt := range tests {
		err := p.Set(tt.field, tt.value)
		assert.ErrorIs(t, err, ErrInvalidValue, "%s=%v", tt.field, tt.value)
	}
	assert.Empty(t, p.values)
}

func TestDynamicProto2(t *testing.T) {
	c := newDynamicContext(t)
	s := dynamicOf(t, c, "legacy.Settings")

	// Declared defaults apply to unset fields.
	assert.Equal(t, int32(3), s.Get("retries"))
	assert.Equal(t, int32(2), s.Get("level"))

	_, err := c.ToBytes(s)
	assert.ErrorIs(t, err, ErrInvalidValue, "required field missing")

	result := dynamicOf(t, c, "legacy.Settings.Result")
	require.NoError(t, result.Set("url", "https://example.com"))
	require.NoError(t, s.Set("id", "a1"))
	require.NoError(t, s.Set("result", result))
	require.NoError(t, s.Set("samples", []any{int32(1), int32(2)}))
	require.NoError(t, s.Set("labels", map[any]any{int32(2): "two", int32(1): "one"}))

	b, err := c.ToBytes(s)
	require.NoError(t, err)

	v, err := c.FromBytes(b, "legacy.Settings")
	require.NoError(t, err)
	got := v.(*DynamicMessage)
	assert.Equal(t, "a1", got.Get("id"))
	assert.Equal(t, "https://example.com", got.Get("result").(*DynamicMessage).Get("url"))
	assert.Equal(t, []any{int32(1), int32(2)}, got.Get("samples"))
	assert.Equal(t, map[any]any{int32(1): "one", int32(2): "two"}, got.Get("labels"))

	// Proto2 repeated scalars are not packed unless asked.
	in := protostream.NewBytesDecoder(b)
	var samples int
	for tag := in.ReadTag(); tag != 0; tag = in.ReadTag() {
		if tag.Number() == 6 {
			assert.Equal(t, protostream.VarintType, tag.WireType())
			samples++
		}
		in.SkipField(tag)
	}
	require.NoError(t, in.Err())
	assert.Equal(t, 2, samples)

	_, err = c.FromBytes([]byte{0x10, 0x01}, "legacy.Settings")
	assert.ErrorIs(t, err, protostream.ErrWireFormat, "required field absent on the wire")
}

func TestDynamicAcceptsPackedAndUnpacked(t *testing.T) {
	c := newDynamicContext(t)
	b := encodeRaw(t, func(w *protostream.Writer) {
		w.WriteTag(9, protostream.VarintType)
		w.WriteInt32(1)
		w.WriteTag(9, protostream.BytesType)
		w.WriteBytes([]byte{2, 3})
	})
	v, err := c.FromBytes(b, "demo.Person")
	require.NoError(t, err)
	assert.Equal(t, []any{int32(1), int32(2), int32(3)}, v.(*DynamicMessage).Get("lucky"))
}

func TestDynamicWireTypeMismatch(t *testing.T) {
	c := newDynamicContext(t)
	b := encodeRaw(t, func(w *protostream.Writer) {
		w.WriteTag(1, protostream.VarintType)
		w.WriteVarint(1)
	})
	_, err := c.FromBytes(b, "demo.Person")
	assert.ErrorIs(t, err, protostream.ErrUnknownWireType)
	assert.ErrorIs(t, err, protostream.ErrWireFormat)
}

func TestDynamicNestingDepth(t *testing.T) {
	c := newDynamicContext(t, WithOptions(config.Options{MaxNestedDepth: null.IntFrom(5)}))

	var chain func(levels int) *DynamicMessage
	chain = func(levels int) *DynamicMessage {
		n := dynamicOf(t, c, "demo.Node")
		require.NoError(t, n.Set("value", int32(levels)))
		if levels > 0 {
			require.NoError(t, n.Set("child", chain(levels-1)))
		}
		return n
	}

	ok, err := c.ToBytes(chain(5))
	require.NoError(t, err)
	v, err := c.FromBytes(ok, "demo.Node")
	require.NoError(t, err)
	assert.Equal(t, int32(5), v.(*DynamicMessage).Get("value"))

	deep, err := c.ToBytes(chain(6))
	require.NoError(t, err)
	_, err = c.FromBytes(deep, "demo.Node")
	assert.ErrorIs(t, err, protostream.ErrNestedMessageDepthExceeded)
}
