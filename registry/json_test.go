package registry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/oy3o/protostream"
)

func toJSON(t *testing.T, c *Context, v any) string {
	t.Helper()
	b, err := c.ToWrappedBytes(v)
	require.NoError(t, err)
	s, err := c.ToCanonicalJSON(b)
	require.NoError(t, err)
	require.True(t, gjson.Valid(s), s)
	return s
}

func TestCanonicalJSONScalars(t *testing.T) {
	c := newTestContext(t)
	tests := []struct {
		in   any
		want string
	}{
		{nil, `null`},
		{int32(7), `{"_type":"int32","_value":7}`},
		{int64(-9007199254740993), `{"_type":"int64","_value":-9007199254740993}`},
		{uint64(math.MaxUint64), `{"_type":"uint64","_value":18446744073709551615}`},
		{"x\"y", `{"_type":"string","_value":"x\"y"}`},
		{[]byte{1, 2, 3}, `{"_type":"bytes","_value":"AQID"}`},
		{true, `{"_type":"bool","_value":true}`},
		{1.5, `{"_type":"double","_value":1.5}`},
		{math.Inf(-1), `{"_type":"double","_value":"-Infinity"}`},
		{uint16(9), `{"_type":"uint16","_value":9}`},
		{int8(-2), `{"_type":"int8","_value":-2}`},
		{time.Unix(0, 5), `{"_type":"instant","_value":"1970-01-01T00:00:00.000000005Z"}`},
		{Green, `{"_type":"demo.Color","_value":"GREEN"}`},
		{Color(9), `{"_type":"demo.Color","_value":9}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toJSON(t, c, tt.in), "%T", tt.in)
	}
}

func TestCanonicalJSONMessage(t *testing.T) {
	c := newTestContext(t)
	s := toJSON(t, c, samplePerson())

	assert.Equal(t, `{"_type":"demo.Person","name":"Ada","age":36,`+
		`"emails":["ada@example.com","countess@example.com"],`+
		`"address":{"street":"St James's Square","zip":12},`+
		`"scores":{"alice":3,"bob":5},"favorite":"GREEN",`+
		`"extra":{"_type":"string","_value":"hi"},"balance":-5,`+
		`"lucky":[7,13,-1],"phone":"555-0100"}`, s)

	doc := gjson.Parse(s)
	assert.Equal(t, "demo.Person", doc.Get("_type").String())
	assert.Equal(t, int64(2), doc.Get("emails.#").Int())
	assert.Equal(t, int64(5), doc.Get("scores.bob").Int())
	assert.Equal(t, "hi", doc.Get("extra._value").String())
}

func TestCanonicalJSONPrefersTypeID(t *testing.T) {
	c := newTestContext(t)
	payload, err := c.ToBytes(samplePerson())
	require.NoError(t, err)

	b := encodeRaw(t, func(w *protostream.Writer) {
		w.WriteTag(wrappedTypeName, protostream.BytesType)
		w.WriteStringValue("demo.Stale")
		w.WriteTag(wrappedTypeID, protostream.VarintType)
		w.WriteInt32(1001)
		w.WriteTag(wrappedMessage, protostream.BytesType)
		w.WriteBytes(payload)
	})
	s, err := c.ToCanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, "demo.Person", gjson.Get(s, "_type").String())
	assert.Equal(t, "Ada", gjson.Get(s, "name").String())

	wire, err := c.ToWrappedBytes(Green)
	require.NoError(t, err)
	s, err = c.ToCanonicalJSON(wire)
	require.NoError(t, err)
	assert.Equal(t, `{"_type":"demo.Color","_value":"GREEN"}`, s)
}

func TestCanonicalJSONRoundTrip(t *testing.T) {
	c := newTestContext(t)
	for _, v := range []any{
		samplePerson(),
		&Address{Street: "Main"},
		Red,
		"text",
		int32(-4),
		uint32(4),
		float32(0.5),
		[]byte("raw"),
		nil,
		time.Unix(1700000000, 42).UTC(),
	} {
		s := toJSON(t, c, v)
		b, err := c.FromCanonicalJSON(s)
		require.NoError(t, err, s)
		got, err := c.FromWrappedBytes(b)
		require.NoError(t, err, s)
		assert.Equal(t, v, got, s)
	}
}

func TestCanonicalJSONNonStringMapKeys(t *testing.T) {
	c := newDynamicContext(t)
	s := dynamicOf(t, c, "legacy.Settings")
	require.NoError(t, s.Set("id", "a1"))
	require.NoError(t, s.Set("labels", map[any]any{int32(2): "two", int32(1): "one"}))

	out := toJSON(t, c, s)
	assert.Equal(t, `{"_type":"legacy.Settings","id":"a1","labels":[{"_key":1,"_value":"one"},{"_key":2,"_value":"two"}]}`, out)

	b, err := c.FromCanonicalJSON(out)
	require.NoError(t, err)
	v, err := c.FromWrappedBytes(b)
	require.NoError(t, err)
	assert.Equal(t, s.Get("labels"), v.(*DynamicMessage).Get("labels"))
}

func TestCanonicalJSONContainer(t *testing.T) {
	c := newTestContext(t)
	s := toJSON(t, c, &Tags{items: []any{"a", int32(1), nil}})
	assert.Equal(t, `{"_type":"demo.Tags","_value":[{"_type":"string","_value":"a"},{"_type":"int32","_value":1},null]}`, s)

	_, err := c.FromCanonicalJSON(s)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestFromCanonicalJSONErrors(t *testing.T) {
	c := newTestContext(t)
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"invalid", `{"_type":`, ErrInvalidJSON},
		{"not an object", `[1]`, ErrInvalidJSON},
		{"missing type", `{"_value":1}`, ErrInvalidJSON},
		{"unknown field", `{"_type":"demo.Address","nope":1}`, ErrInvalidJSON},
		{"bad enum name", `{"_type":"demo.Color","_value":"BLUE"}`, ErrInvalidJSON},
		{"bad bool", `{"_type":"bool","_value":"yes"}`, ErrInvalidJSON},
		{"bad int", `{"_type":"int32","_value":1.5}`, ErrInvalidJSON},
		{"int overflow", `{"_type":"int32","_value":4294967296}`, ErrInvalidJSON},
		{"bad base64", `{"_type":"bytes","_value":"%%"}`, ErrInvalidJSON},
		{"repeated not array", `{"_type":"demo.Person","emails":"a"}`, ErrInvalidJSON},
		{"unknown type", `{"_type":"demo.Nope"}`, ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.FromCanonicalJSON(tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToCanonicalJSONRejectsBadInput(t *testing.T) {
	c := newTestContext(t)
	_, err := c.ToCanonicalJSON([]byte{0x0a, 0x05, 'a'})
	assert.ErrorIs(t, err, protostream.ErrWireFormat)

	_, err = c.ToCanonicalJSON(nil)
	assert.ErrorIs(t, err, protostream.ErrWireFormat)
}
