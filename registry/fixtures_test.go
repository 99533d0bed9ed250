package registry

import (
	"iter"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oy3o/protostream"
)

const demoProto = `syntax = "proto3";

package demo;

import "protostream/message-wrapping.proto";

// A person with a bit of everything.
// @TypeId(1001)
message Person {
  string name = 1;
  int32 age = 2;
  repeated string emails = 3;
  Address address = 4;
  map<string, int32> scores = 5;
  Color favorite = 6;
  protostream.WrappedMessage extra = 7;
  optional sint64 balance = 8;
  repeated int32 lucky = 9;
  oneof contact {
    string phone = 10;
    bytes pager = 11;
  }
}

message Address {
  string street = 1;
  uint32 zip = 2;
}

// @TypeId(1002)
enum Color {
  COLOR_UNSPECIFIED = 0;
  RED = 1;
  GREEN = 2;
}

message Node {
  Node child = 1;
  int32 value = 2;
}

message Tags {}

message Matrix {}

message Index {}
`

const legacyProto = `syntax = "proto2";

package legacy;

enum Level {
  LOW = 1;
  HIGH = 2;
}

message Settings {
  required string id = 1;
  optional int32 retries = 2 [default = 3];
  optional Level level = 3 [default = HIGH];
  optional group Result = 4 {
    optional string url = 5;
  }
  repeated int32 samples = 6;
  map<int32, string> labels = 7;
}
`

// --- Go types ---

type Color int32

const (
	ColorUnspecified Color = iota
	Red
	Green
)

type Address struct {
	Street string
	Zip    uint32
}

type Person struct {
	Name     string
	Age      int32
	Emails   []string
	Address  *Address
	Scores   map[string]int32
	Favorite Color
	Extra    any
	Balance  *int64
	Lucky    []int32
	Phone    string
}

func samplePerson() *Person {
	return &Person{
		Name:     "Ada",
		Age:      36,
		Emails:   []string{"ada@example.com", "countess@example.com"},
		Address:  &Address{Street: "St James's Square", Zip: 12},
		Scores:   map[string]int32{"alice": 3, "bob": 5},
		Favorite: Green,
		Extra:    "hi",
		Balance:  protostream.Ptr(int64(-5)),
		Lucky:    []int32{7, 13, -1},
		Phone:    "555-0100",
	}
}

// --- marshallers ---

type colorMarshaller struct{}

func (colorMarshaller) TypeName() string     { return "demo.Color" }
func (colorMarshaller) Encode(c Color) int32 { return int32(c) }

func (colorMarshaller) Decode(n int32) (Color, bool) {
	if n < 0 || n > int32(Green) {
		return 0, false
	}
	return Color(n), true
}

type addressMarshaller struct{}

func (addressMarshaller) TypeName() string { return "demo.Address" }

func (addressMarshaller) Write(w *ProtoWriter, a *Address) error {
	if a.Street != "" {
		w.WriteString(1, a.Street)
	}
	if a.Zip != 0 {
		w.WriteUint32(2, a.Zip)
	}
	return w.Err()
}

func (addressMarshaller) Read(r *ProtoReader) (*Address, error) {
	a := &Address{}
	for {
		tag := r.ReadTag()
		if tag == 0 {
			break
		}
		switch tag.Number() {
		case 1:
			a.Street = r.ReadString()
		case 2:
			a.Zip = r.ReadUint32()
		default:
			r.SkipField(tag)
		}
	}
	return a, r.Err()
}

type personMarshaller struct{}

func (personMarshaller) TypeName() string { return "demo.Person" }

func (personMarshaller) Write(w *ProtoWriter, p *Person) error {
	if p.Name != "" {
		w.WriteString(1, p.Name)
	}
	if p.Age != 0 {
		w.WriteInt32(2, p.Age)
	}
	for _, e := range p.Emails {
		w.WriteString(3, e)
	}
	if p.Address != nil {
		if err := w.WriteMessage(4, p.Address); err != nil {
			return err
		}
	}
	raw := w.Raw()
	for _, k := range slices.Sorted(maps.Keys(p.Scores)) {
		raw.WriteTag(5, protostream.BytesType)
		raw.WriteMessage(func(nw *protostream.Writer) error {
			nw.WriteTag(1, protostream.BytesType)
			nw.WriteStringValue(k)
			nw.WriteTag(2, protostream.VarintType)
			nw.WriteInt32(p.Scores[k])
			return nil
		})
	}
	if p.Favorite != ColorUnspecified {
		if err := w.WriteEnum(6, p.Favorite); err != nil {
			return err
		}
	}
	if p.Extra != nil {
		if err := w.WriteWrapped(7, p.Extra); err != nil {
			return err
		}
	}
	if p.Balance != nil {
		w.WriteSint64(8, *p.Balance)
	}
	if len(p.Lucky) > 0 {
		raw.WriteTag(9, protostream.BytesType)
		raw.WriteMessage(func(nw *protostream.Writer) error {
			for _, v := range p.Lucky {
				nw.WriteInt32(v)
			}
			return nil
		})
	}
	if p.Phone != "" {
		w.WriteString(10, p.Phone)
	}
	return w.Err()
}

func (personMarshaller) Read(r *ProtoReader) (*Person, error) {
	p := &Person{}
	raw := r.Raw()
	for {
		tag := r.ReadTag()
		if tag == 0 {
			break
		}
		var err error
		switch tag.Number() {
		case 1:
			p.Name = r.ReadString()
		case 2:
			p.Age = r.ReadInt32()
		case 3:
			p.Emails = append(p.Emails, r.ReadString())
		case 4:
			p.Address, err = ReadMessage[*Address](r)
		case 5:
			raw.ReadMessage(func(in *protostream.Reader) error {
				var (
					k string
					v int32
				)
				for {
					t := in.ReadTag()
					if t == 0 {
						break
					}
					switch t.Number() {
					case 1:
						k = in.ReadString()
					case 2:
						v = in.ReadInt32()
					default:
						in.SkipField(t)
					}
				}
				if p.Scores == nil {
					p.Scores = make(map[string]int32)
				}
				p.Scores[k] = v
				return nil
			})
		case 6:
			p.Favorite, err = ReadEnum[Color](r)
		case 7:
			p.Extra, err = r.ReadWrapped()
		case 8:
			p.Balance = protostream.Ptr(r.ReadSint64())
		case 9:
			if tag.WireType() != protostream.BytesType {
				p.Lucky = append(p.Lucky, r.ReadInt32())
				break
			}
			old := raw.PushLimit(raw.ReadLength())
			for raw.Err() == nil && raw.Remaining() > 0 {
				p.Lucky = append(p.Lucky, raw.ReadInt32())
			}
			raw.PopLimit(old)
		case 10:
			p.Phone = r.ReadString()
		default:
			r.SkipField(tag)
		}
		if err != nil {
			return nil, err
		}
	}
	return p, r.Err()
}

// --- containers ---

// Tags is an appendable container.
type Tags struct{ items []any }

func (t *Tags) NumElements() int   { return len(t.items) }
func (t *Tags) All() iter.Seq[any] { return slices.Values(t.items) }
func (t *Tags) Append(v any)       { t.items = append(t.items, v) }

type tagsMarshaller struct{}

func (tagsMarshaller) TypeName() string   { return "demo.Tags" }
func (tagsMarshaller) New(size int) *Tags { return &Tags{items: make([]any, 0, size)} }

// Matrix is an indexed container.
type Matrix struct{ cells []any }

func (m *Matrix) NumElements() int        { return len(m.cells) }
func (m *Matrix) Element(i int) any       { return m.cells[i] }
func (m *Matrix) SetElement(i int, v any) { m.cells[i] = v }

type matrixMarshaller struct{}

func (matrixMarshaller) TypeName() string     { return "demo.Matrix" }
func (matrixMarshaller) New(size int) *Matrix { return &Matrix{cells: make([]any, size)} }

// Index is a map container.
type Index struct{ entries map[any]any }

func (x *Index) NumElements() int { return len(x.entries) }
func (x *Index) Put(k, v any)     { x.entries[k] = v }

func (x *Index) Entries() iter.Seq2[any, any] {
	return func(yield func(any, any) bool) {
		for k, v := range x.entries {
			if !yield(k, v) {
				return
			}
		}
	}
}

type indexMarshaller struct{}

func (indexMarshaller) TypeName() string { return "demo.Index" }

func (indexMarshaller) New(size int) *Index {
	return &Index{entries: make(map[any]any, size)}
}

// --- contexts ---

// newTestContext returns a context with the demo schema and the typed
// marshallers registered.
func newTestContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	c := NewContext(opts...)
	require.NoError(t, c.RegisterSchema("demo.proto", demoProto))
	for _, m := range []Marshaller{
		ForMessage[*Person](personMarshaller{}),
		ForMessage[*Address](addressMarshaller{}),
		ForEnum[Color](colorMarshaller{}),
		ForContainer[*Tags](tagsMarshaller{}),
		ForContainer[*Matrix](matrixMarshaller{}),
		ForContainer[*Index](indexMarshaller{}),
	} {
		require.NoError(t, c.RegisterMarshaller(m))
	}
	return c
}

// newDynamicContext returns a context where the demo and legacy messages
// are handled as DynamicMessage values.
func newDynamicContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	c := NewContext(opts...)
	require.NoError(t, c.RegisterSchema("demo.proto", demoProto))
	require.NoError(t, c.RegisterSchema("legacy.proto", legacyProto))
	for _, name := range []string{"demo.Person", "demo.Address", "demo.Node", "legacy.Settings"} {
		require.NoError(t, c.RegisterMarshaller(Dynamic(name)))
	}
	return c
}

func dynamicOf(t *testing.T, c *Context, typeName string) *DynamicMessage {
	t.Helper()
	d, ok := c.Pool().FindMessage(typeName)
	require.True(t, ok, typeName)
	return NewDynamicMessage(d)
}
