package registry

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/config"
)

// renamedAddress binds the address codec to another schema type.
type renamedAddress struct {
	addressMarshaller
	name string
}

func (m renamedAddress) TypeName() string { return m.name }

type renamedColor struct {
	colorMarshaller
	name string
}

func (m renamedColor) TypeName() string { return m.name }

// addressContainer claims *Address is a container, which it is not.
type addressContainer struct{}

func (addressContainer) TypeName() string      { return "demo.Tags" }
func (addressContainer) New(size int) *Address { return &Address{} }

func TestRegisterMarshallerErrors(t *testing.T) {
	tests := []struct {
		name string
		m    Marshaller
		want error
	}{
		{"unknown type", ForMessage[*Address](renamedAddress{name: "demo.Nope"}), ErrUnknownType},
		{"duplicate name", ForMessage[*Address](addressMarshaller{}), ErrDuplicateMarshaller},
		{"duplicate go type", ForMessage[*Address](renamedAddress{name: "demo.Node"}), ErrDuplicateMarshaller},
		{"enum for message", ForEnum[Color](renamedColor{name: "demo.Node"}), ErrKindMismatch},
		{"message for enum", ForMessage[*Address](renamedAddress{name: "demo.Color"}), ErrKindMismatch},
		{"not a container", ForContainer[*Address](addressContainer{}), ErrKindMismatch},
		{"dynamic for enum", Dynamic("demo.Color"), ErrKindMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext(t)
			err := c.RegisterMarshaller(tt.m)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, protostream.ErrRegistration)

			var re *RegistrationError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.m.TypeName(), re.TypeName)
		})
	}
}

func TestRegisterMarshallerLookups(t *testing.T) {
	c := newTestContext(t)

	m, ok := c.Marshaller("demo.Person")
	require.True(t, ok)
	assert.Equal(t, "demo.Person", m.TypeName())

	assert.True(t, c.CanMarshallName("demo.Color"))
	assert.False(t, c.CanMarshallName("demo.Node"))

	assert.True(t, c.CanMarshall(samplePerson()))
	assert.True(t, c.CanMarshall(Red))
	assert.True(t, c.CanMarshall(&Tags{}))
	assert.True(t, c.CanMarshall(uint16(1)))
	assert.True(t, c.CanMarshall(nil))
	assert.False(t, c.CanMarshall(Person{}))
	assert.False(t, c.CanMarshall(struct{}{}))

	dm := dynamicOf(t, c, "demo.Node")
	assert.False(t, c.CanMarshall(dm))
	require.NoError(t, c.RegisterMarshaller(Dynamic("demo.Node")))
	assert.True(t, c.CanMarshall(dm))

	name, ok := c.TypeNameByID(1002)
	require.True(t, ok)
	assert.Equal(t, "demo.Color", name)
	_, ok = c.TypeNameByID(7)
	assert.False(t, ok)
}

func TestRegisterSchemaDuplicateTypeID(t *testing.T) {
	c := newTestContext(t)
	before := c.Pool().Len()

	err := c.RegisterSchema("other.proto", `syntax = "proto3";
package other;

// @TypeId(1001)
message Other {}
`)
	require.ErrorIs(t, err, ErrDuplicateTypeID)
	assert.ErrorIs(t, err, protostream.ErrRegistration)
	assert.Equal(t, before, c.Pool().Len())
	_, ok := c.Pool().FindType("other.Other")
	assert.False(t, ok)

	err = c.RegisterSchema("twice.proto", `syntax = "proto3";
package twice;

// @TypeId(5000)
message A {}

// @TypeId(5000)
message B {}
`)
	require.ErrorIs(t, err, ErrDuplicateTypeID)
	_, ok = c.TypeNameByID(5000)
	assert.False(t, ok)
	assert.Equal(t, before, c.Pool().Len())
}

func TestRegisterSchemaParseError(t *testing.T) {
	c := NewContext()
	err := c.RegisterSchema("bad.proto", `syntax = "proto3"; message {`)
	assert.ErrorIs(t, err, protostream.ErrSchemaParse)
}

func TestLoadSchemas(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "demo.proto", []byte(demoProto), 0o644))
	require.NoError(t, afero.WriteFile(fs, "app.proto", []byte(`syntax = "proto3";
package app;

import "demo.proto";

message Envelope {
  demo.Person who = 1;
}
`), 0o644))

	c := NewContext()
	require.NoError(t, c.LoadSchemas(fs, "app.proto"))

	env, ok := c.Pool().FindMessage("app.Envelope")
	require.True(t, ok)
	assert.Equal(t, "demo.Person", env.FieldByName("who").Message().FullName)
	_, ok = c.TypeNameByID(1001)
	assert.True(t, ok)

	err := c.LoadSchemas(fs, "missing.proto")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteToReadFrom(t *testing.T) {
	c := newTestContext(t)
	var buf bytes.Buffer
	require.NoError(t, c.WriteTo(&buf, samplePerson()))

	flat, err := c.ToBytes(samplePerson())
	require.NoError(t, err)
	assert.Equal(t, flat, buf.Bytes())

	got, err := c.ReadFrom(&buf, "demo.Person")
	require.NoError(t, err)
	assert.Equal(t, samplePerson(), got)

	err = c.WriteTo(&buf, Red)
	assert.ErrorIs(t, err, ErrKindMismatch)
	err = c.WriteTo(&buf, 42)
	assert.ErrorIs(t, err, ErrNoMarshaller)
	_, err = c.ReadFrom(&buf, "demo.Node")
	assert.ErrorIs(t, err, ErrNoMarshaller)
	_, err = c.ReadFrom(&buf, "demo.Nope")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestMarshalUnmarshal(t *testing.T) {
	c := newTestContext(t)
	a := &Address{Street: "Main", Zip: 7}

	b, err := Marshal(c, a)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 4, 'M', 'a', 'i', 'n', 0x10, 7}, b)

	got, err := Unmarshal[*Address](c, b)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = Unmarshal[*unbound](c, b)
	assert.ErrorIs(t, err, ErrNoMarshaller)
}

// unbound has no marshaller.
type unbound struct{}

func TestWithOptions(t *testing.T) {
	c := NewContext(
		WithOptions(config.Options{MaxNestedDepth: null.IntFrom(7)}),
		WithLogger(zerolog.Nop()),
	)
	opts := c.Options()
	assert.Equal(t, int64(7), opts.MaxNestedDepth.Int64)
	assert.True(t, opts.PreferTypeIDs.Bool)
	assert.Equal(t, config.Default().BufferSize, opts.BufferSize)
	assert.False(t, c.CanMarshallName(WrappedMessageType))
	_, ok := c.Pool().FindMessage(WrappedMessageType)
	assert.True(t, ok)
}

func TestConcurrentEncodeDecode(t *testing.T) {
	c := newTestContext(t)
	values := []any{samplePerson(), Green, "s", int64(3), &Tags{items: []any{"a"}}}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				v := values[(i+j)%len(values)]
				b, err := c.ToWrappedBytes(v)
				if err != nil {
					errs <- err
					return
				}
				got, err := c.FromWrappedBytes(b)
				if err != nil {
					errs <- err
					return
				}
				if _, err := c.ToCanonicalJSON(b); err != nil {
					errs <- err
					return
				}
				_ = got
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
