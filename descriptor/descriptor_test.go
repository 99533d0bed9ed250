package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream"
)

// --- Helpers ---

func message(name string, fields ...*FieldDescriptor) *Descriptor {
	return &Descriptor{Name: name, Fields: fields}
}

func ref(name string, number int32, typeName string) *FieldDescriptor {
	f := NewField(name, number, LabelOptional, KindInvalid)
	f.TypeName = typeName
	return f
}

func scalar(name string, number int32, kind Kind) *FieldDescriptor {
	return NewField(name, number, LabelOptional, kind)
}

func file(name, pkg string, msgs ...*Descriptor) *FileDescriptor {
	f := NewFile(name, Proto3, pkg)
	f.Messages = msgs
	return f
}

// --- Pool & Namespaces ---

func TestDuplicateAcrossFilesIsSorted(t *testing.T) {
	const want = "duplicate definition of pkg.Foo in fileA.proto and fileB.proto"

	t.Run("SameBatch", func(t *testing.T) {
		for _, order := range [][]string{{"fileA.proto", "fileB.proto"}, {"fileB.proto", "fileA.proto"}} {
			p := NewPool()
			err := p.Register(file(order[0], "pkg", message("Foo")), file(order[1], "pkg", message("Foo")))
			require.Error(t, err)
			assert.Contains(t, err.Error(), want)
			assert.ErrorIs(t, err, ErrDuplicateDefinition)
			assert.ErrorIs(t, err, protostream.ErrSchemaParse)
			assert.Zero(t, p.Len(), "a failed batch leaves nothing behind")
			assert.Empty(t, p.Files())
		}
	})

	t.Run("SeparateBatches", func(t *testing.T) {
		p := NewPool()
		require.NoError(t, p.Register(file("fileB.proto", "pkg", message("Foo"))))
		second := file("fileA.proto", "pkg", message("Foo"))
		err := p.Register(second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), want)
		assert.Equal(t, 1, p.Len())
		assert.Nil(t, second.Pool())
		assert.False(t, second.IsResolved())
	})

	t.Run("ThroughImport", func(t *testing.T) {
		p := NewPool()
		a := file("fileA.proto", "pkg", message("Foo"))
		a.PrivateImports = []string{"fileB.proto"}
		err := p.Register(a, file("fileB.proto", "pkg", message("Foo")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), want)
	})
}

func TestDuplicateWithinFile(t *testing.T) {
	p := NewPool()
	err := p.Register(file("a.proto", "pkg", message("Foo"), message("Foo")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate definition of pkg.Foo in file a.proto")
}

func TestNamespacePrecedence(t *testing.T) {
	x := file("x.proto", "x", message("X"))
	y := file("y.proto", "y", message("Y"))
	first := file("first.proto", "first", message("First", ref("x", 1, "x.X"), ref("y", 2, "y.Y")))
	first.PrivateImports = []string{"x.proto"}
	first.PublicImports = []string{"y.proto"}
	third := file("third.proto", "third", message("Third", ref("y", 1, "y.Y")))
	third.PrivateImports = []string{"first.proto"}

	p := NewPool()
	require.NoError(t, p.Register(third, first, y, x))

	_, ok := first.Namespace().Get("x.X")
	assert.True(t, ok, "private import is visible to the importing file")
	_, ok = first.Namespace().Get("y.Y")
	assert.True(t, ok)

	_, ok = third.Namespace().Get("y.Y")
	assert.True(t, ok, "public import propagates")
	_, ok = third.Namespace().Get("x.X")
	assert.False(t, ok, "private import does not propagate")

	_, ok = first.Namespace().Exported().Get("x.X")
	assert.False(t, ok)
	_, ok = first.Namespace().Exported().Get("first.First")
	assert.True(t, ok)

	y0 := third.Messages[0].FieldByName("y").Message()
	require.NotNil(t, y0)
	assert.Equal(t, "y.Y", y0.FullName)

	t.Run("PrivateTypeUnresolvable", func(t *testing.T) {
		bad := file("bad.proto", "bad", message("Bad", ref("x", 1, "x.X")))
		bad.PrivateImports = []string{"first.proto"}
		err := p.Register(bad)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnresolvedType)
		assert.Contains(t, err.Error(), "x.X")
	})
}

func TestExportedNamespacePanicsBeforeResolution(t *testing.T) {
	f := file("a.proto", "pkg", message("A"))
	ns := newFileNamespace(f)
	assert.Panics(t, func() { ns.Exported().Get("pkg.A") })
}

func TestCyclicImports(t *testing.T) {
	a := file("a.proto", "pkg", message("A", ref("b", 1, "B")))
	a.PublicImports = []string{"b.proto"}
	b := file("b.proto", "pkg", message("B", ref("a", 1, "A")))
	b.PublicImports = []string{"a.proto"}

	p := NewPool()
	require.NoError(t, p.Register(a, b))
	assert.Equal(t, "pkg.B", a.Messages[0].Fields[0].Message().FullName)
	assert.Equal(t, "pkg.A", b.Messages[0].Fields[0].Message().FullName)

	_, ok := a.Namespace().Exported().Get("pkg.B")
	assert.True(t, ok)
}

func TestUnresolvedImport(t *testing.T) {
	a := file("a.proto", "pkg", message("A"))
	a.PrivateImports = []string{"b.proto"}
	b := file("b.proto", "pkg", message("B"))
	b.PrivateImports = []string{"missing.proto"}

	p := NewPool()
	err := p.Register(a, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedImport)
	assert.Contains(t, err.Error(), "missing.proto")
	assert.False(t, a.IsResolved())
}

func TestResolveScoping(t *testing.T) {
	outer := message("Outer", ref("inner", 1, "Inner"), ref("abs", 2, ".pkg.Inner"))
	outer.NestedMessages = []*Descriptor{message("Inner")}
	other := message("Other", ref("inner", 1, "Inner"), ref("nested", 2, "Outer.Inner"))
	f := file("a.proto", "pkg", outer, other, message("Inner"))

	p := NewPool()
	require.NoError(t, p.Register(f))
	assert.Equal(t, "pkg.Outer.Inner", outer.FieldByName("inner").Message().FullName)
	assert.Equal(t, "pkg.Inner", outer.FieldByName("abs").Message().FullName)
	assert.Equal(t, "pkg.Inner", other.FieldByName("inner").Message().FullName)
	assert.Equal(t, "pkg.Outer.Inner", other.FieldByName("nested").Message().FullName)
	assert.Same(t, outer, outer.NestedMessages[0].Parent())
	assert.Same(t, f, outer.NestedMessages[0].File())
}

func TestEnumReference(t *testing.T) {
	color := &EnumDescriptor{Name: "Color", Values: []*EnumValueDescriptor{{Name: "RED"}, {Name: "GREEN", Number: 1}}}
	f := file("a.proto", "pkg", message("Paint", ref("color", 1, "Color")))
	f.Enums = []*EnumDescriptor{color}

	p := NewPool()
	require.NoError(t, p.Register(f))
	fd := f.Messages[0].Fields[0]
	assert.Equal(t, KindEnum, fd.Kind)
	assert.Same(t, color, fd.Enum())
	assert.Nil(t, fd.Message())
	assert.Equal(t, "RED", color.Default().Name)

	e, ok := p.FindEnum(".pkg.Color")
	require.True(t, ok)
	assert.Same(t, color, e)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		file *FileDescriptor
		msg  string
	}{
		"FieldNumberReservedRange": {file("a.proto", "p", message("M", scalar("a", 19000, KindInt32))), "invalid number 19000"},
		"DuplicateNumber":          {file("a.proto", "p", message("M", scalar("a", 1, KindInt32), scalar("b", 1, KindInt32))), "used by both a and b"},
		"DuplicateName":            {file("a.proto", "p", message("M", scalar("a", 1, KindInt32), scalar("a", 2, KindInt32))), "declared twice"},
		"Proto3Required": {file("a.proto", "p", message("M", NewField("a", 1, LabelRequired, KindInt32))),
			"not allowed in proto3"},
		"UsesReservedNumber": {func() *FileDescriptor {
			m := message("M", scalar("a", 3, KindInt32))
			m.Reserved.Ranges = []ReservedRange{{From: 1, To: 5}}
			return file("a.proto", "p", m)
		}(), "uses reserved number 3"},
		"Proto3EnumStartsAtZero": {func() *FileDescriptor {
			f := file("a.proto", "p")
			f.Enums = []*EnumDescriptor{{Name: "E", Values: []*EnumValueDescriptor{{Name: "A", Number: 1}}}}
			return f
		}(), "must be zero"},
		"AliasWithoutOption": {func() *FileDescriptor {
			f := file("a.proto", "p")
			f.Enums = []*EnumDescriptor{{Name: "E", Values: []*EnumValueDescriptor{{Name: "A"}, {Name: "B"}}}}
			return f
		}(), "without allow_alias"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := NewPool().Register(tc.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
			assert.ErrorIs(t, err, protostream.ErrSchemaParse)
		})
	}
}

func TestFieldPresenceAndPacking(t *testing.T) {
	nums := NewField("nums", 1, LabelRepeated, KindInt32)
	names := NewField("names", 2, LabelRepeated, KindString)
	plain := scalar("plain", 3, KindInt32)
	opt := scalar("opt", 4, KindInt32)
	opt.Proto3Optional = true
	opt.OneofIndex = 0
	unpacked := NewField("unpacked", 5, LabelRepeated, KindSint64)
	unpacked.Packed = null.BoolFrom(false)

	m := message("M", nums, names, plain, opt, unpacked)
	m.Oneofs = []*OneofDescriptor{{Name: "_opt", Synthetic: true}}
	require.NoError(t, NewPool().Register(file("a.proto", "p", m)))

	assert.True(t, nums.IsPacked())
	assert.False(t, names.IsPacked())
	assert.False(t, unpacked.IsPacked())
	assert.False(t, plain.HasPresence())
	assert.True(t, opt.HasPresence())
	assert.Equal(t, []*FieldDescriptor{opt}, m.Oneofs[0].Fields)
	assert.Same(t, m.Oneofs[0], opt.ContainingOneof())
}

func TestJSONCamelCase(t *testing.T) {
	assert.Equal(t, "fooBar", JSONCamelCase("foo_bar"))
	assert.Equal(t, "fooBarBaz", JSONCamelCase("foo_bar_baz"))
	assert.Equal(t, "foo", JSONCamelCase("foo"))
	assert.Equal(t, "custom", (&FieldDescriptor{Name: "x_y", JSONName: "custom"}).JSONFieldName())
}

// --- Reserved ---

func TestReservedStatements(t *testing.T) {
	var s ReservedSet
	require.NoError(t, s.AddNumber("pkg.M", 1))
	require.NoError(t, s.AddNumber("pkg.M", 2))
	require.NoError(t, s.AddRange("pkg.M", 3, 7))
	require.NoError(t, s.AddName("pkg.M", "a"))
	require.NoError(t, s.AddName("pkg.M", "b"))

	assert.Equal(t, []string{`reserved 1 to 7;`, `reserved "a","b";`}, s.Statements())
	assert.True(t, s.ContainsNumber(5))
	assert.False(t, s.ContainsNumber(8))
	assert.True(t, s.ContainsName("b"))

	t.Run("DuplicateNumber", func(t *testing.T) {
		err := s.AddNumber("pkg.M", 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate reserved number 2 in pkg.M")
		assert.ErrorIs(t, err, ErrDuplicateReserved)
	})

	t.Run("OverlappingRange", func(t *testing.T) {
		err := s.AddRange("pkg.M", 6, 9)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate reserved number 6 in pkg.M")
	})

	t.Run("DuplicateName", func(t *testing.T) {
		err := s.AddName("pkg.M", "a")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `duplicate reserved name "a" in pkg.M`)
	})

	t.Run("InvertedRange", func(t *testing.T) {
		var s ReservedSet
		assert.ErrorIs(t, s.AddRange("pkg.M", 9, 3), ErrInvalidReserved)
	})

	t.Run("Narrowest", func(t *testing.T) {
		var s ReservedSet
		require.NoError(t, s.AddNumber("M", 9))
		require.NoError(t, s.AddRange("M", 100, protostream.MaxFieldNumber))
		require.NoError(t, s.AddNumber("M", 4))
		assert.Equal(t, []string{"reserved 4, 9, 100 to max;"}, s.Statements())
	})
}

// --- Export ---

func TestToProto(t *testing.T) {
	entry := message("ValuesEntry", scalar("key", 1, KindString), scalar("value", 2, KindInt32))
	entry.IsMapEntry = true
	values := NewField("values", 2, LabelRepeated, KindMessage)
	values.TypeName = "ValuesEntry"

	status := &EnumDescriptor{Name: "Status", Values: []*EnumValueDescriptor{{Name: "UNKNOWN"}, {Name: "OK", Number: 1}}}
	m := message("Holder", scalar("id", 1, KindInt64), values, ref("status", 3, "Status"))
	m.NestedMessages = []*Descriptor{entry}
	m.Reserved.Ranges = []ReservedRange{{From: 10, To: 12}}
	m.Reserved.Names = []string{"old"}
	f := file("holder.proto", "demo", m)
	f.Enums = []*EnumDescriptor{status}

	require.NoError(t, NewPool().Register(f))
	assert.True(t, values.IsMap())
	assert.Equal(t, KindString, values.MapKey().Kind)

	fd, err := protodesc.NewFile(f.ToProto(), new(protoregistry.Files))
	require.NoError(t, err)
	md := fd.Messages().ByName("Holder")
	require.NotNil(t, md)
	assert.True(t, md.Fields().ByName("values").IsMap())
	assert.Equal(t, protoreflect.EnumKind, md.Fields().ByName("status").Kind())
	assert.True(t, md.ReservedRanges().Has(12))
	assert.False(t, md.ReservedRanges().Has(13))
	assert.True(t, md.ReservedNames().Has("old"))
}
