package compat

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/config"
	"github.com/oy3o/protostream/descriptor"
	"github.com/oy3o/protostream/schema"
)

func snapshotOf(t *testing.T, src string) Lock {
	t.Helper()
	files, err := schema.NewResolver(descriptor.NewPool()).Resolve(schema.Source{Name: "test.proto", Text: src})
	require.NoError(t, err)
	return Snapshot(files...)
}

const inventoryProto = `syntax = "proto3";
package inv;

enum State {
  STATE_UNKNOWN = 0;
  ACTIVE = 1;
  reserved 5 to 7;
  reserved "GONE";
}

message Item {
  string sku = 1;
  map<string, Item> children = 2;
  State state = 3;
  repeated sint64 deltas = 4;
  reserved 9, 10, 20 to max;
  reserved "old";
}
`

func TestSnapshot(t *testing.T) {
	l := snapshotOf(t, inventoryProto)
	require.Len(t, l.Definitions, 1)
	def := l.Definitions[0]
	assert.Equal(t, "test.proto", def.File)
	assert.Equal(t, "proto3", def.Syntax)
	assert.Equal(t, "inv", def.Package)

	require.Len(t, def.Messages, 1)
	item := def.Messages[0]
	assert.Equal(t, "inv.Item", item.Name)
	assert.Equal(t, []Field{
		{Name: "sku", Number: 1, Label: "optional", Kind: "string"},
		{Name: "children", Number: 2, Label: "repeated", Kind: "map", Type: "map<string,inv.Item>"},
		{Name: "state", Number: 3, Label: "optional", Kind: "enum", Type: "inv.State"},
		{Name: "deltas", Number: 4, Label: "repeated", Kind: "sint64"},
	}, item.Fields)
	assert.Equal(t, []Range{{9, 10}, {20, protostream.MaxFieldNumber}}, item.ReservedIDs)
	assert.Equal(t, []string{"old"}, item.ReservedNames)

	require.Len(t, def.Enums, 1)
	state := def.Enums[0]
	assert.Equal(t, "inv.State", state.Name)
	assert.Equal(t, []EnumValue{{"STATE_UNKNOWN", 0}, {"ACTIVE", 1}}, state.Values)
	assert.Equal(t, []Range{{5, 7}}, state.ReservedIDs)
	assert.Equal(t, []string{"GONE"}, state.ReservedNames)
}

func TestLockYAML(t *testing.T) {
	l := snapshotOf(t, inventoryProto)
	var buf bytes.Buffer
	require.NoError(t, WriteLock(&buf, l))
	assert.Contains(t, buf.String(), "name: inv.Item")
	assert.Contains(t, buf.String(), "type: map<string,inv.Item>")

	got, err := ReadLock(&buf)
	require.NoError(t, err)
	assert.Equal(t, l, got)

	empty, err := ReadLock(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Definitions)

	_, err = ReadLock(strings.NewReader("definitions: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidLock)
}

func TestCheckRemovedField(t *testing.T) {
	prev := snapshotOf(t, `syntax = "proto2";
message Account {
  required string id = 1;
  optional int32 age = 2;
  required int64 owner = 3;
}
`)
	removed := snapshotOf(t, `syntax = "proto2";
message Account {
  required string id = 1;
  optional int32 age = 2;
}
`)
	reserved := snapshotOf(t, `syntax = "proto2";
message Account {
  required string id = 1;
  optional int32 age = 2;
  reserved 3;
}
`)

	vs := Check(prev, removed)
	require.Len(t, vs, 1)
	assert.Equal(t, FieldRemovedNotReserved, vs[0].Rule)
	assert.Equal(t, int32(3), vs[0].Number)
	assert.Equal(t, "owner", vs[0].Field)
	assert.Equal(t, "Account", vs[0].Type)
	assert.Equal(t, "test.proto", vs[0].File)

	assert.Empty(t, Check(prev, reserved))
	assert.NoError(t, Compare(prev, reserved))
}

func TestCheckRules(t *testing.T) {
	tests := []struct {
		name       string
		prev, next string
		want       []Rule
	}{
		{
			name: "compatible varint widening",
			prev: `message M { optional int32 a = 1; optional string s = 2; }`,
			next: `message M { optional int64 a = 1; optional bytes s = 2; optional bool extra = 3; }`,
		},
		{
			name: "rename keeps the wire form",
			prev: `message M { optional int32 a = 1; }`,
			next: `message M { optional uint32 b = 1; }`,
		},
		{
			name: "kind changed",
			prev: `message M { optional int32 a = 1; }`,
			next: `message M { optional string a = 1; }`,
			want: []Rule{FieldKindChanged},
		},
		{
			name: "zigzag is not plain varint",
			prev: `message M { optional sint32 a = 1; }`,
			next: `message M { optional int32 a = 1; }`,
			want: []Rule{FieldKindChanged},
		},
		{
			name: "message type changed",
			prev: `message A {} message B {} message M { optional A a = 1; }`,
			next: `message A {} message B {} message M { optional B a = 1; }`,
			want: []Rule{FieldKindChanged},
		},
		{
			name: "number reused",
			prev: `message M { optional string a = 1; }`,
			next: `message M { optional fixed64 b = 1; }`,
			want: []Rule{FieldNumberReused},
		},
		{
			name: "required added",
			prev: `message M { optional string a = 1; }`,
			next: `message M { optional string a = 1; required int32 b = 2; }`,
			want: []Rule{RequiredFieldAdded},
		},
		{
			name: "became required",
			prev: `message M { optional string a = 1; }`,
			next: `message M { required string a = 1; }`,
			want: []Rule{RequiredFieldAdded},
		},
		{
			name: "reserved number used",
			prev: `message M { optional string a = 1; reserved 5; }`,
			next: `message M { optional string a = 1; optional int32 y = 5; }`,
			want: []Rule{ReservedFieldUsed},
		},
		{
			name: "reserved name used",
			prev: `message M { optional string a = 1; reserved "x"; }`,
			next: `message M { optional string a = 1; optional int32 x = 6; }`,
			want: []Rule{ReservedFieldUsed},
		},
		{
			name: "enum name moved",
			prev: `enum E { A = 0; B = 1; }`,
			next: `enum E { A = 0; B = 2; }`,
			want: []Rule{EnumValueNameReused},
		},
		{
			name: "enum name moved with old number reserved",
			prev: `enum E { A = 0; B = 1; }`,
			next: `enum E { A = 0; B = 2; reserved 1; }`,
		},
		{
			name: "enum value removed",
			prev: `enum E { A = 0; B = 1; }`,
			next: `enum E { A = 0; }`,
			want: []Rule{EnumValueRemovedNotReserved},
		},
		{
			name: "enum value renamed",
			prev: `enum E { A = 0; B = 1; }`,
			next: `enum E { A = 0; C = 1; }`,
		},
		{
			name: "every violation is reported",
			prev: `message M { optional int32 a = 1; optional string b = 2; optional bool c = 3; } enum E { A = 0; B = 1; }`,
			next: `message M { optional string a = 1; required int32 d = 4; } enum E { A = 0; }`,
			want: []Rule{FieldKindChanged, FieldRemovedNotReserved, FieldRemovedNotReserved, RequiredFieldAdded, EnumValueRemovedNotReserved},
		},
		{
			name: "removed types are not compared",
			prev: `message M { optional int32 a = 1; } message Gone { optional int32 a = 1; }`,
			next: `message M { optional int32 a = 1; }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := snapshotOf(t, `syntax = "proto2"; `+tt.prev)
			next := snapshotOf(t, `syntax = "proto2"; `+tt.next)
			var got []Rule
			for _, v := range Check(prev, next) {
				got = append(got, v.Rule)
			}
			assert.Equal(t, tt.want, got)

			err := Compare(prev, next)
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, protostream.ErrCompatibility)
			var ce *CompatibilityError
			require.ErrorAs(t, err, &ce)
			assert.Len(t, ce.Violations, len(tt.want))
		})
	}
}

func TestStoreCommit(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore(fs, "")
	assert.Equal(t, "proto.lock", s.Path())

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	v1 := snapshotOf(t, `syntax = "proto2"; message M { optional int32 a = 1; optional string b = 2; }`)
	require.NoError(t, s.Commit(v1))
	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v1, got)

	v2 := snapshotOf(t, `syntax = "proto2"; message M { optional int32 a = 1; reserved 2; optional bool c = 3; }`)
	require.NoError(t, s.Commit(v2))
	got, _, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, v2, got)

	v3 := snapshotOf(t, `syntax = "proto2"; message M { optional string a = 1; reserved 2; }`)
	err = s.Commit(v3)
	assert.ErrorIs(t, err, protostream.ErrCompatibility)
	got, _, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, v2, got)

	exists, err := afero.Exists(fs, "proto.lock.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreCorruptLock(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "schema.lock", []byte("definitions: {"), 0o644))
	s := NewStore(fs, "schema.lock")
	err := s.Commit(Lock{})
	assert.ErrorIs(t, err, ErrInvalidLock)
}

func TestNewStoreFromOptions(t *testing.T) {
	fs := afero.NewMemMapFs()
	assert.Equal(t, "proto.lock", NewStoreFromOptions(fs, config.Default()).Path())

	o := config.Default()
	o.LockFile = null.StringFrom("app.lock")
	s := NewStoreFromOptions(fs, o)
	assert.Equal(t, "app.lock", s.Path())

	require.NoError(t, s.Commit(snapshotOf(t, `syntax = "proto2"; message M { optional int32 a = 1; }`)))
	exists, err := afero.Exists(fs, "app.lock")
	require.NoError(t, err)
	assert.True(t, exists)
}
