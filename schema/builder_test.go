package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/descriptor"
)

const builtOrder = `syntax = "proto3";

package shop;

import "common.proto";

option go_package = "example.com/shop";

// An order.
//
// @TypeId(7)
message Order {
  reserved 1 to 7;
  reserved "a","b";
  string id = 8;
  repeated Item items = 9;
  map<string, int32> counts = 10;
  optional common.Money total = 11;
  oneof payment {
    string card = 12;
    bytes token = 13;
  }
  message Item {
    string sku = 1;
  }
}
`

func buildOrder() (*descriptor.FileDescriptor, error) {
	return NewFileBuilder("shop.proto").
		Package("shop").
		Import("common.proto").
		Option("go_package", `"example.com/shop"`).
		Message("Order").Comment("An order.").Comment("").Comment("@TypeId(7)").
		Reserved(1, 2).ReservedRange(3, 7).ReservedName("a", "b").
		Field("id", 8, "string").
		Field("items", 9, "Item").Repeated().
		Map("counts", 10, "string", "int32").
		Field("total", 11, "common.Money").Optional().
		Message().
		Oneof("payment").Field("card", 12, "string").Field("token", 13, "bytes").
		Message().
		Message("Item").Field("sku", 1, "string").
		Build()
}

func TestBuilderFormat(t *testing.T) {
	f, err := buildOrder()
	require.NoError(t, err)
	assert.Equal(t, builtOrder, Format(f))

	order := f.Messages[0]
	assert.Equal(t, "shop.Order", order.FullName)
	assert.EqualValues(t, 7, order.TypeID.Int64)
	assert.Equal(t, "shop.Order.CountsEntry", order.NestedMessages[0].FullName)
	assert.Equal(t, "shop.Order.Item", order.NestedMessages[1].FullName)
	require.Len(t, order.Oneofs, 2)
	assert.True(t, order.Oneofs[1].Synthetic)
	assert.Equal(t, "_total", order.Oneofs[1].Name)
}

func TestBuilderMatchesParser(t *testing.T) {
	built, err := buildOrder()
	require.NoError(t, err)
	parsed, err := Parse("shop.proto", builtOrder)
	require.NoError(t, err)
	assert.Equal(t, Format(parsed), Format(built))
	assert.Equal(t, built.Messages[0].Documentation, parsed.Messages[0].Documentation)
	assert.Equal(t, built.Messages[0].TypeID, parsed.Messages[0].TypeID)
}

func TestBuilderReservedDuplicates(t *testing.T) {
	_, err := NewFileBuilder("p.proto").
		Package("p").
		Message("M").
		Reserved(1).ReservedRange(1, 3).ReservedName("x", "x").
		Field("a", 4, "string").
		Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, descriptor.ErrDuplicateReserved)
	assert.ErrorIs(t, err, protostream.ErrSchemaParse)
	assert.Contains(t, err.Error(), "duplicate reserved number 1 in p.M")
	assert.Contains(t, err.Error(), `duplicate reserved name "x" in p.M`)
}

func TestBuilderErrors(t *testing.T) {
	t.Run("InvalidMapKey", func(t *testing.T) {
		_, err := NewFileBuilder("p.proto").Message("M").Map("m", 1, "float", "string").Build()
		assert.ErrorIs(t, err, descriptor.ErrInvalidField)
		assert.ErrorContains(t, err, "invalid key type float")
	})
	t.Run("ReservedFieldUsed", func(t *testing.T) {
		_, err := NewFileBuilder("p.proto").Message("M").Reserved(2).Field("a", 2, "int32").Build()
		assert.ErrorContains(t, err, "reserved number 2")
	})
	t.Run("TypeIdConflict", func(t *testing.T) {
		_, err := NewFileBuilder("p.proto").Message("M").TypeID(5).Comment("@TypeId(6)").Build()
		assert.ErrorIs(t, err, protostream.ErrSchemaParse)
		assert.ErrorContains(t, err, "type id 5")
	})
	t.Run("Proto2Enum", func(t *testing.T) {
		f, err := NewFileBuilder("p.proto").
			Syntax(descriptor.Proto2).
			Enum("Color").Value("RED", 1).Value("CRIMSON", 1, "alias of red").AllowAlias().TypeID(3).
			Build()
		require.NoError(t, err)
		e := f.Enums[0]
		assert.Equal(t, "Color", e.FullName)
		assert.EqualValues(t, 3, e.TypeID.Int64)
		assert.Equal(t, "alias of red", e.Values[1].Documentation)
	})
}

func TestBuilderFieldOptions(t *testing.T) {
	f, err := NewFileBuilder("p.proto").
		Syntax(descriptor.Proto2).
		Message("M").
		Field("name", 1, "string").Required().Default("n/a").JSONName("fullName").Comment("The name.").
		Field("ids", 2, "int32").Repeated().Packed(true).Deprecated().
		Build()
	require.NoError(t, err)
	assert.Equal(t, `syntax = "proto2";

message M {
  // The name.
  required string name = 1 [default = "n/a", json_name = "fullName"];
  repeated int32 ids = 2 [packed = true, deprecated = true];
}
`, Format(f))
}
