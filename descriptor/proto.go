package descriptor

import (
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ToProto exports the file as a google.protobuf.FileDescriptorProto so a
// linked schema can be handed to the official runtime (protodesc, dynamicpb).
// Type references are written fully qualified once the file is registered.
func (f *FileDescriptor) ToProto() *descriptorpb.FileDescriptorProto {
	fp := &descriptorpb.FileDescriptorProto{
		Name:   proto.String(f.Name),
		Syntax: proto.String(f.Syntax.String()),
	}
	if f.Package != "" {
		fp.Package = proto.String(f.Package)
	}
	for i, name := range f.PublicImports {
		fp.Dependency = append(fp.Dependency, name)
		fp.PublicDependency = append(fp.PublicDependency, int32(i))
	}
	fp.Dependency = append(fp.Dependency, f.PrivateImports...)
	for _, m := range f.Messages {
		fp.MessageType = append(fp.MessageType, m.toProto())
	}
	for _, e := range f.Enums {
		fp.EnumType = append(fp.EnumType, e.toProto())
	}
	if pkg, ok := f.Option("go_package"); ok {
		if unquoted, err := strconv.Unquote(pkg); err == nil {
			pkg = unquoted
		}
		fp.Options = &descriptorpb.FileOptions{GoPackage: proto.String(pkg)}
	}
	return fp
}

func (d *Descriptor) toProto() *descriptorpb.DescriptorProto {
	dp := &descriptorpb.DescriptorProto{Name: proto.String(d.Name)}
	for _, fd := range d.Fields {
		dp.Field = append(dp.Field, fd.toProto())
	}
	for _, m := range d.NestedMessages {
		dp.NestedType = append(dp.NestedType, m.toProto())
	}
	for _, e := range d.NestedEnums {
		dp.EnumType = append(dp.EnumType, e.toProto())
	}
	for _, o := range d.Oneofs {
		dp.OneofDecl = append(dp.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String(o.Name)})
	}
	for _, r := range d.Reserved.Normalized() {
		// message ranges are end-exclusive
		dp.ReservedRange = append(dp.ReservedRange, &descriptorpb.DescriptorProto_ReservedRange{
			Start: proto.Int32(r.From),
			End:   proto.Int32(r.To + 1),
		})
	}
	dp.ReservedName = append(dp.ReservedName, d.Reserved.Names...)
	if d.IsMapEntry {
		dp.Options = &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)}
	}
	return dp
}

func (fd *FieldDescriptor) toProto() *descriptorpb.FieldDescriptorProto {
	fp := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(fd.Name),
		Number: proto.Int32(fd.Number),
		Label:  descriptorpb.FieldDescriptorProto_Label(fd.Label).Enum(),
	}
	if fd.Kind != KindInvalid {
		fp.Type = descriptorpb.FieldDescriptorProto_Type(fd.Kind).Enum()
	}
	if t := fd.resolvedType(); t != nil {
		fp.TypeName = proto.String("." + t.TypeName())
	} else if fd.TypeName != "" {
		fp.TypeName = proto.String(fd.TypeName)
	}
	if fd.Default.Valid {
		fp.DefaultValue = proto.String(fd.Default.String)
	}
	if fd.JSONName != "" {
		fp.JsonName = proto.String(fd.JSONName)
	}
	if fd.OneofIndex >= 0 {
		fp.OneofIndex = proto.Int32(int32(fd.OneofIndex))
	}
	if fd.Proto3Optional {
		fp.Proto3Optional = proto.Bool(true)
	}
	if fd.Packed.Valid || fd.Deprecated {
		fp.Options = &descriptorpb.FieldOptions{}
		if fd.Packed.Valid {
			fp.Options.Packed = proto.Bool(fd.Packed.Bool)
		}
		if fd.Deprecated {
			fp.Options.Deprecated = proto.Bool(true)
		}
	}
	return fp
}

func (e *EnumDescriptor) toProto() *descriptorpb.EnumDescriptorProto {
	ep := &descriptorpb.EnumDescriptorProto{Name: proto.String(e.Name)}
	for _, v := range e.Values {
		ep.Value = append(ep.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v.Name),
			Number: proto.Int32(v.Number),
		})
	}
	for _, r := range e.Reserved.Normalized() {
		// enum ranges are inclusive
		ep.ReservedRange = append(ep.ReservedRange, &descriptorpb.EnumDescriptorProto_EnumReservedRange{
			Start: proto.Int32(r.From),
			End:   proto.Int32(r.To),
		})
	}
	ep.ReservedName = append(ep.ReservedName, e.Reserved.Names...)
	if e.AllowAlias {
		ep.Options = &descriptorpb.EnumOptions{AllowAlias: proto.Bool(true)}
	}
	return ep
}
