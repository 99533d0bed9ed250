package descriptor

import "strings"

// Resolve finds the type a reference written inside scope refers to,
// following protobuf scoping: `Foo` used in `pkg.Outer` is tried as
// `pkg.Outer.Foo`, `pkg.Foo` and `Foo`. A leading dot makes the reference
// fully qualified.
func Resolve(ns Namespace, scope, ref string) (Type, bool) {
	if strings.HasPrefix(ref, ".") {
		return ns.Get(ref[1:])
	}
	for {
		if t, ok := ns.Get(qualify(scope, ref)); ok {
			return t, true
		}
		if scope == "" {
			return nil, false
		}
		scope = parentScope(scope)
	}
}

func (p *Pool) linkFile(f *FileDescriptor) error {
	var err error
	f.Walk(func(t Type) {
		d, ok := t.(*Descriptor)
		if !ok || err != nil {
			return
		}
		for _, fd := range d.Fields {
			if err = p.linkField(f, d, fd); err != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	f.Walk(func(t Type) {
		if d, ok := t.(*Descriptor); ok && err == nil {
			err = checkLinked(f, d)
		}
	})
	return err
}

func (p *Pool) linkField(f *FileDescriptor, d *Descriptor, fd *FieldDescriptor) error {
	switch fd.Kind {
	case KindInvalid, KindMessage, KindEnum, KindGroup:
	default:
		return nil
	}
	if fd.TypeName == "" {
		return schemaErr(f.Name, ErrInvalidField, "field %s has no type", fd.FullName())
	}
	t, ok := Resolve(f.ns, d.FullName, fd.TypeName)
	if !ok {
		return schemaErr(f.Name, ErrUnresolvedType, "unresolved type %s of field %s", fd.TypeName, fd.FullName())
	}
	switch t.(type) {
	case *Descriptor:
		if fd.Kind == KindEnum {
			return schemaErr(f.Name, ErrInvalidField, "field %s declared as enum but %s is a message", fd.FullName(), t.TypeName())
		}
		if fd.Kind == KindInvalid {
			fd.Kind = KindMessage
		}
	case *EnumDescriptor:
		if fd.Kind == KindMessage || fd.Kind == KindGroup {
			return schemaErr(f.Name, ErrInvalidField, "field %s declared as message but %s is an enum", fd.FullName(), t.TypeName())
		}
		fd.Kind = KindEnum
	}
	fd.ref = t.arenaIndex()
	return nil
}

// checkLinked runs the checks that need resolved references.
func checkLinked(f *FileDescriptor, d *Descriptor) error {
	for _, fd := range d.Fields {
		if fd.IsMap() {
			key, value := fd.MapKey(), fd.MapValue()
			if key == nil || value == nil {
				return schemaErr(f.Name, ErrInvalidField, "map entry of %s lacks key or value", fd.FullName())
			}
			if !key.Kind.IsValidMapKey() {
				return schemaErr(f.Name, ErrInvalidField, "map field %s has invalid key type %s", fd.FullName(), key.Kind)
			}
			if value.IsMap() {
				return schemaErr(f.Name, ErrInvalidField, "map field %s cannot have a map value", fd.FullName())
			}
		}
		if e := fd.Enum(); e != nil {
			if f.Syntax == Proto3 && e.File().Syntax == Proto2 {
				return schemaErr(f.Name, ErrInvalidField, "field %s uses proto2 enum %s in a proto3 file", fd.FullName(), e.FullName)
			}
			if fd.Default.Valid && e.ValueByName(fd.Default.String) == nil {
				return schemaErr(f.Name, ErrInvalidField, "default %s of field %s is not a value of %s", fd.Default.String, fd.FullName(), e.FullName)
			}
		}
		if fd.Default.Valid && fd.Kind == KindMessage {
			return schemaErr(f.Name, ErrInvalidField, "message field %s cannot have a default", fd.FullName())
		}
	}
	return nil
}
